package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName      string
		Build        string
		Env          string // DEV (local; default), TEST, QA, PROD
		Debug        bool
		TestMode     bool
		SecretKey    string
		RollbarToken string

		FrontendBaseURL           string
		PasswordResetTimeoutDelta time.Duration

		Server   ServerConfig
		Mail     MailConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Grading  GradingConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	MailConfig struct {
		Backend          string // console | sendgrid
		FromName       string
		FromEmail      string
		SendgridAPIKey string
	}

	DatabaseConfig struct {
		Engine        string // postgres | memory
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Addr      string // empty disables the levels cache
		Password  string
		DB        int
		LevelsTTL time.Duration
	}

	GradingConfig struct {
		// BatchAtomic rolls back a whole batch submission when any entry fails.
		BatchAtomic bool
		// KeepUngraded stores numeric results that no level matches, with an empty grade.
		KeepUngraded bool
	}
)

const (
	EnginePostgres = "postgres"
	EngineMemory   = "memory"

	MailBackendConsole  = "console"
	MailBackendSendgrid = "sendgrid"
)

// Sender is the From address of every app email.
func (mc MailConfig) Sender() mail.Address {
	return mail.Address{Name: mc.FromName, Address: mc.FromEmail}
}

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, strconv.Itoa(dbc.Port))
}

// NewConfig loads the app configuration from the environment (and `config/.env.<env>` if it exists).
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("appName", "CoachDiary")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "n6s#x1-v9!kq@yq3x)c&w0%e+ug4^b2d7z*l$r8ph=c5a_mt")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server_host", "localhost")
	v.SetDefault("server_address", ":8000")
	v.SetDefault("server_debugHost", ":4000")
	v.SetDefault("server_shutdownTimeout", 5*time.Second)
	v.SetDefault("server_jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server_jwtRefreshExpirationDelta", 30*24*time.Hour)

	v.SetDefault("mail_backend", MailBackendConsole)
	v.SetDefault("mail_fromName", "CoachDiary")
	v.SetDefault("mail_fromEmail", "noreply@localhost")
	v.SetDefault("mail_sendgridAPIKey", "")

	v.SetDefault("db_engine", EnginePostgres)
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_name", "coachdiary")
	v.SetDefault("db_user", "coachdiary")
	v.SetDefault("db_password", "coachdiary")
	v.SetDefault("db_adminUser", "postgres")
	v.SetDefault("db_adminPassword", "")
	v.SetDefault("db_disableTLS", true)

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_levelsTTL", 10*time.Minute)

	v.SetDefault("grading_batchAtomic", true)
	v.SetDefault("grading_keepUngraded", false)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		AppName:      v.GetString("appName"),
		Build:        v.GetString("build"),
		Env:          env,
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),

		FrontendBaseURL:           v.GetString("frontendBaseURL"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),

		Server: ServerConfig{
			Host:                      v.GetString("server_host"),
			Address:                   v.GetString("server_address"),
			DebugHost:                 v.GetString("server_debugHost"),
			ShutdownTimeout:           v.GetDuration("server_shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server_jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server_jwtRefreshExpirationDelta"),
		},
		Mail: MailConfig{
			Backend:        v.GetString("mail_backend"),
			FromName:       v.GetString("mail_fromName"),
			FromEmail:      v.GetString("mail_fromEmail"),
			SendgridAPIKey: v.GetString("mail_sendgridAPIKey"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("db_engine"),
			Host:          v.GetString("db_host"),
			Port:          v.GetInt("db_port"),
			Name:          v.GetString("db_name"),
			User:          v.GetString("db_user"),
			Password:      v.GetString("db_password"),
			AdminUser:     v.GetString("db_adminUser"),
			AdminPassword: v.GetString("db_adminPassword"),
			DisableTLS:    v.GetBool("db_disableTLS"),
		},
		Redis: RedisConfig{
			Addr:      v.GetString("redis_addr"),
			Password:  v.GetString("redis_password"),
			DB:        v.GetInt("redis_db"),
			LevelsTTL: v.GetDuration("redis_levelsTTL"),
		},
		Grading: GradingConfig{
			BatchAtomic:  v.GetBool("grading_batchAtomic"),
			KeepUngraded: v.GetBool("grading_keepUngraded"),
		},
	}
}
