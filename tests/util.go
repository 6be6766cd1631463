package testutil

import (
	"context"
	"io"
	"log"
	"os"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/roster"
	"github.com/trezcool/coachdiary/core/standard"
	"github.com/trezcool/coachdiary/core/user"
	logsvc "github.com/trezcool/coachdiary/services/logger"
	"github.com/trezcool/coachdiary/storage/database"
)

// NewTestConfig returns the app config in test mode, on the in-memory engine.
func NewTestConfig() *core.Config {
	conf := core.NewConfig()
	conf.Env = "TEST"
	conf.Debug = false
	conf.TestMode = true
	conf.SecretKey = "test-secret"
	conf.Database.Engine = core.EngineMemory
	conf.Redis.Addr = ""
	conf.Grading = core.GradingConfig{BatchAtomic: true}
	return conf
}

// NewLogger returns a silent logger.
func NewLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	logger.Enable(false)
	return logger
}

// NewValidator returns a validator with every app validator & translation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// PrepareDB connects to the postgres test database, migrates it and empties it.
// The test is skipped when no database is reachable (set TEST_DB_ENGINE=postgres to run it).
// Packages calling it share the database: run them with go test -p 1.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if os.Getenv("TEST_DB_ENGINE") != core.EnginePostgres {
		t.Skip("postgres tests disabled")
	}

	conf := core.NewConfig()
	conf.Database.Engine = core.EnginePostgres
	if err := database.CreateIfNotExist(conf); err != nil {
		t.Skipf("database unavailable: %v", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		t.Skipf("database unavailable: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	ResetDB(t, db)
	return db
}

// ResetDB empties every table of db.
func ResetDB(t *testing.T, db *sqlx.DB) {
	t.Helper()
	q := `TRUNCATE TABLE student_standard, level, standard, student, student_class, "user" RESTART IDENTITY CASCADE`
	if _, err := db.Exec(q); err != nil {
		t.Fatalf("ResetDB() failed: %v", err)
	}
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateClass(t *testing.T, repo roster.Repository, ownerID string, number int, name string) roster.StudentClass {
	t.Helper()
	now := time.Now().UTC()
	class, err := repo.CreateClass(context.Background(), roster.StudentClass{
		Number:          number,
		ClassName:       name,
		OwnerID:         ownerID,
		RecruitmentYear: now.Year() - number,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		t.Fatalf("CreateClass() failed: %v", err)
	}
	return class
}

func CreateStudent(t *testing.T, repo roster.Repository, classID int64, fullName, gender string, birthday roster.Date) roster.Student {
	t.Helper()
	now := time.Now().UTC()
	student, err := repo.CreateStudent(context.Background(), roster.Student{
		FullName:  fullName,
		Birthday:  birthday,
		Gender:    gender,
		ClassID:   classID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return student
}

// CreateStandard creates a standard along with its levels.
func CreateStandard(t *testing.T, repo standard.Repository, ownerID, name string, numeric bool, levels ...standard.Level) standard.Standard {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	std, err := repo.CreateStandard(ctx, standard.Standard{
		Name:            name,
		HasNumericValue: numeric,
		OwnerID:         ownerID,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		t.Fatalf("CreateStandard() failed: %v", err)
	}
	std.Levels = make([]standard.Level, 0, len(levels))
	for _, lvl := range levels {
		lvl.StandardID = std.ID
		if lvl, err = repo.CreateLevel(ctx, lvl); err != nil {
			t.Fatalf("CreateStandard() failed: %v", err)
		}
		std.Levels = append(std.Levels, lvl)
	}
	return std
}

// NumericLevel returns a level of a numeric standard.
func NumericLevel(number int, gender string, low, middle, high float64) standard.Level {
	return standard.Level{
		LevelNumber: number,
		Gender:      gender,
		Low:         null.Float64From(low),
		Middle:      null.Float64From(middle),
		High:        null.Float64From(high),
	}
}

// FieldErrors returns the field errors of err, failing the test when err is not a validation error.
func FieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("FieldErrors() got %v (%T), want a *core.ValidationError", err, err)
	}
	flds := make(map[string]string, len(verr.Fields))
	for _, fld := range verr.Fields {
		flds[fld.Field] = fld.Error
	}
	return flds
}
