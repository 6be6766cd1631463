package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/coachdiary/apps/api/echo"
	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/result"
	"github.com/trezcool/coachdiary/core/roster"
	"github.com/trezcool/coachdiary/core/standard"
	"github.com/trezcool/coachdiary/core/user"
	emailsvc "github.com/trezcool/coachdiary/services/email"
	logsvc "github.com/trezcool/coachdiary/services/logger"
	"github.com/trezcool/coachdiary/storage"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// repositories splits the storage into the dependencies of the services.
	repositories struct {
		dig.Out
		Tx        core.TxRunner
		Users     user.Repository
		Roster    roster.Repository
		Standards standard.Repository
		Results   result.Repository
		Reports   result.ReportRepository
		Levels    standard.LevelCache
	}

	// rosterServices provides roster.Service under both of its interfaces.
	rosterServices struct {
		dig.Out
		Service roster.ServiceInterface
		Results result.Roster
	}

	// standardServices provides standard.Service under both of its interfaces.
	standardServices struct {
		dig.Out
		Service standard.ServiceInterface
		Results result.Catalog
	}

	resultParams struct {
		dig.In
		Tx      core.TxRunner
		Repo    result.Repository
		Reports result.ReportRepository
		Roster  result.Roster
		Catalog result.Catalog
		Logger  core.Logger
		Opts    result.Options
	}

	serverParams struct {
		dig.In
		Conf        *core.Config
		Logger      core.Logger
		UserSvc     user.ServiceInterface
		RosterSvc   roster.ServiceInterface
		StandardSvc standard.ServiceInterface
		ResultSvc   result.ServiceInterface
		Validate    *validator.Validate
		Translator  ut.Translator
	}
)

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) *storage.Storage {
	store, err := storage.Open(context.Background(), conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}
	return store
}

func newRepositories(store *storage.Storage) repositories {
	return repositories{
		Tx:        store.Tx,
		Users:     store.Users,
		Roster:    store.Roster,
		Standards: store.Standards,
		Results:   store.Results,
		Reports:   store.Reports,
		Levels:    store.Levels,
	}
}

func newUserService(conf *core.Config, repo user.Repository, mailSvc core.EmailService) user.ServiceInterface {
	return user.NewService(conf, repo, mailSvc)
}

func newRosterServices(tx core.TxRunner, repo roster.Repository) rosterServices {
	svc := roster.NewService(tx, repo)
	return rosterServices{Service: svc, Results: svc}
}

func newStandardServices(tx core.TxRunner, repo standard.Repository, cache standard.LevelCache, logger core.Logger) standardServices {
	svc := standard.NewService(tx, repo, cache, logger)
	return standardServices{Service: svc, Results: svc}
}

func newResultService(p resultParams) result.ServiceInterface {
	return result.NewService(p.Tx, p.Repo, p.Reports, p.Roster, p.Catalog, p.Logger, p.Opts)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:        p.Conf,
		Logger:      p.Logger,
		UserSvc:     p.UserSvc,
		RosterSvc:   p.RosterSvc,
		StandardSvc: p.StandardSvc,
		ResultSvc:   p.ResultSvc,
		Validate:    p.Validate,
		Translator:  p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newRepositories))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(emailsvc.New))
	must(c.Provide(newUserService))
	must(c.Provide(newRosterServices))
	must(c.Provide(newStandardServices))
	must(c.Provide(result.OptionsFromConfig))
	must(c.Provide(newResultService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
