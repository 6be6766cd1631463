package main

import (
	"fmt"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	dig_container "github.com/trezcool/coachdiary/apps/api/di/dig"
	echoapi "github.com/trezcool/coachdiary/apps/api/echo"
	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/user"
	"github.com/trezcool/coachdiary/storage"
)

func startWithDig() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		store *storage.Storage,
		validate *validator.Validate,
		translator ut.Translator,
		server *echoapi.Server,
	) {
		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

		core.InitValidators(validate, translator)
		user.InitValidators(validate, translator)

		user.LoadCommonPasswords(apiLogger)

		dbLogger := dbLoggerParam.Logger
		defer func() {
			if err := store.Close(); err != nil {
				dbLogger.Fatal("Failed to close", err)
			}
		}()
		defer apiLogger.Info("Application stopped")

		startDebugServer(conf, apiLogger)

		serve(conf, apiLogger, server)
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
