package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/result"
	"github.com/trezcool/coachdiary/core/roster"
	"github.com/trezcool/coachdiary/core/standard"
	logsvc "github.com/trezcool/coachdiary/services/logger"
	"github.com/trezcool/coachdiary/storage"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// migrate runs goose on an untouched schema
	var opts []storage.Option
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		opts = append(opts, storage.WithoutMigrations())
	}
	store, err := storage.Open(context.Background(), conf, opts...)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}

	rosterSvc := roster.NewService(store.Tx, store.Roster)
	stdSvc := standard.NewService(store.Tx, store.Standards, store.Levels, logger)
	cli := commandLine{
		usrRepo:   store.Users,
		rosterSvc: rosterSvc,
		stdSvc:    stdSvc,
		resultSvc: result.NewService(store.Tx, store.Results, store.Reports, rosterSvc, stdSvc, logger, result.OptionsFromConfig(conf)),
		out:       os.Stdout,
	}
	if store.DB != nil {
		cli.db = store.DB.DB
	}

	err = cli.run(os.Args)
	if cerr := store.Close(); cerr != nil {
		logger.Error("Failed to close storage", cerr)
	}
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}
