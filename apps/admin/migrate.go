package main

import (
	"database/sql"
	"errors"

	"github.com/trezcool/goose"

	"github.com/trezcool/coachdiary/fs"
)

var errNoSQLDB = errors.New("migrate requires the postgres engine")

// mockable
var gooseRunFunc = func(command string, db *sql.DB, args ...string) error {
	return goose.RunFS(command, db, appfs.FS, "migrations", args...)
}

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoSQLDB
	}
	return gooseRunFunc(args[0], cli.db, args[1:]...)
}
