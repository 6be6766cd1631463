package main

import (
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/trezcool/coachdiary/core"
)

// API_DI=dig builds the dependency graph with go.uber.org/dig; it is wired by hand otherwise.
func main() {
	if os.Getenv("API_DI") == "dig" {
		startWithDig()
		return
	}
	startManual()
}

// startDebugServer serves /debug/pprof & /debug/vars on conf.Server.DebugHost.
func startDebugServer(conf *core.Config, logger core.Logger) {
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("db_engine").Set(conf.Database.Engine)
	expvar.NewString("mail_backend").Set(conf.Mail.Backend)
	expvar.Publish("grading", expvar.Func(func() interface{} {
		return conf.Grading
	}))

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()
}
