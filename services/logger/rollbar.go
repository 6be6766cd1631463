package logsvc

import (
	"fmt"
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/user"
)

// RollbarLogger reports to rollbar and echoes every entry to a standard logger.
// Debug entries are only echoed in debug mode.
type RollbarLogger struct {
	std   *log.Logger
	debug bool
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetServerRoot("github.com/trezcool/coachdiary")
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std, debug: conf.Debug}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// entry is a log call split into what rollbar takes.
type entry struct {
	err    error
	extras map[string]interface{}
	coach  *user.User
}

// parse splits args into the first error, the coach the entry is about and extra data.
// Maps are merged into the extras; any other value is kept under "args".
func parse(args []interface{}) entry {
	var e entry
	var rest []interface{}
	for _, arg := range args {
		switch v := arg.(type) {
		case user.User:
			if e.coach == nil {
				usr := v
				e.coach = &usr
			}
		case error:
			if e.err == nil {
				e.err = v
			} else {
				rest = append(rest, v.Error())
			}
		case map[string]interface{}:
			if e.extras == nil {
				e.extras = make(map[string]interface{}, len(v))
			}
			for k, val := range v {
				e.extras[k] = val
			}
		default:
			rest = append(rest, v)
		}
	}
	if len(rest) > 0 {
		if e.extras == nil {
			e.extras = make(map[string]interface{}, 1)
		}
		e.extras["args"] = rest
	}
	return e
}

// rollbarArgs builds the args of a rollbar call: msg | error, extras.
func (e entry) rollbarArgs(msg string) []interface{} {
	if e.coach != nil {
		rollbar.SetPerson(e.coach.ID, e.coach.Name, e.coach.Email)
	} else {
		rollbar.ClearPerson()
	}

	args := make([]interface{}, 0, 2)
	if e.err != nil {
		args = append(args, fmt.Errorf("%s: %w", msg, e.err))
	} else {
		args = append(args, msg)
	}
	if e.extras != nil {
		args = append(args, e.extras)
	}
	return args
}

func (l RollbarLogger) print(level, msg string, e entry) {
	line := fmt.Sprintf("[%s] %s", level, msg)
	if e.err != nil {
		line += fmt.Sprintf(": %v", e.err)
	}
	if e.coach != nil {
		line += fmt.Sprintf(" (coach=%s)", e.coach.Email)
	}
	l.std.Println(line)
	for k, v := range e.extras {
		l.std.Printf("  %s=%+v\n", k, v)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	e := parse(args)
	rollbar.Debug(e.rollbarArgs(msg)...)
	if l.debug {
		l.print("DEBUG", msg, e)
	}
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	e := parse(args)
	rollbar.Info(e.rollbarArgs(msg)...)
	l.print("INFO", msg, e)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	e := parse(args)
	rollbar.Warning(e.rollbarArgs(msg)...)
	l.print("WARN", msg, e)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	e := parse(args)
	rollbar.Error(e.rollbarArgs(msg)...)
	l.print("ERROR", msg, e)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	e := parse(args)
	rollbar.Critical(e.rollbarArgs(msg)...)
	l.print("FATAL", msg, e)
	rollbar.Wait()
	l.std.Fatal(msg)
}
