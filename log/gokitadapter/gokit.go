// Package gokitadapter adapts github.com/go-kit/log (and the older
// github.com/go-kit/kit/log) to the log.Logger interface, grounded on the
// teacher's log/gokit/go-kit.go adapter. It is offered alongside
// logrusadapter for embedders that already standardized on go-kit's
// structured logging in the rest of their stack.
package gokitadapter

import (
	"fmt"
	"os"

	gklog "github.com/go-kit/log"
	gklevel "github.com/go-kit/log/level"

	"github.com/coriolis-labs/ftpd/log"
)

type adapter struct {
	logger gklog.Logger
}

// New wraps a go-kit Logger as a log.Logger.
func New(logger gklog.Logger) log.Logger {
	return &adapter{logger: logger}
}

// NewStdout builds a logfmt go-kit logger writing to stdout with a UTC
// timestamp and caller field, matching the teacher's NewGKLoggerStdout.
func NewStdout() log.Logger {
	base := gklog.NewLogfmtLogger(gklog.NewSyncWriter(os.Stdout))
	base = gklog.With(base, "ts", gklog.DefaultTimestampUTC, "caller", gklog.Caller(5))

	return New(base)
}

func (a *adapter) log(leveled gklog.Logger, event string, keyvals ...interface{}) {
	keyvals = append(keyvals, "event", event)
	if err := leveled.Log(keyvals...); err != nil {
		fmt.Fprintln(os.Stderr, "logging error:", err)
	}
}

func (a *adapter) Debug(event string, keyvals ...interface{}) {
	a.log(gklevel.Debug(a.logger), event, keyvals...)
}

func (a *adapter) Info(event string, keyvals ...interface{}) {
	a.log(gklevel.Info(a.logger), event, keyvals...)
}

func (a *adapter) Warn(event string, keyvals ...interface{}) {
	a.log(gklevel.Warn(a.logger), event, keyvals...)
}

func (a *adapter) Error(event string, keyvals ...interface{}) {
	a.log(gklevel.Error(a.logger), event, keyvals...)
}

func (a *adapter) With(keyvals ...interface{}) log.Logger {
	return New(gklog.With(a.logger, keyvals...))
}
