// Package logrusadapter adapts github.com/sirupsen/logrus to the log.Logger
// interface. This is the default backend wired by cmd/ftpd, grounded on the
// teacher's historical main.go and sample driver, and on nabbar-golib's
// pervasive use of logrus for application logging.
package logrusadapter

import (
	"github.com/sirupsen/logrus"

	"github.com/coriolis-labs/ftpd/log"
)

type adapter struct {
	entry *logrus.Entry
}

// New wraps a *logrus.Entry as a log.Logger.
func New(entry *logrus.Entry) log.Logger {
	return &adapter{entry: entry}
}

// NewDefault builds a logrus logger with text formatting on stderr at Info
// level, suitable for cmd/ftpd's default configuration.
func NewDefault() log.Logger {
	return NewWithLevel(logrus.InfoLevel)
}

// NewWithLevel builds a logrus logger with text formatting on stderr at the
// given level, used by cmd/ftpd's --debug flag to switch to logrus.DebugLevel.
func NewWithLevel(level logrus.Level) log.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(level)

	return New(logrus.NewEntry(l))
}

func fields(keyvals []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(keyvals)/2)

	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}

		f[key] = keyvals[i+1]
	}

	return f
}

func (a *adapter) Debug(event string, keyvals ...interface{}) {
	a.entry.WithFields(fields(keyvals)).Debug(event)
}

func (a *adapter) Info(event string, keyvals ...interface{}) {
	a.entry.WithFields(fields(keyvals)).Info(event)
}

func (a *adapter) Warn(event string, keyvals ...interface{}) {
	a.entry.WithFields(fields(keyvals)).Warn(event)
}

func (a *adapter) Error(event string, keyvals ...interface{}) {
	a.entry.WithFields(fields(keyvals)).Error(event)
}

func (a *adapter) With(keyvals ...interface{}) log.Logger {
	return New(a.entry.WithFields(fields(keyvals)))
}
