// Package noop provides a Logger that discards everything, used as the
// server's default before an embedder attaches a real backend.
package noop

import "github.com/coriolis-labs/ftpd/log"

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (l noopLogger) With(...interface{}) log.Logger { return l }

// NewLogger returns a Logger implementation that discards everything.
func NewLogger() log.Logger { return noopLogger{} }
