package logger

import (
	"context"
	"io"
)

// nopLogger discards everything. Components fall back to it when the caller
// does not supply a Logger.
type nopLogger struct{}

var _ Logger = nopLogger{}

func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(string)                         {}
func (nopLogger) Debugf(string, ...any)                {}
func (nopLogger) Info(string)                          {}
func (nopLogger) Infof(string, ...any)                 {}
func (nopLogger) Warn(string)                          {}
func (nopLogger) Warnf(string, ...any)                 {}
func (nopLogger) Error(string)                         {}
func (nopLogger) Errorf(string, ...any)                {}
func (nopLogger) Fatal(string)                         {}
func (nopLogger) Fatalf(string, ...any)                {}
func (n nopLogger) WithField(string, any) Logger       { return n }
func (n nopLogger) WithFields(Fields) Logger           { return n }
func (n nopLogger) WithContext(context.Context) Logger { return n }
func (nopLogger) SetLevel(Level)                       {}
func (nopLogger) SetOutput(io.Writer)                  {}
