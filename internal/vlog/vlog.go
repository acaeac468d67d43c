// Package vlog provides the injected logging interface every ingestion
// agent takes instead of reaching for a process-wide global logger,
// following the adapter-over-a-concrete-logger pattern used throughout
// the example corpus's internal/log packages.
package vlog

import "github.com/sirupsen/logrus"

// Logger is the minimal structured-logging surface every agent in the
// pipeline depends on. Implementations have an explicit lifetime scoped
// to whatever constructs the agent.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	With(fields Fields) Logger
}

// Fields is structured context attached to subsequent log lines.
type Fields map[string]interface{}

// logrusLogger adapts *logrus.Entry to the Logger interface.
type logrusLogger struct {
	entry *logrus.Entry
}

// New builds the default Logger backed by logrus, writing structured
// text to stderr at info level.
func New() Logger {
	return NewWithLevel("info")
}

// NewWithLevel builds a logrus-backed Logger at the given level name
// (debug/info/warn/error); an unrecognized name falls back to info.
func NewWithLevel(level string) Logger {
	l := logrus.New()
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func (l *logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logrusLogger) With(fields Fields) Logger {
	return &logrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// noop discards everything; used by tests that don't care about log
// output but still need to satisfy the Logger parameter.
type noop struct{}

// Noop returns a Logger that discards every call.
func Noop() Logger { return noop{} }

func (noop) Debugf(string, ...interface{}) {}
func (noop) Infof(string, ...interface{})  {}
func (noop) Warnf(string, ...interface{})  {}
func (noop) Errorf(string, ...interface{}) {}
func (n noop) With(Fields) Logger          { return n }
