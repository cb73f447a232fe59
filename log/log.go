// Package log implements support for structured logging.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// log.DefaultCaller + 2 for this module's leveling wrappers.
const defaultCallerUnwind = 5

// Logger is a structured logger.
type Logger struct {
	base   log.Logger // sink without caller/timestamp prefixes
	logger log.Logger
	level  Level
	module string

	keyvals      []interface{}
	callerUnwind int
}

// NewDefaultLogger initializes a new logger instance with default settings.
// For usage outside tests, prefer RootLogger() from package `cmd/common`.
func NewDefaultLogger(module string) *Logger {
	logger, err := NewLogger(module, os.Stdout, FmtJSON, LevelInfo)
	if err != nil {
		// Shouldn't happen as NewLogger can only fail if an invalid format is provided.
		panic(err)
	}
	return logger
}

// NewLogger initializes a new logger instance.
func NewLogger(module string, w io.Writer, format Format, lvl Level) (*Logger, error) {
	var base log.Logger
	switch format {
	case FmtLogfmt:
		base = log.NewLogfmtLogger(log.NewSyncWriter(w))
	case FmtJSON:
		base = log.NewJSONLogger(log.NewSyncWriter(w))
	default:
		return nil, fmt.Errorf("log: unsupported log format: %v", format)
	}

	l := &Logger{
		base:         base,
		level:        lvl,
		module:       module,
		callerUnwind: defaultCallerUnwind,
	}
	l.rebuild()
	return l, nil
}

func (l *Logger) rebuild() {
	logger := log.WithPrefix(l.base,
		"ts", log.DefaultTimestampUTC,
		"caller", log.Caller(l.callerUnwind),
	)
	if len(l.keyvals) > 0 {
		logger = log.With(logger, l.keyvals...)
	}
	l.logger = logger
}

func (l *Logger) clone() *Logger {
	c := *l
	c.keyvals = append([]interface{}{}, l.keyvals...)
	return &c
}

func (l *Logger) log(lvl Level, msg string, keyvals []interface{}) {
	if l.level > lvl {
		return
	}
	keyvals = append([]interface{}{"module", l.module, "msg", msg}, keyvals...)
	switch lvl {
	case LevelDebug:
		_ = level.Debug(l.logger).Log(keyvals...)
	case LevelInfo:
		_ = level.Info(l.logger).Log(keyvals...)
	case LevelWarn:
		_ = level.Warn(l.logger).Log(keyvals...)
	default:
		_ = level.Error(l.logger).Log(keyvals...)
	}
}

// Debug logs the message and key value pairs at the Debug log level.
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.log(LevelDebug, msg, keyvals)
}

// Info logs the message and key value pairs at the Info log level.
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.log(LevelInfo, msg, keyvals)
}

// Warn logs the message and key value pairs at the Warn log level.
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.log(LevelWarn, msg, keyvals)
}

// Error logs the message and key value pairs at the Error log level.
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.log(LevelError, msg, keyvals)
}

// With returns a clone of the logger with the provided key/value pairs
// added as context for all subsequent logs.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	c := l.clone()
	c.keyvals = append(c.keyvals, keyvals...)
	c.rebuild()
	return c
}

// WithModule returns a clone of the logger with the provided module
// added as context for all subsequent logs.
func (l *Logger) WithModule(module string) *Logger {
	c := l.clone()
	c.module = module
	return c
}

// WithCallerUnwind returns a clone of the logger that reports the caller
// `unwind` frames up the stack. Useful when the logger is wrapped by
// third-party code, e.g. a stdlib *log.Logger.
func (l *Logger) WithCallerUnwind(unwind int) *Logger {
	c := l.clone()
	c.callerUnwind = unwind
	c.rebuild()
	return c
}

// Level is the logging level.
func (l *Logger) Level() Level {
	return l.level
}

// writerIntoLogger forwards each written line to the wrapped logger at the Info level.
type writerIntoLogger struct {
	logger Logger
}

func (w writerIntoLogger) Write(p []byte) (int, error) {
	w.logger.Info(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// WriterIntoLogger returns an io.Writer that logs everything written to it.
// Intended for plugging into libraries that only accept a stdlib *log.Logger.
func WriterIntoLogger(logger Logger) io.Writer {
	return writerIntoLogger{logger: logger}
}
