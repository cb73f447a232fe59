package log

import (
	"fmt"
	"strings"
)

// Format is a logging format. *Format implements pflag.Value, so it can
// be bound to a command line flag directly.
type Format uint

const (
	FmtLogfmt Format = iota
	FmtJSON
)

var formatNames = map[string]Format{
	"logfmt": FmtLogfmt,
	"text":   FmtLogfmt,
	"json":   FmtJSON,
}

func (f Format) String() string {
	switch f {
	case FmtLogfmt:
		return "logfmt"
	case FmtJSON:
		return "json"
	default:
		return fmt.Sprintf("Format(%d)", uint(f))
	}
}

// Set parses `s`, case-insensitively. "text" is an alias of "logfmt".
func (f *Format) Set(s string) error {
	parsed, ok := formatNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return fmt.Errorf("log: invalid log format %q, want one of %s", s, f.Type())
	}
	*f = parsed
	return nil
}

func (f *Format) Type() string {
	return "[logfmt,json]"
}

// Level is a minimum severity. *Level implements pflag.Value.
type Level uint

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[string]Level{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("Level(%d)", uint(l))
	}
}

// Set parses `s`, case-insensitively. "warning" is an alias of "warn".
func (l *Level) Set(s string) error {
	parsed, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return fmt.Errorf("log: invalid log level %q, want one of %s", s, l.Type())
	}
	*l = parsed
	return nil
}

func (l *Level) Type() string {
	return "[debug,info,warn,error]"
}
