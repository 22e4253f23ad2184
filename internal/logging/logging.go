package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Logger writes debug lines to stdout (only when enabled) and warnings and
// errors to stderr. A nil *Logger discards everything.
type Logger struct {
	debug bool
	out   *log.Logger
	err   *log.Logger
}

// New creates a Logger. debug controls whether Debugf produces output.
func New(out, errOut io.Writer, debug bool) *Logger {
	return &Logger{
		debug: debug,
		out:   log.New(out, "", 0),
		err:   log.New(errOut, "", 0),
	}
}

// FromEnv enables debug output when DEBUG is set to any non-empty value.
func FromEnv() *Logger {
	return New(os.Stdout, os.Stderr, os.Getenv("DEBUG") != "")
}

// Discard returns a logger that drops all output.
func Discard() *Logger {
	return New(io.Discard, io.Discard, false)
}

func (l *Logger) DebugEnabled() bool {
	return l != nil && l.debug
}

func (l *Logger) Debugf(format string, args ...any) {
	if !l.DebugEnabled() {
		return
	}
	l.out.Print(line("", format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	if l == nil {
		return
	}
	l.out.Print(line("", format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	if l == nil {
		return
	}
	l.err.Print(line("warning: ", format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil {
		return
	}
	l.err.Print(line("error: ", format, args...))
}

func line(prefix, format string, args ...any) string {
	return prefix + strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
