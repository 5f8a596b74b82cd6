// Package mpslog provides the leveled, keyed logger used throughout this
// repository. The upstream teacher project (github.com/probeum/go-probeum)
// calls a package named "log" with this exact signature
// (log.Info(msg, "key", val, ...)) from every subsystem; that package itself
// was not part of the retrieved reference pack, so this is a small
// from-scratch reimplementation of the same call convention rather than a
// vendored copy.
package mpslog

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mattn/go-colorable"
)

// Level is a logging severity.
type Level int

const (
	LvlError Level = iota
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Level) String() string {
	switch l {
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	case LvlTrace:
		return "TRACE"
	default:
		return "????"
	}
}

// Logger writes leveled, keyed records to an io.Writer.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	level  Level
	prefix string
}

// Root is the default process-wide logger, matching the teacher's use of a
// single package-level logger for all call sites.
var Root = New(LvlInfo)

// New creates a Logger writing to a colorable stderr, matching the
// teacher's console setup in cmd/gprobe.
func New(level Level) *Logger {
	return &Logger{out: colorable.NewColorableStderr(), level: level}
}

// SetLevel adjusts the minimum severity that is actually written.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetOutput redirects the logger's writes, replacing the colorable
// stderr default. Derived loggers created afterwards with With inherit
// the new writer.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

// With returns a logger that prefixes every message, used to scope log
// lines to a single station name.
func (l *Logger) With(prefix string) *Logger {
	return &Logger{out: l.out, level: l.level, prefix: prefix}
}

func (l *Logger) log(level Level, msg string, ctx ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level > l.level {
		return
	}
	ts := time.Now().Format("15:04:05.000")
	fmt.Fprintf(l.out, "[%s] %-5s %s", ts, level, msg)
	if l.prefix != "" {
		fmt.Fprintf(l.out, " prefix=%s", l.prefix)
	}
	for i := 0; i+1 < len(ctx); i += 2 {
		fmt.Fprintf(l.out, " %v=%v", ctx[i], ctx[i+1])
	}
	fmt.Fprintln(l.out)
}

func (l *Logger) Error(msg string, ctx ...any) { l.log(LvlError, msg, ctx...) }
func (l *Logger) Warn(msg string, ctx ...any)  { l.log(LvlWarn, msg, ctx...) }
func (l *Logger) Info(msg string, ctx ...any)  { l.log(LvlInfo, msg, ctx...) }
func (l *Logger) Debug(msg string, ctx ...any) { l.log(LvlDebug, msg, ctx...) }
func (l *Logger) Trace(msg string, ctx ...any) { l.log(LvlTrace, msg, ctx...) }

// Package-level convenience wrappers over Root, mirroring the teacher's
// call sites (log.Info(...), log.Error(...), ...) without requiring every
// caller to thread a *Logger through.
func Error(msg string, ctx ...any) { Root.Error(msg, ctx...) }
func Warn(msg string, ctx ...any)  { Root.Warn(msg, ctx...) }
func Info(msg string, ctx ...any)  { Root.Info(msg, ctx...) }
func Debug(msg string, ctx ...any) { Root.Debug(msg, ctx...) }
func Trace(msg string, ctx ...any) { Root.Trace(msg, ctx...) }
