// SPDX-License-Identifier: MIT

// Package log is a small levelled logger over the standard library logger.
// The level is global and atomic so the capture callback can check it
// without locking.
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
)

// Level defines the severity of a log message.
type Level uint32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the upper-case name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name (case-insensitive) to a Level.
// Returns LevelInfo and false if the name is not recognised.
func ParseLevel(name string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO", "":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

var (
	currentLevel atomic.Uint32
	std          atomic.Pointer[stdlog.Logger]
)

func init() {
	SetOutput(os.Stderr)
	SetLevel(LevelInfo)
}

// SetOutput redirects all log output to w.
func SetOutput(w io.Writer) {
	std.Store(stdlog.New(w, "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds))
}

// SetLevel sets the global logging level.
func SetLevel(level Level) {
	currentLevel.Store(uint32(level))
}

// GetLevel returns the global logging level.
func GetLevel() Level {
	return Level(currentLevel.Load())
}

// Configure sets the level from its name, falling back to info (and saying
// so) when the name is unknown. verbose forces debug.
func Configure(levelName string, verbose bool) {
	level, ok := ParseLevel(levelName)
	if verbose {
		level = LevelDebug
	}
	SetLevel(level)
	if !ok {
		Warnf("log: unknown level %q, using %s", levelName, level)
	}
}

func enabled(level Level) bool {
	return level >= GetLevel()
}

func output(level Level, prefix, msg string) {
	if prefix != "" {
		msg = prefix + ": " + msg
	}
	std.Load().Printf("[%-5s] %s", level, msg)
}

// Logger prefixes every message with a component name.
type Logger struct {
	name string
}

// Named returns a Logger whose messages start with "name: ".
func Named(name string) *Logger {
	return &Logger{name: name}
}

func (l *Logger) Debugf(format string, v ...any) {
	if enabled(LevelDebug) {
		output(LevelDebug, l.name, fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Infof(format string, v ...any) {
	if enabled(LevelInfo) {
		output(LevelInfo, l.name, fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Warnf(format string, v ...any) {
	if enabled(LevelWarn) {
		output(LevelWarn, l.name, fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Errorf(format string, v ...any) {
	if enabled(LevelError) {
		output(LevelError, l.name, fmt.Sprintf(format, v...))
	}
}

// Debugf logs a formatted debug message if the level is appropriate.
func Debugf(format string, v ...any) {
	if enabled(LevelDebug) {
		output(LevelDebug, "", fmt.Sprintf(format, v...))
	}
}

// Infof logs a formatted info message if the level is appropriate.
func Infof(format string, v ...any) {
	if enabled(LevelInfo) {
		output(LevelInfo, "", fmt.Sprintf(format, v...))
	}
}

// Warnf logs a formatted warning message if the level is appropriate.
func Warnf(format string, v ...any) {
	if enabled(LevelWarn) {
		output(LevelWarn, "", fmt.Sprintf(format, v...))
	}
}

// Errorf logs a formatted error message if the level is appropriate.
func Errorf(format string, v ...any) {
	if enabled(LevelError) {
		output(LevelError, "", fmt.Sprintf(format, v...))
	}
}

// Fatalf logs regardless of level and exits the process.
func Fatalf(format string, v ...any) {
	output(LevelFatal, "", fmt.Sprintf(format, v...))
	os.Exit(1)
}
