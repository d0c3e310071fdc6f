// Package logger provides leveled, component-tagged logging for Argus.
// Components are short subsystem names ("api", "bus", "rules") so the
// dashboard log can be filtered per concern.
package logger

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
)

// Level controls which messages are emitted.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

var (
	mu       sync.RWMutex
	minLevel = LevelInfo
	out      = log.New(os.Stderr, "", log.LstdFlags|log.LUTC)
)

// SetLevel sets the minimum emitted level from its string name.
// Unknown names fall back to info.
func SetLevel(name string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(name) {
	case "debug":
		minLevel = LevelDebug
	case "warn", "warning":
		minLevel = LevelWarn
	case "error":
		minLevel = LevelError
	default:
		minLevel = LevelInfo
	}
}

// SetOutput redirects log output (used by tests).
func SetOutput(l *log.Logger) {
	mu.Lock()
	defer mu.Unlock()
	out = l
}

func emit(level Level, component, msg string, fields map[string]interface{}) {
	mu.RLock()
	min, sink := minLevel, out
	mu.RUnlock()
	if level < min {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] %s", levelNames[level], component, msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}

	sink.Println(b.String())
}

// Debug logs a debug message without a component.
func Debug(msg string) { emit(LevelDebug, "core", msg, nil) }

// Info logs an info message without a component.
func Info(msg string) { emit(LevelInfo, "core", msg, nil) }

// Warn logs a warning without a component.
func Warn(msg string) { emit(LevelWarn, "core", msg, nil) }

// Error logs an error without a component.
func Error(msg string) { emit(LevelError, "core", msg, nil) }

// DebugC logs a debug message for a component.
func DebugC(component, msg string) { emit(LevelDebug, component, msg, nil) }

// InfoC logs an info message for a component.
func InfoC(component, msg string) { emit(LevelInfo, component, msg, nil) }

// WarnC logs a warning for a component.
func WarnC(component, msg string) { emit(LevelWarn, component, msg, nil) }

// ErrorC logs an error for a component.
func ErrorC(component, msg string) { emit(LevelError, component, msg, nil) }

// DebugCF logs a debug message for a component with structured fields.
func DebugCF(component, msg string, fields map[string]interface{}) {
	emit(LevelDebug, component, msg, fields)
}

// InfoCF logs an info message for a component with structured fields.
func InfoCF(component, msg string, fields map[string]interface{}) {
	emit(LevelInfo, component, msg, fields)
}

// WarnCF logs a warning for a component with structured fields.
func WarnCF(component, msg string, fields map[string]interface{}) {
	emit(LevelWarn, component, msg, fields)
}

// ErrorCF logs an error for a component with structured fields.
func ErrorCF(component, msg string, fields map[string]interface{}) {
	emit(LevelError, component, msg, fields)
}
