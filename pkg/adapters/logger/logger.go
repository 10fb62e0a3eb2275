// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-walletcore.
//
// go-walletcore is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package logger defines the structured logging interface used across
// go-walletcore and an adapter over log/slog.
//
// Secrets never go through a Logger. Callers log kinds, states, session IDs,
// sequence numbers and file paths only.
package logger

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Level represents the log level
type Level int

const (
	// LevelDebug is for detailed debugging information
	LevelDebug Level = iota
	// LevelInfo is for general informational messages
	LevelInfo
	// LevelWarn is for warning messages
	LevelWarn
	// LevelError is for error messages
	LevelError
	// LevelFatal is for fatal error messages (program will exit)
	LevelFatal
)

// String returns the string representation of the log level
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

// ParseLevel parses a case-insensitive level name as found in config files.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("logger: unknown level %q", s)
	}
}

// Logger is the interface for logging adapters
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an informational message with optional fields
	Info(msg string, fields ...Field)

	// Warn logs a warning message with optional fields
	Warn(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)

	// Fatal logs a fatal error message and exits the program
	Fatal(msg string, fields ...Field)

	// DebugContext logs a debug message tagged with the context's correlation ID
	DebugContext(ctx context.Context, msg string, fields ...Field)

	// InfoContext logs an informational message tagged with the context's correlation ID
	InfoContext(ctx context.Context, msg string, fields ...Field)

	// WarnContext logs a warning message tagged with the context's correlation ID
	WarnContext(ctx context.Context, msg string, fields ...Field)

	// ErrorContext logs an error message tagged with the context's correlation ID
	ErrorContext(ctx context.Context, msg string, fields ...Field)

	// With creates a child logger with the given fields
	With(fields ...Field) Logger

	// WithError creates a child logger with an error field
	WithError(err error) Logger
}

// Field represents a structured logging field
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Uint64 creates a uint64 field
func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a time.Duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Error creates an error field
func Error(err error) Field {
	return Field{Key: "error", Value: err}
}

// Any creates a field with any value
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// NopLogger discards everything. It is the default when no logger is
// configured.
type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field) {}
func (NopLogger) Warn(string, ...Field) {}
func (NopLogger) Error(string, ...Field) {}
func (NopLogger) Fatal(string, ...Field) {}
func (NopLogger) DebugContext(context.Context, string, ...Field) {}
func (NopLogger) InfoContext(context.Context, string, ...Field) {}
func (NopLogger) WarnContext(context.Context, string, ...Field) {}
func (NopLogger) ErrorContext(context.Context, string, ...Field) {}
func (n NopLogger) With(...Field) Logger { return n }
func (n NopLogger) WithError(error) Logger { return n }

var _ Logger = NopLogger{}
