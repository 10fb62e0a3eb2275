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

package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jeremyhahn/go-walletcore/pkg/correlation"
)

// SlogAdapter wraps a slog.Logger to implement the Logger interface
type SlogAdapter struct {
	logger *slog.Logger
}

// SlogConfig configures the slog adapter
type SlogConfig struct {
	// Logger is the underlying slog logger
	// If nil, a new logger will be created
	Logger *slog.Logger

	// Level is the minimum log level to output
	Level Level

	// Format selects the handler when Logger and Handler are nil: "json"
	// or "text" (default)
	Format string

	// Output is where a created handler writes. Defaults to os.Stderr
	Output io.Writer

	// Handler is the slog handler to use (e.g., JSONHandler, TextHandler)
	Handler slog.Handler

	// AddSource adds source code position to log records
	AddSource bool
}

// NewSlogAdapter creates a new slog adapter
func NewSlogAdapter(config *SlogConfig) *SlogAdapter {
	if config == nil {
		config = &SlogConfig{}
	}

	if config.Logger == nil {
		if config.Handler == nil {
			opts := &slog.HandlerOptions{
				Level:     levelToSlogLevel(config.Level),
				AddSource: config.AddSource,
			}
			out := config.Output
			if out == nil {
				out = os.Stderr
			}
			if strings.EqualFold(config.Format, "json") {
				config.Handler = slog.NewJSONHandler(out, opts)
			} else {
				config.Handler = slog.NewTextHandler(out, opts)
			}
		}
		config.Logger = slog.New(config.Handler)
	}

	return &SlogAdapter{logger: config.Logger}
}

// Debug logs a debug message
func (l *SlogAdapter) Debug(msg string, fields ...Field) {
	l.log(context.Background(), slog.LevelDebug, msg, fields...)
}

// Info logs an informational message
func (l *SlogAdapter) Info(msg string, fields ...Field) {
	l.log(context.Background(), slog.LevelInfo, msg, fields...)
}

// Warn logs a warning message
func (l *SlogAdapter) Warn(msg string, fields ...Field) {
	l.log(context.Background(), slog.LevelWarn, msg, fields...)
}

// Error logs an error message
func (l *SlogAdapter) Error(msg string, fields ...Field) {
	l.log(context.Background(), slog.LevelError, msg, fields...)
}

// Fatal logs a fatal message and exits
func (l *SlogAdapter) Fatal(msg string, fields ...Field) {
	l.log(context.Background(), slog.LevelError, msg, fields...)
	os.Exit(1)
}

// DebugContext logs a debug message with correlation ID from context
func (l *SlogAdapter) DebugContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelDebug, msg, l.addCorrelationID(ctx, fields)...)
}

// InfoContext logs an informational message with correlation ID from context
func (l *SlogAdapter) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelInfo, msg, l.addCorrelationID(ctx, fields)...)
}

// WarnContext logs a warning message with correlation ID from context
func (l *SlogAdapter) WarnContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelWarn, msg, l.addCorrelationID(ctx, fields)...)
}

// ErrorContext logs an error message with correlation ID from context
func (l *SlogAdapter) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelError, msg, l.addCorrelationID(ctx, fields)...)
}

// addCorrelationID adds correlation ID from context to log fields if present
func (l *SlogAdapter) addCorrelationID(ctx context.Context, fields []Field) []Field {
	if ctx == nil {
		return fields
	}
	if correlationID := correlation.GetCorrelationID(ctx); correlationID != "" {
		fields = append(fields, String("correlation_id", correlationID))
	}
	return fields
}

// With creates a child logger with the given fields
func (l *SlogAdapter) With(fields ...Field) Logger {
	attrs := make([]any, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, fieldToAttr(f))
	}
	return &SlogAdapter{logger: l.logger.With(attrs...)}
}

// WithError creates a child logger with an error field
func (l *SlogAdapter) WithError(err error) Logger {
	return l.With(Error(err))
}

func (l *SlogAdapter) log(ctx context.Context, level slog.Level, msg string, fields ...Field) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.logger.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, fieldToAttr(f))
	}
	l.logger.LogAttrs(ctx, level, msg, attrs...)
}

// fieldToAttr converts a Field to slog.Attr
func fieldToAttr(field Field) slog.Attr {
	switch v := field.Value.(type) {
	case string:
		return slog.String(field.Key, v)
	case int:
		return slog.Int(field.Key, v)
	case uint64:
		return slog.Uint64(field.Key, v)
	case bool:
		return slog.Bool(field.Key, v)
	case time.Duration:
		return slog.Duration(field.Key, v)
	case error:
		if v == nil {
			return slog.String(field.Key, "<nil>")
		}
		return slog.String(field.Key, v.Error())
	default:
		return slog.Any(field.Key, v)
	}
}

// levelToSlogLevel converts our Level to slog.Level
func levelToSlogLevel(level Level) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError, LevelFatal:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var _ Logger = (*SlogAdapter)(nil)
