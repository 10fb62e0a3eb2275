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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jeremyhahn/go-walletcore/pkg/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONAdapter(buf *bytes.Buffer, level Level) *SlogAdapter {
	return NewSlogAdapter(&SlogConfig{Level: level, Format: "json", Output: buf})
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	return entry
}

func TestSlogAdapter_Levels(t *testing.T) {
	var buf bytes.Buffer
	adapter := newJSONAdapter(&buf, LevelDebug)

	tests := []struct {
		name  string
		log   func()
		level string
	}{
		{"debug", func() { adapter.Debug("m") }, "DEBUG"},
		{"info", func() { adapter.Info("m") }, "INFO"},
		{"warn", func() { adapter.Warn("m") }, "WARN"},
		{"error", func() { adapter.Error("m") }, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.log()
			assert.Equal(t, tt.level, decode(t, &buf)["level"])
		})
	}
}

func TestSlogAdapter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	adapter := newJSONAdapter(&buf, LevelWarn)

	adapter.Debug("hidden")
	adapter.Info("hidden")
	assert.Zero(t, buf.Len())

	adapter.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestSlogAdapter_Fields(t *testing.T) {
	var buf bytes.Buffer
	adapter := newJSONAdapter(&buf, LevelDebug)

	adapter.Info("session ready",
		String("kind", "LedgerX"),
		Int("attempt", 2),
		Uint64("sequence", 7),
		Bool("legacy", true),
		Duration("elapsed", 1500*time.Millisecond),
		Error(errors.New("boom")),
	)

	entry := decode(t, &buf)
	assert.Equal(t, "session ready", entry["msg"])
	assert.Equal(t, "LedgerX", entry["kind"])
	assert.EqualValues(t, 2, entry["attempt"])
	assert.EqualValues(t, 7, entry["sequence"])
	assert.Equal(t, true, entry["legacy"])
	assert.Equal(t, "boom", entry["error"])
}

func TestSlogAdapter_With(t *testing.T) {
	var buf bytes.Buffer
	adapter := newJSONAdapter(&buf, LevelDebug)

	child := adapter.With(String("session_id", "abc")).WithError(errors.New("closed"))
	child.Info("event", String("state", "Closed"))

	entry := decode(t, &buf)
	assert.Equal(t, "abc", entry["session_id"])
	assert.Equal(t, "closed", entry["error"])
	assert.Equal(t, "Closed", entry["state"])
	assert.Equal(t, 1, strings.Count(buf.String(), "session_id"), "fields must not repeat")
}

func TestSlogAdapter_ContextAwareLogging(t *testing.T) {
	var buf bytes.Buffer
	adapter := newJSONAdapter(&buf, LevelDebug)
	ctx := correlation.WithCorrelationID(context.Background(), "corr-123")

	for _, logFn := range []func(context.Context, string, ...Field){
		adapter.DebugContext, adapter.InfoContext, adapter.WarnContext, adapter.ErrorContext,
	} {
		buf.Reset()
		logFn(ctx, "message", String("key", "value"))
		entry := decode(t, &buf)
		assert.Equal(t, "corr-123", entry["correlation_id"])
		assert.Equal(t, "value", entry["key"])
	}

	buf.Reset()
	adapter.InfoContext(context.Background(), "no id")
	assert.NotContains(t, decode(t, &buf), "correlation_id")
}

func TestSlogAdapter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(&SlogConfig{Output: &buf})
	adapter.Info("hello", String("kind", "TrezorT"))
	assert.Contains(t, buf.String(), "kind=TrezorT")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"fatal", LevelFatal, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NotEqual(t, "UNKNOWN", got.String())
		})
	}
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	l.Info("ignored")
	l.ErrorContext(context.Background(), "ignored")
	assert.Equal(t, NopLogger{}, l.With(String("k", "v")))
}
