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

// Package audit records security-relevant wallet operations.
//
// The engine emits one Event per pairing, signature, import and exchange
// link. Events never carry key material, passphrases or API keys.
package audit

import (
	"context"
	"time"

	"github.com/jeremyhahn/go-walletcore/pkg/adapters/logger"
)

// EventType represents the type of audit event
type EventType string

const (
	EventDevicePair   EventType = "device.pair"
	EventDeviceSign   EventType = "device.sign"
	EventVaultImport  EventType = "vault.import"
	EventExchangeLink EventType = "exchange.link"
)

// EventOutcome indicates the result of an operation
type EventOutcome string

const (
	OutcomeSuccess EventOutcome = "success"
	OutcomeFailure EventOutcome = "failure"
	OutcomeDenied  EventOutcome = "denied"
	OutcomeSkipped EventOutcome = "skipped"
)

// Event is a single audit log entry
type Event struct {
	// ID is a unique identifier for this audit event
	ID string

	// Timestamp when the event occurred
	Timestamp time.Time

	Type    EventType
	Outcome EventOutcome

	// Resource identifies what was acted on: a device kind, an export path
	// or a vault ID
	Resource string

	// Result contains the error message for failed operations
	Result string

	// RequestID is the correlation ID of the originating call
	RequestID string

	// SessionID correlates device events with a session
	SessionID string

	// Metadata stores additional context
	Metadata map[string]interface{}
}

// Adapter records audit events.
type Adapter interface {
	LogEvent(ctx context.Context, event *Event) error
}

// Query filters recorded events. Zero fields match everything.
type Query struct {
	Types     []EventType
	Outcomes  []EventOutcome
	SessionID string
	Limit     int
}

// NopAdapter discards every event.
type NopAdapter struct{}

// LogEvent does nothing.
func (NopAdapter) LogEvent(context.Context, *Event) error { return nil }

// LoggerAdapter writes each event as a structured log line.
type LoggerAdapter struct {
	logger logger.Logger
}

// NewLoggerAdapter creates an adapter that writes to log.
func NewLoggerAdapter(log logger.Logger) *LoggerAdapter {
	return &LoggerAdapter{logger: log.With(logger.String("log", "audit"))}
}

// LogEvent logs event at info level.
func (a *LoggerAdapter) LogEvent(ctx context.Context, event *Event) error {
	fields := []logger.Field{
		logger.String("event", string(event.Type)),
		logger.String("outcome", string(event.Outcome)),
		logger.String("resource", event.Resource),
	}
	if event.SessionID != "" {
		fields = append(fields, logger.String("session_id", event.SessionID))
	}
	if event.Result != "" {
		fields = append(fields, logger.String("result", event.Result))
	}
	for k, v := range event.Metadata {
		fields = append(fields, logger.Any(k, v))
	}
	a.logger.InfoContext(ctx, "audit", fields...)
	return nil
}

var (
	_ Adapter = NopAdapter{}
	_ Adapter = (*LoggerAdapter)(nil)
	_ Adapter = (*MemoryAdapter)(nil)
)
