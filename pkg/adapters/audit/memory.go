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

package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryAdapter keeps events in memory, oldest first. It is safe for
// concurrent use and intended for tests and short-lived processes.
type MemoryAdapter struct {
	mu     sync.RWMutex
	events []*Event
}

// NewMemoryAdapter creates an empty in-memory audit log.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{}
}

// LogEvent records an audit event in memory
func (m *MemoryAdapter) LogEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	// Generate ID if not provided
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	return nil
}

// Events returns the events matching query, oldest first. A nil query
// returns everything.
func (m *MemoryAdapter) Events(query *Query) []*Event {
	if query == nil {
		query = &Query{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*Event
	for _, event := range m.events {
		if !matches(event, query) {
			continue
		}
		results = append(results, event)
		if query.Limit > 0 && len(results) == query.Limit {
			break
		}
	}
	return results
}

// Len returns the number of recorded events.
func (m *MemoryAdapter) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

func matches(event *Event, query *Query) bool {
	if len(query.Types) > 0 && !contains(query.Types, event.Type) {
		return false
	}
	if len(query.Outcomes) > 0 && !contains(query.Outcomes, event.Outcome) {
		return false
	}
	if query.SessionID != "" && event.SessionID != query.SessionID {
		return false
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
