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

// Package exchange links the wallet to a remote exchange account used for
// fiat top-ups. The engine treats the exchange as an opaque collaborator:
// it hands over the user's API key and learns whether linking succeeded.
// No wallet key material ever crosses this boundary.
package exchange

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmptyAPIKey is returned when no API key is supplied.
	ErrEmptyAPIKey = errors.New("exchange: empty api key")

	// ErrLinkRejected is returned when the exchange refuses the key.
	ErrLinkRejected = errors.New("exchange: link rejected")

	// ErrInvalidConfig is returned for an unusable client configuration.
	ErrInvalidConfig = errors.New("exchange: invalid configuration")
)

// Linker links an exchange account. Implementations own no retry policy.
type Linker interface {
	Link(ctx context.Context, apiKey string) (bool, error)
}

// Endpointer is implemented by linkers bound to one exchange endpoint.
// The engine throttles link attempts per endpoint.
type Endpointer interface {
	Endpoint() string
}

// LinkerFunc adapts a function to Linker.
type LinkerFunc func(ctx context.Context, apiKey string) (bool, error)

// Link calls f(ctx, apiKey).
func (f LinkerFunc) Link(ctx context.Context, apiKey string) (bool, error) {
	return f(ctx, apiKey)
}

// StatusError reports an unexpected HTTP status from the exchange.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("exchange: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("exchange: status %d", e.StatusCode)
}
