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

// Package validation checks caller-supplied strings before they reach the
// network or the logs.
package validation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput is wrapped by every validation failure.
var ErrInvalidInput = errors.New("validation: invalid input")

// MaxAPIKeyLength bounds an exchange API key.
const MaxAPIKeyLength = 512

// maxLogLength bounds a sanitized log value.
const maxLogLength = 1000

// ValidateAPIKey validates an exchange API key before it is placed in an
// Authorization header. Keys must be non-empty printable ASCII without
// spaces.
func ValidateAPIKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: api key cannot be empty", ErrInvalidInput)
	}

	// Check length before other validations
	if len(key) > MaxAPIKeyLength {
		return fmt.Errorf("%w: api key too long (max %d characters)", ErrInvalidInput, MaxAPIKeyLength)
	}

	for i := 0; i < len(key); i++ {
		c := key[i]
		if c <= ' ' || c >= 127 {
			return fmt.Errorf("%w: api key contains invalid character at offset %d", ErrInvalidInput, i)
		}
	}
	return nil
}

// SanitizeForLog sanitizes a string for safe logging (prevents log injection).
func SanitizeForLog(s string) string {
	// Remove control characters and null bytes
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)

	// Limit length to prevent log flooding
	if len(s) > maxLogLength {
		s = s[:maxLogLength] + "...[truncated]"
	}

	return s
}
