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

package vault

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication is returned when the passphrase is wrong or the
	// integrity tag does not match. It is the only error a caller should
	// recover from by prompting again.
	ErrAuthentication = errors.New("vault: authentication failed")

	// ErrNotFound is returned when no vault exists at the store location.
	ErrNotFound = errors.New("vault: not found")

	// ErrInvalidVault is returned when a vault envelope is malformed.
	ErrInvalidVault = errors.New("vault: invalid vault")

	// ErrUnsupportedCipher is returned for an unknown cipher suite.
	ErrUnsupportedCipher = errors.New("vault: unsupported cipher")

	// ErrEmptySecret is returned when asked to encode nothing.
	ErrEmptySecret = errors.New("vault: empty secret")

	// ErrEmptyPassphrase is returned when asked to encode without a passphrase.
	ErrEmptyPassphrase = errors.New("vault: empty passphrase")

	// ErrMissingTag is returned when committing a vault without an integrity tag.
	ErrMissingTag = errors.New("vault: missing integrity tag")
)

// EncodingError reports a failure of an underlying cryptographic primitive
// while producing a vault. It is fatal and must not be retried.
type EncodingError struct {
	Op  string
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("vault: encoding failed during %s: %v", e.Op, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}
