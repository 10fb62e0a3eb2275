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

package wallet

import (
	"errors"

	"github.com/jeremyhahn/go-walletcore/pkg/device"
	"github.com/jeremyhahn/go-walletcore/pkg/exchange"
	"github.com/jeremyhahn/go-walletcore/pkg/migration"
	"github.com/jeremyhahn/go-walletcore/pkg/vault"
)

var (
	// ErrNoSession is returned when signing without a Ready device session.
	ErrNoSession = errors.New("wallet: no active device session")

	// ErrRateLimited is returned when exchange linking is attempted too often.
	ErrRateLimited = errors.New("wallet: rate limited")

	// ErrNoExchange is returned when no exchange collaborator is configured.
	ErrNoExchange = errors.New("wallet: exchange not configured")

	// ErrNoDevices is returned when no device manager is configured.
	ErrNoDevices = errors.New("wallet: device support not configured")

	// ErrNoMigration is returned when no migration pipeline is configured.
	ErrNoMigration = errors.New("wallet: migration not configured")

	// ErrEmptyAPIKey is returned for an empty exchange API key. No request
	// is made.
	ErrEmptyAPIKey = exchange.ErrEmptyAPIKey

	// ErrLinkRejected is returned when the exchange declines the link.
	ErrLinkRejected = exchange.ErrLinkRejected
)

// recoverable lists errors a caller can resolve by retrying, re-prompting
// or simply treating as "nothing to do".
var recoverable = []error{
	device.ErrNotFound,
	device.ErrSessionBusy,
	device.ErrUserDenied,
	device.ErrCancelled,
	device.ErrSigningTimeout,
	migration.ErrNotFound,
	migration.ErrMigrationInProgress,
	vault.ErrAuthentication,
	ErrRateLimited,
}

// IsFatal reports whether err aborts the operation for good. Handshake
// failures, unsupported exports, encoding failures and I/O errors are
// fatal. Missing devices or exports, wrong passphrases, contention and
// user-level signing outcomes are not. A nil error is not fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range recoverable {
		if errors.Is(err, target) {
			return false
		}
	}
	return true
}
