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

package migration

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when there is no export at the given path.
	// Callers treat it as "nothing to import".
	ErrNotFound = errors.New("migration: no legacy export found")

	// ErrMigrationInProgress is returned when Run is called while another
	// run is still active.
	ErrMigrationInProgress = errors.New("migration: migration already in progress")

	// ErrVaultExists is returned when a canonical vault already exists and
	// the pipeline is not allowed to replace it.
	ErrVaultExists = errors.New("migration: vault already exists")

	// ErrPromptAborted is returned when the passphrase prompt gives up.
	ErrPromptAborted = errors.New("migration: passphrase prompt aborted")

	// ErrInvalidConfig is returned by NewPipeline for missing collaborators.
	ErrInvalidConfig = errors.New("migration: invalid configuration")
)

// UnsupportedFormatError is returned for an export this package cannot
// read, or whose decrypted payload is not a wallet seed. It is fatal.
type UnsupportedFormatError struct {
	// Version is the export's format_version, or -1 if it could not be read.
	Version int
	Reason  string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Version < 0 {
		return fmt.Sprintf("migration: unsupported export: %s", e.Reason)
	}
	return fmt.Sprintf("migration: unsupported export format %d: %s", e.Version, e.Reason)
}
