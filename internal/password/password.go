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

// Package password holds passphrases in locked, wipeable memory and reads
// them from a terminal without echo.
package password

import (
	"errors"

	"github.com/awnumar/memguard"
)

var (
	// ErrEmptyPassword is returned when an empty password is provided.
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrPasswordZeroed is returned when the password has been zeroed.
	ErrPasswordZeroed = errors.New("password has been zeroed")
)

// Passphrase keeps a secret in a memguard LockedBuffer until Clear is
// called.
type Passphrase struct {
	buf *memguard.LockedBuffer
}

// New moves secret into locked memory. The caller's slice is wiped.
func New(secret []byte) (*Passphrase, error) {
	if len(secret) == 0 {
		return nil, ErrEmptyPassword
	}
	return &Passphrase{buf: memguard.NewBufferFromBytes(secret)}, nil
}

// NewFromString creates a passphrase from a string. The string itself
// cannot be wiped and should not outlive the call.
func NewFromString(secret string) (*Passphrase, error) {
	return New([]byte(secret))
}

// Bytes returns a copy of the passphrase, or nil once cleared. The caller
// owns the copy and should wipe it.
func (p *Passphrase) Bytes() []byte {
	if !p.alive() {
		return nil
	}
	out := make([]byte, p.buf.Size())
	copy(out, p.buf.Bytes())
	return out
}

// Len returns the passphrase length in bytes.
func (p *Passphrase) Len() int {
	if !p.alive() {
		return 0
	}
	return p.buf.Size()
}

// Clear destroys the locked buffer. It is safe to call more than once.
func (p *Passphrase) Clear() {
	if p.alive() {
		p.buf.Destroy()
	}
}

func (p *Passphrase) alive() bool {
	return p != nil && p.buf != nil && p.buf.IsAlive()
}

// Equal compares two passphrases in constant time.
func Equal(a, b *Passphrase) (bool, error) {
	if !a.alive() || !b.alive() {
		return false, ErrPasswordZeroed
	}
	return a.buf.EqualTo(b.buf.Bytes()), nil
}
