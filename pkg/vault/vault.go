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

// Package vault encodes private key material into authenticated, encrypted
// envelopes and persists them with an atomic rename commit.
//
// Example Usage:
//
//	codec, err := vault.NewCodec(nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	v, err := codec.Encode(seed, passphrase)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store, err := vault.NewFileStore("/home/alice/.walletcore/vault.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := store.Commit(v); err != nil {
//	    log.Fatal(err)
//	}
package vault

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-walletcore/pkg/adapters/kdf"
)

// FormatVersion is the envelope version written by this package.
const FormatVersion = 1

// Cipher identifies the authenticated cipher suite protecting a vault.
type Cipher string

const (
	// CipherXChaCha20Poly1305 is used for every vault the engine writes. The
	// integrity tag is a separate HMAC-SHA256 over the params and ciphertext.
	CipherXChaCha20Poly1305 Cipher = "xchacha20-poly1305"

	// CipherAES256GCM is only read, never written. Browser extension exports
	// use it and the integrity tag is the 16-byte GCM tag.
	CipherAES256GCM Cipher = "aes-256-gcm"
)

// SecretVault is the at-rest container for private key material.
type SecretVault struct {
	Version      int        `json:"version"`
	ID           string     `json:"id"`
	Cipher       Cipher     `json:"cipher"`
	KDF          kdf.Params `json:"kdf_params"`
	Nonce        []byte     `json:"nonce"`
	Ciphertext   []byte     `json:"ciphertext"`
	IntegrityTag []byte     `json:"integrity_tag"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Validate checks that v is structurally complete. It says nothing about
// whether the tag is correct; only Decode can establish that.
func (v *SecretVault) Validate() error {
	if v == nil {
		return ErrInvalidVault
	}
	if v.Version != FormatVersion {
		return fmt.Errorf("%w: version %d", ErrInvalidVault, v.Version)
	}
	switch v.Cipher {
	case CipherXChaCha20Poly1305, CipherAES256GCM:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedCipher, v.Cipher)
	}
	if len(v.Nonce) == 0 || len(v.Ciphertext) == 0 {
		return fmt.Errorf("%w: empty nonce or ciphertext", ErrInvalidVault)
	}
	if len(v.IntegrityTag) == 0 {
		return ErrMissingTag
	}
	if len(v.KDF.Salt) == 0 {
		return fmt.Errorf("%w: missing kdf salt", ErrInvalidVault)
	}
	return nil
}

// Marshal serializes v for durable storage.
func Marshal(v *SecretVault) ([]byte, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("vault: marshal: %w", err)
	}
	return b, nil
}

// Unmarshal parses a vault produced by Marshal.
func Unmarshal(data []byte) (*SecretVault, error) {
	var v SecretVault
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVault, err)
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return &v, nil
}
