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

// Package migrationtest writes extension exports for tests and demos.
package migrationtest

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jeremyhahn/go-walletcore/pkg/adapters/kdf"
	"github.com/jeremyhahn/go-walletcore/pkg/migration"
)

// Low work factors that still satisfy kdf.LegacyPolicy.
const (
	PBKDF2Iterations = 1000
	ScryptCost       = 1 << 10
)

// Mnemonic is a valid 12-word BIP-39 phrase.
const Mnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// Export returns an export of seed sealed under passphrase in the given
// format version.
func Export(version int, seed, passphrase []byte) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	var params kdf.Params
	var kdfJSON map[string]interface{}
	switch version {
	case migration.FormatPBKDF2:
		params = kdf.Params{
			Algorithm:  kdf.AlgorithmPBKDF2,
			Salt:       salt,
			Iterations: PBKDF2Iterations,
			KeyLength:  32,
			Hash:       "SHA-256",
		}
		kdfJSON = map[string]interface{}{
			"salt":       base64.StdEncoding.EncodeToString(salt),
			"iterations": PBKDF2Iterations,
			"digest":     "sha256",
			"dklen":      32,
		}
	case migration.FormatScrypt:
		params = kdf.Params{
			Algorithm:  kdf.AlgorithmScrypt,
			Salt:       salt,
			Iterations: ScryptCost,
			BlockSize:  8,
			Threads:    1,
			KeyLength:  32,
		}
		kdfJSON = map[string]interface{}{
			"salt":  base64.StdEncoding.EncodeToString(salt),
			"n":     ScryptCost,
			"r":     8,
			"p":     1,
			"dklen": 32,
		}
	default:
		return json.Marshal(map[string]interface{}{
			"format_version": version,
			"encrypted_seed": base64.StdEncoding.EncodeToString(make([]byte, 64)),
			"kdf_params":     map[string]interface{}{},
		})
	}

	key, err := kdf.DeriveWithPolicy(passphrase, &params, kdf.LegacyPolicy)
	if err != nil {
		return nil, fmt.Errorf("derive: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := aead.Seal(append([]byte(nil), nonce...), nonce, seed, nil)

	return json.MarshalIndent(map[string]interface{}{
		"format_version": version,
		"encrypted_seed": base64.StdEncoding.EncodeToString(sealed),
		"kdf_params":     kdfJSON,
	}, "", "  ")
}

// WriteExport writes an export into dir and returns its path.
func WriteExport(t testing.TB, dir string, version int, seed, passphrase []byte) string {
	t.Helper()
	data, err := Export(version, seed, passphrase)
	if err != nil {
		t.Fatalf("migrationtest: export: %v", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("extension-v%d.json", version))
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("migrationtest: write export: %v", err)
	}
	return path
}

// Passphrases returns a prompt that answers with each of answers in turn
// and fails once they run out. Each answer is returned in a fresh slice.
func Passphrases(answers ...string) migration.PassphraseFunc {
	return func(_ context.Context, attempt int) ([]byte, error) {
		if attempt > len(answers) {
			return nil, fmt.Errorf("no answer for attempt %d", attempt)
		}
		return []byte(answers[attempt-1]), nil
	}
}
