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
	"crypto"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/jeremyhahn/go-walletcore/pkg/adapters/kdf"
	"github.com/jeremyhahn/go-walletcore/pkg/vault"
)

// Legacy export versions.
const (
	// FormatPBKDF2 exports derive with PBKDF2 and seal with AES-256-GCM.
	FormatPBKDF2 = 1
	// FormatScrypt exports derive with scrypt and seal with AES-256-GCM.
	FormatScrypt = 2
)

const (
	gcmNonceSize = 12
	gcmTagSize   = 16
)

// maxExportSize bounds how much of a user-supplied file is read.
const maxExportSize = 1 << 20

// LegacyRecord is a parsed extension export. EncryptedSeed is
// nonce || ciphertext || tag.
type LegacyRecord struct {
	FormatVersion int
	EncryptedSeed []byte
	KDF           kdf.Params
}

// exportFile is the JSON layout written by the extension.
type exportFile struct {
	FormatVersion int             `json:"format_version"`
	EncryptedSeed string          `json:"encrypted_seed"`
	KDFParams     json.RawMessage `json:"kdf_params"`
}

type pbkdf2Params struct {
	Salt       string `json:"salt"`
	Iterations int    `json:"iterations"`
	Digest     string `json:"digest"`
	KeyLength  int    `json:"dklen"`
}

type scryptParams struct {
	Salt      string `json:"salt"`
	N         int    `json:"n"`
	R         int    `json:"r"`
	P         int    `json:"p"`
	KeyLength int    `json:"dklen"`
}

var digestNames = map[string]crypto.Hash{
	"sha1":   crypto.SHA1,
	"sha256": crypto.SHA256,
	"sha512": crypto.SHA512,
}

// ParseLegacy reads the export at path. A missing file returns ErrNotFound.
// An unknown format_version or an unreadable layout returns
// *UnsupportedFormatError.
func ParseLegacy(path string) (*LegacyRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("migration: open export: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("migration: stat export: %w", err)
	}
	if info.IsDir() {
		return nil, &UnsupportedFormatError{Version: -1, Reason: "path is a directory"}
	}
	if info.Size() > maxExportSize {
		return nil, &UnsupportedFormatError{Version: -1, Reason: "export is too large"}
	}

	data, err := io.ReadAll(io.LimitReader(f, maxExportSize))
	if err != nil {
		return nil, fmt.Errorf("migration: read export: %w", err)
	}
	defer memguard.WipeBytes(data)
	return ParseLegacyBytes(data)
}

// ParseLegacyBytes parses an export held in memory.
func ParseLegacyBytes(data []byte) (*LegacyRecord, error) {
	var file exportFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, &UnsupportedFormatError{Version: -1, Reason: "not a JSON export: " + err.Error()}
	}

	var params kdf.Params
	var err error
	switch file.FormatVersion {
	case FormatPBKDF2:
		params, err = parsePBKDF2(file.KDFParams)
	case FormatScrypt:
		params, err = parseScrypt(file.KDFParams)
	default:
		return nil, &UnsupportedFormatError{Version: file.FormatVersion, Reason: "unknown format_version"}
	}
	if err == nil {
		err = checkLegacyParams(&params)
	}
	if err != nil {
		return nil, &UnsupportedFormatError{Version: file.FormatVersion, Reason: err.Error()}
	}

	seed, err := base64.StdEncoding.DecodeString(file.EncryptedSeed)
	if err != nil {
		return nil, &UnsupportedFormatError{Version: file.FormatVersion, Reason: "encrypted_seed is not base64"}
	}
	if len(seed) <= gcmNonceSize+gcmTagSize {
		memguard.WipeBytes(seed)
		return nil, &UnsupportedFormatError{Version: file.FormatVersion, Reason: "encrypted_seed is truncated"}
	}

	return &LegacyRecord{
		FormatVersion: file.FormatVersion,
		EncryptedSeed: seed,
		KDF:           params,
	}, nil
}

func parsePBKDF2(raw json.RawMessage) (kdf.Params, error) {
	var p pbkdf2Params
	if err := json.Unmarshal(raw, &p); err != nil {
		return kdf.Params{}, fmt.Errorf("kdf_params: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(p.Salt)
	if err != nil || len(salt) == 0 {
		return kdf.Params{}, errors.New("kdf_params: invalid salt")
	}
	digest := strings.ToLower(strings.ReplaceAll(p.Digest, "-", ""))
	if digest == "" {
		digest = "sha256"
	}
	hash, ok := digestNames[digest]
	if !ok {
		return kdf.Params{}, fmt.Errorf("kdf_params: unsupported digest %q", p.Digest)
	}
	return kdf.Params{
		Algorithm:  kdf.AlgorithmPBKDF2,
		Salt:       salt,
		Iterations: p.Iterations,
		KeyLength:  keyLength(p.KeyLength),
		Hash:       hash.String(),
	}, nil
}

func parseScrypt(raw json.RawMessage) (kdf.Params, error) {
	var p scryptParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return kdf.Params{}, fmt.Errorf("kdf_params: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(p.Salt)
	if err != nil || len(salt) == 0 {
		return kdf.Params{}, errors.New("kdf_params: invalid salt")
	}
	if p.P < 1 || p.P > 255 {
		return kdf.Params{}, fmt.Errorf("kdf_params: parallelism %d out of range", p.P)
	}
	return kdf.Params{
		Algorithm:  kdf.AlgorithmScrypt,
		Salt:       salt,
		Iterations: p.N,
		BlockSize:  p.R,
		Threads:    uint8(p.P),
		KeyLength:  keyLength(p.KeyLength),
	}, nil
}

// checkLegacyParams rejects work factors and key lengths an export cannot
// legitimately carry before anything is derived from them.
func checkLegacyParams(params *kdf.Params) error {
	switch params.KeyLength {
	case 16, 24, 32:
	default:
		return fmt.Errorf("kdf_params: dklen %d is not an AES key length", params.KeyLength)
	}
	adapter, err := kdf.AdapterFor(params.Algorithm)
	if err != nil {
		return fmt.Errorf("kdf_params: %w", err)
	}
	if err := adapter.ValidateParams(params, kdf.LegacyPolicy); err != nil {
		return fmt.Errorf("kdf_params: %w", err)
	}
	return nil
}

// keyLength defaults to an AES-256 key.
func keyLength(n int) int {
	if n == 0 {
		return 32
	}
	return n
}

// Vault presents the record as an AES-256-GCM vault envelope so the vault
// codec can authenticate and open it. The envelope shares memory with the
// record.
func (r *LegacyRecord) Vault() *vault.SecretVault {
	n := len(r.EncryptedSeed)
	return &vault.SecretVault{
		Version:      vault.FormatVersion,
		Cipher:       vault.CipherAES256GCM,
		KDF:          r.KDF,
		Nonce:        r.EncryptedSeed[:gcmNonceSize],
		Ciphertext:   r.EncryptedSeed[gcmNonceSize : n-gcmTagSize],
		IntegrityTag: r.EncryptedSeed[n-gcmTagSize:],
	}
}

// Wipe zeroes the encrypted seed and salt.
func (r *LegacyRecord) Wipe() {
	if r == nil {
		return
	}
	memguard.WipeBytes(r.EncryptedSeed)
	memguard.WipeBytes(r.KDF.Salt)
}
