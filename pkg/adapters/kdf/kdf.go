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

// Package kdf derives symmetric keys from user passphrases.
//
// Every derivation is driven by a Params value that is stored next to the
// ciphertext it protects. Work factors are therefore a property of each vault
// rather than a global constant, and a vault written with yesterday's defaults
// stays decodable after the defaults are raised.
package kdf

import (
	"crypto"
	"crypto/rand"
	_ "crypto/sha1"   // legacy extension exports
	_ "crypto/sha256" // default hash
	_ "crypto/sha512"
	"encoding/json"
	"errors"
	"fmt"
)

// KDFAlgorithm identifies a key derivation function.
type KDFAlgorithm string

const (
	// AlgorithmPBKDF2 is PBKDF2-HMAC (RFC 8018).
	AlgorithmPBKDF2 KDFAlgorithm = "PBKDF2"

	// AlgorithmArgon2i is the data-independent Argon2 variant.
	AlgorithmArgon2i KDFAlgorithm = "Argon2i"

	// AlgorithmArgon2id is the hybrid Argon2 variant and the engine default.
	AlgorithmArgon2id KDFAlgorithm = "Argon2id"

	// AlgorithmScrypt is scrypt (RFC 7914).
	AlgorithmScrypt KDFAlgorithm = "scrypt"
)

// String returns the string representation of the KDF algorithm
func (a KDFAlgorithm) String() string {
	return string(a)
}

// DefaultSaltLength is the salt size used for newly created params.
const DefaultSaltLength = 32

var (
	// ErrInvalidSalt indicates the salt is nil, empty, or too short
	ErrInvalidSalt = errors.New("kdf: invalid salt")

	// ErrInvalidKeyLength indicates the requested key length is invalid
	ErrInvalidKeyLength = errors.New("kdf: invalid key length")

	// ErrInvalidIterations indicates the iteration or cost count is invalid
	ErrInvalidIterations = errors.New("kdf: invalid iterations")

	// ErrInvalidMemory indicates the memory cost is invalid
	ErrInvalidMemory = errors.New("kdf: invalid memory cost")

	// ErrInvalidThreads indicates the thread or parallelism count is invalid
	ErrInvalidThreads = errors.New("kdf: invalid threads")

	// ErrInvalidHash indicates the hash function is invalid or not linked
	ErrInvalidHash = errors.New("kdf: invalid or unsupported hash function")

	// ErrInvalidIKM indicates the passphrase or input key material is empty
	ErrInvalidIKM = errors.New("kdf: invalid input key material")

	// ErrUnsupportedAlgorithm indicates the algorithm has no adapter
	ErrUnsupportedAlgorithm = errors.New("kdf: unsupported algorithm")
)

// Params contains everything needed to reproduce a derivation. It is
// serialized verbatim into vault envelopes.
type Params struct {
	Algorithm KDFAlgorithm `json:"algorithm"`

	// Salt is random and unique per vault.
	Salt []byte `json:"salt"`

	// Iterations is the PBKDF2 round count, the Argon2 time cost, or the
	// scrypt CPU/memory cost N.
	Iterations int `json:"iterations"`

	// Memory is the Argon2 memory cost in KiB.
	Memory uint32 `json:"memory_kib,omitempty"`

	// Threads is the Argon2 lane count or the scrypt parallelism p.
	Threads uint8 `json:"threads,omitempty"`

	// BlockSize is the scrypt block size r.
	BlockSize int `json:"block_size,omitempty"`

	KeyLength int `json:"key_length"`

	// Hash names the PRF hash for PBKDF2 and HKDF ("SHA-256").
	Hash string `json:"hash,omitempty"`
}

// Clone returns a deep copy of p.
func (p *Params) Clone() *Params {
	if p == nil {
		return nil
	}
	c := *p
	c.Salt = append([]byte(nil), p.Salt...)
	return &c
}

// Canonical returns the deterministic encoding of p that integrity tags are
// computed over.
func (p *Params) Canonical() ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("kdf: canonical encoding: %w", err)
	}
	return b, nil
}

// HashFunc resolves the Hash name to a linked crypto.Hash.
func (p *Params) HashFunc() (crypto.Hash, error) {
	h, ok := hashByName[p.Hash]
	if !ok || !h.Available() {
		return 0, ErrInvalidHash
	}
	return h, nil
}

var hashByName = map[string]crypto.Hash{
	crypto.SHA1.String():   crypto.SHA1,
	crypto.SHA256.String(): crypto.SHA256,
	crypto.SHA512.String(): crypto.SHA512,
}

// Policy sets the bounds a Params value must meet before it is used. The
// maximums cap the work and memory a Params value read from disk may demand.
type Policy struct {
	MinSaltLength       int
	MinPBKDF2Iterations int
	MinArgon2Time       int
	MinArgon2Memory     uint32
	MinScryptCost       int

	MaxKeyLength        int
	MaxPBKDF2Iterations int
	MaxArgon2Time       int
	MaxArgon2Memory     uint32
	MaxScryptCost       int
	MaxScryptBlockSize  int
}

// Upper bounds shared by every policy.
const (
	MaxKeyLength        = 64
	MaxPBKDF2Iterations = 10_000_000
	MaxArgon2Time       = 64
	MaxArgon2Memory     = 1 << 20 // KiB, 1 GiB
	MaxScryptCost       = 1 << 20
	MaxScryptBlockSize  = 16
)

var (
	// StrictPolicy applies to everything the engine writes.
	StrictPolicy = Policy{
		MinSaltLength:       16,
		MinPBKDF2Iterations: 100000,
		MinArgon2Time:       1,
		MinArgon2Memory:     8 * 1024,
		MinScryptCost:       1 << 15,

		MaxKeyLength:        MaxKeyLength,
		MaxPBKDF2Iterations: MaxPBKDF2Iterations,
		MaxArgon2Time:       MaxArgon2Time,
		MaxArgon2Memory:     MaxArgon2Memory,
		MaxScryptCost:       MaxScryptCost,
		MaxScryptBlockSize:  MaxScryptBlockSize,
	}

	// LegacyPolicy applies when reading data written by older software,
	// whose work factors predate current recommendations.
	LegacyPolicy = Policy{
		MinSaltLength:       8,
		MinPBKDF2Iterations: 1000,
		MinArgon2Time:       1,
		MinArgon2Memory:     1024,
		MinScryptCost:       1 << 10,

		MaxKeyLength:        MaxKeyLength,
		MaxPBKDF2Iterations: MaxPBKDF2Iterations,
		MaxArgon2Time:       MaxArgon2Time,
		MaxArgon2Memory:     MaxArgon2Memory,
		MaxScryptCost:       MaxScryptCost,
		MaxScryptBlockSize:  MaxScryptBlockSize,
	}
)

// KDFAdapter is implemented by each passphrase-based derivation function.
type KDFAdapter interface {
	// DeriveKey derives params.KeyLength bytes from ikm
	DeriveKey(ikm []byte, params *Params) ([]byte, error)

	// Algorithm returns the KDF algorithm this adapter implements
	Algorithm() KDFAlgorithm

	// ValidateParams checks params against policy
	ValidateParams(params *Params, policy Policy) error
}

// AdapterFor returns the adapter implementing algorithm.
func AdapterFor(algorithm KDFAlgorithm) (KDFAdapter, error) {
	switch algorithm {
	case AlgorithmPBKDF2:
		return NewPBKDF2Adapter(), nil
	case AlgorithmArgon2i, AlgorithmArgon2id:
		return NewArgon2Adapter(algorithm), nil
	case AlgorithmScrypt:
		return NewScryptAdapter(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
}

// Derive derives a key from passphrase under StrictPolicy. The same inputs
// always yield the same key.
func Derive(passphrase []byte, params *Params) ([]byte, error) {
	return DeriveWithPolicy(passphrase, params, StrictPolicy)
}

// DeriveWithPolicy derives a key from passphrase after checking params
// against policy.
func DeriveWithPolicy(passphrase []byte, params *Params, policy Policy) ([]byte, error) {
	if params == nil {
		return nil, ErrInvalidKeyLength
	}
	adapter, err := AdapterFor(params.Algorithm)
	if err != nil {
		return nil, err
	}
	if err := adapter.ValidateParams(params, policy); err != nil {
		return nil, err
	}
	return adapter.DeriveKey(passphrase, params)
}

// DefaultParams returns the recommended parameters for algorithm without a
// salt. Use NewParams for params that are ready to derive with.
func DefaultParams(algorithm KDFAlgorithm) *Params {
	switch algorithm {
	case AlgorithmPBKDF2:
		return &Params{
			Algorithm:  AlgorithmPBKDF2,
			Iterations: 600000, // OWASP recommendation for PBKDF2-SHA256 (2023)
			KeyLength:  32,
			Hash:       crypto.SHA256.String(),
		}
	case AlgorithmArgon2id, AlgorithmArgon2i:
		return &Params{
			Algorithm:  algorithm,
			Iterations: 3,
			Memory:     64 * 1024, // 64 MiB
			Threads:    4,
			KeyLength:  32,
		}
	case AlgorithmScrypt:
		return &Params{
			Algorithm:  AlgorithmScrypt,
			Iterations: 1 << 17,
			BlockSize:  8,
			Threads:    1,
			KeyLength:  32,
		}
	default:
		return nil
	}
}

// NewParams clones template and gives it a fresh random salt.
func NewParams(template *Params) (*Params, error) {
	if template == nil {
		return nil, ErrUnsupportedAlgorithm
	}
	p := template.Clone()
	p.Salt = make([]byte, DefaultSaltLength)
	if _, err := rand.Read(p.Salt); err != nil {
		return nil, fmt.Errorf("kdf: generate salt: %w", err)
	}
	return p, nil
}
