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

package kdf

import (
	"golang.org/x/crypto/argon2"
)

// Argon2Adapter derives keys with Argon2i or Argon2id. Params.Iterations
// carries the Argon2 time cost.
type Argon2Adapter struct {
	variant KDFAlgorithm
}

// NewArgon2Adapter creates an adapter for variant, falling back to Argon2id
// for anything else.
func NewArgon2Adapter(variant KDFAlgorithm) *Argon2Adapter {
	if variant != AlgorithmArgon2i {
		variant = AlgorithmArgon2id
	}
	return &Argon2Adapter{variant: variant}
}

// DeriveKey derives a key using Argon2
func (a *Argon2Adapter) DeriveKey(ikm []byte, params *Params) ([]byte, error) {
	if len(ikm) == 0 {
		return nil, ErrInvalidIKM
	}
	t := uint32(params.Iterations)
	l := uint32(params.KeyLength)
	if a.variant == AlgorithmArgon2i {
		return argon2.Key(ikm, params.Salt, t, params.Memory, params.Threads, l), nil
	}
	return argon2.IDKey(ikm, params.Salt, t, params.Memory, params.Threads, l), nil
}

// Algorithm returns the KDF algorithm
func (a *Argon2Adapter) Algorithm() KDFAlgorithm {
	return a.variant
}

// ValidateParams validates Argon2 parameters
func (a *Argon2Adapter) ValidateParams(params *Params, policy Policy) error {
	if params == nil || params.KeyLength <= 0 || params.KeyLength > policy.MaxKeyLength {
		return ErrInvalidKeyLength
	}
	if params.Algorithm != a.variant {
		return ErrUnsupportedAlgorithm
	}
	if len(params.Salt) < policy.MinSaltLength {
		return ErrInvalidSalt
	}
	if params.Iterations < policy.MinArgon2Time || params.Iterations > policy.MaxArgon2Time {
		return ErrInvalidIterations
	}
	if params.Memory < policy.MinArgon2Memory || params.Memory > policy.MaxArgon2Memory {
		return ErrInvalidMemory
	}
	if params.Threads < 1 {
		return ErrInvalidThreads
	}
	return nil
}
