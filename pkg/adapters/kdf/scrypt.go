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
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// ScryptAdapter derives keys with scrypt. Params.Iterations is the cost N,
// Params.BlockSize is r and Params.Threads is p.
type ScryptAdapter struct{}

// NewScryptAdapter creates a new scrypt adapter
func NewScryptAdapter() *ScryptAdapter {
	return &ScryptAdapter{}
}

// DeriveKey derives a key using scrypt
func (s *ScryptAdapter) DeriveKey(ikm []byte, params *Params) ([]byte, error) {
	if len(ikm) == 0 {
		return nil, ErrInvalidIKM
	}
	key, err := scrypt.Key(ikm, params.Salt, params.Iterations, params.BlockSize, int(params.Threads), params.KeyLength)
	if err != nil {
		return nil, fmt.Errorf("kdf: scrypt: %w", err)
	}
	return key, nil
}

// Algorithm returns the KDF algorithm
func (s *ScryptAdapter) Algorithm() KDFAlgorithm {
	return AlgorithmScrypt
}

// ValidateParams validates scrypt parameters
func (s *ScryptAdapter) ValidateParams(params *Params, policy Policy) error {
	if params == nil || params.KeyLength <= 0 || params.KeyLength > policy.MaxKeyLength {
		return ErrInvalidKeyLength
	}
	if params.Algorithm != AlgorithmScrypt {
		return ErrUnsupportedAlgorithm
	}
	if len(params.Salt) < policy.MinSaltLength {
		return ErrInvalidSalt
	}
	n := params.Iterations
	if n < policy.MinScryptCost || n > policy.MaxScryptCost || n&(n-1) != 0 {
		return ErrInvalidIterations
	}
	if params.BlockSize < 1 || params.BlockSize > policy.MaxScryptBlockSize {
		return ErrInvalidMemory
	}
	if params.Threads < 1 {
		return ErrInvalidThreads
	}
	return nil
}
