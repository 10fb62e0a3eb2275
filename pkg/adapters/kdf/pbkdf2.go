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
	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2Adapter derives keys with PBKDF2-HMAC. Browser extension exports
// use it, so the adapter must also accept their older work factors under
// LegacyPolicy.
type PBKDF2Adapter struct{}

// NewPBKDF2Adapter creates a new PBKDF2 adapter
func NewPBKDF2Adapter() *PBKDF2Adapter {
	return &PBKDF2Adapter{}
}

// DeriveKey derives a key using PBKDF2
func (p *PBKDF2Adapter) DeriveKey(ikm []byte, params *Params) ([]byte, error) {
	if len(ikm) == 0 {
		return nil, ErrInvalidIKM
	}
	h, err := params.HashFunc()
	if err != nil {
		return nil, err
	}
	return pbkdf2.Key(ikm, params.Salt, params.Iterations, params.KeyLength, h.New), nil
}

// Algorithm returns the KDF algorithm
func (p *PBKDF2Adapter) Algorithm() KDFAlgorithm {
	return AlgorithmPBKDF2
}

// ValidateParams validates PBKDF2 parameters
func (p *PBKDF2Adapter) ValidateParams(params *Params, policy Policy) error {
	if params == nil || params.KeyLength <= 0 || params.KeyLength > policy.MaxKeyLength {
		return ErrInvalidKeyLength
	}
	if params.Algorithm != AlgorithmPBKDF2 {
		return ErrUnsupportedAlgorithm
	}
	if len(params.Salt) < policy.MinSaltLength {
		return ErrInvalidSalt
	}
	if params.Iterations < policy.MinPBKDF2Iterations || params.Iterations > policy.MaxPBKDF2Iterations {
		return ErrInvalidIterations
	}
	if _, err := params.HashFunc(); err != nil {
		return err
	}
	return nil
}
