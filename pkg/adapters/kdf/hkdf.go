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
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	infoEncryption = "walletcore/v1/encryption"
	infoMAC        = "walletcore/v1/integrity"
)

// SplitKey expands a passphrase-derived master key into independent
// encryption and MAC keys with HKDF-SHA256. Both outputs are as long as
// master.
func SplitKey(master, salt []byte) (encKey, macKey []byte, err error) {
	if len(master) == 0 {
		return nil, nil, ErrInvalidIKM
	}
	encKey, err = expand(master, salt, infoEncryption, len(master))
	if err != nil {
		return nil, nil, err
	}
	macKey, err = expand(master, salt, infoMAC, len(master))
	if err != nil {
		clear(encKey)
		return nil, nil, err
	}
	return encKey, macKey, nil
}

func expand(master, salt []byte, info string, n int) ([]byte, error) {
	out := make([]byte, n)
	r := hkdf.New(sha256.New, master, salt, []byte(info))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("kdf: hkdf expand %s: %w", info, err)
	}
	return out, nil
}
