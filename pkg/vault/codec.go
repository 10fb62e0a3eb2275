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

package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/awnumar/memguard"
	"github.com/jeremyhahn/go-walletcore/pkg/adapters/kdf"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/chacha20poly1305"
)

const tagLabel = "walletcore-vault-v1"

// CodecConfig configures a Codec.
type CodecConfig struct {
	// KDF is the template for newly encoded vaults. A fresh salt is drawn
	// for every Encode. Defaults to Argon2id.
	KDF *kdf.Params

	// Rand supplies salts and nonces. Defaults to crypto/rand.
	Rand io.Reader

	// Now stamps CreatedAt. Defaults to time.Now.
	Now func() time.Time
}

// Codec encodes and decodes SecretVaults. It holds no key material between
// calls and is safe for concurrent use.
type Codec struct {
	template *kdf.Params
	rand     io.Reader
	now      func() time.Time
}

// NewCodec creates a codec. A nil config selects the defaults.
func NewCodec(config *CodecConfig) (*Codec, error) {
	if config == nil {
		config = &CodecConfig{}
	}
	c := &Codec{
		template: config.KDF.Clone(),
		rand:     config.Rand,
		now:      config.Now,
	}
	if c.template == nil {
		c.template = kdf.DefaultParams(kdf.AlgorithmArgon2id)
	}
	if c.rand == nil {
		c.rand = rand.Reader
	}
	if c.now == nil {
		c.now = time.Now
	}

	// Reject a template that could never produce a valid vault.
	probe := c.template.Clone()
	probe.Salt = make([]byte, kdf.DefaultSaltLength)
	adapter, err := kdf.AdapterFor(probe.Algorithm)
	if err != nil {
		return nil, err
	}
	if err := adapter.ValidateParams(probe, kdf.StrictPolicy); err != nil {
		return nil, fmt.Errorf("vault: kdf template: %w", err)
	}
	return c, nil
}

// Params returns a copy of the template used for new vaults.
func (c *Codec) Params() *kdf.Params {
	return c.template.Clone()
}

// Encode encrypts plaintext under passphrase into a new vault with a fresh
// salt and nonce. The caller keeps ownership of both inputs.
func (c *Codec) Encode(plaintext, passphrase []byte) (*SecretVault, error) {
	if len(plaintext) == 0 {
		return nil, ErrEmptySecret
	}
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}

	params := c.template.Clone()
	params.Salt = make([]byte, kdf.DefaultSaltLength)
	if _, err := io.ReadFull(c.rand, params.Salt); err != nil {
		return nil, &EncodingError{Op: "salt", Err: err}
	}

	encKey, macKey, err := c.keys(passphrase, params, kdf.StrictPolicy)
	if err != nil {
		return nil, &EncodingError{Op: "derive", Err: err}
	}
	defer memguard.WipeBytes(encKey)
	defer memguard.WipeBytes(macKey)

	aad, err := params.Canonical()
	if err != nil {
		return nil, &EncodingError{Op: "params", Err: err}
	}

	aead, err := chacha20poly1305.NewX(encKey)
	if err != nil {
		return nil, &EncodingError{Op: "cipher", Err: err}
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return nil, &EncodingError{Op: "nonce", Err: err}
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, aad)

	return &SecretVault{
		Version:      FormatVersion,
		ID:           ulid.Make().String(),
		Cipher:       CipherXChaCha20Poly1305,
		KDF:          *params,
		Nonce:        nonce,
		Ciphertext:   ciphertext,
		IntegrityTag: integrityTag(macKey, aad, nonce, ciphertext),
		CreatedAt:    c.now().UTC(),
	}, nil
}

// Decode re-derives the key from the vault's own params and returns the
// plaintext. The integrity tag is verified before any decryption; a
// mismatch returns ErrAuthentication and no plaintext.
//
// Vault params are checked against kdf.LegacyPolicy so that vaults written
// under older defaults, and imported extension records, stay readable.
func (c *Codec) Decode(v *SecretVault, passphrase []byte) ([]byte, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if len(passphrase) == 0 {
		return nil, ErrAuthentication
	}
	switch v.Cipher {
	case CipherXChaCha20Poly1305:
		return c.openXChaCha(v, passphrase)
	case CipherAES256GCM:
		return c.openGCM(v, passphrase)
	default:
		return nil, ErrUnsupportedCipher
	}
}

func (c *Codec) openXChaCha(v *SecretVault, passphrase []byte) ([]byte, error) {
	encKey, macKey, err := c.keys(passphrase, &v.KDF, kdf.LegacyPolicy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVault, err)
	}
	defer memguard.WipeBytes(encKey)
	defer memguard.WipeBytes(macKey)

	aad, err := v.KDF.Canonical()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVault, err)
	}
	expected := integrityTag(macKey, aad, v.Nonce, v.Ciphertext)
	if !hmac.Equal(expected, v.IntegrityTag) {
		return nil, ErrAuthentication
	}

	aead, err := chacha20poly1305.NewX(encKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVault, err)
	}
	if len(v.Nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce length %d", ErrInvalidVault, len(v.Nonce))
	}
	plaintext, err := aead.Open(nil, v.Nonce, v.Ciphertext, aad)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

// openGCM decodes the extension suite. The derived key is used directly and
// the stored tag is the GCM tag, which Open checks before releasing output.
func (c *Codec) openGCM(v *SecretVault, passphrase []byte) ([]byte, error) {
	key, err := kdf.DeriveWithPolicy(passphrase, &v.KDF, kdf.LegacyPolicy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVault, err)
	}
	defer memguard.WipeBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVault, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVault, err)
	}
	if len(v.Nonce) != aead.NonceSize() || len(v.IntegrityTag) != aead.Overhead() {
		return nil, fmt.Errorf("%w: bad nonce or tag length", ErrInvalidVault)
	}

	sealed := make([]byte, 0, len(v.Ciphertext)+len(v.IntegrityTag))
	sealed = append(sealed, v.Ciphertext...)
	sealed = append(sealed, v.IntegrityTag...)
	plaintext, err := aead.Open(nil, v.Nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

func (c *Codec) keys(passphrase []byte, params *kdf.Params, policy kdf.Policy) (encKey, macKey []byte, err error) {
	master, err := kdf.DeriveWithPolicy(passphrase, params, policy)
	if err != nil {
		if errors.Is(err, kdf.ErrInvalidIKM) {
			return nil, nil, ErrAuthentication
		}
		return nil, nil, err
	}
	defer memguard.WipeBytes(master)
	return kdf.SplitKey(master, params.Salt)
}

// integrityTag computes HMAC-SHA256 over a domain label and the
// length-prefixed params, nonce and ciphertext.
func integrityTag(macKey, params, nonce, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, macKey)
	mac.Write([]byte(tagLabel))
	for _, part := range [][]byte{params, nonce, ciphertext} {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(part)))
		mac.Write(n[:])
		mac.Write(part)
	}
	return mac.Sum(nil)
}
