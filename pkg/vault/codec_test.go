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
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/jeremyhahn/go-walletcore/pkg/adapters/kdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testPassphrase = []byte("correct horse battery staple")
	testMnemonic   = []byte("abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about")
)

// fastKDF keeps Argon2id cheap enough for unit tests while still passing
// StrictPolicy.
func fastKDF() *kdf.Params {
	return &kdf.Params{
		Algorithm:  kdf.AlgorithmArgon2id,
		Iterations: 1,
		Memory:     8 * 1024,
		Threads:    1,
		KeyLength:  32,
	}
}

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	codec, err := NewCodec(&CodecConfig{KDF: fastKDF()})
	require.NoError(t, err)
	return codec
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestCodec_RoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"mnemonic", testMnemonic},
		{"64 byte seed", bytes.Repeat([]byte{0xAB}, 64)},
		{"single byte", []byte{0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := codec.Encode(tt.plaintext, testPassphrase)
			require.NoError(t, err)
			assert.Equal(t, FormatVersion, v.Version)
			assert.Equal(t, CipherXChaCha20Poly1305, v.Cipher)
			assert.NotEmpty(t, v.IntegrityTag)
			assert.NotEmpty(t, v.ID)

			out, err := codec.Decode(v, testPassphrase)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, out)
		})
	}
}

func TestCodec_WrongPassphrase(t *testing.T) {
	codec := newTestCodec(t)
	v, err := codec.Encode(testMnemonic, testPassphrase)
	require.NoError(t, err)

	for _, wrong := range [][]byte{[]byte("Correct horse battery staple"), []byte("x"), nil} {
		out, err := codec.Decode(v, wrong)
		assert.ErrorIs(t, err, ErrAuthentication)
		assert.Nil(t, out, "no partial plaintext on failure")
	}
}

func TestCodec_Tampering(t *testing.T) {
	codec := newTestCodec(t)

	tests := []struct {
		name   string
		tamper func(v *SecretVault)
	}{
		{"ciphertext bit flip", func(v *SecretVault) { v.Ciphertext[0] ^= 0x01 }},
		{"tag bit flip", func(v *SecretVault) { v.IntegrityTag[len(v.IntegrityTag)-1] ^= 0x80 }},
		{"nonce bit flip", func(v *SecretVault) { v.Nonce[3] ^= 0x10 }},
		{"iterations raised", func(v *SecretVault) { v.KDF.Iterations++ }},
		{"salt changed", func(v *SecretVault) { v.KDF.Salt[0] ^= 0xFF }},
		{"truncated ciphertext", func(v *SecretVault) { v.Ciphertext = v.Ciphertext[:len(v.Ciphertext)-1] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := codec.Encode(testMnemonic, testPassphrase)
			require.NoError(t, err)
			tt.tamper(v)

			out, err := codec.Decode(v, testPassphrase)
			assert.ErrorIs(t, err, ErrAuthentication)
			assert.Nil(t, out)
		})
	}
}

func TestCodec_FreshSaltAndNonce(t *testing.T) {
	codec := newTestCodec(t)

	a, err := codec.Encode(testMnemonic, testPassphrase)
	require.NoError(t, err)
	b, err := codec.Encode(testMnemonic, testPassphrase)
	require.NoError(t, err)

	assert.NotEqual(t, a.KDF.Salt, b.KDF.Salt)
	assert.NotEqual(t, a.Nonce, b.Nonce)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Empty(t, codec.Params().Salt, "template must stay unsalted")
}

func TestCodec_HistoricalParamsStayDecodable(t *testing.T) {
	old, err := NewCodec(&CodecConfig{KDF: fastKDF()})
	require.NoError(t, err)
	v, err := old.Encode(testMnemonic, testPassphrase)
	require.NoError(t, err)

	raised := fastKDF()
	raised.Iterations = 2
	raised.Memory = 16 * 1024
	current, err := NewCodec(&CodecConfig{KDF: raised})
	require.NoError(t, err)

	out, err := current.Decode(v, testPassphrase)
	require.NoError(t, err)
	assert.Equal(t, testMnemonic, out)
}

func TestCodec_EncodeErrors(t *testing.T) {
	t.Run("empty secret", func(t *testing.T) {
		_, err := newTestCodec(t).Encode(nil, testPassphrase)
		assert.ErrorIs(t, err, ErrEmptySecret)
	})

	t.Run("entropy failure is an encoding error", func(t *testing.T) {
		codec, err := NewCodec(&CodecConfig{KDF: fastKDF(), Rand: failingReader{}})
		require.NoError(t, err)

		_, err = codec.Encode(testMnemonic, testPassphrase)
		var encErr *EncodingError
		require.ErrorAs(t, err, &encErr)
		assert.Equal(t, "salt", encErr.Op)
	})

	t.Run("empty passphrase", func(t *testing.T) {
		_, err := newTestCodec(t).Encode(testMnemonic, nil)
		assert.ErrorIs(t, err, ErrEmptyPassphrase)
	})
}

func TestNewCodec(t *testing.T) {
	codec, err := NewCodec(nil)
	require.NoError(t, err)
	assert.Equal(t, kdf.AlgorithmArgon2id, codec.Params().Algorithm)

	weak := fastKDF()
	weak.Memory = 64
	_, err = NewCodec(&CodecConfig{KDF: weak})
	assert.ErrorIs(t, err, kdf.ErrInvalidMemory)

	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	codec, err = NewCodec(&CodecConfig{KDF: fastKDF(), Now: func() time.Time { return fixed }})
	require.NoError(t, err)
	v, err := codec.Encode(testMnemonic, testPassphrase)
	require.NoError(t, err)
	assert.Equal(t, fixed, v.CreatedAt)
}

// sealGCM builds an extension-style vault the way the extension does.
func sealGCM(t *testing.T, plaintext, passphrase []byte) *SecretVault {
	t.Helper()
	params := &kdf.Params{
		Algorithm:  kdf.AlgorithmPBKDF2,
		Salt:       []byte("legacy-salt-0001"),
		Iterations: 10000,
		KeyLength:  32,
		Hash:       "SHA-256",
	}
	key, err := kdf.DeriveWithPolicy(passphrase, params, kdf.LegacyPolicy)
	require.NoError(t, err)

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	aead, err := cipher.NewGCM(block)
	require.NoError(t, err)
	nonce := make([]byte, aead.NonceSize())
	_, err = rand.Read(nonce)
	require.NoError(t, err)

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - aead.Overhead()
	return &SecretVault{
		Version:      FormatVersion,
		Cipher:       CipherAES256GCM,
		KDF:          *params,
		Nonce:        nonce,
		Ciphertext:   sealed[:split],
		IntegrityTag: sealed[split:],
	}
}

func TestCodec_DecodeExtensionSuite(t *testing.T) {
	codec := newTestCodec(t)
	v := sealGCM(t, testMnemonic, testPassphrase)

	out, err := codec.Decode(v, testPassphrase)
	require.NoError(t, err)
	assert.Equal(t, testMnemonic, out)

	out, err = codec.Decode(v, []byte("wrong"))
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.Nil(t, out)

	v.IntegrityTag[0] ^= 0x01
	_, err = codec.Decode(v, testPassphrase)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestCodec_DecodeInvalid(t *testing.T) {
	codec := newTestCodec(t)

	_, err := codec.Decode(nil, testPassphrase)
	assert.ErrorIs(t, err, ErrInvalidVault)

	v, err := codec.Encode(testMnemonic, testPassphrase)
	require.NoError(t, err)

	unknown := *v
	unknown.Cipher = "rot13"
	_, err = codec.Decode(&unknown, testPassphrase)
	assert.ErrorIs(t, err, ErrUnsupportedCipher)

	untagged := *v
	untagged.IntegrityTag = nil
	_, err = codec.Decode(&untagged, testPassphrase)
	assert.ErrorIs(t, err, ErrMissingTag)
}

func TestMarshalUnmarshal(t *testing.T) {
	codec := newTestCodec(t)
	v, err := codec.Encode(testMnemonic, testPassphrase)
	require.NoError(t, err)

	data, err := Marshal(v)
	require.NoError(t, err)
	assert.NotContains(t, string(data), string(testMnemonic))

	restored, err := Unmarshal(data)
	require.NoError(t, err)
	out, err := codec.Decode(restored, testPassphrase)
	require.NoError(t, err)
	assert.Equal(t, testMnemonic, out)

	_, err = Unmarshal([]byte("{not json"))
	assert.ErrorIs(t, err, ErrInvalidVault)

	_, err = Unmarshal([]byte(`{"version":99}`))
	assert.ErrorIs(t, err, ErrInvalidVault)
}
