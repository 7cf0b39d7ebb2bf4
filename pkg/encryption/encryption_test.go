package encryption

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVault(t *testing.T) *Vault {
	t.Helper()

	v, err := New(bytes.Repeat([]byte("k"), KeySize))
	require.NoError(t, err)

	return v
}

func TestNew_invalidKey(t *testing.T) {
	tests := []struct {
		name string
		key  []byte
	}{
		{name: "empty", key: nil},
		{name: "too short", key: []byte("short")},
		{name: "too long", key: bytes.Repeat([]byte("x"), KeySize+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.key)
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestVault_roundTrip(t *testing.T) {
	v := testVault(t)

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "token", plaintext: "ya29.a0AfH6SMBx"},
		{name: "empty", plaintext: ""},
		{name: "unicode", plaintext: "señal-🔑"},
		{name: "long", plaintext: strings.Repeat("abc123", 500)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := v.Encrypt(tt.plaintext)
			require.NoError(t, err)
			require.NotEqual(t, tt.plaintext, ciphertext)

			plaintext, err := v.Decrypt(ciphertext)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, plaintext)
		})
	}
}

func TestVault_nonceIsRandom(t *testing.T) {
	v := testVault(t)

	a, err := v.Encrypt("same input")
	require.NoError(t, err)
	b, err := v.Encrypt("same input")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestVault_decryptCorrupt(t *testing.T) {
	v := testVault(t)

	ciphertext, err := v.Encrypt("secret token")
	require.NoError(t, err)

	t.Run("flipped byte", func(t *testing.T) {
		raw, err := base64.StdEncoding.DecodeString(ciphertext)
		require.NoError(t, err)

		raw[len(raw)-1] ^= 0xff
		_, err = v.Decrypt(base64.StdEncoding.EncodeToString(raw))
		assert.ErrorIs(t, err, ErrCorruptCredential)
	})

	t.Run("not base64", func(t *testing.T) {
		_, err := v.Decrypt("%%% not base64 %%%")
		assert.ErrorIs(t, err, ErrCorruptCredential)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := v.Decrypt(base64.StdEncoding.EncodeToString([]byte("ab")))
		assert.ErrorIs(t, err, ErrCorruptCredential)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := New(bytes.Repeat([]byte("z"), KeySize))
		require.NoError(t, err)

		_, err = other.Decrypt(ciphertext)
		assert.ErrorIs(t, err, ErrCorruptCredential)
	})
}

func TestNewFromPassphrase(t *testing.T) {
	a, err := NewFromPassphrase("correct horse battery staple")
	require.NoError(t, err)
	b, err := NewFromPassphrase("correct horse battery staple")
	require.NoError(t, err)

	ciphertext, err := a.Encrypt("payload")
	require.NoError(t, err)

	plaintext, err := b.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "payload", plaintext)

	_, err = NewFromPassphrase("")
	assert.Error(t, err)
}
