// Package encryption implements the credential vault: AES-GCM encryption of
// OAuth secrets before they touch persistent storage.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// KeySize is the required length of the raw vault key.
const KeySize = 32

var (
	// ErrCorruptCredential indicates ciphertext that is malformed or fails
	// integrity verification. Decrypt never returns garbage plaintext.
	ErrCorruptCredential = errors.New("corrupt credential ciphertext")

	// ErrInvalidKey indicates key material of the wrong length.
	ErrInvalidKey = errors.New("encryption key must be exactly 32 bytes")
)

// Vault encrypts and decrypts credential strings with a single symmetric
// key. Construct one at startup and inject it; there is no package-level key
// state and no key rotation.
type Vault struct {
	aead cipher.AEAD
}

// New creates a Vault from a raw 32-byte key.
func New(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// NewFromPassphrase creates a Vault whose key is the SHA-256 digest of an
// operator-supplied passphrase.
func NewFromPassphrase(passphrase string) (*Vault, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}

	key := sha256.Sum256([]byte(passphrase))

	return New(key[:])
}

// Encrypt seals plaintext with a fresh random nonce and returns
// base64(nonce || ciphertext || tag), so decryption is self-describing.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any malformed input or failed integrity check
// yields ErrCorruptCredential.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptCredential, err)
	}

	if len(raw) < v.aead.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrCorruptCredential)
	}

	nonce, sealed := raw[:v.aead.NonceSize()], raw[v.aead.NonceSize():]

	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptCredential, err)
	}

	return string(plaintext), nil
}
