// Package fieldcrypt protects single string fields at rest with
// ChaCha20-Poly1305. The stored form is base64(nonce || ciphertext); the
// auth tag is part of the ciphertext. A nil *Cipher means the deployment
// runs in cleartext mode and fields pass through unchanged.
package fieldcrypt

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required key length in bytes.
const KeySize = chacha20poly1305.KeySize

// ErrDecryptionFailed is returned when a stored bundle cannot be
// authenticated, i.e. it was tampered with or encrypted under another key.
var ErrDecryptionFailed = errors.New("field decryption failed")

// Cipher encrypts and decrypts field values under one process-wide key.
type Cipher struct {
	key []byte
}

// New creates a Cipher from a raw 32-byte key.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, errors.Errorf("fieldcrypt: key must be %d bytes, got %d", KeySize, len(key))
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &Cipher{key: k}, nil
}

// NewFromBase64 creates a Cipher from a base64-encoded 32-byte key, as it
// appears in the configuration file.
func NewFromBase64(encoded string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "fieldcrypt: invalid base64 key")
	}
	return New(key)
}

// EncryptField encrypts the given plaintext under a fresh random nonce and
// returns the stored form. A nil Cipher passes the plaintext through.
func (c *Cipher) EncryptField(plaintext string) (string, error) {
	if c == nil {
		return plaintext, nil
	}
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return "", err
	}
	bundle := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(bundle), nil
}

// DecryptField authenticates and decrypts a stored bundle. It fails closed:
// any tampering or key mismatch yields ErrDecryptionFailed, never partial
// plaintext. A nil Cipher passes the stored value through.
func (c *Cipher) DecryptField(stored string) (string, error) {
	if c == nil {
		return stored, nil
	}
	bundle, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return "", err
	}
	if len(bundle) < aead.NonceSize() {
		return "", ErrDecryptionFailed
	}
	nonce, ciphertext := bundle[:aead.NonceSize()], bundle[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
