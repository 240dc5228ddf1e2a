// internal/crypto/crypto.go
//
// Package crypto seals and opens credential values stored in the harness
// configuration. Values are AES-256-GCM encrypted, hex encoded and carry an
// "enc:" prefix so plain and sealed secrets can live side by side.

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// SealedPrefix marks a configuration value as encrypted.
const SealedPrefix = "enc:"

// Cipher represents an AES-256-GCM cipher bound to one master key.
type Cipher struct {
	key [32]byte
}

// NewCipher derives a 256-bit key from the master passphrase.
func NewCipher(passphrase string) *Cipher {
	return &Cipher{key: sha256.Sum256([]byte(passphrase))}
}

func (c *Cipher) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}

// Seal encrypts plaintext and returns it as an "enc:<hex>" value.
func (c *Cipher) Seal(plaintext string) (string, error) {
	aesGCM, err := c.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// nonce || ciphertext
	sealed := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + hex.EncodeToString(sealed), nil
}

// Open decrypts an "enc:<hex>" value.
func (c *Cipher) Open(value string) (string, error) {
	if !IsSealed(value) {
		return "", fmt.Errorf("value is not sealed")
	}

	combined, err := hex.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode hex: %w", err)
	}

	aesGCM, err := c.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := aesGCM.NonceSize()
	if len(combined) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := aesGCM.Open(nil, combined[:nonceSize], combined[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// Reveal returns value unchanged when it is plain text and decrypts it when
// it is sealed. A sealed value with a nil cipher is an error.
func Reveal(c *Cipher, value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if c == nil {
		return "", fmt.Errorf("sealed value found but no master key is configured")
	}
	return c.Open(value)
}

// IsSealed reports whether value carries the sealed prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}
