// Package secrets provides at-rest encryption for MFA material using
// XChaCha20-Poly1305. Ciphertext is nonce-prefixed so each value is
// self-contained and independently decryptable.
package secrets

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required length of the cipher key in bytes.
const KeySize = chacha20poly1305.KeySize

var (
	ErrInvalidKeySize    = errors.New("secrets: key must be 32 bytes")
	ErrCiphertextInvalid = errors.New("secrets: ciphertext invalid or tampered")
)

// Cipher defines a public type used by authgate APIs.
//
// Cipher instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher describes the newcipher operation and its observable behavior.
//
// NewCipher may return an error when input validation, dependency calls, or security checks fail.
// NewCipher does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext and returns nonce||ciphertext. The additional data
// binds the ciphertext to its owner so a value copied between rows fails to open.
func (c *Cipher) Seal(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("secrets: nonce generation: %w", err)
	}

	return c.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

// Open decrypts a value produced by Seal. Any mutation of the ciphertext,
// nonce, or additional data yields ErrCiphertextInvalid.
func (c *Cipher) Open(sealed, additionalData []byte) ([]byte, error) {
	if len(sealed) < c.aead.NonceSize()+c.aead.Overhead() {
		return nil, ErrCiphertextInvalid
	}

	nonce := sealed[:c.aead.NonceSize()]
	plaintext, err := c.aead.Open(nil, nonce, sealed[c.aead.NonceSize():], additionalData)
	if err != nil {
		return nil, ErrCiphertextInvalid
	}

	return plaintext, nil
}
