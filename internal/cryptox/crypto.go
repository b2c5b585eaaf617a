// Package cryptox protects captured credentials at rest. A PIN is held
// locally only until the owning request is synced; while it waits it is
// sealed with AES-GCM under a key derived from the configured device secret.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// DeriveDeviceKey stretches the device secret into a 32-byte AES key using
// argon2id. The salt is generated once per local store and kept beside the
// data it protects; the secret itself never touches disk.
func DeriveDeviceKey(secret []byte, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, 32)
}

// GenerateSalt returns size cryptographically random bytes.
func GenerateSalt(size int) ([]byte, error) {
	salt := make([]byte, size)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// Cipher seals and opens short secrets with AES-GCM under a fixed key.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a 16-, 24- or 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm init: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext and returns the ciphertext together with the
// randomly generated nonce. A fresh nonce is generated for every call.
func (c *Cipher) Seal(plaintext []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	ciphertext = c.aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Open decrypts ciphertext produced by Seal.
func (c *Cipher) Open(ciphertext, nonce []byte) ([]byte, error) {
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open credential: %w", err)
	}
	return plaintext, nil
}

// WipeBytes overwrites the contents of b with zeros. Useful for removing a
// revealed credential from memory after it has been submitted.
func WipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
