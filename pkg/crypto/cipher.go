// Package crypto encrypts trading-account passwords before they reach the
// database. AES-256-GCM with a random nonce per value.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	keySize   = 32 // AES-256
	nonceSize = 12 // GCM standard nonce
	prefix    = "enc:"
)

var (
	ErrInvalidKey        = errors.New("invalid encryption key: must decode to 32 bytes")
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
	ErrDecryptionFailed  = errors.New("decryption failed")
)

// Cipher seals and opens short secrets.
type Cipher struct {
	aead cipher.AEAD
}

// New builds a cipher from a raw 32-byte key.
func New(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// NewFromEnv reads a base64 key from the named environment variable.
func NewFromEnv(envName string) (*Cipher, error) {
	encoded := os.Getenv(envName)
	if encoded == "" {
		return nil, fmt.Errorf("%s is not set", envName)
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", envName, err)
	}
	return New(key)
}

// Encrypt seals plaintext into "enc:base64(nonce+ciphertext)".
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, prefix) {
		return "", ErrInvalidCiphertext
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext[len(prefix):])
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	if len(data) < nonceSize {
		return "", ErrInvalidCiphertext
	}
	plaintext, err := c.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// GenerateKey returns a fresh base64-encoded 32-byte key for initial setup.
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate random key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
