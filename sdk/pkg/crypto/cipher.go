package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

const base64KeyPrefix = "base64:"

// Decrypter opens a password stored encrypted in a connection template.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// PasswordCipher seals passwords as base64(nonce | ciphertext | tag).
type PasswordCipher struct {
	aead cipher.AEAD
}

// NewPasswordCipher accepts a raw 32 byte key or "base64:" followed by the
// standard encoding of 32 bytes.
func NewPasswordCipher(key string) (*PasswordCipher, error) {
	raw := []byte(key)
	if strings.HasPrefix(key, base64KeyPrefix) {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(key, base64KeyPrefix))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeyLength, err)
		}
		raw = decoded
	}
	if len(raw) != 32 {
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("crypto: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: create GCM: %w", err)
	}
	return &PasswordCipher{aead: aead}, nil
}

func (c *PasswordCipher) String() string {
	return "PasswordCipher{key: [REDACTED]}"
}

func (c *PasswordCipher) GoString() string {
	return c.String()
}

func (c *PasswordCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *PasswordCipher) Decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	n := c.aead.NonceSize()
	if len(data) < n+c.aead.Overhead() {
		return "", ErrInvalidCiphertext
	}
	plaintext, err := c.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
