package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// TokenCipher encrypts OAuth tokens at rest with a process-wide symmetric
// key. Ciphertexts are self-contained: base64(nonce || sealed).
type TokenCipher struct {
	key []byte
}

// NewTokenCipher accepts either a base64-encoded or a raw 32-byte key.
func NewTokenCipher(encryptionKey string) (*TokenCipher, error) {
	if encryptionKey == "" {
		return nil, errors.New("encryption key is required")
	}

	key := []byte(encryptionKey)
	if decoded, err := base64.URLEncoding.DecodeString(padBase64(encryptionKey)); err == nil && len(decoded) == chacha20poly1305.KeySize {
		key = decoded
	}

	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("encryption key must be exactly %d bytes", chacha20poly1305.KeySize)
	}

	return &TokenCipher{key: key}, nil
}

func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

func (c *TokenCipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("malformed ciphertext: %w", err)
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}

	if len(raw) < aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("unable to decrypt token: %w", err)
	}

	return string(plaintext), nil
}

func padBase64(s string) string {
	if m := len(s) % 4; m != 0 {
		return s + "===="[:4-m]
	}
	return s
}
