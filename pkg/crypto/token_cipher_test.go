package crypto

import (
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cipher, err := NewTokenCipher("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("failed to build cipher: %v", err)
	}

	plaintext := "ya29.a0AfH6SMBx-access-token"
	encrypted, err := cipher.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("failed to encrypt: %v", err)
	}
	if encrypted == plaintext {
		t.Fatalf("ciphertext equals plaintext")
	}

	decrypted, err := cipher.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("failed to decrypt: %v", err)
	}
	if decrypted != plaintext {
		t.Fatalf("expected %q, got %q", plaintext, decrypted)
	}
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	cipher, err := NewTokenCipher("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("failed to build cipher: %v", err)
	}

	first, err := cipher.Encrypt("same-token")
	if err != nil {
		t.Fatalf("failed to encrypt: %v", err)
	}
	second, err := cipher.Encrypt("same-token")
	if err != nil {
		t.Fatalf("failed to encrypt: %v", err)
	}
	if first == second {
		t.Fatalf("two encryptions of the same plaintext produced identical ciphertexts")
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	cipher, err := NewTokenCipher("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("failed to build cipher: %v", err)
	}
	other, err := NewTokenCipher("fedcba9876543210fedcba9876543210")
	if err != nil {
		t.Fatalf("failed to build cipher: %v", err)
	}

	encrypted, err := cipher.Encrypt("secret")
	if err != nil {
		t.Fatalf("failed to encrypt: %v", err)
	}
	if _, err := other.Decrypt(encrypted); err == nil {
		t.Fatalf("expected decryption with wrong key to fail")
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	cipher, err := NewTokenCipher("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("failed to build cipher: %v", err)
	}

	encrypted, err := cipher.Encrypt("secret")
	if err != nil {
		t.Fatalf("failed to encrypt: %v", err)
	}
	tampered := strings.Map(func(r rune) rune {
		if r == 'A' {
			return 'B'
		}
		return 'A'
	}, encrypted[:4]) + encrypted[4:]
	if _, err := cipher.Decrypt(tampered); err == nil {
		t.Fatalf("expected decryption of tampered ciphertext to fail")
	}
}

func TestNewTokenCipherRejectsEmptyKey(t *testing.T) {
	if _, err := NewTokenCipher(""); err == nil {
		t.Fatalf("expected empty key to be rejected")
	}
}
