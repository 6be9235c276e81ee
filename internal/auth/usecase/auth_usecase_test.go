package usecase

import (
	"testing"
	"time"
)

func TestIssueAndValidateToken(t *testing.T) {
	auth := NewAuthUsecase("test-signing-secret")

	token, err := auth.IssueToken("user-1", time.Hour)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	userID, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1, got %q", userID)
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	auth := NewAuthUsecase("test-signing-secret")

	token, err := auth.IssueToken("user-1", -time.Minute)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if _, err := auth.ValidateToken(token); err == nil {
		t.Fatalf("expired token accepted")
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewAuthUsecase("secret-a")
	verifier := NewAuthUsecase("secret-b")

	token, err := issuer.IssueToken("user-1", time.Hour)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if _, err := verifier.ValidateToken(token); err == nil {
		t.Fatalf("token with wrong signature accepted")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	auth := NewAuthUsecase("test-signing-secret")
	if _, err := auth.ValidateToken("not.a.jwt"); err == nil {
		t.Fatalf("garbage token accepted")
	}
}
