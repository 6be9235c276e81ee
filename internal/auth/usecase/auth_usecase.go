package usecase

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthUsecase issues and validates the API's bearer tokens.
type AuthUsecase struct {
	secret []byte
}

func NewAuthUsecase(secret string) *AuthUsecase {
	return &AuthUsecase{secret: []byte(secret)}
}

func (a *AuthUsecase) IssueToken(userID string, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("unable to sign token: %v", err)
	}
	return signed, nil
}

// ValidateToken checks signature and expiry and returns the subject user id.
func (a *AuthUsecase) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %v", err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("invalid token claims")
	}
	return claims.Subject, nil
}
