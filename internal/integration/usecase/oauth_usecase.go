package usecase

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"dealflow-backend/internal/integration/domain"
	"dealflow-backend/internal/integration/repository"
	"dealflow-backend/pkg/crypto"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// OAuthUsecase drives the authorization-code flow that creates or replaces
// an Integration. The heavy lifting (auth URL, code exchange) is delegated
// to the vault's oauth2 configs so both flows share one source of truth.
type OAuthUsecase struct {
	repo        repository.IntegrationRepository
	cipher      *crypto.TokenCipher
	vault       *TokenVault
	stateSecret []byte
	logger      *zap.Logger
}

func NewOAuthUsecase(repo repository.IntegrationRepository, cipher *crypto.TokenCipher, vault *TokenVault, stateSecret string, logger *zap.Logger) *OAuthUsecase {
	return &OAuthUsecase{
		repo:        repo,
		cipher:      cipher,
		vault:       vault,
		stateSecret: []byte(stateSecret),
		logger:      logger.Named("oauth"),
	}
}

func (u *OAuthUsecase) AuthorizeURL(provider domain.Provider, state string) (string, error) {
	cfg, ok := u.vault.configs[provider]
	if !ok {
		return "", fmt.Errorf("unsupported provider: %s", provider)
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// NewState mints a signed state parameter binding the flow to the user. The
// callback trusts the embedded user id only after the signature checks out.
func (u *OAuthUsecase) NewState(userID string) string {
	payload := []byte(userID + ":" + uuid.New().String())
	mac := hmac.New(sha256.New, u.stateSecret)
	mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(payload) + "." + hex.EncodeToString(mac.Sum(nil))
}

// VerifyState checks the state signature and returns the user id it was
// minted for.
func (u *OAuthUsecase) VerifyState(state string) (string, bool) {
	encoded, sig, found := strings.Cut(state, ".")
	if !found {
		return "", false
	}
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	want, err := hex.DecodeString(sig)
	if err != nil {
		return "", false
	}
	mac := hmac.New(sha256.New, u.stateSecret)
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), want) {
		return "", false
	}
	userID, _, found := strings.Cut(string(payload), ":")
	if !found || userID == "" {
		return "", false
	}
	return userID, true
}

// HandleCallback exchanges the authorization code and stores the encrypted
// token pair, reactivating any previously deactivated integration.
func (u *OAuthUsecase) HandleCallback(ctx context.Context, userID string, provider domain.Provider, code string) error {
	cfg, ok := u.vault.configs[provider]
	if !ok {
		return fmt.Errorf("unsupported provider: %s", provider)
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("unable to exchange code for token: %w", err)
	}

	accessCipher, err := u.cipher.Encrypt(token.AccessToken)
	if err != nil {
		return err
	}
	refreshCipher := ""
	if token.RefreshToken != "" {
		if refreshCipher, err = u.cipher.Encrypt(token.RefreshToken); err != nil {
			return err
		}
	}

	integration := &domain.Integration{
		UserID:             userID,
		Provider:           provider,
		AccessTokenCipher:  accessCipher,
		RefreshTokenCipher: refreshCipher,
		TokenExpiresAt:     token.Expiry,
		Scopes:             strings.Join(cfg.Scopes, " "),
	}

	if err := u.repo.Upsert(integration); err != nil {
		return err
	}

	u.logger.Info("integration connected",
		zap.String("user_id", userID),
		zap.String("provider", string(provider)))
	return nil
}

// ParseProvider maps a URL segment to a known provider.
func ParseProvider(raw string) (domain.Provider, error) {
	switch domain.Provider(raw) {
	case domain.ProviderMicrosoft, domain.ProviderPipedrive:
		return domain.Provider(raw), nil
	default:
		return "", fmt.Errorf("unsupported provider: %s", raw)
	}
}
