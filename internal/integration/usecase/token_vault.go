package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	activitydomain "dealflow-backend/internal/activity/domain"
	activityusecase "dealflow-backend/internal/activity/usecase"
	"dealflow-backend/internal/integration/domain"
	"dealflow-backend/internal/integration/repository"
	"dealflow-backend/pkg/config"
	"dealflow-backend/pkg/crypto"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
	"golang.org/x/sync/singleflight"
)

// expirySkew refreshes proactively when a stored token is about to expire,
// so most calls never see a provider 401 at all.
const expirySkew = 2 * time.Minute

var pipedriveEndpoint = oauth2.Endpoint{
	AuthURL:  "https://oauth.pipedrive.com/oauth/authorize",
	TokenURL: "https://oauth.pipedrive.com/oauth/token",
}

// TokenVault owns the OAuth token lifecycle. No other component reads or
// writes token ciphers, and no component holds a raw token beyond a single
// call's lifetime.
type TokenVault struct {
	repo     repository.IntegrationRepository
	cipher   *crypto.TokenCipher
	configs  map[domain.Provider]*oauth2.Config
	sf       singleflight.Group
	activity *activityusecase.ActivityLogger
	logger   *zap.Logger
}

func NewTokenVault(repo repository.IntegrationRepository, cipher *crypto.TokenCipher, cfg *config.Config, activity *activityusecase.ActivityLogger, logger *zap.Logger) *TokenVault {
	configs := map[domain.Provider]*oauth2.Config{
		domain.ProviderMicrosoft: {
			ClientID:     cfg.MicrosoftClientID,
			ClientSecret: cfg.MicrosoftClientSecret,
			RedirectURL:  cfg.MicrosoftRedirectURI,
			Endpoint:     microsoft.AzureADEndpoint("common"),
			Scopes: []string{
				"https://graph.microsoft.com/Mail.Read",
				"https://graph.microsoft.com/Mail.ReadWrite",
				"https://graph.microsoft.com/User.Read",
				"offline_access",
			},
		},
		domain.ProviderPipedrive: {
			ClientID:     cfg.PipedriveClientID,
			ClientSecret: cfg.PipedriveClientSecret,
			RedirectURL:  cfg.PipedriveRedirectURI,
			Endpoint:     pipedriveEndpoint,
			Scopes:       []string{"deals:read", "deals:write", "persons:read", "persons:write"},
		},
	}

	return &TokenVault{
		repo:     repo,
		cipher:   cipher,
		configs:  configs,
		activity: activity,
		logger:   logger.Named("token_vault"),
	}
}

// SetTokenEndpoint overrides a provider's OAuth endpoint. Used by tests to
// point refreshes at a local server.
func (v *TokenVault) SetTokenEndpoint(provider domain.Provider, endpoint oauth2.Endpoint) {
	if cfg, ok := v.configs[provider]; ok {
		cfg.Endpoint = endpoint
	}
}

// GetValidAccessToken returns a usable access token for the integration,
// refreshing proactively when the stored one is expired or about to expire.
func (v *TokenVault) GetValidAccessToken(ctx context.Context, integration *domain.Integration) (string, error) {
	if !integration.IsActive {
		return "", domain.ErrReauthRequired
	}

	if !integration.TokenExpiresAt.IsZero() && time.Until(integration.TokenExpiresAt) < expirySkew {
		return v.refresh(ctx, integration)
	}

	return v.cipher.Decrypt(integration.AccessTokenCipher)
}

// WrapCall executes fn with a valid access token. On ErrUnauthorized it
// performs exactly one refresh-and-retry cycle; a second 401 yields
// ErrReauthRequired without another refresh attempt.
func (v *TokenVault) WrapCall(ctx context.Context, integration *domain.Integration, fn func(accessToken string) error) error {
	token, err := v.GetValidAccessToken(ctx, integration)
	if err != nil {
		return err
	}

	err = fn(token)
	if !errors.Is(err, domain.ErrUnauthorized) {
		return err
	}

	v.logger.Info("access token rejected, refreshing",
		zap.String("integration_id", integration.ID),
		zap.String("provider", string(integration.Provider)))

	token, err = v.refresh(ctx, integration)
	if err != nil {
		return err
	}

	err = fn(token)
	if errors.Is(err, domain.ErrUnauthorized) {
		return domain.ErrReauthRequired
	}
	return err
}

// refresh exchanges the stored refresh token for a new token pair. Refreshes
// are single-flight per integration: concurrent callers observing an expired
// token share one refresh call and its result, since most providers
// invalidate the previous refresh token on each rotation.
func (v *TokenVault) refresh(ctx context.Context, integration *domain.Integration) (string, error) {
	result, err, _ := v.sf.Do(integration.ID, func() (interface{}, error) {
		return v.doRefresh(ctx, integration)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (v *TokenVault) doRefresh(ctx context.Context, integration *domain.Integration) (string, error) {
	oauthCfg, ok := v.configs[integration.Provider]
	if !ok {
		return "", fmt.Errorf("unsupported provider: %s", integration.Provider)
	}

	refreshToken, err := v.cipher.Decrypt(integration.RefreshTokenCipher)
	if err != nil || refreshToken == "" {
		v.deactivate(integration)
		return "", domain.ErrReauthRequired
	}

	src := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	newToken, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			// The token endpoint rejected the refresh token: revoked or
			// expired. Terminal until the user reconnects.
			v.logger.Warn("refresh token rejected by provider",
				zap.String("integration_id", integration.ID),
				zap.Int("status", retrieveErr.Response.StatusCode))
			v.deactivate(integration)
			return "", domain.ErrReauthRequired
		}
		return "", fmt.Errorf("%w: token refresh: %v", domain.ErrProviderUnavailable, err)
	}

	accessCipher, err := v.cipher.Encrypt(newToken.AccessToken)
	if err != nil {
		return "", err
	}

	// Providers that rotate refresh tokens return a new one; keep the old
	// one only if none came back.
	rotated := newToken.RefreshToken
	if rotated == "" {
		rotated = refreshToken
	}
	refreshCipher, err := v.cipher.Encrypt(rotated)
	if err != nil {
		return "", err
	}

	if err := v.repo.ReplaceTokens(integration.ID, accessCipher, refreshCipher, newToken.Expiry); err != nil {
		return "", err
	}

	integration.AccessTokenCipher = accessCipher
	integration.RefreshTokenCipher = refreshCipher
	integration.TokenExpiresAt = newToken.Expiry

	v.logger.Info("tokens refreshed", zap.String("integration_id", integration.ID))
	v.activity.Record(integration.UserID, "token_refresh", activitydomain.StatusSuccess,
		"access token refreshed", "", map[string]interface{}{
			"integration_id": integration.ID,
			"provider":       string(integration.Provider),
		})
	return newToken.AccessToken, nil
}

func (v *TokenVault) deactivate(integration *domain.Integration) {
	integration.IsActive = false
	if err := v.repo.Deactivate(integration.ID); err != nil {
		v.logger.Error("failed to deactivate integration",
			zap.String("integration_id", integration.ID), zap.Error(err))
	}
}
