package domain

import "errors"

var (
	// ErrUnauthorized means the provider rejected the access token. The
	// token vault recovers from this once per call via refresh-and-retry.
	ErrUnauthorized = errors.New("provider rejected access token")

	// ErrReauthRequired is terminal for an Integration: the refresh token
	// is revoked or expired and the user must reconnect. No automatic
	// recovery is attempted.
	ErrReauthRequired = errors.New("integration requires user re-authentication")

	// ErrProviderUnavailable covers timeouts and 5xx responses. Idempotent
	// reads may be retried a bounded number of times; writes never are.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrIntegrationNotFound means the user has no active integration for
	// the requested provider.
	ErrIntegrationNotFound = errors.New("no active integration for provider")
)
