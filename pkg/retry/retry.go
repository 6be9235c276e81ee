// Package retry provides a small bounded-retry helper for provider calls.
package retry

import (
	"context"
	"errors"
	"time"

	"dealflow-backend/internal/integration/domain"
)

// Do runs fn up to attempts times, sleeping baseDelay*(n+1) between tries.
// Only transient provider failures are retried. Auth failures and malformed
// responses are permanent and return immediately.
func Do(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrProviderUnavailable) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseDelay * time.Duration(attempt+1)):
		}
	}
	return err
}
