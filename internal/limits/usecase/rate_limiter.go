package usecase

import (
	"time"

	"dealflow-backend/internal/limits/domain"
	"dealflow-backend/internal/limits/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Operation names understood by the rate limiter.
const (
	OpAIAnalysis        = "ai_analysis"
	OpWebhookProcessing = "webhook_processing"
	OpPipedriveAPI      = "pipedrive_api"
)

type limitConfig struct {
	maxRequests int
	window      time.Duration
}

var operationLimits = map[string]limitConfig{
	OpAIAnalysis:        {maxRequests: 10, window: time.Minute},
	OpWebhookProcessing: {maxRequests: 30, window: time.Minute},
	OpPipedriveAPI:      {maxRequests: 20, window: time.Minute},
}

// RateLimiter enforces fixed-window per-user counters persisted in the
// database, so limits hold across restarts and across replicas.
type RateLimiter struct {
	repo   repository.LimitsRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewRateLimiter(repo repository.LimitsRepository, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{repo: repo, logger: logger.Named("ratelimit"), now: time.Now}
}

// Allow reports whether one more call of the named operation may proceed for
// the user. A refusal is recorded as a BlockedRequest. Unknown operations are
// allowed so a missing config entry degrades open rather than stalling the
// pipeline.
func (rl *RateLimiter) Allow(operation, userID string) (bool, error) {
	cfg, ok := operationLimits[operation]
	if !ok {
		rl.logger.Warn("no limit configured for operation, allowing", zap.String("operation", operation))
		return true, nil
	}

	windowStart := rl.now().UTC().Truncate(cfg.window)
	window, err := rl.repo.FindOrCreateWindow(operation, userID, windowStart, cfg.maxRequests)
	if err != nil {
		return false, err
	}

	allowed, err := rl.repo.IncrementIfBelowMax(window.ID)
	if err != nil {
		return false, err
	}
	if !allowed {
		rl.logger.Info("rate limit exceeded",
			zap.String("operation", operation),
			zap.String("user_id", userID),
			zap.Int("max_requests", cfg.maxRequests))
		if err := rl.repo.RecordBlocked(&domain.BlockedRequest{
			ID:        uuid.New().String(),
			Operation: operation,
			UserID:    userID,
			Reason:    "window limit reached",
			CreatedAt: rl.now(),
		}); err != nil {
			rl.logger.Error("unable to record blocked request", zap.Error(err))
		}
	}
	return allowed, nil
}
