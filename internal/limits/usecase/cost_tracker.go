package usecase

import (
	"time"

	"dealflow-backend/internal/limits/domain"
	"dealflow-backend/internal/limits/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type modelPricing struct {
	promptPer1K     float64
	completionPer1K float64
}

// USD per 1k tokens. Models missing from the table are priced at the
// gpt-4o-mini rate so an unrecognized model still accrues cost instead of
// running free.
var pricingTable = map[string]modelPricing{
	"openai/gpt-4o-mini":          {promptPer1K: 0.00015, completionPer1K: 0.0006},
	"openai/gpt-4o":               {promptPer1K: 0.0025, completionPer1K: 0.01},
	"anthropic/claude-3.5-sonnet": {promptPer1K: 0.003, completionPer1K: 0.015},
}

var defaultPricing = pricingTable["openai/gpt-4o-mini"]

// CostTracker prices every AI call and enforces a per-user daily USD ceiling.
type CostTracker struct {
	repo       repository.LimitsRepository
	dailyLimit float64
	logger     *zap.Logger
	now        func() time.Time
}

func NewCostTracker(repo repository.LimitsRepository, dailyLimitUSD float64, logger *zap.Logger) *CostTracker {
	return &CostTracker{repo: repo, dailyLimit: dailyLimitUSD, logger: logger.Named("cost"), now: time.Now}
}

// EstimateCost prices a call from its token counts.
func EstimateCost(model string, promptTokens, completionTokens int) float64 {
	pricing, ok := pricingTable[model]
	if !ok {
		pricing = defaultPricing
	}
	return float64(promptTokens)/1000*pricing.promptPer1K +
		float64(completionTokens)/1000*pricing.completionPer1K
}

// RecordCall persists a priced usage record under the pipeline run's
// correlation id and returns the cost.
func (ct *CostTracker) RecordCall(userID, model, operation, correlationID string, promptTokens, completionTokens int) (float64, error) {
	cost := EstimateCost(model, promptTokens, completionTokens)
	record := &domain.CostRecord{
		ID:               uuid.New().String(),
		UserID:           userID,
		Model:            model,
		Operation:        operation,
		CorrelationID:    correlationID,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		CostUSD:          cost,
		CreatedAt:        ct.now(),
	}
	if err := ct.repo.CreateCostRecord(record); err != nil {
		return cost, err
	}
	ct.logger.Debug("recorded ai cost",
		zap.String("user_id", userID),
		zap.String("model", model),
		zap.Float64("cost_usd", cost))
	return cost, nil
}

// WithinDailyLimit reports whether the user's spend for the current UTC day
// is still below the ceiling. A read failure counts as over the limit: when
// spend cannot be verified, spending stops.
func (ct *CostTracker) WithinDailyLimit(userID string) (bool, float64, error) {
	dayStart := ct.now().UTC().Truncate(24 * time.Hour)
	spent, err := ct.repo.SumCostSince(userID, dayStart)
	if err != nil {
		return false, 0, err
	}
	return spent < ct.dailyLimit, spent, nil
}
