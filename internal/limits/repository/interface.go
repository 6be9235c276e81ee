package repository

import (
	"time"

	"dealflow-backend/internal/limits/domain"
)

type LimitsRepository interface {
	FindOrCreateWindow(operation, userID string, windowStart time.Time, maxRequests int) (*domain.RateLimitWindow, error)
	IncrementIfBelowMax(windowID string) (bool, error)
	RecordBlocked(blocked *domain.BlockedRequest) error
	CreateCostRecord(record *domain.CostRecord) error
	SumCostSince(userID string, since time.Time) (float64, error)
}
