package repository

import (
	"fmt"
	"time"

	"dealflow-backend/internal/limits/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type limitsRepository struct {
	db *gorm.DB
}

func NewLimitsRepository(db *gorm.DB) LimitsRepository {
	return &limitsRepository{db: db}
}

func (r *limitsRepository) FindOrCreateWindow(operation, userID string, windowStart time.Time, maxRequests int) (*domain.RateLimitWindow, error) {
	window := domain.RateLimitWindow{
		ID:          uuid.New().String(),
		Operation:   operation,
		UserID:      userID,
		WindowStart: windowStart,
		MaxRequests: maxRequests,
		CreatedAt:   time.Now(),
	}
	result := r.db.Where(domain.RateLimitWindow{
		Operation:   operation,
		UserID:      userID,
		WindowStart: windowStart,
	}).FirstOrCreate(&window)
	if result.Error != nil {
		return nil, fmt.Errorf("unable to find or create rate limit window: %v", result.Error)
	}
	return &window, nil
}

// IncrementIfBelowMax bumps the window counter only while it is under the
// ceiling. The guard lives in the WHERE clause so two concurrent callers
// cannot both take the last slot.
func (r *limitsRepository) IncrementIfBelowMax(windowID string) (bool, error) {
	result := r.db.Model(&domain.RateLimitWindow{}).
		Where("id = ? AND requests_count < max_requests", windowID).
		Update("requests_count", gorm.Expr("requests_count + 1"))
	if result.Error != nil {
		return false, fmt.Errorf("unable to increment rate limit window: %v", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *limitsRepository) RecordBlocked(blocked *domain.BlockedRequest) error {
	if err := r.db.Create(blocked).Error; err != nil {
		return fmt.Errorf("unable to record blocked request: %v", err)
	}
	return nil
}

func (r *limitsRepository) CreateCostRecord(record *domain.CostRecord) error {
	if err := r.db.Create(record).Error; err != nil {
		return fmt.Errorf("unable to create cost record: %v", err)
	}
	return nil
}

func (r *limitsRepository) SumCostSince(userID string, since time.Time) (float64, error) {
	var total float64
	err := r.db.Model(&domain.CostRecord{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Select("COALESCE(SUM(cost_usd), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("unable to sum cost records: %v", err)
	}
	return total, nil
}
