package repository

import (
	"dealflow-backend/internal/activity/domain"

	"gorm.io/gorm"
)

// ActivityRepository appends and queries audit trail entries. There is
// deliberately no update or delete operation.
type ActivityRepository interface {
	Create(log *domain.ActivityLog) error
	ListByUser(userID string, limit, offset int) ([]domain.ActivityLog, error)
	ListByCorrelationID(userID, correlationID string) ([]domain.ActivityLog, error)
}

type activityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Create(log *domain.ActivityLog) error {
	return r.db.Create(log).Error
}

func (r *activityRepository) ListByUser(userID string, limit, offset int) ([]domain.ActivityLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var logs []domain.ActivityLog
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&logs).Error
	return logs, err
}

func (r *activityRepository) ListByCorrelationID(userID, correlationID string) ([]domain.ActivityLog, error) {
	var logs []domain.ActivityLog
	err := r.db.Where("user_id = ? AND correlation_id = ?", userID, correlationID).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}
