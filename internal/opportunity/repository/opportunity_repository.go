package repository

import (
	"errors"
	"fmt"

	"dealflow-backend/internal/opportunity/domain"

	"gorm.io/gorm"
)

type OpportunityRepository interface {
	ExistsByHash(userID, emailHash string) (bool, error)
	Create(log *domain.OpportunityLog) error
	MarkDealCreated(id string, crmDealID int) error
	ListByUser(userID string, limit, offset int) ([]domain.OpportunityLog, error)
}

type opportunityRepository struct {
	db *gorm.DB
}

func NewOpportunityRepository(db *gorm.DB) OpportunityRepository {
	return &opportunityRepository{db: db}
}

func (r *opportunityRepository) ExistsByHash(userID, emailHash string) (bool, error) {
	var count int64
	err := r.db.Model(&domain.OpportunityLog{}).
		Where("user_id = ? AND email_hash = ?", userID, emailHash).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("unable to check opportunity log: %v", err)
	}
	return count > 0, nil
}

// Create inserts a detection row. Losing the unique index race to a
// concurrent writer is not an error, the row exists either way.
func (r *opportunityRepository) Create(log *domain.OpportunityLog) error {
	if err := r.db.Create(log).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return fmt.Errorf("unable to create opportunity log: %v", err)
	}
	return nil
}

func (r *opportunityRepository) MarkDealCreated(id string, crmDealID int) error {
	err := r.db.Model(&domain.OpportunityLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"deal_created": true,
			"crm_deal_id":  crmDealID,
		}).Error
	if err != nil {
		return fmt.Errorf("unable to mark deal created: %v", err)
	}
	return nil
}

func (r *opportunityRepository) ListByUser(userID string, limit, offset int) ([]domain.OpportunityLog, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	var logs []domain.OpportunityLog
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("unable to list opportunity logs: %v", err)
	}
	return logs, nil
}
