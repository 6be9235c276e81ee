package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"dealflow-backend/internal/email/domain"

	"gorm.io/gorm"
)

type EmailRepository interface {
	Insert(record *domain.EmailRecord) (bool, error)
	FindByID(id string) (*domain.EmailRecord, error)
	ListByUser(userID string, limit, offset int) ([]domain.EmailRecord, error)
	MarkContentRetrieved(id string) error
	MarkAnalyzed(id string, opportunityDetected bool) error
	MarkCompleted(id, outcome string) error
	MarkFailed(id, step, message string) error
	ResetForReprocess(id string) (bool, error)
}

type emailRepository struct {
	db *gorm.DB
}

func NewEmailRepository(db *gorm.DB) EmailRepository {
	return &emailRepository{db: db}
}

// Insert creates the record and reports whether this call created it. A
// duplicate external_email_id means another delivery of the same notification
// already claimed the email, so the caller must stop.
func (r *emailRepository) Insert(record *domain.EmailRecord) (bool, error) {
	if err := r.db.Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateError(err) {
			return false, nil
		}
		return false, fmt.Errorf("unable to insert email record: %v", err)
	}
	return true, nil
}

func (r *emailRepository) FindByID(id string) (*domain.EmailRecord, error) {
	var record domain.EmailRecord
	if err := r.db.Where("id = ?", id).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to find email record: %v", err)
	}
	return &record, nil
}

func (r *emailRepository) ListByUser(userID string, limit, offset int) ([]domain.EmailRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	var records []domain.EmailRecord
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("unable to list email records: %v", err)
	}
	return records, nil
}

func (r *emailRepository) MarkContentRetrieved(id string) error {
	return r.transition(id, []domain.ProcessingStatus{domain.StatusPending}, map[string]interface{}{
		"status": domain.StatusContentRetrieved,
	})
}

func (r *emailRepository) MarkAnalyzed(id string, opportunityDetected bool) error {
	return r.transition(id, []domain.ProcessingStatus{domain.StatusContentRetrieved}, map[string]interface{}{
		"status":               domain.StatusAnalyzed,
		"opportunity_detected": opportunityDetected,
	})
}

func (r *emailRepository) MarkCompleted(id, outcome string) error {
	return r.transition(id, []domain.ProcessingStatus{
		domain.StatusPending,
		domain.StatusContentRetrieved,
		domain.StatusAnalyzed,
	}, map[string]interface{}{
		"status":  domain.StatusCompleted,
		"outcome": outcome,
	})
}

func (r *emailRepository) MarkFailed(id, step, message string) error {
	return r.transition(id, []domain.ProcessingStatus{
		domain.StatusPending,
		domain.StatusContentRetrieved,
		domain.StatusAnalyzed,
	}, map[string]interface{}{
		"status":        domain.StatusFailed,
		"failed_step":   step,
		"error_message": message,
	})
}

// ResetForReprocess moves a terminal record back to pending. Reports false
// when the record is absent or still in flight.
func (r *emailRepository) ResetForReprocess(id string) (bool, error) {
	result := r.db.Model(&domain.EmailRecord{}).
		Where("id = ? AND status IN ?", id, []domain.ProcessingStatus{domain.StatusCompleted, domain.StatusFailed}).
		Updates(map[string]interface{}{
			"status":               domain.StatusPending,
			"opportunity_detected": nil,
			"outcome":              "",
			"failed_step":          "",
			"error_message":        "",
			"updated_at":           time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("unable to reset email record: %v", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// transition applies a status change only from the allowed source states. The
// guard lives in the WHERE clause so a stale worker cannot move a record
// backwards.
func (r *emailRepository) transition(id string, from []domain.ProcessingStatus, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	result := r.db.Model(&domain.EmailRecord{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("unable to update email record: %v", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("email record %s not in expected status for transition", id)
	}
	return nil
}

// isDuplicateError catches drivers that slip past gorm's error translation.
func isDuplicateError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}
