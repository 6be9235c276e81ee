package repository

import (
	"time"

	"dealflow-backend/internal/integration/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type integrationRepository struct {
	db *gorm.DB
}

func NewIntegrationRepository(db *gorm.DB) IntegrationRepository {
	return &integrationRepository{db: db}
}

func (r *integrationRepository) FindActive(userID string, provider domain.Provider) (*domain.Integration, error) {
	var integration domain.Integration
	err := r.db.Where("user_id = ? AND provider = ? AND is_active = ?", userID, provider, true).First(&integration).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrIntegrationNotFound
		}
		return nil, err
	}
	return &integration, nil
}

func (r *integrationRepository) FindByID(id string) (*domain.Integration, error) {
	var integration domain.Integration
	if err := r.db.Where("id = ?", id).First(&integration).Error; err != nil {
		return nil, err
	}
	return &integration, nil
}

// Upsert replaces an existing (user, provider) connection or creates a new
// one. Reconnecting after a revocation reactivates the row.
func (r *integrationRepository) Upsert(integration *domain.Integration) error {
	var existing domain.Integration
	err := r.db.Where("user_id = ? AND provider = ?", integration.UserID, integration.Provider).First(&existing).Error

	now := time.Now()
	if err == gorm.ErrRecordNotFound {
		integration.ID = uuid.New().String()
		integration.IsActive = true
		integration.CreatedAt = now
		integration.UpdatedAt = now
		return r.db.Create(integration).Error
	} else if err != nil {
		return err
	}

	integration.ID = existing.ID
	integration.IsActive = true
	integration.CreatedAt = existing.CreatedAt
	integration.UpdatedAt = now
	return r.db.Save(integration).Error
}

// ReplaceTokens overwrites both token ciphers and the expiry in one update;
// nothing of the previous values survives.
func (r *integrationRepository) ReplaceTokens(id, accessCipher, refreshCipher string, expiresAt time.Time) error {
	return r.db.Model(&domain.Integration{}).Where("id = ?", id).Updates(map[string]interface{}{
		"access_token_cipher":  accessCipher,
		"refresh_token_cipher": refreshCipher,
		"token_expires_at":     expiresAt,
		"updated_at":           time.Now(),
	}).Error
}

func (r *integrationRepository) Deactivate(id string) error {
	return r.db.Model(&domain.Integration{}).Where("id = ?", id).Updates(map[string]interface{}{
		"is_active":  false,
		"updated_at": time.Now(),
	}).Error
}
