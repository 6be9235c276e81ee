package repository

import (
	"time"

	"dealflow-backend/internal/integration/domain"
)

// IntegrationRepository persists OAuth integrations. Token columns are
// mutated only through ReplaceTokens so old values are fully replaced in a
// single write.
type IntegrationRepository interface {
	FindActive(userID string, provider domain.Provider) (*domain.Integration, error)
	FindByID(id string) (*domain.Integration, error)
	Upsert(integration *domain.Integration) error
	ReplaceTokens(id, accessCipher, refreshCipher string, expiresAt time.Time) error
	Deactivate(id string) error
}
