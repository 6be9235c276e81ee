package domain

import "time"

// Provider identifies which external system an Integration connects to.
// Exactly one mail provider and one CRM provider exist per user.
type Provider string

const (
	ProviderMicrosoft Provider = "microsoft" // mailbox provider
	ProviderPipedrive Provider = "pipedrive" // CRM provider
)

// Integration holds one user's OAuth connection to a provider. Token
// columns store ciphertext only; the token vault is the single component
// allowed to mutate them. Integrations are deactivated, never deleted.
type Integration struct {
	ID                 string    `json:"id" gorm:"primaryKey"`
	UserID             string    `json:"user_id" gorm:"uniqueIndex:idx_user_provider;not null"`
	Provider           Provider  `json:"provider" gorm:"uniqueIndex:idx_user_provider;not null"`
	AccessTokenCipher  string    `json:"-" gorm:"not null"`
	RefreshTokenCipher string    `json:"-"`
	TokenExpiresAt     time.Time `json:"token_expires_at"`
	Scopes             string    `json:"scopes"`
	ProviderUserID     string    `json:"provider_user_id"`
	IsActive           bool      `json:"is_active" gorm:"default:true"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
