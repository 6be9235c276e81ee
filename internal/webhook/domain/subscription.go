package domain

import "time"

// WebhookSubscription mirrors a Microsoft Graph mail subscription. The
// client state secret is stored so inbound notifications can be checked
// against it.
type WebhookSubscription struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	UserID         string    `gorm:"index" json:"user_id"`
	SubscriptionID string    `gorm:"uniqueIndex" json:"subscription_id"`
	Resource       string    `json:"resource"`
	ClientState    string    `json:"-"`
	IsActive       bool      `gorm:"index" json:"is_active"`
	ExpiresAt      time.Time `gorm:"index" json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
