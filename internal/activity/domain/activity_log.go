package domain

import "time"

// ActivityStatus classifies an audit trail entry.
type ActivityStatus string

const (
	StatusSuccess ActivityStatus = "success"
	StatusError   ActivityStatus = "error"
	StatusWarning ActivityStatus = "warning"
	StatusPending ActivityStatus = "pending"
)

// ActivityLog is the append-only audit trail. Rows are never mutated;
// Metadata is a JSON object with enough structure (correlation id,
// operation, outcome, error reason) for deterministic post-hoc auditing.
type ActivityLog struct {
	ID            string         `json:"id" gorm:"primaryKey"`
	UserID        string         `json:"user_id" gorm:"index;not null"`
	ActivityType  string         `json:"activity_type" gorm:"index;not null"`
	Status        ActivityStatus `json:"status" gorm:"not null"`
	Message       string         `json:"message"`
	CorrelationID string         `json:"correlation_id" gorm:"index"`
	Metadata      string         `json:"metadata"`
	CreatedAt     time.Time      `json:"created_at"`
}
