package domain

import "time"

// ProcessingStatus is the pipeline stage an email record sits in. Transitions
// only move forward. Reprocessing resets a terminal record back to pending
// through an explicit operation, never through a normal transition.
type ProcessingStatus string

const (
	StatusPending          ProcessingStatus = "pending"
	StatusContentRetrieved ProcessingStatus = "content_retrieved"
	StatusAnalyzed         ProcessingStatus = "analyzed"
	StatusCompleted        ProcessingStatus = "completed"
	StatusFailed           ProcessingStatus = "failed"
)

// Pipeline step names recorded on failure.
const (
	StepContentRetrieval = "content_retrieval"
	StepAnalysis         = "analysis"
	StepReconciliation   = "reconciliation"
)

// EmailRecord tracks one notified email through the pipeline. The unique
// index on external_email_id makes the insert the dedup point for redelivered
// notifications.
type EmailRecord struct {
	ID                  string           `gorm:"primaryKey" json:"id"`
	UserID              string           `gorm:"index" json:"user_id"`
	ExternalEmailID     string           `gorm:"uniqueIndex" json:"external_email_id"`
	Subject             string           `json:"subject"`
	FromAddress         string           `json:"from_address"`
	ToAddress           string           `json:"to_address"`
	ReceivedAt          time.Time        `json:"received_at"`
	Status              ProcessingStatus `gorm:"index" json:"status"`
	OpportunityDetected *bool            `json:"opportunity_detected"`
	Outcome             string           `json:"outcome"`
	FailedStep          string           `json:"failed_step,omitempty"`
	ErrorMessage        string           `json:"error_message,omitempty"`
	CorrelationID       string           `gorm:"index" json:"correlation_id"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}
