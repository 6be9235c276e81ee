package domain

import (
	"errors"
	"time"
)

// ErrMalformedAIResponse marks an AI reply that could not be parsed into the
// required analysis shape. Not retried, the same prompt tends to produce the
// same garbage.
var ErrMalformedAIResponse = errors.New("malformed ai response")

// OpportunityLog records one positive detection. The (user_id, email_hash)
// unique index is the dedup anchor: a second analysis of the same content can
// never produce a second row.
type OpportunityLog struct {
	ID               string    `gorm:"primaryKey" json:"id"`
	UserID           string    `gorm:"uniqueIndex:idx_user_email_hash" json:"user_id"`
	EmailHash        string    `gorm:"uniqueIndex:idx_user_email_hash" json:"email_hash"`
	EmailRecordID    string    `gorm:"index" json:"email_record_id"`
	RecipientEmail   string    `json:"recipient_email"`
	Confidence       float64   `json:"confidence"`
	OpportunityType  string    `json:"opportunity_type"`
	PersonName       string    `json:"person_name"`
	OrganizationName string    `json:"organization_name"`
	EstimatedValue   int       `json:"estimated_value"`
	Currency         string    `json:"currency"`
	Reasoning        string    `json:"reasoning"`
	DealCreated      bool      `json:"deal_created"`
	CRMDealID        int       `json:"crm_deal_id"`
	CreatedAt        time.Time `json:"created_at"`
}

// AnalysisResult is the parsed AI verdict for one email.
type AnalysisResult struct {
	IsSalesOpportunity bool     `json:"is_sales_opportunity"`
	Confidence         float64  `json:"confidence"`
	OpportunityType    string   `json:"opportunity_type"`
	EstimatedValue     int      `json:"estimated_value"`
	Currency           string   `json:"currency"`
	Urgency            string   `json:"urgency"`
	NextAction         string   `json:"next_action"`
	PersonName         string   `json:"person_name"`
	OrganizationName   string   `json:"organization_name"`
	OfferingType       string   `json:"offering_type"`
	KeyPoints          []string `json:"key_points"`
}
