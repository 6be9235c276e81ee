package domain

import "time"

// RateLimitWindow is one fixed-size counting window for a (operation, user)
// pair. window_start is truncated to the window size so concurrent writers
// land on the same row and race on the guarded counter update instead of
// creating duplicates.
type RateLimitWindow struct {
	ID            string    `gorm:"primaryKey" json:"id"`
	Operation     string    `gorm:"uniqueIndex:idx_op_user_window" json:"operation"`
	UserID        string    `gorm:"uniqueIndex:idx_op_user_window" json:"user_id"`
	WindowStart   time.Time `gorm:"uniqueIndex:idx_op_user_window" json:"window_start"`
	RequestsCount int       `json:"requests_count"`
	MaxRequests   int       `json:"max_requests"`
	CreatedAt     time.Time `json:"created_at"`
}

// BlockedRequest records a request refused by the rate limiter, for audit.
type BlockedRequest struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Operation string    `gorm:"index" json:"operation"`
	UserID    string    `gorm:"index" json:"user_id"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// CostRecord is one AI call's token usage priced in USD.
type CostRecord struct {
	ID               string    `gorm:"primaryKey" json:"id"`
	UserID           string    `gorm:"index" json:"user_id"`
	Model            string    `json:"model"`
	Operation        string    `json:"operation"`
	CorrelationID    string    `gorm:"index" json:"correlation_id"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	CreatedAt        time.Time `gorm:"index" json:"created_at"`
}
