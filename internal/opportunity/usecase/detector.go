package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	limits "dealflow-backend/internal/limits/usecase"
	"dealflow-backend/internal/opportunity/domain"
	"dealflow-backend/internal/opportunity/repository"
	"dealflow-backend/pkg/ai"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sentinel results of the detection gatekeeping steps. Callers map these to
// pipeline outcomes.
var (
	ErrRateLimited      = errors.New("ai analysis rate limited")
	ErrBudgetExhausted  = errors.New("daily ai budget exhausted")
	ErrAlreadyProcessed = errors.New("email content already analyzed")
)

const analysisMaxTokens = 800

// Fallback used when the summary call fails. A deal note must always be
// written, even a generic one.
const danishSummaryFallback = "Automatisk analyse registrerede en mulig salgsmulighed i denne e-mail. Se den oprindelige besked for detaljer."

// Detector runs the AI analysis stage: dedup by content hash, rate and budget
// gates, the completion call, and strict parsing of the verdict.
type Detector struct {
	repo        repository.OpportunityRepository
	client      *ai.Client
	rateLimiter *limits.RateLimiter
	costTracker *limits.CostTracker
	logger      *zap.Logger
}

func NewDetector(repo repository.OpportunityRepository, client *ai.Client, rateLimiter *limits.RateLimiter, costTracker *limits.CostTracker, logger *zap.Logger) *Detector {
	return &Detector{
		repo:        repo,
		client:      client,
		rateLimiter: rateLimiter,
		costTracker: costTracker,
		logger:      logger.Named("detector"),
	}
}

// HashContent derives the dedup key for an email. Subject and body are
// normalized so trivial whitespace differences do not defeat dedup.
func HashContent(from, subject, body string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(from))))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(subject)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(body)))
	return hex.EncodeToString(h.Sum(nil))
}

// Analyze runs the full detection stage for one email. Returns
// ErrAlreadyProcessed, ErrRateLimited or ErrBudgetExhausted when a gate
// refuses the call, ErrMalformedAIResponse when the model's reply cannot be
// parsed, and the parsed verdict otherwise.
func (d *Detector) Analyze(ctx context.Context, userID, correlationID string, email ai.EmailContext) (*domain.AnalysisResult, string, error) {
	emailHash := HashContent(email.From, email.Subject, email.Body)

	exists, err := d.repo.ExistsByHash(userID, emailHash)
	if err != nil {
		return nil, emailHash, err
	}
	if exists {
		return nil, emailHash, ErrAlreadyProcessed
	}

	allowed, err := d.rateLimiter.Allow(limits.OpAIAnalysis, userID)
	if err != nil {
		return nil, emailHash, err
	}
	if !allowed {
		return nil, emailHash, ErrRateLimited
	}

	// Budget check fails closed. When spend cannot be read, no call is made.
	withinLimit, spent, err := d.costTracker.WithinDailyLimit(userID)
	if err != nil {
		d.logger.Error("unable to verify daily budget, refusing analysis", zap.Error(err))
		return nil, emailHash, ErrBudgetExhausted
	}
	if !withinLimit {
		d.logger.Warn("daily ai budget exhausted",
			zap.String("user_id", userID),
			zap.Float64("spent_usd", spent))
		return nil, emailHash, ErrBudgetExhausted
	}

	prompt := ai.BuildAnalysisPrompt(email)
	raw, tokenUsage, err := d.client.Complete(ctx, prompt, analysisMaxTokens)
	if err != nil {
		return nil, emailHash, err
	}

	// Cost is recorded even when parsing fails below. Tokens were spent.
	if _, recordErr := d.costTracker.RecordCall(userID, d.client.Model(), limits.OpAIAnalysis, correlationID, tokenUsage.PromptTokens, tokenUsage.CompletionTokens); recordErr != nil {
		d.logger.Error("unable to record ai cost", zap.Error(recordErr))
	}

	result, err := parseAnalysis(raw)
	if err != nil {
		return nil, emailHash, err
	}

	d.logger.Info("email analyzed",
		zap.String("user_id", userID),
		zap.Bool("is_sales_opportunity", result.IsSalesOpportunity),
		zap.Float64("confidence", result.Confidence))
	return result, emailHash, nil
}

// Summarize produces the Danish deal note text. Failures fall back to a
// static summary so reconciliation never blocks on this call.
func (d *Detector) Summarize(ctx context.Context, userID, correlationID string, email ai.EmailContext) string {
	prompt := ai.BuildDanishSummaryPrompt(email)
	summary, tokenUsage, err := d.client.Complete(ctx, prompt, 300)
	if err != nil {
		d.logger.Warn("summary call failed, using fallback", zap.Error(err))
		return danishSummaryFallback
	}
	if _, recordErr := d.costTracker.RecordCall(userID, d.client.Model(), limits.OpAIAnalysis, correlationID, tokenUsage.PromptTokens, tokenUsage.CompletionTokens); recordErr != nil {
		d.logger.Error("unable to record ai cost", zap.Error(recordErr))
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return danishSummaryFallback
	}
	return summary
}

// RecordOpportunity persists a positive verdict under the content hash.
func (d *Detector) RecordOpportunity(userID, emailHash, emailRecordID, recipientEmail string, result *domain.AnalysisResult) (*domain.OpportunityLog, error) {
	log := &domain.OpportunityLog{
		ID:               uuid.New().String(),
		UserID:           userID,
		EmailHash:        emailHash,
		EmailRecordID:    emailRecordID,
		RecipientEmail:   recipientEmail,
		Confidence:       result.Confidence,
		OpportunityType:  result.OpportunityType,
		PersonName:       result.PersonName,
		OrganizationName: result.OrganizationName,
		EstimatedValue:   result.EstimatedValue,
		Currency:         result.Currency,
		Reasoning:        strings.Join(result.KeyPoints, "; "),
		CreatedAt:        time.Now(),
	}
	if err := d.repo.Create(log); err != nil {
		return nil, err
	}
	return log, nil
}

func (d *Detector) MarkDealCreated(logID string, crmDealID int) error {
	return d.repo.MarkDealCreated(logID, crmDealID)
}

// parseAnalysis decodes the model's JSON verdict. Models occasionally wrap
// JSON in a code fence, so fences are stripped first. The two fields the
// pipeline branches on must be present, everything else may default.
func parseAnalysis(raw string) (*domain.AnalysisResult, error) {
	cleaned := stripCodeFence(raw)

	var probe struct {
		IsSalesOpportunity *bool    `json:"is_sales_opportunity"`
		Confidence         *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleaned), &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedAIResponse, err)
	}
	if probe.IsSalesOpportunity == nil || probe.Confidence == nil {
		return nil, fmt.Errorf("%w: missing required fields", domain.ErrMalformedAIResponse)
	}
	if *probe.Confidence < 0 || *probe.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v out of range", domain.ErrMalformedAIResponse, *probe.Confidence)
	}

	var result domain.AnalysisResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedAIResponse, err)
	}
	if result.Currency == "" {
		result.Currency = "DKK"
	}
	return &result, nil
}

func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
