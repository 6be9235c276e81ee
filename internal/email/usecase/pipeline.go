package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	activitydomain "dealflow-backend/internal/activity/domain"
	activityusecase "dealflow-backend/internal/activity/usecase"
	crmdomain "dealflow-backend/internal/crm/domain"
	crmusecase "dealflow-backend/internal/crm/usecase"
	"dealflow-backend/internal/email/domain"
	"dealflow-backend/internal/email/repository"
	integrationdomain "dealflow-backend/internal/integration/domain"
	integrationrepo "dealflow-backend/internal/integration/repository"
	integrationusecase "dealflow-backend/internal/integration/usecase"
	limits "dealflow-backend/internal/limits/usecase"
	opportunitydomain "dealflow-backend/internal/opportunity/domain"
	opportunityusecase "dealflow-backend/internal/opportunity/usecase"
	"dealflow-backend/pkg/ai"
	"dealflow-backend/pkg/graph"
	"dealflow-backend/pkg/retry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	contentRetryAttempts = 3
	contentRetryDelay    = time.Second
)

// Pipeline runs one notified email from notification to terminal outcome.
// Every run ends in exactly one outcome, recorded on the email record and
// mirrored into the activity log under one correlation id.
type Pipeline struct {
	emails       repository.EmailRepository
	integrations integrationrepo.IntegrationRepository
	vault        *integrationusecase.TokenVault
	mail         *graph.Client
	detector     *opportunityusecase.Detector
	reconciler   *crmusecase.Reconciler
	rateLimiter  *limits.RateLimiter
	activity     *activityusecase.ActivityLogger
	logger       *zap.Logger
}

func NewPipeline(
	emails repository.EmailRepository,
	integrations integrationrepo.IntegrationRepository,
	vault *integrationusecase.TokenVault,
	mail *graph.Client,
	detector *opportunityusecase.Detector,
	reconciler *crmusecase.Reconciler,
	rateLimiter *limits.RateLimiter,
	activity *activityusecase.ActivityLogger,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		emails:       emails,
		integrations: integrations,
		vault:        vault,
		mail:         mail,
		detector:     detector,
		reconciler:   reconciler,
		rateLimiter:  rateLimiter,
		activity:     activity,
		logger:       logger.Named("pipeline"),
	}
}

// ProcessNotification handles one webhook notification item. The insert is
// the dedup point: when the external email id is already claimed, this
// delivery is a duplicate and returns without side effects.
func (p *Pipeline) ProcessNotification(ctx context.Context, userID, externalEmailID string) {
	allowed, err := p.rateLimiter.Allow(limits.OpWebhookProcessing, userID)
	if err != nil {
		p.logger.Error("unable to check webhook rate limit", zap.Error(err))
		return
	}
	if !allowed {
		p.activity.Record(userID, "webhook_processing", activitydomain.StatusWarning,
			"notification dropped by rate limit", "", map[string]interface{}{
				"external_email_id": externalEmailID,
			})
		return
	}

	record := &domain.EmailRecord{
		ID:              uuid.New().String(),
		UserID:          userID,
		ExternalEmailID: externalEmailID,
		Status:          domain.StatusPending,
		CorrelationID:   uuid.New().String(),
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	created, err := p.emails.Insert(record)
	if err != nil {
		p.logger.Error("unable to insert email record", zap.Error(err))
		return
	}
	if !created {
		p.logger.Debug("duplicate notification ignored",
			zap.String("external_email_id", externalEmailID))
		return
	}

	p.run(ctx, record)
}

// Reprocess resets a terminal record and runs it again under a fresh
// correlation id. Returns false when the record is missing, owned by another
// user, or still in flight.
func (p *Pipeline) Reprocess(ctx context.Context, userID, recordID string) (bool, error) {
	record, err := p.emails.FindByID(recordID)
	if err != nil {
		return false, err
	}
	if record == nil || record.UserID != userID {
		return false, nil
	}

	reset, err := p.emails.ResetForReprocess(recordID)
	if err != nil {
		return false, err
	}
	if !reset {
		return false, nil
	}

	record.Status = domain.StatusPending
	record.CorrelationID = uuid.New().String()
	p.activity.Record(userID, "reprocess", activitydomain.StatusPending,
		"email queued for reprocessing", record.CorrelationID, map[string]interface{}{
			"email_record_id": recordID,
		})

	go p.run(context.WithoutCancel(ctx), record)
	return true, nil
}

func (p *Pipeline) ListEmails(userID string, limit, offset int) ([]domain.EmailRecord, error) {
	return p.emails.ListByUser(userID, limit, offset)
}

func (p *Pipeline) run(ctx context.Context, record *domain.EmailRecord) {
	correlationID := record.CorrelationID

	email, err := p.fetchContent(ctx, record)
	if err != nil {
		p.fail(record, domain.StepContentRetrieval, correlationID, err)
		return
	}
	p.activity.Record(record.UserID, "content_retrieval", activitydomain.StatusSuccess,
		"email content retrieved", correlationID, map[string]interface{}{
			"subject": email.Subject,
		})

	result, emailHash, err := p.detector.Analyze(ctx, record.UserID, correlationID, *email)
	if err != nil {
		p.finishSkipped(record, correlationID, err)
		return
	}

	if err := p.emails.MarkAnalyzed(record.ID, result.IsSalesOpportunity); err != nil {
		p.logger.Error("unable to mark record analyzed", zap.Error(err))
	}

	if !result.IsSalesOpportunity {
		p.complete(record, crmdomain.OutcomeNoOpportunity, correlationID,
			fmt.Sprintf("no opportunity detected (confidence %.2f)", result.Confidence))
		return
	}

	opLog, err := p.detector.RecordOpportunity(record.UserID, emailHash, record.ID, record.ToAddress, result)
	if err != nil {
		p.fail(record, domain.StepAnalysis, correlationID, err)
		return
	}
	p.activity.Record(record.UserID, "opportunity_detected", activitydomain.StatusSuccess,
		fmt.Sprintf("sales opportunity detected (confidence %.2f)", result.Confidence), correlationID,
		map[string]interface{}{
			"person_name":       result.PersonName,
			"organization_name": result.OrganizationName,
		})

	outcome, err := p.reconcile(ctx, record, email, result, opLog)
	if err != nil {
		p.fail(record, domain.StepReconciliation, correlationID, err)
		return
	}
	p.complete(record, outcome, correlationID, "pipeline finished")
}

func (p *Pipeline) fetchContent(ctx context.Context, record *domain.EmailRecord) (*ai.EmailContext, error) {
	integration, err := p.integrations.FindActive(record.UserID, integrationdomain.ProviderMicrosoft)
	if err != nil {
		return nil, err
	}

	var msg *graph.Message
	err = retry.Do(ctx, contentRetryAttempts, contentRetryDelay, func() error {
		return p.vault.WrapCall(ctx, integration, func(token string) error {
			var fetchErr error
			msg, fetchErr = p.mail.GetMessage(ctx, token, record.ExternalEmailID)
			return fetchErr
		})
	})
	if err != nil {
		return nil, err
	}

	record.Subject = msg.Subject
	record.FromAddress = msg.From.EmailAddress.Address
	if len(msg.ToRecipients) > 0 {
		record.ToAddress = msg.ToRecipients[0].EmailAddress.Address
	}
	record.ReceivedAt = msg.ReceivedDateTime
	if err := p.emails.MarkContentRetrieved(record.ID); err != nil {
		return nil, err
	}

	body := msg.Body.Content
	if msg.Body.ContentType == "html" {
		// Prefer the raw MIME text part over stripped HTML when available.
		if raw, mimeErr := p.fetchMIME(ctx, integration, record.ExternalEmailID); mimeErr == nil {
			if text, parseErr := graph.ExtractPlainText(raw); parseErr == nil {
				body = text
			}
		}
	}

	return &ai.EmailContext{
		From:    record.FromAddress,
		To:      record.ToAddress,
		Subject: record.Subject,
		Body:    body,
	}, nil
}

func (p *Pipeline) fetchMIME(ctx context.Context, integration *integrationdomain.Integration, externalEmailID string) ([]byte, error) {
	var raw []byte
	err := p.vault.WrapCall(ctx, integration, func(token string) error {
		var fetchErr error
		raw, fetchErr = p.mail.GetMessageMIME(ctx, token, externalEmailID)
		return fetchErr
	})
	return raw, err
}

func (p *Pipeline) reconcile(ctx context.Context, record *domain.EmailRecord, email *ai.EmailContext, result *opportunitydomain.AnalysisResult, opLog *opportunitydomain.OpportunityLog) (crmdomain.Outcome, error) {
	summarize := func() string {
		return p.detector.Summarize(ctx, record.UserID, record.CorrelationID, *email)
	}
	recResult, err := p.reconciler.Reconcile(ctx, record.UserID, record.ToAddress, result, summarize)
	if err != nil {
		return crmdomain.OutcomeError, err
	}
	if recResult.Outcome == crmdomain.OutcomeDealCreated {
		if err := p.detector.MarkDealCreated(opLog.ID, recResult.DealID); err != nil {
			p.logger.Error("unable to mark deal on opportunity log", zap.Error(err))
		}
	}
	return recResult.Outcome, nil
}

// finishSkipped maps detection gate refusals to their terminal outcomes.
// Anything else is an analysis failure.
func (p *Pipeline) finishSkipped(record *domain.EmailRecord, correlationID string, err error) {
	switch {
	case errors.Is(err, opportunityusecase.ErrAlreadyProcessed):
		p.complete(record, crmdomain.OutcomeSkippedDuplicate, correlationID, "email content already analyzed")
	case errors.Is(err, opportunityusecase.ErrRateLimited):
		p.complete(record, crmdomain.OutcomeSkippedRateLimited, correlationID, "analysis skipped, rate limit reached")
	case errors.Is(err, opportunityusecase.ErrBudgetExhausted):
		p.complete(record, crmdomain.OutcomeSkippedBudget, correlationID, "analysis skipped, daily budget exhausted")
	default:
		p.fail(record, domain.StepAnalysis, correlationID, err)
	}
}

func (p *Pipeline) complete(record *domain.EmailRecord, outcome crmdomain.Outcome, correlationID, message string) {
	if err := p.emails.MarkCompleted(record.ID, string(outcome)); err != nil {
		p.logger.Error("unable to mark record completed", zap.Error(err))
	}
	status := activitydomain.StatusSuccess
	if outcome == crmdomain.OutcomeSkippedBudget || outcome == crmdomain.OutcomeSkippedRateLimited {
		status = activitydomain.StatusWarning
	}
	p.activity.Record(record.UserID, "pipeline_completed", status, message, correlationID,
		map[string]interface{}{
			"email_record_id": record.ID,
			"outcome":         string(outcome),
		})
	p.logger.Info("pipeline finished",
		zap.String("email_record_id", record.ID),
		zap.String("outcome", string(outcome)))
}

func (p *Pipeline) fail(record *domain.EmailRecord, step, correlationID string, err error) {
	if markErr := p.emails.MarkFailed(record.ID, step, err.Error()); markErr != nil {
		p.logger.Error("unable to mark record failed", zap.Error(markErr))
	}
	p.activity.Record(record.UserID, "pipeline_failed", activitydomain.StatusError,
		fmt.Sprintf("pipeline failed at %s: %v", step, err), correlationID,
		map[string]interface{}{
			"email_record_id": record.ID,
			"failed_step":     step,
		})
	p.logger.Error("pipeline failed",
		zap.String("email_record_id", record.ID),
		zap.String("step", step),
		zap.Error(err))
}
