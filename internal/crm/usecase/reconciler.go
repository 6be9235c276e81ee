package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	crmdomain "dealflow-backend/internal/crm/domain"
	integrationdomain "dealflow-backend/internal/integration/domain"
	integrationrepo "dealflow-backend/internal/integration/repository"
	integrationusecase "dealflow-backend/internal/integration/usecase"
	limits "dealflow-backend/internal/limits/usecase"
	opportunitydomain "dealflow-backend/internal/opportunity/domain"
	"dealflow-backend/pkg/pipedrive"
	"dealflow-backend/pkg/retry"

	"go.uber.org/zap"
)

// ErrCRMRateLimited is returned when the per-user Pipedrive call budget for
// the current window is spent.
var ErrCRMRateLimited = errors.New("pipedrive call rate limited")

const (
	readRetryAttempts = 3
	readRetryDelay    = 500 * time.Millisecond
	defaultCurrency   = "DKK"
)

// ReconcileResult reports what reconciliation did in the CRM.
type ReconcileResult struct {
	Outcome        crmdomain.Outcome
	PersonID       int
	OrganizationID int
	DealID         int
	ContactCreated bool
}

// Reconciler lands a detected opportunity in Pipedrive. Reads are retried on
// transient failures, writes never are: a timed-out create may have landed,
// and retrying it would duplicate CRM records.
type Reconciler struct {
	integrations integrationrepo.IntegrationRepository
	vault        *integrationusecase.TokenVault
	crm          *pipedrive.Client
	rateLimiter  *limits.RateLimiter
	logger       *zap.Logger
}

func NewReconciler(integrations integrationrepo.IntegrationRepository, vault *integrationusecase.TokenVault, crm *pipedrive.Client, rateLimiter *limits.RateLimiter, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		integrations: integrations,
		vault:        vault,
		crm:          crm,
		rateLimiter:  rateLimiter,
		logger:       logger.Named("reconciler"),
	}
}

// Reconcile maps one positive analysis to CRM state. summarize is called only
// when a deal is actually created, so no summary tokens are spent on the
// short-circuit paths. An existing open deal is terminal: nothing about it is
// ever modified.
func (r *Reconciler) Reconcile(ctx context.Context, userID, recipientEmail string, analysis *opportunitydomain.AnalysisResult, summarize func() string) (*ReconcileResult, error) {
	integration, err := r.integrations.FindActive(userID, integrationdomain.ProviderPipedrive)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{}

	personName := analysis.PersonName
	if personName == "" {
		personName = recipientEmail
	}
	orgName := analysis.OrganizationName
	if orgName == "" {
		orgName = crmdomain.OrganizationFromEmail(recipientEmail)
	}

	// Find or create the person.
	var person *pipedrive.Person
	if err := r.read(ctx, userID, integration, func(token string) error {
		var searchErr error
		person, searchErr = r.crm.SearchPersonByEmail(ctx, token, recipientEmail)
		return searchErr
	}); err != nil {
		return nil, fmt.Errorf("unable to search crm contact: %w", err)
	}

	if person == nil {
		orgID := 0
		if orgName != "" {
			orgID, err = r.findOrCreateOrganization(ctx, userID, integration, orgName)
			if err != nil {
				return nil, err
			}
			result.OrganizationID = orgID
		}

		if err := r.write(ctx, userID, integration, func(token string) error {
			var createErr error
			person, createErr = r.crm.CreatePerson(ctx, token, personName, recipientEmail, orgID)
			return createErr
		}); err != nil {
			return nil, fmt.Errorf("unable to create crm contact: %w", err)
		}
		result.ContactCreated = true
		r.logger.Info("crm contact created",
			zap.String("user_id", userID),
			zap.Int("person_id", person.ID))
	} else if person.OrgID > 0 {
		result.OrganizationID = person.OrgID
	}
	result.PersonID = person.ID

	// An open deal on the person ends the run. Existing deals are never
	// updated or annotated.
	var hasOpen bool
	if err := r.read(ctx, userID, integration, func(token string) error {
		var checkErr error
		hasOpen, checkErr = r.crm.HasOpenDeal(ctx, token, person.ID)
		return checkErr
	}); err != nil {
		return nil, fmt.Errorf("unable to check open deals: %w", err)
	}
	if hasOpen {
		result.Outcome = crmdomain.OutcomeDealAlreadyExisted
		return result, nil
	}

	title := "AI: " + personName
	if orgName != "" {
		title += " - " + orgName
	}
	currency := analysis.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	var deal *pipedrive.Deal
	if err := r.write(ctx, userID, integration, func(token string) error {
		var dealErr error
		deal, dealErr = r.crm.CreateDeal(ctx, token, title, person.ID, result.OrganizationID, analysis.EstimatedValue, currency)
		return dealErr
	}); err != nil {
		r.logger.Error("deal creation failed after contact resolution",
			zap.String("user_id", userID),
			zap.Int("person_id", person.ID),
			zap.Error(err))
		if result.ContactCreated {
			result.Outcome = crmdomain.OutcomeContactCreatedNoDeal
			return result, nil
		}
		return nil, fmt.Errorf("unable to create crm deal: %w", err)
	}
	result.DealID = deal.ID
	result.Outcome = crmdomain.OutcomeDealCreated

	// The note is best effort. The deal already exists, so a note failure
	// must not fail the run.
	if err := r.write(ctx, userID, integration, func(token string) error {
		_, noteErr := r.crm.CreateNote(ctx, token, summarize(), deal.ID)
		return noteErr
	}); err != nil {
		r.logger.Warn("unable to attach summary note to deal",
			zap.Int("deal_id", deal.ID),
			zap.Error(err))
	}

	r.logger.Info("crm deal created",
		zap.String("user_id", userID),
		zap.Int("deal_id", deal.ID),
		zap.String("title", title))
	return result, nil
}

func (r *Reconciler) findOrCreateOrganization(ctx context.Context, userID string, integration *integrationdomain.Integration, name string) (int, error) {
	var org *pipedrive.Organization
	if err := r.read(ctx, userID, integration, func(token string) error {
		var searchErr error
		org, searchErr = r.crm.SearchOrganizationByName(ctx, token, name)
		return searchErr
	}); err != nil {
		return 0, fmt.Errorf("unable to search crm organization: %w", err)
	}
	if org != nil {
		return org.ID, nil
	}

	if err := r.write(ctx, userID, integration, func(token string) error {
		var createErr error
		org, createErr = r.crm.CreateOrganization(ctx, token, name)
		return createErr
	}); err != nil {
		return 0, fmt.Errorf("unable to create crm organization: %w", err)
	}
	return org.ID, nil
}

// read wraps a Pipedrive read: rate gate, token vault, bounded retries.
func (r *Reconciler) read(ctx context.Context, userID string, integration *integrationdomain.Integration, fn func(token string) error) error {
	return retry.Do(ctx, readRetryAttempts, readRetryDelay, func() error {
		if err := r.allow(userID); err != nil {
			return err
		}
		return r.vault.WrapCall(ctx, integration, fn)
	})
}

// write wraps a Pipedrive write: rate gate and token vault, single attempt.
func (r *Reconciler) write(ctx context.Context, userID string, integration *integrationdomain.Integration, fn func(token string) error) error {
	if err := r.allow(userID); err != nil {
		return err
	}
	return r.vault.WrapCall(ctx, integration, fn)
}

func (r *Reconciler) allow(userID string) error {
	allowed, err := r.rateLimiter.Allow(limits.OpPipedriveAPI, userID)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrCRMRateLimited
	}
	return nil
}
