package usecase

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	activitydomain "dealflow-backend/internal/activity/domain"
	activityusecase "dealflow-backend/internal/activity/usecase"
	integrationdomain "dealflow-backend/internal/integration/domain"
	integrationrepo "dealflow-backend/internal/integration/repository"
	integrationusecase "dealflow-backend/internal/integration/usecase"
	"dealflow-backend/internal/webhook/domain"
	"dealflow-backend/internal/webhook/repository"
	"dealflow-backend/pkg/graph"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Graph caps mail subscriptions at just over 3 days.
const subscriptionLifetime = 72 * time.Hour

const mailResource = "me/mailFolders('inbox')/messages"

// SubscriptionUsecase manages the Graph change notification subscriptions
// that drive the pipeline.
type SubscriptionUsecase struct {
	repo             repository.SubscriptionRepository
	integrations     integrationrepo.IntegrationRepository
	vault            *integrationusecase.TokenVault
	mail             *graph.Client
	notificationURL  string
	clientSecret     string
	renewalThreshold time.Duration
	activity         *activityusecase.ActivityLogger
	logger           *zap.Logger
}

func NewSubscriptionUsecase(
	repo repository.SubscriptionRepository,
	integrations integrationrepo.IntegrationRepository,
	vault *integrationusecase.TokenVault,
	mail *graph.Client,
	publicBaseURL string,
	clientSecret string,
	renewalThreshold time.Duration,
	activity *activityusecase.ActivityLogger,
	logger *zap.Logger,
) *SubscriptionUsecase {
	return &SubscriptionUsecase{
		repo:             repo,
		integrations:     integrations,
		vault:            vault,
		mail:             mail,
		notificationURL:  strings.TrimRight(publicBaseURL, "/") + "/api/webhooks/mail",
		clientSecret:     clientSecret,
		renewalThreshold: renewalThreshold,
		activity:         activity,
		logger:           logger.Named("subscriptions"),
	}
}

// clientStateFor binds a subscription to its owning user. The shared secret
// part is what inbound notifications are checked against.
func (u *SubscriptionUsecase) clientStateFor(userID string) string {
	return "user_" + userID + ":" + u.clientSecret
}

// Create registers an inbox subscription for the user with Graph and stores
// the mirror row.
func (u *SubscriptionUsecase) Create(ctx context.Context, userID string) (*domain.WebhookSubscription, error) {
	integration, err := u.integrations.FindActive(userID, integrationdomain.ProviderMicrosoft)
	if err != nil {
		return nil, err
	}

	request := graph.Subscription{
		Resource:           mailResource,
		ChangeType:         "created",
		NotificationURL:    u.notificationURL,
		ClientState:        u.clientStateFor(userID),
		ExpirationDateTime: time.Now().Add(subscriptionLifetime).UTC(),
	}

	var created *graph.Subscription
	err = u.vault.WrapCall(ctx, integration, func(token string) error {
		var callErr error
		created, callErr = u.mail.CreateSubscription(ctx, token, request)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create graph subscription: %w", err)
	}

	sub := &domain.WebhookSubscription{
		ID:             uuid.New().String(),
		UserID:         userID,
		SubscriptionID: created.ID,
		Resource:       created.Resource,
		ClientState:    request.ClientState,
		IsActive:       true,
		ExpiresAt:      created.ExpirationDateTime,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := u.repo.Create(sub); err != nil {
		return nil, err
	}

	u.logger.Info("webhook subscription created",
		zap.String("user_id", userID),
		zap.String("subscription_id", created.ID),
		zap.Time("expires_at", created.ExpirationDateTime))
	return sub, nil
}

func (u *SubscriptionUsecase) List(userID string) ([]domain.WebhookSubscription, error) {
	return u.repo.ListByUser(userID)
}

// Delete removes the subscription at Graph first, then locally. A
// subscription Graph no longer knows about is deleted locally anyway.
func (u *SubscriptionUsecase) Delete(ctx context.Context, userID, id string) error {
	subs, err := u.repo.ListByUser(userID)
	if err != nil {
		return err
	}
	var target *domain.WebhookSubscription
	for i := range subs {
		if subs[i].ID == id {
			target = &subs[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("subscription not found")
	}

	integration, err := u.integrations.FindActive(userID, integrationdomain.ProviderMicrosoft)
	if err == nil {
		deleteErr := u.vault.WrapCall(ctx, integration, func(token string) error {
			return u.mail.DeleteSubscription(ctx, token, target.SubscriptionID)
		})
		if deleteErr != nil {
			u.logger.Warn("unable to delete graph subscription, removing local row anyway",
				zap.String("subscription_id", target.SubscriptionID),
				zap.Error(deleteErr))
		}
	}

	return u.repo.Delete(target.ID)
}

// RenewDueSubscriptions pushes the expiry of every active subscription inside
// the renewal threshold. One failing subscription does not stop the sweep: it
// is marked inactive and its degradation recorded, so notifications for that
// mailbox stop until the user recreates it.
func (u *SubscriptionUsecase) RenewDueSubscriptions(ctx context.Context) {
	deadline := time.Now().Add(u.renewalThreshold)
	due, err := u.repo.ListExpiringBefore(deadline)
	if err != nil {
		u.logger.Error("unable to list expiring subscriptions", zap.Error(err))
		return
	}

	for i := range due {
		sub := &due[i]
		if err := u.renew(ctx, sub); err != nil {
			u.logger.Warn("renewal failed, marking subscription inactive",
				zap.String("subscription_id", sub.SubscriptionID),
				zap.String("user_id", sub.UserID),
				zap.Error(err))
			if markErr := u.repo.MarkInactive(sub.ID); markErr != nil {
				u.logger.Error("unable to mark subscription inactive", zap.Error(markErr))
			}
			u.activity.Record(sub.UserID, "subscription_renewal", activitydomain.StatusWarning,
				"subscription renewal failed, mail notifications for this mailbox have stopped", "",
				map[string]interface{}{
					"subscription_id": sub.SubscriptionID,
					"error":           err.Error(),
				})
		}
	}
}

func (u *SubscriptionUsecase) renew(ctx context.Context, sub *domain.WebhookSubscription) error {
	integration, err := u.integrations.FindActive(sub.UserID, integrationdomain.ProviderMicrosoft)
	if err != nil {
		return err
	}

	expiration := time.Now().Add(subscriptionLifetime).UTC()
	var renewed *graph.Subscription
	err = u.vault.WrapCall(ctx, integration, func(token string) error {
		var callErr error
		renewed, callErr = u.mail.RenewSubscription(ctx, token, sub.SubscriptionID, expiration)
		return callErr
	})
	if err != nil {
		return err
	}

	if err := u.repo.UpdateExpiry(sub.ID, renewed.ExpirationDateTime); err != nil {
		return err
	}
	u.logger.Info("subscription renewed",
		zap.String("subscription_id", sub.SubscriptionID),
		zap.Time("expires_at", renewed.ExpirationDateTime))
	return nil
}

// ValidateNotification checks an inbound item's client state and resolves the
// owning user. The secret comparison is constant time.
func (u *SubscriptionUsecase) ValidateNotification(clientState string) (string, bool) {
	rest, found := strings.CutPrefix(clientState, "user_")
	if !found {
		return "", false
	}
	userID, secret, found := strings.Cut(rest, ":")
	if !found || userID == "" {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(u.clientSecret)) != 1 {
		return "", false
	}
	return userID, true
}
