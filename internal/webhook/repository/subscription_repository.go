package repository

import (
	"errors"
	"fmt"
	"time"

	"dealflow-backend/internal/webhook/domain"

	"gorm.io/gorm"
)

type SubscriptionRepository interface {
	Create(sub *domain.WebhookSubscription) error
	FindBySubscriptionID(subscriptionID string) (*domain.WebhookSubscription, error)
	ListByUser(userID string) ([]domain.WebhookSubscription, error)
	ListExpiringBefore(deadline time.Time) ([]domain.WebhookSubscription, error)
	UpdateExpiry(id string, expiresAt time.Time) error
	MarkInactive(id string) error
	Delete(id string) error
}

type subscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Create(sub *domain.WebhookSubscription) error {
	if err := r.db.Create(sub).Error; err != nil {
		return fmt.Errorf("unable to create subscription: %v", err)
	}
	return nil
}

func (r *subscriptionRepository) FindBySubscriptionID(subscriptionID string) (*domain.WebhookSubscription, error) {
	var sub domain.WebhookSubscription
	if err := r.db.Where("subscription_id = ?", subscriptionID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to find subscription: %v", err)
	}
	return &sub, nil
}

func (r *subscriptionRepository) ListByUser(userID string) ([]domain.WebhookSubscription, error) {
	var subs []domain.WebhookSubscription
	if err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("unable to list subscriptions: %v", err)
	}
	return subs, nil
}

// ListExpiringBefore returns active subscriptions only. A subscription whose
// renewal already failed is dead until the user recreates it; sweeping it
// again would fail the same way.
func (r *subscriptionRepository) ListExpiringBefore(deadline time.Time) ([]domain.WebhookSubscription, error) {
	var subs []domain.WebhookSubscription
	if err := r.db.Where("expires_at < ? AND is_active = ?", deadline, true).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("unable to list expiring subscriptions: %v", err)
	}
	return subs, nil
}

func (r *subscriptionRepository) UpdateExpiry(id string, expiresAt time.Time) error {
	err := r.db.Model(&domain.WebhookSubscription{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"expires_at": expiresAt,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("unable to update subscription expiry: %v", err)
	}
	return nil
}

func (r *subscriptionRepository) MarkInactive(id string) error {
	err := r.db.Model(&domain.WebhookSubscription{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("unable to mark subscription inactive: %v", err)
	}
	return nil
}

func (r *subscriptionRepository) Delete(id string) error {
	if err := r.db.Delete(&domain.WebhookSubscription{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("unable to delete subscription: %v", err)
	}
	return nil
}
