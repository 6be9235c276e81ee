package scheduler

import (
	"context"
	"time"

	"dealflow-backend/internal/webhook/usecase"

	"go.uber.org/zap"
)

// RenewalScheduler periodically renews Graph subscriptions before they lapse.
type RenewalScheduler struct {
	subscriptions *usecase.SubscriptionUsecase
	interval      time.Duration
	stopChan      chan struct{}
	logger        *zap.Logger
}

func NewRenewalScheduler(subscriptions *usecase.SubscriptionUsecase, interval time.Duration, logger *zap.Logger) *RenewalScheduler {
	return &RenewalScheduler{
		subscriptions: subscriptions,
		interval:      interval,
		stopChan:      make(chan struct{}),
		logger:        logger.Named("renewal"),
	}
}

// Start begins the renewal loop. The first sweep runs immediately so
// subscriptions left near expiry across a restart are caught right away.
func (s *RenewalScheduler) Start() {
	s.logger.Info("starting subscription renewal scheduler", zap.Duration("interval", s.interval))

	go func() {
		s.subscriptions.RenewDueSubscriptions(context.Background())

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.subscriptions.RenewDueSubscriptions(context.Background())
			case <-s.stopChan:
				s.logger.Info("renewal scheduler stopped")
				return
			}
		}
	}()
}

func (s *RenewalScheduler) Stop() {
	close(s.stopChan)
}
