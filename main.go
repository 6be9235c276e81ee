package main

import (
	"log"

	api "dealflow-backend/cmd/api"
	activitydelivery "dealflow-backend/internal/activity/delivery"
	activitydomain "dealflow-backend/internal/activity/domain"
	activityrepo "dealflow-backend/internal/activity/repository"
	activityusecase "dealflow-backend/internal/activity/usecase"
	authusecase "dealflow-backend/internal/auth/usecase"
	crmusecase "dealflow-backend/internal/crm/usecase"
	emaildomain "dealflow-backend/internal/email/domain"
	emailrepo "dealflow-backend/internal/email/repository"
	emailusecase "dealflow-backend/internal/email/usecase"
	integrationdelivery "dealflow-backend/internal/integration/delivery"
	integrationdomain "dealflow-backend/internal/integration/domain"
	integrationrepo "dealflow-backend/internal/integration/repository"
	integrationusecase "dealflow-backend/internal/integration/usecase"
	limitsdomain "dealflow-backend/internal/limits/domain"
	limitsrepo "dealflow-backend/internal/limits/repository"
	limitsusecase "dealflow-backend/internal/limits/usecase"
	opportunitydomain "dealflow-backend/internal/opportunity/domain"
	opportunityrepo "dealflow-backend/internal/opportunity/repository"
	opportunityusecase "dealflow-backend/internal/opportunity/usecase"
	webhookdelivery "dealflow-backend/internal/webhook/delivery"
	webhookdomain "dealflow-backend/internal/webhook/domain"
	webhookrepo "dealflow-backend/internal/webhook/repository"
	webhookscheduler "dealflow-backend/internal/webhook/scheduler"
	webhookusecase "dealflow-backend/internal/webhook/usecase"
	"dealflow-backend/pkg/ai"
	"dealflow-backend/pkg/config"
	"dealflow-backend/pkg/crypto"
	"dealflow-backend/pkg/database"
	"dealflow-backend/pkg/graph"
	"dealflow-backend/pkg/logger"
	"dealflow-backend/pkg/pipedrive"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg := config.Load()

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer zlog.Sync()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		zlog.Fatal("unable to connect to database", zap.Error(err))
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&integrationdomain.Integration{},
		&webhookdomain.WebhookSubscription{},
		&emaildomain.EmailRecord{},
		&opportunitydomain.OpportunityLog{},
		&limitsdomain.RateLimitWindow{},
		&limitsdomain.BlockedRequest{},
		&limitsdomain.CostRecord{},
		&activitydomain.ActivityLog{},
	); err != nil {
		zlog.Fatal("unable to migrate database", zap.Error(err))
	}

	tokenCipher, err := crypto.NewTokenCipher(cfg.EncryptionKey)
	if err != nil {
		zlog.Fatal("unable to initialize token cipher", zap.Error(err))
	}

	// Initialize repositories (dependency injection)
	integrationRepository := integrationrepo.NewIntegrationRepository(db)
	subscriptionRepository := webhookrepo.NewSubscriptionRepository(db)
	emailRepository := emailrepo.NewEmailRepository(db)
	opportunityRepository := opportunityrepo.NewOpportunityRepository(db)
	limitsRepository := limitsrepo.NewLimitsRepository(db)
	activityRepository := activityrepo.NewActivityRepository(db)

	// Provider clients
	mailClient := graph.NewClient()
	crmClient := pipedrive.NewClient(cfg.PipedriveCompanyDomain)
	aiClient := ai.NewClient(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL, cfg.AIModel)

	// Initialize use cases (dependency injection)
	activityLogger := activityusecase.NewActivityLogger(activityRepository, zlog)
	vault := integrationusecase.NewTokenVault(integrationRepository, tokenCipher, cfg, activityLogger, zlog)
	oauthUsecase := integrationusecase.NewOAuthUsecase(integrationRepository, tokenCipher, vault, cfg.JWTSecret, zlog)
	rateLimiter := limitsusecase.NewRateLimiter(limitsRepository, zlog)
	costTracker := limitsusecase.NewCostTracker(limitsRepository, cfg.AIDailyCostLimit, zlog)
	detector := opportunityusecase.NewDetector(opportunityRepository, aiClient, rateLimiter, costTracker, zlog)
	reconciler := crmusecase.NewReconciler(integrationRepository, vault, crmClient, rateLimiter, zlog)
	pipeline := emailusecase.NewPipeline(emailRepository, integrationRepository, vault, mailClient, detector, reconciler, rateLimiter, activityLogger, zlog)
	subscriptionUsecase := webhookusecase.NewSubscriptionUsecase(
		subscriptionRepository, integrationRepository, vault, mailClient,
		cfg.PublicBaseURL, cfg.WebhookClientSecret, cfg.SubscriptionRenewalThreshold,
		activityLogger, zlog)
	authUsecase := authusecase.NewAuthUsecase(cfg.JWTSecret)

	// Subscription renewal runs in the background for the process lifetime.
	renewalScheduler := webhookscheduler.NewRenewalScheduler(subscriptionUsecase, cfg.SubscriptionRenewalInterval, zlog)
	renewalScheduler.Start()
	defer renewalScheduler.Stop()

	// Initialize HTTP handler
	oauthHandler := integrationdelivery.NewOAuthHandler(oauthUsecase)
	webhookHandler := webhookdelivery.NewWebhookHandler(subscriptionUsecase, pipeline, zlog)
	activityHandler := activitydelivery.NewActivityHandler(activityLogger)
	handler := api.NewHandler(authUsecase, oauthHandler, pipeline, webhookHandler, activityHandler)

	zlog.Info("server starting", zap.String("port", cfg.Port))
	if err := handler.Start(":" + cfg.Port); err != nil {
		zlog.Fatal("unable to start server", zap.Error(err))
	}
}
