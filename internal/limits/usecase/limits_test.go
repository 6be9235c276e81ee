package usecase

import (
	"path/filepath"
	"testing"
	"time"

	"dealflow-backend/internal/limits/domain"
	"dealflow-backend/internal/limits/repository"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestRepository(t *testing.T) repository.LimitsRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.RateLimitWindow{}, &domain.BlockedRequest{}, &domain.CostRecord{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return repository.NewLimitsRepository(db)
}

func TestRateLimiterAllowsUpToMax(t *testing.T) {
	repo := newTestRepository(t)
	limiter := NewRateLimiter(repo, zap.NewNop())
	limiter.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC) }

	for i := 0; i < 10; i++ {
		allowed, err := limiter.Allow(OpAIAnalysis, "user-1")
		if err != nil {
			t.Fatalf("unexpected error on call %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("call %d refused below the limit", i)
		}
	}

	allowed, err := limiter.Allow(OpAIAnalysis, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatalf("call above the limit was allowed")
	}
}

func TestRateLimiterWindowsArePerUser(t *testing.T) {
	repo := newTestRepository(t)
	limiter := NewRateLimiter(repo, zap.NewNop())
	limiter.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC) }

	for i := 0; i < 10; i++ {
		if allowed, _ := limiter.Allow(OpAIAnalysis, "user-1"); !allowed {
			t.Fatalf("user-1 refused below the limit")
		}
	}

	allowed, err := limiter.Allow(OpAIAnalysis, "user-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatalf("user-2 refused despite a fresh window")
	}
}

func TestRateLimiterNewWindowResetsCount(t *testing.T) {
	repo := newTestRepository(t)
	limiter := NewRateLimiter(repo, zap.NewNop())

	current := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	limiter.now = func() time.Time { return current }

	for i := 0; i < 10; i++ {
		limiter.Allow(OpAIAnalysis, "user-1")
	}
	if allowed, _ := limiter.Allow(OpAIAnalysis, "user-1"); allowed {
		t.Fatalf("call above the limit was allowed")
	}

	current = current.Add(time.Minute)
	allowed, err := limiter.Allow(OpAIAnalysis, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatalf("call in a fresh window was refused")
	}
}

func TestRateLimiterUnknownOperationAllowed(t *testing.T) {
	repo := newTestRepository(t)
	limiter := NewRateLimiter(repo, zap.NewNop())

	allowed, err := limiter.Allow("unknown_operation", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatalf("unknown operation was refused")
	}
}

func TestCostTrackerPricesKnownModel(t *testing.T) {
	cost := EstimateCost("openai/gpt-4o-mini", 1000, 1000)
	want := 0.00015 + 0.0006
	if diff := cost - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected cost %v, got %v", want, cost)
	}
}

func TestCostTrackerUnknownModelUsesDefaultPricing(t *testing.T) {
	known := EstimateCost("openai/gpt-4o-mini", 2000, 500)
	unknown := EstimateCost("vendor/unheard-of-model", 2000, 500)
	if known != unknown {
		t.Fatalf("unknown model priced differently from the default: %v vs %v", unknown, known)
	}
	if unknown == 0 {
		t.Fatalf("unknown model priced at zero")
	}
}

func TestCostTrackerDailyLimit(t *testing.T) {
	repo := newTestRepository(t)
	tracker := NewCostTracker(repo, 0.001, zap.NewNop())

	within, spent, err := tracker.WithinDailyLimit("user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !within || spent != 0 {
		t.Fatalf("expected fresh user within limit with zero spend, got within=%v spent=%v", within, spent)
	}

	// 10k completion tokens on the default model is 0.006 USD, over the
	// 0.001 ceiling configured above.
	if _, err := tracker.RecordCall("user-1", "openai/gpt-4o-mini", OpAIAnalysis, "corr-1", 0, 10000); err != nil {
		t.Fatalf("failed to record call: %v", err)
	}

	within, spent, err = tracker.WithinDailyLimit("user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if within {
		t.Fatalf("expected user over limit after spend %v", spent)
	}
}

func TestCostTrackerLimitIsPerUser(t *testing.T) {
	repo := newTestRepository(t)
	tracker := NewCostTracker(repo, 0.001, zap.NewNop())

	if _, err := tracker.RecordCall("user-1", "openai/gpt-4o-mini", OpAIAnalysis, "corr-1", 0, 10000); err != nil {
		t.Fatalf("failed to record call: %v", err)
	}

	within, _, err := tracker.WithinDailyLimit("user-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !within {
		t.Fatalf("user-2 blocked by user-1's spend")
	}
}
