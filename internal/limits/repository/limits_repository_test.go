package repository

import (
	"path/filepath"
	"testing"
	"time"

	"dealflow-backend/internal/limits/domain"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.RateLimitWindow{}, &domain.BlockedRequest{}, &domain.CostRecord{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func TestFindOrCreateWindowReusesExistingRow(t *testing.T) {
	db := newTestDB(t)
	repo := NewLimitsRepository(db)
	windowStart := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first, err := repo.FindOrCreateWindow("ai_analysis", "user-1", windowStart, 10)
	if err != nil {
		t.Fatalf("failed to create window: %v", err)
	}
	second, err := repo.FindOrCreateWindow("ai_analysis", "user-1", windowStart, 10)
	if err != nil {
		t.Fatalf("failed to find window: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same window row, got %s and %s", first.ID, second.ID)
	}
}

func TestIncrementIfBelowMaxStopsAtCeiling(t *testing.T) {
	db := newTestDB(t)
	repo := NewLimitsRepository(db)
	windowStart := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	window, err := repo.FindOrCreateWindow("pipedrive_api", "user-1", windowStart, 2)
	if err != nil {
		t.Fatalf("failed to create window: %v", err)
	}

	for i := 0; i < 2; i++ {
		ok, err := repo.IncrementIfBelowMax(window.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Fatalf("increment %d refused below the ceiling", i)
		}
	}

	ok, err := repo.IncrementIfBelowMax(window.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("increment above the ceiling succeeded")
	}

	var stored domain.RateLimitWindow
	if err := db.First(&stored, "id = ?", window.ID).Error; err != nil {
		t.Fatalf("failed to reload window: %v", err)
	}
	if stored.RequestsCount != 2 {
		t.Fatalf("expected counter pinned at 2, got %d", stored.RequestsCount)
	}
}

func TestRecordBlockedPersistsRow(t *testing.T) {
	db := newTestDB(t)
	repo := NewLimitsRepository(db)

	blocked := &domain.BlockedRequest{
		ID:        "blocked-1",
		Operation: "ai_analysis",
		UserID:    "user-1",
		Reason:    "window limit reached",
		CreatedAt: time.Now(),
	}
	if err := repo.RecordBlocked(blocked); err != nil {
		t.Fatalf("failed to record blocked request: %v", err)
	}

	var count int64
	if err := db.Model(&domain.BlockedRequest{}).Where("user_id = ?", "user-1").Count(&count).Error; err != nil {
		t.Fatalf("failed to count blocked requests: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 blocked request, got %d", count)
	}
}

func TestSumCostSinceIgnoresOlderRecords(t *testing.T) {
	db := newTestDB(t)
	repo := NewLimitsRepository(db)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []domain.CostRecord{
		{ID: "old", UserID: "user-1", Model: "m", CostUSD: 5, CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "recent", UserID: "user-1", Model: "m", CostUSD: 1.5, CreatedAt: now.Add(-time.Hour)},
		{ID: "other-user", UserID: "user-2", Model: "m", CostUSD: 3, CreatedAt: now.Add(-time.Hour)},
	}
	for i := range records {
		if err := repo.CreateCostRecord(&records[i]); err != nil {
			t.Fatalf("failed to create cost record: %v", err)
		}
	}

	total, err := repo.SumCostSince("user-1", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("failed to sum costs: %v", err)
	}
	if total != 1.5 {
		t.Fatalf("expected 1.5, got %v", total)
	}
}
