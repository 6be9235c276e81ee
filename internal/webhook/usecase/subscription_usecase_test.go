package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	activitydomain "dealflow-backend/internal/activity/domain"
	activityrepo "dealflow-backend/internal/activity/repository"
	activityusecase "dealflow-backend/internal/activity/usecase"
	integrationdomain "dealflow-backend/internal/integration/domain"
	integrationrepo "dealflow-backend/internal/integration/repository"
	integrationusecase "dealflow-backend/internal/integration/usecase"
	"dealflow-backend/internal/webhook/domain"
	"dealflow-backend/internal/webhook/repository"
	"dealflow-backend/pkg/config"
	"dealflow-backend/pkg/crypto"
	"dealflow-backend/pkg/graph"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSecret = "webhook-shared-secret"

func newTestUsecase(t *testing.T, graphURL string) (*SubscriptionUsecase, repository.SubscriptionRepository, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&integrationdomain.Integration{}, &domain.WebhookSubscription{}, &activitydomain.ActivityLog{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	cipher, err := crypto.NewTokenCipher("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("failed to build cipher: %v", err)
	}
	integrations := integrationrepo.NewIntegrationRepository(db)
	activity := activityusecase.NewActivityLogger(activityrepo.NewActivityRepository(db), zap.NewNop())
	vault := integrationusecase.NewTokenVault(integrations, cipher, &config.Config{}, activity, zap.NewNop())

	accessCipher, _ := cipher.Encrypt("graph-access-token")
	refreshCipher, _ := cipher.Encrypt("graph-refresh-token")
	if err := integrations.Upsert(&integrationdomain.Integration{
		ID:                 uuid.New().String(),
		UserID:             "user-1",
		Provider:           integrationdomain.ProviderMicrosoft,
		AccessTokenCipher:  accessCipher,
		RefreshTokenCipher: refreshCipher,
		TokenExpiresAt:     time.Now().Add(time.Hour),
		IsActive:           true,
	}); err != nil {
		t.Fatalf("failed to seed integration: %v", err)
	}

	mail := graph.NewClient()
	mail.SetBaseURL(graphURL)
	repo := repository.NewSubscriptionRepository(db)
	uc := NewSubscriptionUsecase(repo, integrations, vault, mail,
		"https://dealflow.example.com", testSecret, 24*time.Hour, activity, zap.NewNop())
	return uc, repo, db
}

func newFakeGraph(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		var sub graph.Subscription
		json.NewDecoder(r.Body).Decode(&sub)
		sub.ID = "graph-sub-1"
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(sub)
	})
	mux.HandleFunc("/subscriptions/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPatch:
			var body struct {
				ExpirationDateTime time.Time `json:"expirationDateTime"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			json.NewEncoder(w).Encode(graph.Subscription{
				ID:                 "graph-sub-1",
				ExpirationDateTime: body.ExpirationDateTime,
			})
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	return httptest.NewServer(mux)
}

func TestCreateStoresSubscriptionWithClientState(t *testing.T) {
	server := newFakeGraph(t)
	defer server.Close()

	uc, repo, _ := newTestUsecase(t, server.URL)
	sub, err := uc.Create(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if sub.SubscriptionID != "graph-sub-1" {
		t.Fatalf("graph subscription id not stored, got %q", sub.SubscriptionID)
	}
	if sub.ClientState != "user_user-1:"+testSecret {
		t.Fatalf("unexpected client state %q", sub.ClientState)
	}

	remaining := time.Until(sub.ExpiresAt)
	if remaining < 71*time.Hour || remaining > 73*time.Hour {
		t.Fatalf("expected roughly 3 day expiry, got %v", remaining)
	}

	stored, err := repo.FindBySubscriptionID("graph-sub-1")
	if err != nil {
		t.Fatalf("failed to reload subscription: %v", err)
	}
	if stored == nil {
		t.Fatalf("subscription row not persisted")
	}
}

func TestRenewDueSubscriptionsExtendsExpiry(t *testing.T) {
	server := newFakeGraph(t)
	defer server.Close()

	uc, repo, _ := newTestUsecase(t, server.URL)
	sub := &domain.WebhookSubscription{
		ID:             uuid.New().String(),
		UserID:         "user-1",
		SubscriptionID: "graph-sub-1",
		ClientState:    "user_user-1:" + testSecret,
		IsActive:       true,
		ExpiresAt:      time.Now().Add(2 * time.Hour),
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := repo.Create(sub); err != nil {
		t.Fatalf("failed to seed subscription: %v", err)
	}

	uc.RenewDueSubscriptions(context.Background())

	stored, err := repo.FindBySubscriptionID("graph-sub-1")
	if err != nil {
		t.Fatalf("failed to reload subscription: %v", err)
	}
	if time.Until(stored.ExpiresAt) < 71*time.Hour {
		t.Fatalf("expiry not extended, still %v away", time.Until(stored.ExpiresAt))
	}
}

func TestRenewSkipsSubscriptionsOutsideThreshold(t *testing.T) {
	server := newFakeGraph(t)
	defer server.Close()

	uc, repo, _ := newTestUsecase(t, server.URL)
	farExpiry := time.Now().Add(48 * time.Hour)
	sub := &domain.WebhookSubscription{
		ID:             uuid.New().String(),
		UserID:         "user-1",
		SubscriptionID: "graph-sub-1",
		IsActive:       true,
		ExpiresAt:      farExpiry,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := repo.Create(sub); err != nil {
		t.Fatalf("failed to seed subscription: %v", err)
	}

	uc.RenewDueSubscriptions(context.Background())

	stored, err := repo.FindBySubscriptionID("graph-sub-1")
	if err != nil {
		t.Fatalf("failed to reload subscription: %v", err)
	}
	if diff := stored.ExpiresAt.Sub(farExpiry); diff > time.Second || diff < -time.Second {
		t.Fatalf("subscription outside threshold was renewed")
	}
}

func TestRenewalFailureDisablesSubscription(t *testing.T) {
	patchCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/subscriptions/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			patchCalls++
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": {"code": "ResourceNotFound"}}`))
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	uc, repo, db := newTestUsecase(t, server.URL)
	sub := &domain.WebhookSubscription{
		ID:             uuid.New().String(),
		UserID:         "user-1",
		SubscriptionID: "graph-sub-gone",
		ClientState:    "user_user-1:" + testSecret,
		IsActive:       true,
		ExpiresAt:      time.Now().Add(2 * time.Hour),
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := repo.Create(sub); err != nil {
		t.Fatalf("failed to seed subscription: %v", err)
	}

	uc.RenewDueSubscriptions(context.Background())

	stored, err := repo.FindBySubscriptionID("graph-sub-gone")
	if err != nil {
		t.Fatalf("failed to reload subscription: %v", err)
	}
	if stored.IsActive {
		t.Fatalf("subscription still active after failed renewal")
	}

	due, err := repo.ListExpiringBefore(time.Now().Add(24 * time.Hour))
	if err != nil {
		t.Fatalf("failed to list due subscriptions: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("dead subscription still due for renewal, len=%d", len(due))
	}

	// The degradation is visible in the audit trail.
	var entries []activitydomain.ActivityLog
	if err := db.Where("activity_type = ?", "subscription_renewal").Find(&entries).Error; err != nil {
		t.Fatalf("failed to load activity entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != activitydomain.StatusWarning {
		t.Fatalf("expected 1 warning activity entry, got %+v", entries)
	}

	// A second sweep must not retry the dead subscription.
	uc.RenewDueSubscriptions(context.Background())
	if patchCalls != 1 {
		t.Fatalf("dead subscription retried, %d renewal attempts", patchCalls)
	}
}

func TestValidateNotification(t *testing.T) {
	server := newFakeGraph(t)
	defer server.Close()
	uc, _, _ := newTestUsecase(t, server.URL)

	userID, ok := uc.ValidateNotification("user_user-1:" + testSecret)
	if !ok || userID != "user-1" {
		t.Fatalf("valid client state rejected, got userID=%q ok=%v", userID, ok)
	}

	cases := []string{
		"",
		"user_user-1:wrong-secret",
		"user-1:" + testSecret,
		"user_:" + testSecret,
		"user_user-1",
	}
	for _, clientState := range cases {
		if _, ok := uc.ValidateNotification(clientState); ok {
			t.Fatalf("client state %q accepted", clientState)
		}
	}
}
