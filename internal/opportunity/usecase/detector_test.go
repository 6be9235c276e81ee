package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	limitsdomain "dealflow-backend/internal/limits/domain"
	limitsrepo "dealflow-backend/internal/limits/repository"
	limits "dealflow-backend/internal/limits/usecase"
	"dealflow-backend/internal/opportunity/domain"
	"dealflow-backend/internal/opportunity/repository"
	"dealflow-backend/pkg/ai"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDetector(t *testing.T, aiServerURL string, dailyLimit float64) (*Detector, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.OpportunityLog{},
		&limitsdomain.RateLimitWindow{},
		&limitsdomain.BlockedRequest{},
		&limitsdomain.CostRecord{},
	); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	lr := limitsrepo.NewLimitsRepository(db)
	detector := NewDetector(
		repository.NewOpportunityRepository(db),
		ai.NewClient("test-key", aiServerURL, "openai/gpt-4o-mini"),
		limits.NewRateLimiter(lr, zap.NewNop()),
		limits.NewCostTracker(lr, dailyLimit, zap.NewNop()),
		zap.NewNop(),
	)
	return detector, db
}

func newAIServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"choices": []map[string]interface{}{
				{
					"index":         0,
					"message":       map[string]interface{}{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]interface{}{
				"prompt_tokens":     120,
				"completion_tokens": 40,
				"total_tokens":      160,
			},
		})
	}))
}

var testEmail = ai.EmailContext{
	From:    "anders@sales.dk",
	To:      "lars.pedersen@grundfos.com",
	Subject: "Tilbud på sikkerhedsløsning",
	Body:    "Hej Lars, tak for mødet. Vedhæftet vores tilbud.",
}

func TestAnalyzeParsesPositiveVerdict(t *testing.T) {
	verdict := `{"is_sales_opportunity": true, "confidence": 0.91, "opportunity_type": "new_business", "person_name": "Lars Pedersen", "organization_name": "Grundfos", "estimated_value": 50000}`
	server := newAIServer(t, verdict)
	defer server.Close()

	detector, db := newTestDetector(t, server.URL, 20)
	result, emailHash, err := detector.Analyze(context.Background(), "user-1", "corr-1", testEmail)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if !result.IsSalesOpportunity {
		t.Fatalf("expected positive verdict")
	}
	if result.PersonName != "Lars Pedersen" || result.OrganizationName != "Grundfos" {
		t.Fatalf("extraction fields lost: %+v", result)
	}
	if result.Currency != "DKK" {
		t.Fatalf("expected DKK currency default, got %q", result.Currency)
	}
	if emailHash == "" {
		t.Fatalf("empty email hash")
	}

	// Token usage must have been priced and recorded under the run's
	// correlation id.
	var costRecords []limitsdomain.CostRecord
	if err := db.Find(&costRecords).Error; err != nil {
		t.Fatalf("failed to load cost records: %v", err)
	}
	if len(costRecords) != 1 {
		t.Fatalf("expected 1 cost record, got %d", len(costRecords))
	}
	if costRecords[0].CorrelationID != "corr-1" {
		t.Fatalf("cost record correlation id %q, want corr-1", costRecords[0].CorrelationID)
	}
}

func TestAnalyzeSkipsAlreadyAnalyzedContent(t *testing.T) {
	server := newAIServer(t, `{"is_sales_opportunity": true, "confidence": 0.9}`)
	defer server.Close()

	detector, _ := newTestDetector(t, server.URL, 20)
	ctx := context.Background()

	result, emailHash, err := detector.Analyze(ctx, "user-1", "corr-1", testEmail)
	if err != nil {
		t.Fatalf("first analyze failed: %v", err)
	}
	if _, err := detector.RecordOpportunity("user-1", emailHash, "record-1", testEmail.To, result); err != nil {
		t.Fatalf("failed to record opportunity: %v", err)
	}

	_, _, err = detector.Analyze(ctx, "user-1", "corr-1", testEmail)
	if !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
}

func TestAnalyzeRefusesWhenBudgetExhausted(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// Zero ceiling: even a fresh user is over budget.
	detector, _ := newTestDetector(t, server.URL, 0)
	_, _, err := detector.Analyze(context.Background(), "user-1", "corr-1", testEmail)
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("expected ErrBudgetExhausted, got %v", err)
	}
	if called {
		t.Fatalf("ai endpoint was called despite exhausted budget")
	}
}

func TestAnalyzeRefusesWhenRateLimited(t *testing.T) {
	server := newAIServer(t, `{"is_sales_opportunity": false, "confidence": 0.2}`)
	defer server.Close()

	detector, _ := newTestDetector(t, server.URL, 20)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		email := testEmail
		email.Subject = testEmail.Subject + string(rune('a'+i))
		if _, _, err := detector.Analyze(ctx, "user-1", "corr-1", email); err != nil {
			t.Fatalf("analyze %d failed: %v", i, err)
		}
	}

	email := testEmail
	email.Subject = "one more"
	_, _, err := detector.Analyze(ctx, "user-1", "corr-1", email)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestAnalyzeRejectsMalformedResponse(t *testing.T) {
	server := newAIServer(t, "I think this looks like a sales opportunity!")
	defer server.Close()

	detector, _ := newTestDetector(t, server.URL, 20)
	_, _, err := detector.Analyze(context.Background(), "user-1", "corr-1", testEmail)
	if !errors.Is(err, domain.ErrMalformedAIResponse) {
		t.Fatalf("expected ErrMalformedAIResponse, got %v", err)
	}
}

func TestParseAnalysisRequiresVerdictFields(t *testing.T) {
	if _, err := parseAnalysis(`{"confidence": 0.5}`); !errors.Is(err, domain.ErrMalformedAIResponse) {
		t.Fatalf("missing is_sales_opportunity accepted: %v", err)
	}
	if _, err := parseAnalysis(`{"is_sales_opportunity": true}`); !errors.Is(err, domain.ErrMalformedAIResponse) {
		t.Fatalf("missing confidence accepted: %v", err)
	}
	if _, err := parseAnalysis(`{"is_sales_opportunity": true, "confidence": 1.7}`); !errors.Is(err, domain.ErrMalformedAIResponse) {
		t.Fatalf("out of range confidence accepted: %v", err)
	}
}

func TestParseAnalysisStripsCodeFence(t *testing.T) {
	fenced := "```json\n{\"is_sales_opportunity\": true, \"confidence\": 0.8}\n```"
	result, err := parseAnalysis(fenced)
	if err != nil {
		t.Fatalf("fenced JSON rejected: %v", err)
	}
	if !result.IsSalesOpportunity || result.Confidence != 0.8 {
		t.Fatalf("fenced JSON parsed incorrectly: %+v", result)
	}
}

func TestHashContentNormalizesWhitespaceAndCase(t *testing.T) {
	base := HashContent("Anders@Sales.dk", "Subject", "Body")
	same := HashContent("  anders@sales.dk ", "Subject  ", "  Body")
	if base != same {
		t.Fatalf("normalized variants hash differently")
	}
	different := HashContent("anders@sales.dk", "Subject", "Other body")
	if base == different {
		t.Fatalf("different content hashed identically")
	}
}
