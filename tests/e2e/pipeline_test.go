package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/denialdesk/reclaim/internal/control"
	"github.com/denialdesk/reclaim/internal/core/config"
	"github.com/denialdesk/reclaim/internal/core/domain"
)

// claimsEndpoint is a scripted stand-in for the external claims gateway.
// Dispositions are keyed by claim id and consumed in order; claims without
// a script always succeed.
type claimsEndpoint struct {
	mu      sync.Mutex
	scripts map[string][]string
	calls   map[string]int
	keys    map[string][]string // idempotency keys seen per claim
}

func newClaimsEndpoint() *claimsEndpoint {
	return &claimsEndpoint{
		scripts: make(map[string][]string),
		calls:   make(map[string]int),
		keys:    make(map[string][]string),
	}
}

func (c *claimsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClaimID        string `json:"claim_id"`
		IdempotencyKey string `json:"idempotency_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c.mu.Lock()
	n := c.calls[req.ClaimID]
	c.calls[req.ClaimID] = n + 1
	c.keys[req.ClaimID] = append(c.keys[req.ClaimID], req.IdempotencyKey)
	disposition := "success"
	if script := c.scripts[req.ClaimID]; n < len(script) {
		disposition = script[n]
	}
	c.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"disposition": disposition,
		"reason":      "scripted",
	})
}

func (c *claimsEndpoint) callCount(claimID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[claimID]
}

func testConfig(endpointURL string, port int) config.AppConfig {
	return config.AppConfig{
		Server:  config.ServerConfig{Port: port},
		Logging: config.LoggingConfig{Level: "error"},
		Pipeline: config.PipelineConfig{
			MaxAttempts:         3,
			BaseRetryDelay:      20 * time.Millisecond,
			MaxRetryDelay:       100 * time.Millisecond,
			ConfidenceThreshold: 0.70,
			PollInterval:        10 * time.Millisecond,
			DefaultSLAWindow:    48 * time.Hour,
			SLABands:            config.SLABandConfig{CriticalHours: 8, HighHours: 24, MediumHours: 72},
			QueueClasses: []config.QueueClassConfig{
				{Name: "eligibility", Workers: 2, BackpressureThreshold: 100},
				{Name: "claims", Workers: 2, BackpressureThreshold: 100},
			},
		},
		Submission: config.SubmissionConfig{
			Transport:   "http",
			URL:         endpointURL,
			SoftTimeout: time.Second,
			HardTimeout: 2 * time.Second,
		},
		Rules: config.RulesConfig{
			ClassificationPath: "../../rules/classification.yaml",
			StrategyPath:       "../../rules/strategies.yaml",
		},
	}
}

func waitForStatus(t *testing.T, app *control.App, claimID string, want domain.Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var last domain.Status
	for time.Now().Before(deadline) {
		detail, err := app.Status(context.Background(), claimID)
		if err == nil {
			last = detail.Record.Status
			if last == want {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("claim %s never reached %s (last seen %s)", claimID, want, last)
}

func rows() []domain.RawRow {
	return []domain.RawRow{
		{ClaimID: "CLM-1001", PayerCode: "aetna", RejectionCode: "co-197", RejectionDate: "2026-08-30", Amount: "$1,250.00", Branch: "north"},
		{ClaimID: "CLM-1002", PayerCode: "uhc", RejectionCode: "CO-197", RejectionDate: "2026-08-30", Amount: "310.75", Branch: "south"},
		{ClaimID: "CLM-1003", PayerCode: "cigna", RejectionCode: "ZZ-404", RejectionDate: "2026-08-30", Amount: "86.00", Branch: "south"},
		{ClaimID: "", PayerCode: "bcbs", RejectionCode: "CO-16", RejectionDate: "2026-08-30", Amount: "55.00"},
	}
}

func TestPipeline_EndToEnd(t *testing.T) {
	endpoint := newClaimsEndpoint()
	// CLM-1002 fails twice retryably before succeeding.
	endpoint.scripts["CLM-1002"] = []string{"retryable_failure", "retryable_failure", "success"}

	gateway := httptest.NewServer(http.HandlerFunc(endpoint.handler))
	defer gateway.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := control.New(ctx, testConfig(gateway.URL, 18473))
	if err != nil {
		t.Fatalf("failed to build app: %v", err)
	}
	if err := app.Start(ctx); err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = app.Stop(stopCtx)
	}()

	res := app.Ingest(ctx, rows())

	// The row without a claim id is rejected at normalization.
	if len(res.Records) != 3 {
		t.Fatalf("expected 3 admitted records, got %d", len(res.Records))
	}
	if len(res.Errors) != 1 || res.Errors[0].Field != "claim_id" {
		t.Fatalf("expected one claim_id row error, got %v", res.Errors)
	}

	// Clean resubmission resolves on the first attempt.
	waitForStatus(t, app, "CLM-1001", domain.StatusResolved)
	if n := endpoint.callCount("CLM-1001"); n != 1 {
		t.Errorf("CLM-1001: expected 1 submission, got %d", n)
	}

	// The flaky claim retries through RETRY_WAIT and ends resolved.
	waitForStatus(t, app, "CLM-1002", domain.StatusResolved)
	if n := endpoint.callCount("CLM-1002"); n != 3 {
		t.Errorf("CLM-1002: expected 3 submissions, got %d", n)
	}

	// Unknown rejection code never reaches the endpoint.
	waitForStatus(t, app, "CLM-1003", domain.StatusManualReview)
	if n := endpoint.callCount("CLM-1003"); n != 0 {
		t.Errorf("CLM-1003: expected no submissions, got %d", n)
	}

	// Audit trail: the flaky claim's history shows the retry loop.
	detail, err := app.Status(ctx, "CLM-1002")
	if err != nil {
		t.Fatalf("status CLM-1002: %v", err)
	}
	var retryWaits int
	for _, tr := range detail.Transitions {
		if tr.ToStatus == domain.StatusRetryWait {
			retryWaits++
		}
	}
	if retryWaits != 2 {
		t.Errorf("expected 2 RETRY_WAIT transitions, got %d", retryWaits)
	}
	if len(detail.Attempts) != 3 {
		t.Errorf("expected 3 recorded attempts, got %d", len(detail.Attempts))
	}

	// Idempotency keys are unique per attempt and stable per (claim, number).
	endpoint.mu.Lock()
	keys := append([]string(nil), endpoint.keys["CLM-1002"]...)
	endpoint.mu.Unlock()
	seen := make(map[string]bool)
	for i, k := range keys {
		if k != domain.IdempotencyKey("CLM-1002", i+1) {
			t.Errorf("attempt %d: wrong idempotency key", i+1)
		}
		if seen[k] {
			t.Errorf("idempotency key reused: %s", k)
		}
		seen[k] = true
	}
}

func TestPipeline_RetryExhaustionDeadLetters(t *testing.T) {
	endpoint := newClaimsEndpoint()
	endpoint.scripts["CLM-2001"] = []string{
		"retryable_failure", "retryable_failure", "retryable_failure", "retryable_failure",
	}

	gateway := httptest.NewServer(http.HandlerFunc(endpoint.handler))
	defer gateway.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := control.New(ctx, testConfig(gateway.URL, 18474))
	if err != nil {
		t.Fatalf("failed to build app: %v", err)
	}
	if err := app.Start(ctx); err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = app.Stop(stopCtx)
	}()

	app.Ingest(ctx, []domain.RawRow{
		{ClaimID: "CLM-2001", PayerCode: "aetna", RejectionCode: "CO-197", RejectionDate: "2026-08-30", Amount: "990.00", Branch: "north"},
	})

	waitForStatus(t, app, "CLM-2001", domain.StatusDeadLettered)

	// MaxAttempts is 3: exactly three submissions, then the claim parks.
	if n := endpoint.callCount("CLM-2001"); n != 3 {
		t.Errorf("expected 3 submissions before dead-letter, got %d", n)
	}
}
