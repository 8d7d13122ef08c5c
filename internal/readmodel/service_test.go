package readmodel

import (
	"context"
	"testing"
	"time"

	"github.com/denialdesk/reclaim/internal/audit"
	"github.com/denialdesk/reclaim/internal/core/config"
	"github.com/denialdesk/reclaim/internal/core/domain"
	"github.com/denialdesk/reclaim/internal/infra/storage"
	"github.com/denialdesk/reclaim/internal/infra/storage/memory"
)

var testBands = config.SLABandConfig{CriticalHours: 8, HighHours: 24, MediumHours: 72}

type fixture struct {
	svc     *Service
	records *memory.RejectionRepo
	log     *audit.Log
}

func newFixture() *fixture {
	store := memory.NewMemoryStorage()
	records := memory.NewRejectionRepo(store)
	attempts := memory.NewAttemptRepo(store)
	log := audit.NewLog(memory.NewTransitionRepo(store))
	return &fixture{
		svc:     New(records, attempts, log, testBands),
		records: records,
		log:     log,
	}
}

func (f *fixture) seed(t *testing.T, claimID string, status domain.Status, dueIn time.Duration, branch string) {
	t.Helper()
	now := time.Now().UTC()
	rec := &domain.RejectionRecord{
		CorrelationID: "corr-" + claimID,
		ClaimID:       claimID,
		PayerCode:     "AETNA",
		RejectionCode: "CO-197",
		Branch:        branch,
		ReceivedAt:    now.Add(-time.Hour),
		Status:        status,
	}
	if dueIn != 0 {
		rec.DueAt = now.Add(dueIn)
	}
	if err := f.records.Save(context.Background(), rec); err != nil {
		t.Fatalf("seed %s: %v", claimID, err)
	}
}

func TestList_FilterAndBandAnnotation(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	f.seed(t, "urgent", domain.StatusQueued, 2*time.Hour, "north")
	f.seed(t, "relaxed", domain.StatusQueued, 100*time.Hour, "south")
	f.seed(t, "done", domain.StatusResolved, 2*time.Hour, "north")

	views, err := f.svc.List(ctx, storage.RecordFilter{Status: domain.StatusQueued})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 queued records, got %d", len(views))
	}
	// Soonest deadline first.
	if views[0].ClaimID != "urgent" {
		t.Errorf("expected urgent first, got %s", views[0].ClaimID)
	}
	if views[0].Band != domain.BandCritical {
		t.Errorf("expected critical band, got %s", views[0].Band)
	}
	if views[1].Band != domain.BandLow {
		t.Errorf("expected low band, got %s", views[1].Band)
	}

	north, err := f.svc.List(ctx, storage.RecordFilter{Branch: "north", Status: domain.StatusQueued})
	if err != nil {
		t.Fatalf("list by branch: %v", err)
	}
	if len(north) != 1 || north[0].ClaimID != "urgent" {
		t.Errorf("branch filter failed: %v", north)
	}
}

func TestDetail_ReplayAgreesWithRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	f.seed(t, "claim-1", domain.StatusPendingClassification, 48*time.Hour, "north")
	if err := f.log.Record(ctx, "claim-1", "", domain.StatusPendingClassification,
		domain.ActorSystem, "normalized"); err != nil {
		t.Fatalf("record transition: %v", err)
	}

	detail, err := f.svc.Detail(ctx, "claim-1")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if len(detail.Transitions) != 1 {
		t.Errorf("expected 1 transition, got %d", len(detail.Transitions))
	}
	if detail.Record.Band != domain.BandMedium {
		t.Errorf("expected medium band, got %s", detail.Record.Band)
	}
}

func TestDetail_DriftedProjectionIsAnError(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	// Row says QUEUED but the log only records the birth transition.
	f.seed(t, "claim-1", domain.StatusQueued, 48*time.Hour, "north")
	if err := f.log.Record(ctx, "claim-1", "", domain.StatusPendingClassification,
		domain.ActorSystem, "normalized"); err != nil {
		t.Fatalf("record transition: %v", err)
	}

	if _, err := f.svc.Detail(ctx, "claim-1"); err == nil {
		t.Fatal("expected drift between row and log to surface as an error")
	}
}

func TestSummarize(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	f.seed(t, "q1", domain.StatusQueued, 2*time.Hour, "north")
	f.seed(t, "q2", domain.StatusQueued, 100*time.Hour, "north")
	f.seed(t, "mr", domain.StatusManualReview, 0, "south")
	f.seed(t, "dl", domain.StatusDeadLettered, 0, "south")
	f.seed(t, "ok", domain.StatusResolved, 0, "south")

	sum, err := f.svc.Summarize(ctx)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.Open != 3 {
		t.Errorf("expected 3 open claims, got %d", sum.Open)
	}
	if sum.ManualReview != 1 || sum.DeadLettered != 1 {
		t.Errorf("unexpected counts: %+v", sum)
	}
	if sum.Critical != 1 {
		t.Errorf("expected 1 critical claim, got %d", sum.Critical)
	}
}

func TestDeadLettersAndManualReviewListings(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	f.seed(t, "dl-1", domain.StatusDeadLettered, 0, "north")
	f.seed(t, "mr-1", domain.StatusManualReview, 0, "north")
	f.seed(t, "q-1", domain.StatusQueued, time.Hour, "north")

	dead, err := f.svc.DeadLetters(ctx, 10, 0)
	if err != nil {
		t.Fatalf("dead letters: %v", err)
	}
	if len(dead) != 1 || dead[0].ClaimID != "dl-1" {
		t.Errorf("unexpected dead letters: %v", dead)
	}

	review, err := f.svc.ManualReviewQueue(ctx, 10, 0)
	if err != nil {
		t.Fatalf("manual review: %v", err)
	}
	if len(review) != 1 || review[0].ClaimID != "mr-1" {
		t.Errorf("unexpected manual review queue: %v", review)
	}
}
