package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/denialdesk/reclaim/internal/core/domain"
	"github.com/denialdesk/reclaim/internal/infra/storage/memory"
)

func newTestLog() *Log {
	store := memory.NewMemoryStorage()
	return NewLog(memory.NewTransitionRepo(store))
}

// =============================================================================
// Edge Table Tests
// =============================================================================

func TestLegalEdge(t *testing.T) {
	legal := [][2]domain.Status{
		{"", domain.StatusPendingClassification},
		{domain.StatusPendingClassification, domain.StatusPendingCorrection},
		{domain.StatusPendingCorrection, domain.StatusQueued},
		{domain.StatusPendingCorrection, domain.StatusManualReview},
		{domain.StatusQueued, domain.StatusInFlight},
		{domain.StatusInFlight, domain.StatusResolved},
		{domain.StatusInFlight, domain.StatusRetryWait},
		{domain.StatusInFlight, domain.StatusDeadLettered},
		{domain.StatusRetryWait, domain.StatusQueued},
		{domain.StatusManualReview, domain.StatusQueued},
		{domain.StatusQueued, domain.StatusCancelled},
	}
	for _, e := range legal {
		if !LegalEdge(e[0], e[1]) {
			t.Errorf("expected %s -> %s to be legal", e[0], e[1])
		}
	}

	illegal := [][2]domain.Status{
		{domain.StatusResolved, domain.StatusQueued},
		{domain.StatusDeadLettered, domain.StatusQueued},
		{domain.StatusQueued, domain.StatusResolved},
		{domain.StatusInFlight, domain.StatusQueued},
		{domain.StatusInFlight, domain.StatusCancelled}, // not honored while in flight
		{domain.StatusPendingClassification, domain.StatusQueued},
	}
	for _, e := range illegal {
		if LegalEdge(e[0], e[1]) {
			t.Errorf("expected %s -> %s to be illegal", e[0], e[1])
		}
	}
}

// =============================================================================
// Log Tests
// =============================================================================

func TestLog_RecordAndReplay(t *testing.T) {
	log := newTestLog()
	ctx := context.Background()

	steps := [][2]domain.Status{
		{"", domain.StatusPendingClassification},
		{domain.StatusPendingClassification, domain.StatusPendingCorrection},
		{domain.StatusPendingCorrection, domain.StatusQueued},
		{domain.StatusQueued, domain.StatusInFlight},
		{domain.StatusInFlight, domain.StatusRetryWait},
		{domain.StatusRetryWait, domain.StatusQueued},
		{domain.StatusQueued, domain.StatusInFlight},
		{domain.StatusInFlight, domain.StatusResolved},
	}
	for _, s := range steps {
		if err := log.Record(ctx, "CLM-1", s[0], s[1], domain.ActorSystem, ""); err != nil {
			t.Fatalf("Record %s -> %s failed: %v", s[0], s[1], err)
		}
	}

	status, err := log.CurrentStatus(ctx, "CLM-1")
	if err != nil {
		t.Fatalf("CurrentStatus failed: %v", err)
	}
	if status != domain.StatusResolved {
		t.Errorf("expected RESOLVED, got %s", status)
	}

	// Audit replay: fold over the log must reproduce current status exactly
	folded, trs, err := log.Replay(ctx, "CLM-1")
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if folded != status {
		t.Errorf("replay mismatch: folded %s, current %s", folded, status)
	}
	if len(trs) != len(steps) {
		t.Errorf("expected %d transitions, got %d", len(steps), len(trs))
	}
}

func TestLog_RejectsIllegalTransition(t *testing.T) {
	log := newTestLog()
	ctx := context.Background()

	if err := log.Record(ctx, "CLM-2", "", domain.StatusPendingClassification, domain.ActorSystem, ""); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	err := log.Record(ctx, "CLM-2", domain.StatusPendingClassification, domain.StatusResolved, domain.ActorSystem, "")
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}

	// The illegal transition must not be recorded
	trs, _ := log.History(ctx, "CLM-2")
	if len(trs) != 1 {
		t.Errorf("expected 1 transition, got %d", len(trs))
	}
}

func TestLog_RejectsStaleFrom(t *testing.T) {
	log := newTestLog()
	ctx := context.Background()

	_ = log.Record(ctx, "CLM-3", "", domain.StatusPendingClassification, domain.ActorSystem, "")
	_ = log.Record(ctx, "CLM-3", domain.StatusPendingClassification, domain.StatusPendingCorrection, domain.ActorSystem, "")

	// A writer holding a stale view of the claim cannot advance it
	err := log.Record(ctx, "CLM-3", domain.StatusPendingClassification, domain.StatusManualReview, domain.ActorSystem, "")
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition for stale from-status, got %v", err)
	}
}

func TestLog_ConcurrentRecordsSingleWinner(t *testing.T) {
	log := newTestLog()
	ctx := context.Background()

	_ = log.Record(ctx, "CLM-5", "", domain.StatusPendingClassification, domain.ActorSystem, "")
	_ = log.Record(ctx, "CLM-5", domain.StatusPendingClassification, domain.StatusPendingCorrection, domain.ActorSystem, "")
	_ = log.Record(ctx, "CLM-5", domain.StatusPendingCorrection, domain.StatusManualReview, domain.ActorSystem, "")

	// Two operators requeue the same claim at once. Exactly one edge may
	// land in the log; the loser must see a stale from-status.
	const writers = 8
	start := make(chan struct{})
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs <- log.Record(ctx, "CLM-5", domain.StatusManualReview, domain.StatusQueued, "operator", "requeue")
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	var wins, losses int
	for err := range errs {
		if err == nil {
			wins++
		} else if errors.Is(err, ErrIllegalTransition) {
			losses++
		} else {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly 1 successful Record, got %d", wins)
	}
	if losses != writers-1 {
		t.Errorf("expected %d stale-from rejections, got %d", writers-1, losses)
	}

	trs, _ := log.History(ctx, "CLM-5")
	if len(trs) != 4 {
		t.Errorf("expected 4 transitions in the log, got %d", len(trs))
	}
	if got := trs[len(trs)-1].ToStatus; got != domain.StatusQueued {
		t.Errorf("expected final status QUEUED, got %s", got)
	}
}

func TestLog_RejectsBirthForExistingClaim(t *testing.T) {
	log := newTestLog()
	ctx := context.Background()

	_ = log.Record(ctx, "CLM-4", "", domain.StatusPendingClassification, domain.ActorSystem, "")
	err := log.Record(ctx, "CLM-4", "", domain.StatusPendingClassification, domain.ActorSystem, "")
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition on double birth, got %v", err)
	}
}
