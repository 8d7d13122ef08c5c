package sla

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/denialdesk/reclaim/internal/core/config"
	"github.com/denialdesk/reclaim/internal/core/domain"
	"github.com/denialdesk/reclaim/internal/infra/storage"
	"github.com/denialdesk/reclaim/internal/pipeline/metrics"
)

// Escalation is one claim crossing into the critical band.
type Escalation struct {
	ClaimID   string              `json:"claim_id"`
	Band      domain.PriorityBand `json:"band"`
	DueAt     time.Time           `json:"due_at"`
	Status    domain.Status       `json:"status"`
	RaisedAt  time.Time           `json:"raised_at"`
	Remaining time.Duration       `json:"remaining"`
}

// EscalationSink receives escalation events. The health API and tests plug
// in here; production wiring can forward to a pager.
type EscalationSink interface {
	Escalate(ctx context.Context, e Escalation)
}

// EscalationFunc adapts a function to EscalationSink.
type EscalationFunc func(ctx context.Context, e Escalation)

func (f EscalationFunc) Escalate(ctx context.Context, e Escalation) { f(ctx, e) }

// Tracker periodically sweeps open records and raises an escalation when a
// claim first enters the critical band. Escalations are edge-triggered: a
// per-claim latch keeps a claim that stays critical from firing again every
// sweep. The latch clears when the claim reaches a terminal status.
type Tracker struct {
	cfg      config.SLABandConfig
	records  storage.RejectionRepository
	sink     EscalationSink
	interval time.Duration

	mu      sync.Mutex
	latched map[string]bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewTracker creates an SLA tracker sweeping at the given interval.
func NewTracker(cfg config.SLABandConfig, records storage.RejectionRepository, sink EscalationSink, interval time.Duration) *Tracker {
	return &Tracker{
		cfg:      cfg,
		records:  records,
		sink:     sink,
		interval: interval,
		latched:  make(map[string]bool),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (t *Tracker) Start(ctx context.Context) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-t.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Sweep(ctx)
			}
		}
	}()
	slog.Info("SLA tracker started", "interval", t.interval)
}

// Stop halts the sweep loop.
func (t *Tracker) Stop() {
	close(t.stopCh)
	t.wg.Wait()
}

// Sweep examines every open record inside the critical horizon and raises
// escalations for newly critical claims. Exported so the status CLI can
// run a one-shot sweep.
func (t *Tracker) Sweep(ctx context.Context) {
	now := time.Now().UTC()
	horizon := now.Add(time.Duration(t.cfg.CriticalHours) * time.Hour)

	recs, err := t.records.DueBefore(ctx, horizon)
	if err != nil {
		slog.Error("SLA sweep failed", "error", err)
		return
	}

	seen := make(map[string]bool, len(recs))
	for _, rec := range recs {
		seen[rec.ClaimID] = true
		if rec.Status.Terminal() {
			t.unlatch(rec.ClaimID)
			continue
		}
		band := Band(t.cfg, rec.DueAt, now)
		if band != domain.BandCritical {
			continue
		}
		if !t.latch(rec.ClaimID) {
			continue // already escalated
		}

		e := Escalation{
			ClaimID:   rec.ClaimID,
			Band:      band,
			DueAt:     rec.DueAt,
			Status:    rec.Status,
			RaisedAt:  now,
			Remaining: rec.DueAt.Sub(now),
		}
		metrics.Escalations.WithLabelValues(string(band)).Inc()
		slog.Warn("Claim entered critical SLA band",
			"claim", rec.ClaimID, "due", rec.DueAt, "remaining", e.Remaining, "status", rec.Status)
		if t.sink != nil {
			t.sink.Escalate(ctx, e)
		}
	}

	// Deadlines are immutable, so a latched claim that fell out of the
	// critical horizon must have reached a terminal status. Drop its latch.
	t.mu.Lock()
	for claimID := range t.latched {
		if !seen[claimID] {
			delete(t.latched, claimID)
		}
	}
	t.mu.Unlock()
}

// latch marks a claim escalated; returns false if it already was.
func (t *Tracker) latch(claimID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latched[claimID] {
		return false
	}
	t.latched[claimID] = true
	return true
}

func (t *Tracker) unlatch(claimID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.latched, claimID)
}
