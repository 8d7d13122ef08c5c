package readmodel

import (
	"context"
	"fmt"
	"time"

	"github.com/denialdesk/reclaim/internal/audit"
	"github.com/denialdesk/reclaim/internal/core/config"
	"github.com/denialdesk/reclaim/internal/core/domain"
	"github.com/denialdesk/reclaim/internal/infra/storage"
	"github.com/denialdesk/reclaim/internal/pipeline/sla"
)

// RecordView is a rejection record annotated for operators: the stored row
// plus its current SLA band.
type RecordView struct {
	*domain.RejectionRecord
	Band domain.PriorityBand `json:"band"`
}

// ClaimDetail is the full operator view of one claim: record, attempt
// history, and the audit trail.
type ClaimDetail struct {
	Record      RecordView                    `json:"record"`
	Attempts    []*domain.ResubmissionAttempt `json:"attempts"`
	Transitions []*domain.Transition          `json:"transitions"`
}

// Summary aggregates pipeline state for dashboards.
type Summary struct {
	ByStatus     map[domain.Status]int `json:"by_status"`
	Open         int                   `json:"open"`
	ManualReview int                   `json:"manual_review"`
	DeadLettered int                   `json:"dead_lettered"`
	Critical     int                   `json:"critical"` // open claims inside the critical band
	GeneratedAt  time.Time             `json:"generated_at"`
}

// Service answers operator queries over the pipeline's stored state. It is
// read-only; every mutation goes through the scheduler.
type Service struct {
	records  storage.RejectionRepository
	attempts storage.AttemptRepository
	log      *audit.Log
	bands    config.SLABandConfig
}

// New creates a read model service.
func New(records storage.RejectionRepository, attempts storage.AttemptRepository, log *audit.Log, bands config.SLABandConfig) *Service {
	return &Service{records: records, attempts: attempts, log: log, bands: bands}
}

// List returns records matching the filter, soonest deadline first, each
// annotated with its current band.
func (s *Service) List(ctx context.Context, f storage.RecordFilter) ([]RecordView, error) {
	recs, err := s.records.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	now := time.Now().UTC()
	out := make([]RecordView, len(recs))
	for i, rec := range recs {
		out[i] = RecordView{RejectionRecord: rec, Band: sla.Band(s.bands, rec.DueAt, now)}
	}
	return out, nil
}

// Detail returns the full view of one claim, including a replay of its
// transition log. The replayed status must agree with the stored row; a
// mismatch is surfaced as an error because it means the projection drifted.
func (s *Service) Detail(ctx context.Context, claimID string) (*ClaimDetail, error) {
	rec, err := s.records.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.attempts.ByClaim(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("load attempts: %w", err)
	}
	folded, transitions, err := s.log.Replay(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("replay transitions: %w", err)
	}
	if folded != rec.Status {
		return nil, fmt.Errorf("claim %s: stored status %s disagrees with replayed %s", claimID, rec.Status, folded)
	}

	return &ClaimDetail{
		Record:      RecordView{RejectionRecord: rec, Band: sla.Band(s.bands, rec.DueAt, time.Now().UTC())},
		Attempts:    attempts,
		Transitions: transitions,
	}, nil
}

// DeadLetters lists claims parked in DEAD_LETTERED, most urgent first.
func (s *Service) DeadLetters(ctx context.Context, limit, offset int) ([]RecordView, error) {
	return s.List(ctx, storage.RecordFilter{Status: domain.StatusDeadLettered, Limit: limit, Offset: offset})
}

// ManualReviewQueue lists claims waiting on a human.
func (s *Service) ManualReviewQueue(ctx context.Context, limit, offset int) ([]RecordView, error) {
	return s.List(ctx, storage.RecordFilter{Status: domain.StatusManualReview, Limit: limit, Offset: offset})
}

// Summarize builds the dashboard aggregate.
func (s *Service) Summarize(ctx context.Context) (*Summary, error) {
	byStatus, err := s.records.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}

	open := 0
	for status, n := range byStatus {
		if !status.Terminal() {
			open += n
		}
	}

	now := time.Now().UTC()
	horizon := now.Add(time.Duration(s.bands.CriticalHours) * time.Hour)
	due, err := s.records.DueBefore(ctx, horizon)
	if err != nil {
		return nil, fmt.Errorf("count critical: %w", err)
	}

	return &Summary{
		ByStatus:     byStatus,
		Open:         open,
		ManualReview: byStatus[domain.StatusManualReview],
		DeadLettered: byStatus[domain.StatusDeadLettered],
		Critical:     len(due),
		GeneratedAt:  now,
	}, nil
}
