package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/denialdesk/reclaim/internal/core/domain"
	"github.com/denialdesk/reclaim/internal/infra/storage"
)

// MemoryStorage backs all repositories when no database is configured.
// Used in dev mode and in tests.
type MemoryStorage struct {
	records     map[string]*domain.RejectionRecord       // by claim id
	attempts    map[string][]*domain.ResubmissionAttempt // by claim id
	transitions map[string][]*domain.Transition          // by claim id
	mu          sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records:     make(map[string]*domain.RejectionRecord),
		attempts:    make(map[string][]*domain.ResubmissionAttempt),
		transitions: make(map[string][]*domain.Transition),
	}
}

func copyRecord(r *domain.RejectionRecord) *domain.RejectionRecord {
	cp := *r
	if r.CorrectionPayload != nil {
		cp.CorrectionPayload = append([]byte(nil), r.CorrectionPayload...)
	}
	return &cp
}

// -----------------------------------------------------------------------------
// Rejection Repository
// -----------------------------------------------------------------------------

type RejectionRepo struct {
	store *MemoryStorage
}

func NewRejectionRepo(store *MemoryStorage) *RejectionRepo {
	return &RejectionRepo{store: store}
}

func (r *RejectionRepo) Save(ctx context.Context, rec *domain.RejectionRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.records[rec.ClaimID] = copyRecord(rec)
	return nil
}

func (r *RejectionRepo) SaveBatch(ctx context.Context, recs []*domain.RejectionRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, rec := range recs {
		r.store.records[rec.ClaimID] = copyRecord(rec)
	}
	return nil
}

func (r *RejectionRepo) Get(ctx context.Context, claimID string) (*domain.RejectionRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rec, ok := r.store.records[claimID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyRecord(rec), nil
}

func (r *RejectionRepo) Update(ctx context.Context, rec *domain.RejectionRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.records[rec.ClaimID]; !ok {
		return storage.ErrNotFound
	}
	r.store.records[rec.ClaimID] = copyRecord(rec)
	return nil
}

func (r *RejectionRepo) CompareAndSetStatus(
	ctx context.Context,
	claimID string,
	expected, next domain.Status,
	reason string,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rec, ok := r.store.records[claimID]
	if !ok {
		return storage.ErrNotFound
	}
	if rec.Status != expected {
		return storage.ErrStatusConflict
	}
	rec.Status = next
	rec.StatusReason = reason
	return nil
}

func (r *RejectionRepo) List(ctx context.Context, f storage.RecordFilter) ([]*domain.RejectionRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.RejectionRecord
	for _, rec := range r.store.records {
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if f.Branch != "" && rec.Branch != f.Branch {
			continue
		}
		if f.Severity != "" && rec.Severity != f.Severity {
			continue
		}
		if f.ShouldAlert {
			if rec.DueAt.IsZero() || rec.Status.Terminal() {
				continue
			}
		}
		out = append(out, copyRecord(rec))
	}

	sort.Slice(out, func(i, j int) bool {
		// Zero due dates sort last
		if out[i].DueAt.IsZero() != out[j].DueAt.IsZero() {
			return out[j].DueAt.IsZero()
		}
		return out[i].DueAt.Before(out[j].DueAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *RejectionRepo) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	counts := make(map[domain.Status]int)
	for _, rec := range r.store.records {
		counts[rec.Status]++
	}
	return counts, nil
}

func (r *RejectionRepo) CountByStatusIn(ctx context.Context, statuses ...domain.Status) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	count := 0
	for _, rec := range r.store.records {
		for _, s := range statuses {
			if rec.Status == s {
				count++
				break
			}
		}
	}
	return count, nil
}

func (r *RejectionRepo) DueBefore(ctx context.Context, t time.Time) ([]*domain.RejectionRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.RejectionRecord
	for _, rec := range r.store.records {
		if rec.DueAt.IsZero() || rec.Status.Terminal() {
			continue
		}
		if rec.DueAt.Before(t) {
			out = append(out, copyRecord(rec))
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Attempt Repository
// -----------------------------------------------------------------------------

type AttemptRepo struct {
	store *MemoryStorage
}

func NewAttemptRepo(store *MemoryStorage) *AttemptRepo {
	return &AttemptRepo{store: store}
}

func (r *AttemptRepo) Begin(ctx context.Context, a *domain.ResubmissionAttempt) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, prev := range r.store.attempts[a.ClaimID] {
		if prev.Outcome == domain.OutcomePending {
			return storage.ErrAttemptPending
		}
	}
	cp := *a
	r.store.attempts[a.ClaimID] = append(r.store.attempts[a.ClaimID], &cp)
	return nil
}

func (r *AttemptRepo) Finish(
	ctx context.Context,
	attemptID string,
	outcome domain.AttemptOutcome,
	reason string,
	finishedAt time.Time,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, attempts := range r.store.attempts {
		for _, a := range attempts {
			if a.AttemptID == attemptID {
				a.Outcome = outcome
				a.FailureReason = reason
				a.FinishedAt = finishedAt
				return nil
			}
		}
	}
	return storage.ErrNotFound
}

func (r *AttemptRepo) ByClaim(ctx context.Context, claimID string) ([]*domain.ResubmissionAttempt, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	attempts := r.store.attempts[claimID]
	out := make([]*domain.ResubmissionAttempt, len(attempts))
	for i, a := range attempts {
		cp := *a
		out[i] = &cp
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out, nil
}

func (r *AttemptRepo) LastNumber(ctx context.Context, claimID string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	max := 0
	for _, a := range r.store.attempts[claimID] {
		if a.AttemptNumber > max {
			max = a.AttemptNumber
		}
	}
	return max, nil
}

// -----------------------------------------------------------------------------
// Transition Repository
// -----------------------------------------------------------------------------

type TransitionRepo struct {
	store *MemoryStorage
}

func NewTransitionRepo(store *MemoryStorage) *TransitionRepo {
	return &TransitionRepo{store: store}
}

func (r *TransitionRepo) Append(ctx context.Context, tr *domain.Transition) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *tr
	r.store.transitions[tr.ClaimID] = append(r.store.transitions[tr.ClaimID], &cp)
	return nil
}

func (r *TransitionRepo) ByClaim(ctx context.Context, claimID string) ([]*domain.Transition, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	trs := r.store.transitions[claimID]
	out := make([]*domain.Transition, len(trs))
	for i, tr := range trs {
		cp := *tr
		out[i] = &cp
	}
	return out, nil
}

func (r *TransitionRepo) Latest(ctx context.Context, claimID string) (*domain.Transition, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	trs := r.store.transitions[claimID]
	if len(trs) == 0 {
		return nil, storage.ErrNotFound
	}
	cp := *trs[len(trs)-1]
	return &cp, nil
}
