package storage

import (
	"context"
	"errors"
	"time"

	"github.com/denialdesk/reclaim/internal/core/domain"
)

var (
	// ErrNotFound is returned when a record doesn't exist
	ErrNotFound = errors.New("record not found")

	// ErrAttemptPending is returned when an attempt insert would violate the
	// single in-flight invariant
	ErrAttemptPending = errors.New("attempt already pending for claim")

	// ErrStatusConflict is returned when a conditional status update loses a race
	ErrStatusConflict = errors.New("status changed concurrently")
)

// RecordFilter narrows List queries for the read model.
type RecordFilter struct {
	Status      domain.Status
	Branch      string
	Severity    domain.Severity
	ShouldAlert bool // due inside the critical band
	Limit       int
	Offset      int
}

// RejectionRepository handles rejection record storage
type RejectionRepository interface {
	// Save inserts a record keyed by correlation_id
	Save(ctx context.Context, rec *domain.RejectionRecord) error

	// SaveBatch inserts multiple records
	SaveBatch(ctx context.Context, recs []*domain.RejectionRecord) error

	// Get retrieves a record by claim id
	Get(ctx context.Context, claimID string) (*domain.RejectionRecord, error)

	// Update persists classifier/corrector/scheduler mutations
	Update(ctx context.Context, rec *domain.RejectionRecord) error

	// CompareAndSetStatus updates status only when the stored status matches
	// expected. Returns ErrStatusConflict when it doesn't.
	CompareAndSetStatus(ctx context.Context, claimID string, expected, next domain.Status, reason string) error

	// List returns records matching the filter, ordered by due_at ascending
	List(ctx context.Context, f RecordFilter) ([]*domain.RejectionRecord, error)

	// CountByStatus returns record counts grouped by status
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)

	// CountByStatusIn returns the number of records in any of the given statuses
	CountByStatusIn(ctx context.Context, statuses ...domain.Status) (int, error)

	// DueBefore returns non-terminal records whose deadline falls before t
	DueBefore(ctx context.Context, t time.Time) ([]*domain.RejectionRecord, error)
}

// AttemptRepository handles resubmission attempt storage
type AttemptRepository interface {
	// Begin inserts a pending attempt. Fails with ErrAttemptPending if the
	// claim already has one.
	Begin(ctx context.Context, a *domain.ResubmissionAttempt) error

	// Finish records the outcome of a pending attempt
	Finish(ctx context.Context, attemptID string, outcome domain.AttemptOutcome, reason string, finishedAt time.Time) error

	// ByClaim returns all attempts for a claim ordered by attempt_number
	ByClaim(ctx context.Context, claimID string) ([]*domain.ResubmissionAttempt, error)

	// LastNumber returns the highest attempt_number recorded for a claim (0 if none)
	LastNumber(ctx context.Context, claimID string) (int, error)
}

// TransitionRepository is the append-only audit log
type TransitionRepository interface {
	// Append records a transition. Appends for the same claim are serialized.
	Append(ctx context.Context, tr *domain.Transition) error

	// ByClaim returns all transitions for a claim in append order
	ByClaim(ctx context.Context, claimID string) ([]*domain.Transition, error)

	// Latest returns the most recent transition for a claim, or ErrNotFound
	Latest(ctx context.Context, claimID string) (*domain.Transition, error)
}
