package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/denialdesk/reclaim/internal/core/domain"
	"github.com/denialdesk/reclaim/internal/infra/storage"
)

// ErrIllegalTransition is returned when an append does not match an allowed
// state machine edge.
var ErrIllegalTransition = errors.New("illegal status transition")

// Log is the append-only transition log and the source of truth for claim
// status. Every status change in the pipeline goes through Record.
type Log struct {
	repo storage.TransitionRepository

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLog creates an audit log over a transition repository.
func NewLog(repo storage.TransitionRepository) *Log {
	return &Log{repo: repo, locks: make(map[string]*sync.Mutex)}
}

func (l *Log) claimLock(claimID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[claimID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[claimID] = m
	}
	return m
}

// Record validates from → to against the state machine and appends the
// transition. The stale-from check and the append run under a per-claim
// lock, so two racing writers cannot both advance the same claim.
func (l *Log) Record(ctx context.Context, claimID string, from, to domain.Status, actor, reason string) error {
	if !LegalEdge(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	lock := l.claimLock(claimID)
	lock.Lock()
	defer lock.Unlock()

	latest, err := l.repo.Latest(ctx, claimID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if from != "" {
			return fmt.Errorf("%w: claim %s has no history, cannot leave %s", ErrIllegalTransition, claimID, from)
		}
	case err != nil:
		return fmt.Errorf("failed to read latest transition: %w", err)
	default:
		if latest.ToStatus != from {
			return fmt.Errorf("%w: claim %s is %s, not %s", ErrIllegalTransition, claimID, latest.ToStatus, from)
		}
	}

	tr := &domain.Transition{
		ID:         uuid.New().String(),
		ClaimID:    claimID,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		Reason:     reason,
		Timestamp:  time.Now().UTC(),
	}
	if err := l.repo.Append(ctx, tr); err != nil {
		return fmt.Errorf("failed to append transition: %w", err)
	}
	return nil
}

// CurrentStatus returns the to_status of the most recent transition.
func (l *Log) CurrentStatus(ctx context.Context, claimID string) (domain.Status, error) {
	latest, err := l.repo.Latest(ctx, claimID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read latest transition: %w", err)
	}
	return latest.ToStatus, nil
}

// Replay folds the full transition log for a claim from empty state. Used
// for crash recovery and as the audit-replay correctness check.
func (l *Log) Replay(ctx context.Context, claimID string) (domain.Status, []*domain.Transition, error) {
	trs, err := l.repo.ByClaim(ctx, claimID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load transitions: %w", err)
	}
	return Fold(trs), trs, nil
}

// History returns the raw transition log for a claim.
func (l *Log) History(ctx context.Context, claimID string) ([]*domain.Transition, error) {
	return l.repo.ByClaim(ctx, claimID)
}
