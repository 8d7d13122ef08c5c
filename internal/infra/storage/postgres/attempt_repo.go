package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/denialdesk/reclaim/internal/core/domain"
	"github.com/denialdesk/reclaim/internal/infra/storage"
)

// AttemptRepo implements storage.AttemptRepository using PostgreSQL.
// The partial unique index ux_attempts_pending enforces the single
// in-flight invariant at the schema level.
type AttemptRepo struct {
	db *DB
}

// NewAttemptRepo creates a new PostgreSQL attempt repository.
func NewAttemptRepo(db *DB) *AttemptRepo {
	return &AttemptRepo{db: db}
}

type attemptRow struct {
	AttemptID          string         `db:"attempt_id"`
	ClaimID            string         `db:"claim_id"`
	AttemptNumber      int            `db:"attempt_number"`
	IdempotencyKey     string         `db:"idempotency_key"`
	CorrectionSnapshot []byte         `db:"correction_snapshot"`
	Outcome            string         `db:"outcome"`
	FailureReason      sql.NullString `db:"failure_reason"`
	StartedAt          time.Time      `db:"started_at"`
	FinishedAt         sql.NullTime   `db:"finished_at"`
}

func (r attemptRow) toDomain() *domain.ResubmissionAttempt {
	a := &domain.ResubmissionAttempt{
		AttemptID:          r.AttemptID,
		ClaimID:            r.ClaimID,
		AttemptNumber:      r.AttemptNumber,
		IdempotencyKey:     r.IdempotencyKey,
		CorrectionSnapshot: r.CorrectionSnapshot,
		Outcome:            domain.AttemptOutcome(r.Outcome),
		StartedAt:          r.StartedAt,
	}
	if r.FailureReason.Valid {
		a.FailureReason = r.FailureReason.String
	}
	if r.FinishedAt.Valid {
		a.FinishedAt = r.FinishedAt.Time
	}
	return a
}

// Begin inserts a pending attempt.
func (r *AttemptRepo) Begin(ctx context.Context, a *domain.ResubmissionAttempt) error {
	query := `
		INSERT INTO resubmission_attempts
			(attempt_id, claim_id, attempt_number, idempotency_key, correction_snapshot, outcome, started_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)
	`
	_, err := r.db.ExecContext(
		ctx, query,
		a.AttemptID, a.ClaimID, a.AttemptNumber, a.IdempotencyKey,
		a.CorrectionSnapshot, a.StartedAt,
	)
	if err != nil {
		// ux_attempts_pending: one pending attempt per claim
		if strings.Contains(err.Error(), "ux_attempts_pending") {
			return storage.ErrAttemptPending
		}
		return fmt.Errorf("failed to begin attempt: %w", err)
	}
	return nil
}

// Finish records the outcome of a pending attempt.
func (r *AttemptRepo) Finish(
	ctx context.Context,
	attemptID string,
	outcome domain.AttemptOutcome,
	reason string,
	finishedAt time.Time,
) error {
	query := `
		UPDATE resubmission_attempts
		SET outcome = $2, failure_reason = $3, finished_at = $4
		WHERE attempt_id = $1 AND outcome = 'pending'
	`
	res, err := r.db.ExecContext(ctx, query, attemptID, string(outcome), reason, finishedAt)
	if err != nil {
		return fmt.Errorf("failed to finish attempt: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ByClaim returns all attempts for a claim ordered by attempt_number.
func (r *AttemptRepo) ByClaim(ctx context.Context, claimID string) ([]*domain.ResubmissionAttempt, error) {
	query := `
		SELECT attempt_id, claim_id, attempt_number, idempotency_key,
			correction_snapshot, outcome, failure_reason, started_at, finished_at
		FROM resubmission_attempts
		WHERE claim_id = $1
		ORDER BY attempt_number ASC
	`
	var rows []attemptRow
	if err := r.db.SelectContext(ctx, &rows, query, claimID); err != nil {
		return nil, fmt.Errorf("failed to get attempts: %w", err)
	}
	out := make([]*domain.ResubmissionAttempt, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// LastNumber returns the highest attempt_number recorded for a claim.
func (r *AttemptRepo) LastNumber(ctx context.Context, claimID string) (int, error) {
	var n sql.NullInt64
	query := `SELECT MAX(attempt_number) FROM resubmission_attempts WHERE claim_id = $1`
	err := r.db.GetContext(ctx, &n, query, claimID)
	if errors.Is(err, sql.ErrNoRows) || !n.Valid {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get last attempt number: %w", err)
	}
	return int(n.Int64), nil
}
