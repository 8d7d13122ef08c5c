package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/denialdesk/reclaim/internal/core/domain"
	"github.com/denialdesk/reclaim/internal/infra/storage"
)

// TransitionRepo implements storage.TransitionRepository using PostgreSQL.
// Inserts are append-only; there is no update or delete path.
type TransitionRepo struct {
	db *DB
}

// NewTransitionRepo creates a new PostgreSQL transition repository.
func NewTransitionRepo(db *DB) *TransitionRepo {
	return &TransitionRepo{db: db}
}

// Append records a transition. A per-claim advisory lock serializes
// concurrent appends for the same claim without blocking other claims.
func (r *TransitionRepo) Append(ctx context.Context, tr *domain.Transition) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(
		ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, tr.ClaimID,
	); err != nil {
		return fmt.Errorf("failed to take claim lock: %w", err)
	}

	query := `
		INSERT INTO transitions (id, claim_id, from_status, to_status, actor, reason, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := tx.ExecContext(
		ctx, query,
		tr.ID, tr.ClaimID, string(tr.FromStatus), string(tr.ToStatus),
		tr.Actor, tr.Reason, tr.Timestamp,
	); err != nil {
		return fmt.Errorf("failed to append transition: %w", err)
	}
	return tx.Commit()
}

type transitionRow struct {
	ID         string       `db:"id"`
	ClaimID    string       `db:"claim_id"`
	FromStatus string       `db:"from_status"`
	ToStatus   string       `db:"to_status"`
	Actor      string       `db:"actor"`
	Reason     string       `db:"reason"`
	Timestamp  sql.NullTime `db:"timestamp"`
}

func (r transitionRow) toDomain() *domain.Transition {
	tr := &domain.Transition{
		ID:         r.ID,
		ClaimID:    r.ClaimID,
		FromStatus: domain.Status(r.FromStatus),
		ToStatus:   domain.Status(r.ToStatus),
		Actor:      r.Actor,
		Reason:     r.Reason,
	}
	if r.Timestamp.Valid {
		tr.Timestamp = r.Timestamp.Time
	}
	return tr
}

// ByClaim returns all transitions for a claim in append order.
func (r *TransitionRepo) ByClaim(ctx context.Context, claimID string) ([]*domain.Transition, error) {
	query := `
		SELECT id, claim_id, from_status, to_status, actor, reason, timestamp
		FROM transitions
		WHERE claim_id = $1
		ORDER BY seq ASC
	`
	var rows []transitionRow
	if err := r.db.SelectContext(ctx, &rows, query, claimID); err != nil {
		return nil, fmt.Errorf("failed to get transitions: %w", err)
	}
	out := make([]*domain.Transition, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// Latest returns the most recent transition for a claim.
func (r *TransitionRepo) Latest(ctx context.Context, claimID string) (*domain.Transition, error) {
	query := `
		SELECT id, claim_id, from_status, to_status, actor, reason, timestamp
		FROM transitions
		WHERE claim_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`
	var row transitionRow
	err := r.db.GetContext(ctx, &row, query, claimID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest transition: %w", err)
	}
	return row.toDomain(), nil
}
