package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/denialdesk/reclaim/internal/core/domain"
	"github.com/denialdesk/reclaim/internal/infra/storage"
)

// RejectionRepo implements storage.RejectionRepository using PostgreSQL.
type RejectionRepo struct {
	db *DB
}

// NewRejectionRepo creates a new PostgreSQL rejection record repository.
func NewRejectionRepo(db *DB) *RejectionRepo {
	return &RejectionRepo{db: db}
}

type rejectionRow struct {
	CorrelationID     string         `db:"correlation_id"`
	ClaimID           string         `db:"claim_id"`
	PayerCode         string         `db:"payer_code"`
	RejectionCode     string         `db:"rejection_code"`
	Category          string         `db:"category"`
	Severity          string         `db:"severity"`
	PriorityScore     float64        `db:"priority_score"`
	QueueClass        string         `db:"queue_class"`
	AmountAtRisk      float64        `db:"amount_at_risk"`
	Branch            string         `db:"branch"`
	ReceivedAt        time.Time      `db:"received_at"`
	DueAt             sql.NullTime   `db:"due_at"`
	Status            string         `db:"status"`
	AttemptCount      int            `db:"attempt_count"`
	ConfidenceScore   float64        `db:"confidence_score"`
	CorrectionPayload []byte         `db:"correction_payload"`
	StatusReason      sql.NullString `db:"status_reason"`
	ImportBatchID     string         `db:"import_batch_id"`
}

func (r rejectionRow) toDomain() *domain.RejectionRecord {
	rec := &domain.RejectionRecord{
		CorrelationID:     r.CorrelationID,
		ClaimID:           r.ClaimID,
		PayerCode:         r.PayerCode,
		RejectionCode:     r.RejectionCode,
		Category:          r.Category,
		Severity:          domain.Severity(r.Severity),
		PriorityScore:     r.PriorityScore,
		QueueClass:        r.QueueClass,
		AmountAtRisk:      r.AmountAtRisk,
		Branch:            r.Branch,
		ReceivedAt:        r.ReceivedAt,
		Status:            domain.Status(r.Status),
		AttemptCount:      r.AttemptCount,
		ConfidenceScore:   r.ConfidenceScore,
		CorrectionPayload: r.CorrectionPayload,
		ImportBatchID:     r.ImportBatchID,
	}
	if r.DueAt.Valid {
		rec.DueAt = r.DueAt.Time
	}
	if r.StatusReason.Valid {
		rec.StatusReason = r.StatusReason.String
	}
	return rec
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

const rejectionColumns = `correlation_id, claim_id, payer_code, rejection_code, category, severity,
		priority_score, queue_class, amount_at_risk, branch, received_at, due_at, status,
		attempt_count, confidence_score, correction_payload, status_reason, import_batch_id`

// Save inserts a rejection record.
func (r *RejectionRepo) Save(ctx context.Context, rec *domain.RejectionRecord) error {
	query := `
		INSERT INTO rejection_records (` + rejectionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := r.db.ExecContext(
		ctx, query,
		rec.CorrelationID, rec.ClaimID, rec.PayerCode, rec.RejectionCode,
		rec.Category, string(rec.Severity), rec.PriorityScore, rec.QueueClass,
		rec.AmountAtRisk, rec.Branch, rec.ReceivedAt, nullTime(rec.DueAt),
		string(rec.Status), rec.AttemptCount, rec.ConfidenceScore,
		rec.CorrectionPayload, rec.StatusReason, rec.ImportBatchID,
	)
	if err != nil {
		return fmt.Errorf("failed to save rejection record: %w", err)
	}
	return nil
}

// SaveBatch inserts multiple records in one transaction.
func (r *RejectionRepo) SaveBatch(ctx context.Context, recs []*domain.RejectionRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO rejection_records (` + rejectionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	for _, rec := range recs {
		if _, err := tx.ExecContext(
			ctx, query,
			rec.CorrelationID, rec.ClaimID, rec.PayerCode, rec.RejectionCode,
			rec.Category, string(rec.Severity), rec.PriorityScore, rec.QueueClass,
			rec.AmountAtRisk, rec.Branch, rec.ReceivedAt, nullTime(rec.DueAt),
			string(rec.Status), rec.AttemptCount, rec.ConfidenceScore,
			rec.CorrectionPayload, rec.StatusReason, rec.ImportBatchID,
		); err != nil {
			return fmt.Errorf("failed to save rejection record %s: %w", rec.ClaimID, err)
		}
	}
	return tx.Commit()
}

// Get retrieves a record by claim id.
func (r *RejectionRepo) Get(ctx context.Context, claimID string) (*domain.RejectionRecord, error) {
	query := `SELECT ` + rejectionColumns + ` FROM rejection_records WHERE claim_id = $1`

	var row rejectionRow
	err := r.db.GetContext(ctx, &row, query, claimID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rejection record: %w", err)
	}
	return row.toDomain(), nil
}

// Update persists classifier/corrector/scheduler mutations.
func (r *RejectionRepo) Update(ctx context.Context, rec *domain.RejectionRecord) error {
	query := `
		UPDATE rejection_records
		SET category = $2, severity = $3, priority_score = $4, queue_class = $5,
			status = $6, attempt_count = $7, confidence_score = $8,
			correction_payload = $9, status_reason = $10
		WHERE claim_id = $1
	`
	res, err := r.db.ExecContext(
		ctx, query,
		rec.ClaimID, rec.Category, string(rec.Severity), rec.PriorityScore,
		rec.QueueClass, string(rec.Status), rec.AttemptCount, rec.ConfidenceScore,
		rec.CorrectionPayload, rec.StatusReason,
	)
	if err != nil {
		return fmt.Errorf("failed to update rejection record: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CompareAndSetStatus updates status only when the stored status matches
// expected. Losing the race returns ErrStatusConflict.
func (r *RejectionRepo) CompareAndSetStatus(
	ctx context.Context,
	claimID string,
	expected, next domain.Status,
	reason string,
) error {
	query := `
		UPDATE rejection_records
		SET status = $3, status_reason = $4
		WHERE claim_id = $1 AND status = $2
	`
	res, err := r.db.ExecContext(ctx, query, claimID, string(expected), string(next), reason)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Either missing or concurrently moved; distinguish for callers
		var exists bool
		if err := r.db.GetContext(ctx, &exists,
			`SELECT EXISTS(SELECT 1 FROM rejection_records WHERE claim_id = $1)`, claimID); err != nil {
			return fmt.Errorf("failed to check record: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrStatusConflict
	}
	return nil
}

// List returns records matching the filter, soonest deadline first.
func (r *RejectionRepo) List(ctx context.Context, f storage.RecordFilter) ([]*domain.RejectionRecord, error) {
	query := `SELECT ` + rejectionColumns + ` FROM rejection_records WHERE 1=1`
	args := []any{}

	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Branch != "" {
		args = append(args, f.Branch)
		query += fmt.Sprintf(" AND branch = $%d", len(args))
	}
	if f.Severity != "" {
		args = append(args, string(f.Severity))
		query += fmt.Sprintf(" AND severity = $%d", len(args))
	}
	if f.ShouldAlert {
		query += ` AND due_at IS NOT NULL AND status NOT IN ('RESOLVED', 'DEAD_LETTERED', 'CANCELLED')`
	}

	query += ` ORDER BY due_at ASC NULLS LAST`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var rows []rejectionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list rejection records: %w", err)
	}

	out := make([]*domain.RejectionRecord, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// CountByStatus returns record counts grouped by status.
func (r *RejectionRepo) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	query := `SELECT status, COUNT(*) AS count FROM rejection_records GROUP BY status`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}
	counts := make(map[domain.Status]int, len(rows))
	for _, row := range rows {
		counts[domain.Status(row.Status)] = row.Count
	}
	return counts, nil
}

// CountByStatusIn returns the number of records in any of the given statuses.
func (r *RejectionRepo) CountByStatusIn(ctx context.Context, statuses ...domain.Status) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	args := make([]any, len(statuses))
	in := ""
	for i, s := range statuses {
		args[i] = string(s)
		if i > 0 {
			in += ", "
		}
		in += fmt.Sprintf("$%d", i+1)
	}
	var count int
	query := `SELECT COUNT(*) FROM rejection_records WHERE status IN (` + in + `)`
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count by status: %w", err)
	}
	return count, nil
}

// DueBefore returns non-terminal records whose deadline falls before t.
func (r *RejectionRepo) DueBefore(ctx context.Context, t time.Time) ([]*domain.RejectionRecord, error) {
	query := `
		SELECT ` + rejectionColumns + `
		FROM rejection_records
		WHERE due_at IS NOT NULL AND due_at < $1
		  AND status NOT IN ('RESOLVED', 'DEAD_LETTERED', 'CANCELLED')
		ORDER BY due_at ASC
	`
	var rows []rejectionRow
	if err := r.db.SelectContext(ctx, &rows, query, t); err != nil {
		return nil, fmt.Errorf("failed to query due records: %w", err)
	}
	out := make([]*domain.RejectionRecord, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}
