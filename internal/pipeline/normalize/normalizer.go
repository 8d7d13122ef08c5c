package normalize

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/denialdesk/reclaim/internal/core/domain"
	"github.com/denialdesk/reclaim/internal/pipeline/metrics"
)

// dateLayouts covers the formats seen across payer export files.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"02/01/2006",
	"01-02-2006",
	"2006-01-02 15:04:05",
}

// Result is the outcome of normalizing one batch: canonical records plus the
// rows that could not be coerced. A malformed row never aborts the batch.
type Result struct {
	BatchID string
	Records []*domain.RejectionRecord
	Errors  []domain.RowError
}

// Normalizer converts heterogeneous per-payer rejection rows into canonical
// records. It is pure apart from metrics: no network, no storage writes.
type Normalizer struct {
	slaWindow time.Duration // due_at = received_at + slaWindow when the payer gives no deadline
}

// New creates a normalizer. slaWindow of zero leaves due_at unset for rows
// without an explicit deadline.
func New(slaWindow time.Duration) *Normalizer {
	return &Normalizer{slaWindow: slaWindow}
}

// Normalize coerces a batch of raw rows. Every row either becomes a record
// in StatusPendingClassification or a RowError; row order is preserved.
func (n *Normalizer) Normalize(rows []domain.RawRow) Result {
	res := Result{BatchID: uuid.New().String()}

	for i, row := range rows {
		rec, rowErr := n.normalizeRow(i, row)
		if rowErr != nil {
			metrics.RowsRejected.WithLabelValues(rowErr.Field).Inc()
			res.Errors = append(res.Errors, *rowErr)
			continue
		}
		rec.ImportBatchID = res.BatchID
		metrics.RecordsIngested.WithLabelValues(rec.PayerCode).Inc()
		res.Records = append(res.Records, rec)
	}
	return res
}

func (n *Normalizer) normalizeRow(idx int, row domain.RawRow) (*domain.RejectionRecord, *domain.RowError) {
	claimID := strings.TrimSpace(row.ClaimID)
	if claimID == "" {
		return nil, &domain.RowError{Index: idx, Field: "claim_id", Reason: "required field missing"}
	}

	rejectionCode := strings.ToUpper(strings.TrimSpace(row.RejectionCode))
	if rejectionCode == "" {
		return nil, &domain.RowError{Index: idx, Field: "rejection_code", Reason: "required field missing"}
	}

	if strings.TrimSpace(row.Amount) == "" {
		return nil, &domain.RowError{Index: idx, Field: "amount", Reason: "required field missing"}
	}
	amount, err := parseAmount(row.Amount)
	if err != nil {
		return nil, &domain.RowError{Index: idx, Field: "amount", Reason: err.Error()}
	}
	if amount < 0 {
		return nil, &domain.RowError{Index: idx, Field: "amount", Reason: "negative amount"}
	}

	if strings.TrimSpace(row.RejectionDate) == "" {
		return nil, &domain.RowError{Index: idx, Field: "rejection_date", Reason: "required field missing"}
	}
	receivedAt, err := parseDate(row.RejectionDate)
	if err != nil {
		return nil, &domain.RowError{Index: idx, Field: "rejection_date", Reason: err.Error()}
	}

	rec := &domain.RejectionRecord{
		CorrelationID: uuid.New().String(),
		ClaimID:       claimID,
		PayerCode:     strings.ToUpper(strings.TrimSpace(row.PayerCode)),
		RejectionCode: rejectionCode,
		AmountAtRisk:  amount,
		Branch:        strings.TrimSpace(row.Branch),
		ReceivedAt:    receivedAt,
		Status:        domain.StatusPendingClassification,
	}
	// Optional fields stay zero-valued; nothing is fabricated.
	if n.slaWindow > 0 {
		rec.DueAt = receivedAt.Add(n.slaWindow)
	}
	return rec, nil
}

func parseAmount(s string) (float64, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, errors.New("not a number: " + s)
	}
	return v, nil
}

func parseDate(s string) (time.Time, error) {
	cleaned := strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.New("unrecognized date format: " + s)
}
