package domain

import "fmt"

// RawRow is one heterogeneous rejection-report row as delivered by an
// upstream import. Field presence varies by payer; the normalizer owns
// coercion into RejectionRecord.
type RawRow struct {
	ClaimID       string `json:"claim_id"`
	PayerCode     string `json:"payer_code"`
	RejectionCode string `json:"rejection_code"`
	RejectionDate string `json:"rejection_date"`
	Amount        string `json:"amount"`
	Branch        string `json:"branch"`
	RawSource     string `json:"raw_source"`
}

// RowError records a malformed row that was skipped during normalization.
// The batch itself never aborts on a bad row.
type RowError struct {
	Index  int    `json:"index"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s: %s", e.Index, e.Field, e.Reason)
}
