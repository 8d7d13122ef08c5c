package domain

import "time"

// Status is the lifecycle state of a rejection record. Current status is
// always derived from the transition log, never stored as the only copy.
type Status string

const (
	StatusPendingClassification Status = "PENDING_CLASSIFICATION"
	StatusPendingCorrection     Status = "PENDING_CORRECTION"
	StatusManualReview          Status = "MANUAL_REVIEW"
	StatusQueued                Status = "QUEUED"
	StatusInFlight              Status = "IN_FLIGHT"
	StatusRetryWait             Status = "RETRY_WAIT"
	StatusResolved              Status = "RESOLVED"
	StatusDeadLettered          Status = "DEAD_LETTERED"
	StatusCancelled             Status = "CANCELLED"
)

// Terminal reports whether no automated transition can leave this status.
// MANUAL_REVIEW is terminal for the pipeline; a human re-enters it at QUEUED.
func (s Status) Terminal() bool {
	switch s {
	case StatusResolved, StatusDeadLettered, StatusCancelled:
		return true
	}
	return false
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Weight orders severities for priority scoring. Unknown severities rank
// below info so a corrupted value never jumps the queue.
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// RejectionRecord is the canonical form of one denied claim, produced by the
// normalizer and carried through the pipeline.
type RejectionRecord struct {
	CorrelationID     string    `json:"correlation_id" db:"correlation_id"`
	ClaimID           string    `json:"claim_id"       db:"claim_id"`
	PayerCode         string    `json:"payer_code"     db:"payer_code"`
	RejectionCode     string    `json:"rejection_code" db:"rejection_code"`
	Category          string    `json:"category"       db:"category"`
	Severity          Severity  `json:"severity"       db:"severity"`
	PriorityScore     float64   `json:"priority_score" db:"priority_score"`
	QueueClass        string    `json:"queue_class"    db:"queue_class"`
	AmountAtRisk      float64   `json:"amount_at_risk" db:"amount_at_risk"`
	Branch            string    `json:"branch"         db:"branch"`
	ReceivedAt        time.Time `json:"received_at"    db:"received_at"`
	DueAt             time.Time `json:"due_at"         db:"due_at"` // immutable once set; zero = no deadline
	Status            Status    `json:"status"         db:"status"`
	AttemptCount      int       `json:"attempt_count"  db:"attempt_count"`
	ConfidenceScore   float64   `json:"confidence_score" db:"confidence_score"`
	CorrectionPayload []byte    `json:"correction_payload,omitempty" db:"correction_payload"`
	StatusReason      string    `json:"status_reason"  db:"status_reason"`
	ImportBatchID     string    `json:"import_batch_id" db:"import_batch_id"`
}
