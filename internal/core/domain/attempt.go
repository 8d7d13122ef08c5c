package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

type AttemptOutcome string

const (
	OutcomePending          AttemptOutcome = "pending"
	OutcomeSuccess          AttemptOutcome = "success"
	OutcomeRetryableFailure AttemptOutcome = "retryable_failure"
	OutcomeTerminalFailure  AttemptOutcome = "terminal_failure"
)

// ResubmissionAttempt records one try against the external claims endpoint.
// At most one attempt per claim may be pending at any time.
type ResubmissionAttempt struct {
	AttemptID          string         `json:"attempt_id"          db:"attempt_id"`
	ClaimID            string         `json:"claim_id"            db:"claim_id"`
	AttemptNumber      int            `json:"attempt_number"      db:"attempt_number"` // 1-based, strictly increasing
	IdempotencyKey     string         `json:"idempotency_key"     db:"idempotency_key"`
	CorrectionSnapshot []byte         `json:"correction_snapshot" db:"correction_snapshot"`
	Outcome            AttemptOutcome `json:"outcome"             db:"outcome"`
	FailureReason      string         `json:"failure_reason"      db:"failure_reason"`
	StartedAt          time.Time      `json:"started_at"          db:"started_at"`
	FinishedAt         time.Time      `json:"finished_at"         db:"finished_at"`
}

// IdempotencyKey derives the replay-safe key for one attempt. The same
// (claim, attempt_number) pair always yields the same key, so at-least-once
// delivery to the submission endpoint cannot duplicate financial effect.
func IdempotencyKey(claimID string, attemptNumber int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", claimID, attemptNumber)))
	return hex.EncodeToString(sum[:16])
}
