package submit

import (
	"context"
	"encoding/json"
)

// SubmissionRequest is the payload sent to the external claims endpoint.
type SubmissionRequest struct {
	ClaimID          string          `json:"claim_id"`
	IdempotencyKey   string          `json:"idempotency_key"`
	CorrectedPayload json.RawMessage `json:"corrected_payload"`
	AttemptNumber    int             `json:"attempt_number"`
}

// Disposition is the endpoint's answer classified for the scheduler.
type Disposition string

const (
	DispositionSuccess   Disposition = "success"
	DispositionRetryable Disposition = "retryable_failure"
	DispositionTerminal  Disposition = "terminal_failure"
)

// SubmissionResponse carries the classified outcome plus the endpoint's
// human-readable reason for terminal failures.
type SubmissionResponse struct {
	Disposition Disposition `json:"disposition"`
	Reason      string      `json:"reason"`
}

// Submitter delivers one resubmission attempt to the external claims
// endpoint. Implementations must classify every failure into retryable or
// terminal; a transport error they cannot classify is retryable.
type Submitter interface {
	Submit(ctx context.Context, req SubmissionRequest) (SubmissionResponse, error)
	Close() error
}
