package domain

import "time"

// ActorSystem marks transitions performed by the pipeline itself, as opposed
// to a human operator id.
const ActorSystem = "system"

// Transition is one append-only audit log entry. Transitions are never
// mutated or deleted; a claim's current status is the to_status of its most
// recent transition.
type Transition struct {
	ID         string    `json:"id"          db:"id"`
	ClaimID    string    `json:"claim_id"    db:"claim_id"`
	FromStatus Status    `json:"from_status" db:"from_status"`
	ToStatus   Status    `json:"to_status"   db:"to_status"`
	Actor      string    `json:"actor"       db:"actor"`
	Reason     string    `json:"reason"      db:"reason"`
	Timestamp  time.Time `json:"timestamp"   db:"timestamp"`
}
