package scheduler

import "context"

// Queue is the minimal transport the scheduler needs. Correctness of the
// pipeline does not depend on which implementation backs it; anything that
// hands back higher-priority claims first satisfies the contract. Queues are
// priority-ordered, not strictly FIFO.
type Queue interface {
	// Enqueue adds a claim. Higher priority dequeues first.
	Enqueue(ctx context.Context, priority float64, claimID string) error

	// Dequeue removes and returns the highest-priority claim.
	// ok is false when the queue is empty.
	Dequeue(ctx context.Context, workerID string) (claimID string, ok bool, err error)

	// Remove withdraws a specific claim (cancellation path).
	Remove(ctx context.Context, claimID string) (bool, error)

	// DeadLetter moves a claim to the dead-letter bucket.
	DeadLetter(ctx context.Context, claimID, reason string) error

	// Depth returns the number of queued claims.
	Depth(ctx context.Context) (int, error)
}
