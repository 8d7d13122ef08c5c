package audit

import "github.com/denialdesk/reclaim/internal/core/domain"

// allowedEdges is the full transition table of the resubmission state
// machine. An append that is not an edge here is rejected, never recorded.
var allowedEdges = map[domain.Status][]domain.Status{
	// "" is the birth edge for a freshly normalized record.
	"": {domain.StatusPendingClassification},

	domain.StatusPendingClassification: {
		domain.StatusPendingCorrection,
		domain.StatusManualReview, // unknown rejection code
	},
	domain.StatusPendingCorrection: {
		domain.StatusQueued,
		domain.StatusManualReview, // ineligible, low confidence, or failed strategy
	},
	domain.StatusManualReview: {
		domain.StatusQueued, // human action re-enters the pipeline
	},
	domain.StatusQueued: {
		domain.StatusInFlight,
		domain.StatusCancelled,
	},
	domain.StatusInFlight: {
		domain.StatusResolved,
		domain.StatusRetryWait,
		domain.StatusDeadLettered,
	},
	domain.StatusRetryWait: {
		domain.StatusQueued,
		domain.StatusCancelled,
	},
	// RESOLVED, DEAD_LETTERED, CANCELLED are terminal.
}

// LegalEdge reports whether the state machine permits from → to.
func LegalEdge(from, to domain.Status) bool {
	for _, next := range allowedEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Fold replays a transition sequence from empty state and returns the
// resulting status. An empty log folds to "".
func Fold(transitions []*domain.Transition) domain.Status {
	var current domain.Status
	for _, tr := range transitions {
		current = tr.ToStatus
	}
	return current
}
