// Package health provides system health monitoring and the operator HTTP API.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// PipelineHealth contains health metrics for the resubmission pipeline.
type PipelineHealth struct {
	Status        SystemStatus   `json:"status"`
	Storage       string         `json:"storage"` // ok or the error string
	QueueDepths   map[string]int `json:"queue_depths"`
	Backpressure  []string       `json:"backpressure,omitempty"` // classes over threshold
	OpenClaims    int            `json:"open_claims"`
	StuckInFlight int            `json:"stuck_in_flight"`
	ManualReview  int            `json:"manual_review"`
	DeadLettered  int            `json:"dead_lettered"`
}
