package health

import (
	"context"
	"sync"
	"time"

	"github.com/denialdesk/reclaim/internal/core/config"
	"github.com/denialdesk/reclaim/internal/core/domain"
	"github.com/denialdesk/reclaim/internal/infra/storage"
	"github.com/denialdesk/reclaim/internal/pipeline/scheduler"
)

// StoragePinger checks backing-store connectivity. The in-memory store has
// nothing to ping and passes nil.
type StoragePinger interface {
	Health(ctx context.Context) error
}

// Monitor aggregates health status from the pipeline's components.
type Monitor struct {
	records storage.RejectionRepository
	queues  map[string]scheduler.Queue
	classes []config.QueueClassConfig
	pinger  StoragePinger

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport PipelineHealth
}

// NewMonitor creates a health monitor.
func NewMonitor(
	records storage.RejectionRepository,
	queues map[string]scheduler.Queue,
	classes []config.QueueClassConfig,
	pinger StoragePinger,
) *Monitor {
	return &Monitor{records: records, queues: queues, classes: classes, pinger: pinger}
}

// CheckHealth builds the current health report. Checks are rate limited to
// once per 10s so a scrape storm cannot hammer the database.
func (m *Monitor) CheckHealth(ctx context.Context) PipelineHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < 10*time.Second && !m.lastCheck.IsZero() {
		return m.lastReport
	}

	report := PipelineHealth{
		Status:      StatusHealthy,
		Storage:     "ok",
		QueueDepths: make(map[string]int),
	}

	if m.pinger != nil {
		if err := m.pinger.Health(ctx); err != nil {
			report.Storage = err.Error()
			report.Status = StatusCritical
		}
	}

	for class, q := range m.queues {
		depth, err := q.Depth(ctx)
		if err != nil {
			continue
		}
		report.QueueDepths[class] = depth
		for _, qc := range m.classes {
			if qc.Name == class && qc.BackpressureThreshold > 0 && depth > qc.BackpressureThreshold {
				report.Backpressure = append(report.Backpressure, class)
			}
		}
	}

	if counts, err := m.records.CountByStatus(ctx); err == nil {
		for status, n := range counts {
			if !status.Terminal() {
				report.OpenClaims += n
			}
		}
		report.StuckInFlight = counts[domain.StatusInFlight]
		report.ManualReview = counts[domain.StatusManualReview]
		report.DeadLettered = counts[domain.StatusDeadLettered]
	}

	if report.Status == StatusHealthy && len(report.Backpressure) > 0 {
		report.Status = StatusDegraded
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
