package correct

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/denialdesk/reclaim/internal/core/domain"
	"github.com/denialdesk/reclaim/internal/pipeline/metrics"
)

// CorrectionResult is the engine's decision for one record.
type CorrectionResult struct {
	Payload      []byte
	Confidence   float64
	AutoEligible bool
	Reason       string // set when the record is routed to manual review
}

// Engine derives corrected claim payloads for records eligible for
// automatic remediation.
type Engine struct {
	table     *StrategyTable
	threshold float64
}

// NewEngine creates a correction engine. threshold is the minimum
// confidence for automatic resubmission.
func NewEngine(table *StrategyTable, threshold float64) *Engine {
	return &Engine{table: table, threshold: threshold}
}

// Correct applies the strategy for the record's rejection code. The result
// is deterministic: correcting the same record twice yields a byte-identical
// payload. A missing, failing, or low-confidence strategy routes to manual
// review — never to an uncorrected resubmission.
func (e *Engine) Correct(rec *domain.RejectionRecord) CorrectionResult {
	strategy, ok := e.table.Lookup(rec.RejectionCode)
	if !ok {
		metrics.Corrections.WithLabelValues("manual_review").Inc()
		return CorrectionResult{Reason: fmt.Sprintf("no correction strategy for %s", rec.RejectionCode)}
	}

	payload, err := e.apply(rec, strategy)
	if err != nil {
		// A failed strategy is auto_eligible=false with confidence 0,
		// never "send as-is".
		slog.Warn("Correction strategy failed",
			"claim", rec.ClaimID, "code", rec.RejectionCode, "error", err)
		metrics.Corrections.WithLabelValues("manual_review").Inc()
		return CorrectionResult{Reason: fmt.Sprintf("correction failed: %v", err)}
	}

	if !strategy.AutoEligible {
		metrics.Corrections.WithLabelValues("manual_review").Inc()
		return CorrectionResult{
			Payload:    payload,
			Confidence: strategy.Confidence,
			Reason:     fmt.Sprintf("code %s not eligible for automatic resubmission", rec.RejectionCode),
		}
	}

	if strategy.Confidence < e.threshold {
		metrics.Corrections.WithLabelValues("manual_review").Inc()
		return CorrectionResult{
			Payload:    payload,
			Confidence: strategy.Confidence,
			Reason: fmt.Sprintf("confidence %.2f below threshold %.2f",
				strategy.Confidence, e.threshold),
		}
	}

	metrics.Corrections.WithLabelValues("auto").Inc()
	return CorrectionResult{
		Payload:      payload,
		Confidence:   strategy.Confidence,
		AutoEligible: true,
	}
}

// apply runs the transform with panic containment: a panicking transform is
// a failed strategy, not a crashed worker.
func (e *Engine) apply(rec *domain.RejectionRecord, s Strategy) (payload []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload, err = nil, fmt.Errorf("transform %s panicked: %v", s.Transform, r)
		}
	}()

	transform, err := LookupTransform(s.Transform)
	if err != nil {
		return nil, err
	}
	fields, err := transform(rec)
	if err != nil {
		return nil, err
	}
	// encoding/json sorts map keys, so equal payloads are byte-identical.
	return json.Marshal(fields)
}
