package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/denialdesk/reclaim/internal/audit"
	"github.com/denialdesk/reclaim/internal/core/config"
	"github.com/denialdesk/reclaim/internal/core/domain"
	"github.com/denialdesk/reclaim/internal/infra/storage"
	"github.com/denialdesk/reclaim/internal/infra/submit"
	"github.com/denialdesk/reclaim/internal/pipeline/classify"
	"github.com/denialdesk/reclaim/internal/pipeline/correct"
	"github.com/denialdesk/reclaim/internal/pipeline/metrics"
)

// ErrNotCancellable is returned when a claim is past the point where
// withdrawal is safe (already picked up, terminal, or mid-submission).
var ErrNotCancellable = errors.New("claim is not in a cancellable state")

// ErrNotInManualReview is returned when a requeue targets a claim that is
// not parked for human review.
var ErrNotInManualReview = errors.New("claim is not in manual review")

// DedupeCache remembers which idempotency keys already reached the external
// endpoint. It is advisory: the endpoint's own idempotency handling is the
// real guard, this just cuts obvious replays short.
type DedupeCache interface {
	MarkSubmitted(ctx context.Context, idempotencyKey string, ttl time.Duration) (bool, error)
	WasSubmitted(ctx context.Context, idempotencyKey string) (bool, error)
}

// Deps bundles the collaborators the scheduler drives.
type Deps struct {
	Records    storage.RejectionRepository
	Attempts   storage.AttemptRepository
	AuditLog   *audit.Log
	Classifier *classify.Classifier
	Engine     *correct.Engine
	Submitter  submit.Submitter
	Queues     map[string]Queue // by queue class name
	Dedupe     DedupeCache      // optional
}

// Scheduler owns the QUEUED → IN_FLIGHT → outcome leg of the pipeline: it
// admits classified records into priority queues, drains them with fixed
// worker pools per queue class, submits corrected payloads, and applies the
// retry/dead-letter policy.
type Scheduler struct {
	cfg  config.PipelineConfig
	deps Deps

	backoff Backoff

	mu     sync.Mutex
	timers map[string]*time.Timer // claim_id -> pending retry re-enqueue

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// New creates a scheduler. Queues must contain an entry for every queue
// class named in cfg plus the "claims" default.
func New(cfg config.PipelineConfig, deps Deps) *Scheduler {
	// The config loader defaults this, but hand-built configs may not.
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Scheduler{
		cfg:     cfg,
		deps:    deps,
		backoff: Backoff{Base: cfg.BaseRetryDelay, Max: cfg.MaxRetryDelay},
		timers:  make(map[string]*time.Timer),
		stopCh:  make(chan struct{}),
	}
}

// ----- Intake -----

// Admit runs classification and correction for freshly normalized records
// and routes each one to a queue or to manual review. Records that fail to
// persist are logged and skipped; one bad record never blocks the batch.
func (s *Scheduler) Admit(ctx context.Context, recs []*domain.RejectionRecord) {
	now := time.Now().UTC()

	for _, rec := range recs {
		if err := s.admitOne(ctx, rec, now); err != nil {
			slog.Error("Failed to admit record",
				"claim", rec.ClaimID, "error", err)
		}
	}
	s.publishDepths(ctx)
}

func (s *Scheduler) admitOne(ctx context.Context, rec *domain.RejectionRecord, now time.Time) error {
	rec.Status = domain.StatusPendingClassification
	if err := s.deps.Records.Save(ctx, rec); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	if err := s.deps.AuditLog.Record(ctx, rec.ClaimID, "", domain.StatusPendingClassification,
		domain.ActorSystem, "normalized from batch "+rec.ImportBatchID); err != nil {
		return fmt.Errorf("birth transition: %w", err)
	}

	cls := s.deps.Classifier.Classify(rec, now)
	rec.Category = cls.Category
	rec.Severity = cls.Severity
	rec.PriorityScore = cls.PriorityScore
	rec.QueueClass = cls.QueueClass

	if cls.ManualReview {
		return s.toManualReview(ctx, rec, domain.StatusPendingClassification,
			"unknown rejection code "+rec.RejectionCode)
	}

	if err := s.moveTo(ctx, rec, domain.StatusPendingClassification, domain.StatusPendingCorrection,
		domain.ActorSystem, "classified as "+cls.Category); err != nil {
		return err
	}

	cor := s.deps.Engine.Correct(rec)
	rec.ConfidenceScore = cor.Confidence
	rec.CorrectionPayload = cor.Payload

	if !cor.AutoEligible {
		return s.toManualReview(ctx, rec, domain.StatusPendingCorrection, cor.Reason)
	}

	return s.enqueue(ctx, rec, domain.StatusPendingCorrection, domain.ActorSystem, "correction ready")
}

func (s *Scheduler) toManualReview(ctx context.Context, rec *domain.RejectionRecord, from domain.Status, reason string) error {
	return s.moveTo(ctx, rec, from, domain.StatusManualReview, domain.ActorSystem, reason)
}

// moveTo appends the transition, then mirrors status and classifier fields
// onto the record row. The transition log is the source of truth; the row
// is the queryable projection.
func (s *Scheduler) moveTo(ctx context.Context, rec *domain.RejectionRecord, from, to domain.Status, actor, reason string) error {
	if err := s.deps.AuditLog.Record(ctx, rec.ClaimID, from, to, actor, reason); err != nil {
		return err
	}
	rec.Status = to
	rec.StatusReason = reason
	if err := s.deps.Records.Update(ctx, rec); err != nil {
		return fmt.Errorf("update record after %s -> %s: %w", from, to, err)
	}
	return nil
}

func (s *Scheduler) enqueue(ctx context.Context, rec *domain.RejectionRecord, from domain.Status, actor, reason string) error {
	if err := s.moveTo(ctx, rec, from, domain.StatusQueued, actor, reason); err != nil {
		return err
	}
	q := s.queueFor(rec.QueueClass)
	if err := q.Enqueue(ctx, rec.PriorityScore, rec.ClaimID); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	s.checkBackpressure(ctx, rec.QueueClass, q)
	return nil
}

func (s *Scheduler) queueFor(class string) Queue {
	if q, ok := s.deps.Queues[class]; ok {
		return q
	}
	return s.deps.Queues["claims"]
}

func (s *Scheduler) checkBackpressure(ctx context.Context, class string, q Queue) {
	depth, err := q.Depth(ctx)
	if err != nil {
		return
	}
	metrics.QueueDepth.WithLabelValues(class).Set(float64(depth))

	threshold := 0
	for _, qc := range s.cfg.QueueClasses {
		if qc.Name == class {
			threshold = qc.BackpressureThreshold
		}
	}
	if threshold > 0 && depth > threshold {
		metrics.BackpressureActive.WithLabelValues(class).Set(1)
		slog.Warn("Queue over backpressure threshold",
			"class", class, "depth", depth, "threshold", threshold)
	} else {
		metrics.BackpressureActive.WithLabelValues(class).Set(0)
	}
}

func (s *Scheduler) publishDepths(ctx context.Context) {
	for class, q := range s.deps.Queues {
		if depth, err := q.Depth(ctx); err == nil {
			metrics.QueueDepth.WithLabelValues(class).Set(float64(depth))
		}
	}
}

// ----- Worker pools -----

// Start launches the per-class worker pools. Pool sizes are fixed at
// startup; there is no runtime autoscaling.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	for _, qc := range s.cfg.QueueClasses {
		q := s.queueFor(qc.Name)
		for i := 0; i < qc.Workers; i++ {
			workerID := fmt.Sprintf("%s-%d", qc.Name, i)
			s.wg.Add(1)
			go s.worker(ctx, qc.Name, workerID, q)
		}
		slog.Info("Started worker pool", "class", qc.Name, "workers", qc.Workers)
	}
}

// Stop halts the workers and cancels pending retry timers. In-flight
// submissions run to completion so no attempt is left without an outcome.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopCh)
	for claimID, t := range s.timers {
		t.Stop()
		delete(s.timers, claimID)
	}
	s.mu.Unlock()

	s.wg.Wait()
	slog.Info("Scheduler stopped")
}

func (s *Scheduler) worker(ctx context.Context, class, workerID string, q Queue) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		claimID, ok, err := q.Dequeue(ctx, workerID)
		if err != nil {
			slog.Error("Dequeue failed", "class", class, "worker", workerID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		s.process(ctx, claimID, class, workerID, q)
		s.checkBackpressure(ctx, class, q)
	}
}

// ----- Attempt execution -----

// process drives one resubmission attempt for a dequeued claim. The row-level
// compare-and-set on QUEUED -> IN_FLIGHT is the pickup gate: exactly one
// caller wins it, and from then on transitions for this claim are single
// writer, appended to the log first and mirrored to the row second.
func (s *Scheduler) process(ctx context.Context, claimID, class, workerID string, q Queue) {
	err := s.deps.Records.CompareAndSetStatus(ctx, claimID,
		domain.StatusQueued, domain.StatusInFlight, "picked up by "+workerID)
	if errors.Is(err, storage.ErrStatusConflict) {
		// Cancelled or raced; either way this claim is no longer ours.
		slog.Debug("Claim no longer queued, skipping", "claim", claimID)
		return
	}
	if err != nil {
		slog.Error("Failed to claim record", "claim", claimID, "error", err)
		return
	}

	if err := s.deps.AuditLog.Record(ctx, claimID, domain.StatusQueued, domain.StatusInFlight,
		domain.ActorSystem, "picked up by "+workerID); err != nil {
		// The row says IN_FLIGHT but the log does not. Put the row back so
		// the claim can be picked up again; the log stays consistent.
		slog.Error("Failed to log pickup, releasing claim", "claim", claimID, "error", err)
		if rbErr := s.deps.Records.CompareAndSetStatus(ctx, claimID,
			domain.StatusInFlight, domain.StatusQueued, "pickup rollback"); rbErr != nil {
			slog.Error("Rollback failed, claim needs operator attention",
				"claim", claimID, "error", rbErr)
		}
		return
	}

	rec, err := s.deps.Records.Get(ctx, claimID)
	if err != nil {
		slog.Error("Failed to load record for attempt", "claim", claimID, "error", err)
		return
	}

	s.attempt(ctx, rec, class, q)
}

func (s *Scheduler) attempt(ctx context.Context, rec *domain.RejectionRecord, class string, q Queue) {
	last, err := s.deps.Attempts.LastNumber(ctx, rec.ClaimID)
	if err != nil {
		slog.Error("Failed to read attempt history", "claim", rec.ClaimID, "error", err)
		return
	}
	n := last + 1
	key := domain.IdempotencyKey(rec.ClaimID, n)

	a := &domain.ResubmissionAttempt{
		AttemptID:          uuid.New().String(),
		ClaimID:            rec.ClaimID,
		AttemptNumber:      n,
		IdempotencyKey:     key,
		CorrectionSnapshot: rec.CorrectionPayload,
		Outcome:            domain.OutcomePending,
		StartedAt:          time.Now().UTC(),
	}
	if err := s.deps.Attempts.Begin(ctx, a); err != nil {
		if errors.Is(err, storage.ErrAttemptPending) {
			slog.Warn("Attempt already pending, refusing second in-flight",
				"claim", rec.ClaimID)
			return
		}
		slog.Error("Failed to open attempt", "claim", rec.ClaimID, "error", err)
		return
	}

	rec.AttemptCount = n
	if err := s.deps.Records.Update(ctx, rec); err != nil {
		slog.Error("Failed to persist attempt count", "claim", rec.ClaimID, "error", err)
	}

	disposition, reason := s.submit(ctx, rec, n, key)

	finishedAt := time.Now().UTC()
	switch disposition {
	case submit.DispositionSuccess:
		s.finish(ctx, a.AttemptID, domain.OutcomeSuccess, "", finishedAt)
		metrics.Submissions.WithLabelValues("success").Inc()
		if err := s.moveTo(ctx, rec, domain.StatusInFlight, domain.StatusResolved,
			domain.ActorSystem, "accepted by endpoint"); err != nil {
			slog.Error("Failed to resolve claim", "claim", rec.ClaimID, "error", err)
		}

	case submit.DispositionTerminal:
		s.finish(ctx, a.AttemptID, domain.OutcomeTerminalFailure, reason, finishedAt)
		metrics.Submissions.WithLabelValues("terminal_failure").Inc()
		s.deadLetter(ctx, rec, class, q, "terminal_failure", reason)

	default: // retryable
		s.finish(ctx, a.AttemptID, domain.OutcomeRetryableFailure, reason, finishedAt)
		metrics.Submissions.WithLabelValues("retryable_failure").Inc()

		if n >= s.cfg.MaxAttempts {
			s.deadLetter(ctx, rec, class, q, "retry_exhausted",
				fmt.Sprintf("attempt %d/%d failed: %s", n, s.cfg.MaxAttempts, reason))
			return
		}

		delay := s.backoff.Delay(n)
		if err := s.moveTo(ctx, rec, domain.StatusInFlight, domain.StatusRetryWait,
			domain.ActorSystem, fmt.Sprintf("retry %d/%d in %s: %s", n, s.cfg.MaxAttempts, delay, reason)); err != nil {
			slog.Error("Failed to park claim for retry", "claim", rec.ClaimID, "error", err)
			return
		}
		s.scheduleRetry(rec.ClaimID, delay)
	}
}

// submit delivers one attempt under the hard timeout and classifies the
// outcome. All transport errors fold into retryable/terminal; this function
// never returns an unclassified failure.
func (s *Scheduler) submit(ctx context.Context, rec *domain.RejectionRecord, n int, key string) (submit.Disposition, string) {
	if s.deps.Dedupe != nil {
		if seen, err := s.deps.Dedupe.WasSubmitted(ctx, key); err == nil && seen {
			// Crash between delivery and outcome write. The endpoint already
			// has this exact attempt; treat the replay as accepted.
			slog.Info("Idempotency key already delivered, skipping send",
				"claim", rec.ClaimID, "attempt", n)
			return submit.DispositionSuccess, ""
		}
	}

	resp, err := s.deps.Submitter.Submit(ctx, submit.SubmissionRequest{
		ClaimID:          rec.ClaimID,
		IdempotencyKey:   key,
		CorrectedPayload: rec.CorrectionPayload,
		AttemptNumber:    n,
	})
	if err != nil {
		return submit.ClassifyError(err), err.Error()
	}

	if s.deps.Dedupe != nil {
		if _, err := s.deps.Dedupe.MarkSubmitted(ctx, key, 24*time.Hour); err != nil {
			slog.Warn("Failed to record idempotency key", "claim", rec.ClaimID, "error", err)
		}
	}
	return resp.Disposition, resp.Reason
}

func (s *Scheduler) finish(ctx context.Context, attemptID string, outcome domain.AttemptOutcome, reason string, at time.Time) {
	if err := s.deps.Attempts.Finish(ctx, attemptID, outcome, reason, at); err != nil {
		slog.Error("Failed to close attempt", "attempt", attemptID, "error", err)
	}
}

func (s *Scheduler) deadLetter(ctx context.Context, rec *domain.RejectionRecord, class string, q Queue, cause, reason string) {
	if err := s.moveTo(ctx, rec, domain.StatusInFlight, domain.StatusDeadLettered,
		domain.ActorSystem, reason); err != nil {
		slog.Error("Failed to dead-letter claim", "claim", rec.ClaimID, "error", err)
		return
	}
	if err := q.DeadLetter(ctx, rec.ClaimID, reason); err != nil {
		slog.Error("Failed to park dead letter", "claim", rec.ClaimID, "error", err)
	}
	metrics.DeadLetters.WithLabelValues(cause).Inc()
	slog.Warn("Claim dead-lettered", "claim", rec.ClaimID, "class", class, "reason", reason)
}

// ----- Retry timing -----

func (s *Scheduler) scheduleRetry(claimID string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if t, ok := s.timers[claimID]; ok {
		t.Stop()
	}
	s.timers[claimID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, claimID)
		s.mu.Unlock()
		s.requeueFromRetryWait(claimID)
	})
}

func (s *Scheduler) requeueFromRetryWait(claimID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rec, err := s.deps.Records.Get(ctx, claimID)
	if err != nil {
		slog.Error("Failed to load claim for retry", "claim", claimID, "error", err)
		return
	}
	if rec.Status != domain.StatusRetryWait {
		// Cancelled while waiting.
		return
	}
	if err := s.enqueue(ctx, rec, domain.StatusRetryWait, domain.ActorSystem, "retry delay elapsed"); err != nil {
		slog.Error("Failed to requeue claim after backoff", "claim", claimID, "error", err)
	}
}

// Recover rebuilds queue state after a restart. QUEUED rows go straight
// back into their queues; RETRY_WAIT rows re-enter through the normal
// RETRY_WAIT -> QUEUED edge since their timers died with the old process.
// Rows stuck IN_FLIGHT are left for the operator: their attempt outcome is
// unknown and the idempotency key makes a manual replay safe.
func (s *Scheduler) Recover(ctx context.Context) error {
	queued, err := s.deps.Records.List(ctx, storage.RecordFilter{Status: domain.StatusQueued})
	if err != nil {
		return fmt.Errorf("list queued: %w", err)
	}
	for _, rec := range queued {
		q := s.queueFor(rec.QueueClass)
		if err := q.Enqueue(ctx, rec.PriorityScore, rec.ClaimID); err != nil {
			slog.Error("Failed to restore queued claim", "claim", rec.ClaimID, "error", err)
		}
	}

	waiting, err := s.deps.Records.List(ctx, storage.RecordFilter{Status: domain.StatusRetryWait})
	if err != nil {
		return fmt.Errorf("list retry_wait: %w", err)
	}
	for _, rec := range waiting {
		if err := s.enqueue(ctx, rec, domain.StatusRetryWait, domain.ActorSystem,
			"requeued after restart"); err != nil {
			slog.Error("Failed to restore waiting claim", "claim", rec.ClaimID, "error", err)
		}
	}

	stuck, err := s.deps.Records.CountByStatusIn(ctx, domain.StatusInFlight)
	if err == nil && stuck > 0 {
		slog.Warn("Claims stuck in flight from previous run", "count", stuck)
	}

	if len(queued) > 0 || len(waiting) > 0 {
		slog.Info("Recovered queue state", "queued", len(queued), "retry_wait", len(waiting))
	}
	return nil
}

// ----- Operator actions -----

// Cancel withdraws a claim before its submission starts. Only QUEUED and
// RETRY_WAIT claims can be cancelled; anything already handed to the
// endpoint must run to an outcome first.
func (s *Scheduler) Cancel(ctx context.Context, claimID, actor, reason string) error {
	rec, err := s.deps.Records.Get(ctx, claimID)
	if err != nil {
		return err
	}

	from := rec.Status
	if from != domain.StatusQueued && from != domain.StatusRetryWait {
		return fmt.Errorf("%w: claim %s is %s", ErrNotCancellable, claimID, from)
	}

	// The CAS races against worker pickup; losing it means the claim went
	// in flight and the cancel is too late.
	if err := s.deps.Records.CompareAndSetStatus(ctx, claimID, from, domain.StatusCancelled, reason); err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			return fmt.Errorf("%w: claim %s left %s concurrently", ErrNotCancellable, claimID, from)
		}
		return err
	}
	if err := s.deps.AuditLog.Record(ctx, claimID, from, domain.StatusCancelled, actor, reason); err != nil {
		// Same contract as pickup: the row must not stay ahead of the log.
		if rbErr := s.deps.Records.CompareAndSetStatus(ctx, claimID, domain.StatusCancelled, from, "cancel rollback"); rbErr != nil {
			slog.Error("Failed to roll back cancel", "claim", claimID, "error", rbErr)
		}
		return err
	}

	switch from {
	case domain.StatusQueued:
		if _, err := s.queueFor(rec.QueueClass).Remove(ctx, claimID); err != nil {
			slog.Warn("Failed to remove cancelled claim from queue", "claim", claimID, "error", err)
		}
	case domain.StatusRetryWait:
		s.mu.Lock()
		if t, ok := s.timers[claimID]; ok {
			t.Stop()
			delete(s.timers, claimID)
		}
		s.mu.Unlock()
	}

	slog.Info("Claim cancelled", "claim", claimID, "actor", actor, "from", from)
	return nil
}

// Requeue re-enters a MANUAL_REVIEW claim into its priority queue after a
// human fixed or approved the correction. actor identifies the reviewer.
func (s *Scheduler) Requeue(ctx context.Context, claimID, actor, reason string) error {
	rec, err := s.deps.Records.Get(ctx, claimID)
	if err != nil {
		return err
	}
	if rec.Status != domain.StatusManualReview {
		return fmt.Errorf("%w: claim %s is %s", ErrNotInManualReview, claimID, rec.Status)
	}
	return s.enqueue(ctx, rec, domain.StatusManualReview, actor, reason)
}
