package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/denialdesk/reclaim/internal/core/domain"
	"github.com/denialdesk/reclaim/internal/infra/storage"
	"github.com/denialdesk/reclaim/internal/pipeline/normalize"
	"github.com/denialdesk/reclaim/internal/pipeline/scheduler"
	"github.com/denialdesk/reclaim/internal/readmodel"
)

// Ingester admits a batch of raw export rows into the pipeline.
type Ingester func(ctx context.Context, rows []domain.RawRow) normalize.Result

// Server provides the health, metrics, and operator API endpoints.
type Server struct {
	monitor *Monitor
	reads   *readmodel.Service
	sched   *scheduler.Scheduler
	ingest  Ingester
	server  *http.Server
}

// NewServer creates the HTTP server. sched and ingest may be nil in
// read-only deployments; the mutating endpoints then return 503.
func NewServer(monitor *Monitor, reads *readmodel.Service, sched *scheduler.Scheduler, ingest Ingester, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		monitor: monitor,
		reads:   reads,
		sched:   sched,
		ingest:  ingest,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/records", s.handleRecords)
	mux.HandleFunc("GET /api/records/{claim_id}", s.handleRecordDetail)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/dead-letters", s.handleDeadLetters)
	mux.HandleFunc("GET /api/manual-review", s.handleManualReview)
	mux.HandleFunc("POST /api/records/{claim_id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /api/records/{claim_id}/requeue", s.handleRequeue)
	mux.HandleFunc("POST /api/batches", s.handleIngest)

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if report.Status == StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(map[string]string{"status": string(report.Status)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.RecordFilter{
		Status:      domain.Status(q.Get("status")),
		Branch:      q.Get("branch"),
		Severity:    domain.Severity(q.Get("severity")),
		ShouldAlert: q.Get("should_alert") == "true",
		Limit:       intParam(q.Get("limit"), 100),
		Offset:      intParam(q.Get("offset"), 0),
	}

	views, err := s.reads.List(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleRecordDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := s.reads.Detail(r.Context(), r.PathValue("claim_id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.reads.Summarize(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	views, err := s.reads.DeadLetters(r.Context(), intParam(q.Get("limit"), 100), intParam(q.Get("offset"), 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleManualReview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	views, err := s.reads.ManualReviewQueue(r.Context(), intParam(q.Get("limit"), 100), intParam(q.Get("offset"), 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

type actionRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, func(ctx context.Context, claimID string, req actionRequest) error {
		return s.sched.Cancel(ctx, claimID, req.Actor, req.Reason)
	})
}

func (s *Server) handleRequeue(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, func(ctx context.Context, claimID string, req actionRequest) error {
		return s.sched.Requeue(ctx, claimID, req.Actor, req.Reason)
	})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, action func(context.Context, string, actionRequest) error) {
	if s.sched == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("scheduler not running"))
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if req.Actor == "" {
		writeError(w, http.StatusBadRequest, errors.New("actor is required"))
		return
	}

	err := action(r.Context(), r.PathValue("claim_id"), req)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, scheduler.ErrNotCancellable), errors.Is(err, scheduler.ErrNotInManualReview):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
	}
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.ingest == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("intake not running"))
		return
	}

	var rows []domain.RawRow
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if len(rows) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("empty batch"))
		return
	}

	res := s.ingest(r.Context(), rows)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id": res.BatchID,
		"admitted": len(res.Records),
		"rejected": res.Errors,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
