package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/denialdesk/reclaim/internal/pipeline/metrics"
)

// HTTPSubmitter delivers attempts as JSON POSTs to the claims endpoint.
type HTTPSubmitter struct {
	endpoint    string
	softTimeout time.Duration
	httpClient  *http.Client
}

// NewHTTPSubmitter creates a new HTTP submitter. hardTimeout bounds the
// request; softTimeout only triggers an escalation log when exceeded.
func NewHTTPSubmitter(endpoint string, softTimeout, hardTimeout time.Duration) *HTTPSubmitter {
	return &HTTPSubmitter{
		endpoint:    endpoint,
		softTimeout: softTimeout,
		httpClient: &http.Client{
			Timeout: hardTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Submit delivers one attempt. The idempotency key travels both in the body
// and as a header so intermediaries can dedupe replays.
func (s *HTTPSubmitter) Submit(ctx context.Context, req SubmissionRequest) (SubmissionResponse, error) {
	start := time.Now()

	jsonData, err := json.Marshal(req)
	if err != nil {
		return SubmissionResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return SubmissionResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := s.httpClient.Do(httpReq)
	latency := time.Since(start)
	metrics.SubmissionLatency.WithLabelValues("http").Observe(latency.Seconds())

	if latency > s.softTimeout {
		slog.Warn("Submission exceeded soft timeout",
			"claim", req.ClaimID, "latency", latency, "soft_timeout", s.softTimeout)
	}

	if err != nil {
		return SubmissionResponse{}, fmt.Errorf("submission call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SubmissionResponse{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return SubmissionResponse{}, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var out SubmissionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return SubmissionResponse{}, fmt.Errorf("parse response: %w", err)
	}
	if out.Disposition == "" {
		out.Disposition = DispositionSuccess
	}
	return out, nil
}

// Close cleans up resources.
func (s *HTTPSubmitter) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}
