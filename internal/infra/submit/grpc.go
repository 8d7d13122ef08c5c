package submit

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"github.com/denialdesk/reclaim/internal/pipeline/metrics"
)

// jsonCodec lets Invoke carry plain JSON frames so the default handler can
// talk to the claims gateway without generated stubs.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// submitMethod is the gateway's resubmission RPC.
const submitMethod = "/reclaim.Claims/Submit"

// DefaultHandler invokes the gateway's Submit RPC with the JSON codec.
// Payer integrations that ship generated clients can replace it.
func DefaultHandler(ctx context.Context, conn grpc.ClientConnInterface, req SubmissionRequest) (SubmissionResponse, error) {
	var resp SubmissionResponse
	err := conn.Invoke(ctx, submitMethod, &req, &resp, grpc.CallContentSubtype("json"))
	if err != nil {
		return SubmissionResponse{}, err
	}
	return resp, nil
}

// SubmitHandler performs the actual RPC for one attempt. Payer integrations
// bring their own generated clients; the handler keeps this package free of
// any particular stub.
type SubmitHandler func(ctx context.Context, conn grpc.ClientConnInterface, req SubmissionRequest) (SubmissionResponse, error)

// GRPCSubmitter delivers attempts over a gRPC connection.
type GRPCSubmitter struct {
	endpoint    string
	conn        *grpc.ClientConn
	handler     SubmitHandler
	softTimeout time.Duration
	hardTimeout time.Duration
}

// NewGRPCSubmitter dials the claims endpoint and wraps the given handler.
// A nil handler falls back to DefaultHandler.
func NewGRPCSubmitter(
	ctx context.Context,
	endpoint string,
	handler SubmitHandler,
	softTimeout, hardTimeout time.Duration,
) (*GRPCSubmitter, error) {
	// Parse endpoint to determine if TLS is needed
	target := endpoint
	var opts []grpc.DialOption

	if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		creds := credentials.NewTLS(&tls.Config{})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial grpc endpoint %s: %w", target, err)
	}

	if handler == nil {
		handler = DefaultHandler
	}

	return &GRPCSubmitter{
		endpoint:    endpoint,
		conn:        conn,
		handler:     handler,
		softTimeout: softTimeout,
		hardTimeout: hardTimeout,
	}, nil
}

// Submit delivers one attempt via the configured handler. The hard timeout
// bounds the RPC; past it the attempt force-fails as retryable.
func (s *GRPCSubmitter) Submit(ctx context.Context, req SubmissionRequest) (SubmissionResponse, error) {
	if s.hardTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.hardTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := s.handler(ctx, s.conn, req)
	latency := time.Since(start)
	metrics.SubmissionLatency.WithLabelValues("grpc").Observe(latency.Seconds())

	if latency > s.softTimeout {
		slog.Warn("Submission exceeded soft timeout",
			"claim", req.ClaimID, "latency", latency, "soft_timeout", s.softTimeout)
	}
	return resp, err
}

// Close cleans up resources.
func (s *GRPCSubmitter) Close() error {
	return s.conn.Close()
}
