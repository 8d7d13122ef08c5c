package submit

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ClassifyError maps a submission error into a disposition. Anything not
// recognizably permanent is retryable; dead-lettering on a transient blip
// loses money, retrying a duplicate does not (the idempotency key absorbs it).
func ClassifyError(err error) Disposition {
	if err == nil {
		return DispositionSuccess
	}

	// Timeouts and cancellations are transient by definition
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return DispositionRetryable
	}

	// gRPC status codes
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.InvalidArgument, codes.PermissionDenied, codes.Unauthenticated,
			codes.AlreadyExists, codes.FailedPrecondition:
			return DispositionTerminal
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted,
			codes.Aborted, codes.Internal:
			return DispositionRetryable
		}
	}

	s := strings.ToLower(err.Error())

	// Permanent rejections
	if strings.Contains(s, "validation") && strings.Contains(s, "rejected") ||
		strings.Contains(s, "duplicate claim") ||
		strings.Contains(s, "unauthorized") ||
		strings.Contains(s, "forbidden") ||
		strings.Contains(s, "http 400") || strings.Contains(s, "http 401") ||
		strings.Contains(s, "http 403") || strings.Contains(s, "http 409") ||
		strings.Contains(s, "http 422") {
		return DispositionTerminal
	}

	// Network, 5xx, throttling: retry
	return DispositionRetryable
}
