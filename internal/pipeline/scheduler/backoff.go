package scheduler

import (
	"math/rand"
	"time"
)

// Backoff computes exponential retry delays with jitter. The jitter spreads
// retries out so that a burst of failures against one payer does not come
// back as a synchronized burst of resubmissions.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before attempt n+1, given that attempt n just
// failed. Attempt numbers start at 1. A zero-value Backoff retries
// immediately without jitter.
func (b Backoff) Delay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}
	if b.Base <= 0 {
		return 0
	}
	max := b.Max
	if max <= 0 {
		max = b.Base
	}

	d := b.Base
	for i := 1; i < attemptNumber; i++ {
		d *= 2
		if d >= max {
			d = max
			break
		}
	}
	if d > max {
		d = max
	}

	jitter := time.Duration(rand.Int63n(int64(b.Base)))
	return d + jitter
}
