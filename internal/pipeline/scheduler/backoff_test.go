package scheduler

import (
	"testing"
	"time"
)

func TestBackoffDelay_Exponential(t *testing.T) {
	b := Backoff{Base: 2 * time.Second, Max: 5 * time.Minute}

	for _, tc := range []struct {
		attempt int
		min     time.Duration // base * 2^(n-1)
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
	} {
		d := b.Delay(tc.attempt)
		if d < tc.min {
			t.Errorf("attempt %d: delay %s below floor %s", tc.attempt, d, tc.min)
		}
		// Jitter adds less than one base interval.
		if d >= tc.min+b.Base {
			t.Errorf("attempt %d: delay %s exceeds %s + jitter bound", tc.attempt, d, tc.min)
		}
	}
}

func TestBackoffDelay_Capped(t *testing.T) {
	b := Backoff{Base: 2 * time.Second, Max: 10 * time.Second}

	for attempt := 4; attempt <= 60; attempt++ {
		d := b.Delay(attempt)
		if d > b.Max+b.Base {
			t.Fatalf("attempt %d: delay %s exceeds cap %s + jitter", attempt, d, b.Max)
		}
	}
}

func TestBackoffDelay_BadAttemptNumber(t *testing.T) {
	b := Backoff{Base: time.Second, Max: time.Minute}
	if d := b.Delay(0); d < b.Base {
		t.Errorf("attempt 0 should clamp to attempt 1, got %s", d)
	}
}

func TestBackoffDelay_ZeroValue(t *testing.T) {
	// A zero-value policy must not panic; it retries immediately.
	var b Backoff
	for attempt := 1; attempt <= 3; attempt++ {
		if d := b.Delay(attempt); d != 0 {
			t.Errorf("attempt %d: expected zero delay, got %s", attempt, d)
		}
	}

	// A base with no cap stays at the base.
	b = Backoff{Base: time.Second}
	for attempt := 1; attempt <= 3; attempt++ {
		d := b.Delay(attempt)
		if d < b.Base || d >= 2*b.Base {
			t.Errorf("attempt %d: delay %s outside [base, 2*base)", attempt, d)
		}
	}
}
