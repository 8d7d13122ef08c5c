package sla

import (
	"testing"
	"time"

	"github.com/denialdesk/reclaim/internal/core/config"
	"github.com/denialdesk/reclaim/internal/core/domain"
)

var testBands = config.SLABandConfig{CriticalHours: 8, HighHours: 24, MediumHours: 72}

func TestBand(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		dueAt time.Time
		want  domain.PriorityBand
	}{
		{"no deadline", time.Time{}, domain.BandInfo},
		{"overdue", now.Add(-2 * time.Hour), domain.BandCritical},
		{"due exactly now", now, domain.BandCritical},
		{"inside critical window", now.Add(7 * time.Hour), domain.BandCritical},
		{"critical boundary", now.Add(8 * time.Hour), domain.BandCritical},
		{"just past critical", now.Add(8*time.Hour + time.Minute), domain.BandHigh},
		{"high boundary", now.Add(24 * time.Hour), domain.BandHigh},
		{"medium", now.Add(48 * time.Hour), domain.BandMedium},
		{"medium boundary", now.Add(72 * time.Hour), domain.BandMedium},
		{"low", now.Add(96 * time.Hour), domain.BandLow},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Band(testBands, tc.dueAt, now); got != tc.want {
				t.Errorf("Band(%v) = %s, want %s", tc.dueAt, got, tc.want)
			}
		})
	}
}
