package sla

import (
	"time"

	"github.com/denialdesk/reclaim/internal/core/config"
	"github.com/denialdesk/reclaim/internal/core/domain"
)

// Band maps time-to-deadline onto a priority band. A zero dueAt means the
// payer imposes no deadline; those records band to info and never escalate.
// An overdue record is still critical: the deadline passing does not make
// the money less recoverable, the band just stops improving.
func Band(cfg config.SLABandConfig, dueAt, now time.Time) domain.PriorityBand {
	if dueAt.IsZero() {
		return domain.BandInfo
	}

	remaining := dueAt.Sub(now)
	switch {
	case remaining <= time.Duration(cfg.CriticalHours)*time.Hour:
		return domain.BandCritical
	case remaining <= time.Duration(cfg.HighHours)*time.Hour:
		return domain.BandHigh
	case remaining <= time.Duration(cfg.MediumHours)*time.Hour:
		return domain.BandMedium
	}
	return domain.BandLow
}
