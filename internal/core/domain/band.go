package domain

// PriorityBand is the coarse urgency classification derived from
// time-to-deadline. Banding itself lives in the sla package.
type PriorityBand string

const (
	BandCritical PriorityBand = "critical"
	BandHigh     PriorityBand = "high"
	BandMedium   PriorityBand = "medium"
	BandLow      PriorityBand = "low"
	BandInfo     PriorityBand = "info" // no due date
)
