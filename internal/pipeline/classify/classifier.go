package classify

import (
	"math"
	"time"

	"github.com/denialdesk/reclaim/internal/core/domain"
)

// CategoryUnclassified is assigned to unknown rejection codes. Such records
// always go to manual review; guessing on a code nobody has mapped is how
// bad resubmissions get sent.
const CategoryUnclassified = "unclassified"

// Classification is the pure output of classifying one record.
type Classification struct {
	Category      string
	Severity      domain.Severity
	PriorityScore float64
	QueueClass    string
	ManualReview  bool // forced routing, independent of correction confidence
}

// Classifier assigns category, severity, and a deterministic priority score
// from the rejection-code rule table.
type Classifier struct {
	table *RuleTable
}

// New creates a classifier over a rule table.
func New(table *RuleTable) *Classifier {
	return &Classifier{table: table}
}

// Classify is a pure function of (record, table, now): repeated calls with
// identical inputs return identical results.
func (c *Classifier) Classify(rec *domain.RejectionRecord, now time.Time) Classification {
	rule, known := c.table.Lookup(rec.RejectionCode)
	if !known {
		sev := domain.SeverityMedium
		return Classification{
			Category:      CategoryUnclassified,
			Severity:      sev,
			PriorityScore: Score(sev, rec.AmountAtRisk, rec.DueAt, now),
			QueueClass:    "claims",
			ManualReview:  true,
		}
	}

	sev := severityFromString(rule.Severity)
	return Classification{
		Category:      rule.Category,
		Severity:      sev,
		PriorityScore: Score(sev, rec.AmountAtRisk, rec.DueAt, now),
		QueueClass:    rule.QueueClass,
	}
}

// Score combines severity weight, amount at risk, and hours until due into
// one ordering key. Higher scores dequeue first. The components are scaled
// so ties break by severity, then amount, then soonest deadline.
func Score(sev domain.Severity, amount float64, dueAt time.Time, now time.Time) float64 {
	// Severity dominates: band the score by weight.
	score := float64(sev.Weight()) * 1e10

	// Amount at risk. Below $1M a one cent difference (+10) still outranks
	// the full urgency term (<=9); past that the amount is log-compressed
	// so larger claims keep ranking higher without ever crossing into the
	// next severity band.
	a := amount
	if a < 0 {
		a = 0
	}
	if a <= 1e6 {
		score += a * 1e3
	} else {
		score += 1e9 + math.Log10(a/1e6)*1e6
	}

	// Urgency: fewer hours to deadline ranks higher. No deadline adds nothing.
	if !dueAt.IsZero() {
		hours := dueAt.Sub(now).Hours()
		if hours < 0 {
			hours = 0
		}
		score += 9 * math.Exp(-hours/168)
	}
	return score
}
