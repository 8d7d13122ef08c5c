package classify

import (
	"testing"
	"time"

	"github.com/denialdesk/reclaim/internal/core/domain"
)

func testTable() *RuleTable {
	return NewRuleTable(map[string]Rule{
		"PA01": {Category: "prior_auth", Severity: "high", QueueClass: "claims"},
		"EL02": {Category: "eligibility", Severity: "critical", QueueClass: "eligibility"},
		"CD10": {Category: "coding", Severity: "low"},
	})
}

func TestClassify_KnownCode(t *testing.T) {
	c := New(testTable())
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	rec := &domain.RejectionRecord{RejectionCode: "PA01", AmountAtRisk: 500}
	got := c.Classify(rec, now)

	if got.Category != "prior_auth" {
		t.Errorf("expected prior_auth, got %s", got.Category)
	}
	if got.Severity != domain.SeverityHigh {
		t.Errorf("expected high, got %s", got.Severity)
	}
	if got.ManualReview {
		t.Error("known code should not force manual review")
	}
	if got.QueueClass != "claims" {
		t.Errorf("expected claims queue, got %s", got.QueueClass)
	}
}

func TestClassify_UnknownCodeSafetyDefault(t *testing.T) {
	c := New(testTable())
	now := time.Now()

	rec := &domain.RejectionRecord{RejectionCode: "ZZ99", AmountAtRisk: 10000}
	got := c.Classify(rec, now)

	if got.Category != CategoryUnclassified {
		t.Errorf("expected unclassified, got %s", got.Category)
	}
	if got.Severity != domain.SeverityMedium {
		t.Errorf("expected medium, got %s", got.Severity)
	}
	if !got.ManualReview {
		t.Error("unknown code must be routed to manual review")
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := New(testTable())
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := &domain.RejectionRecord{
		RejectionCode: "EL02",
		AmountAtRisk:  1234.56,
		DueAt:         now.Add(5 * time.Hour),
	}

	first := c.Classify(rec, now)
	for i := 0; i < 10; i++ {
		if got := c.Classify(rec, now); got != first {
			t.Fatalf("classification not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestScore_TieBreakOrder(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	due := now.Add(48 * time.Hour)

	// Severity descending wins regardless of amount
	lowBig := Score(domain.SeverityLow, 1e6, due, now)
	highSmall := Score(domain.SeverityHigh, 1, due, now)
	if highSmall <= lowBig {
		t.Error("higher severity must outrank any amount")
	}

	// Equal severity: amount descending
	rich := Score(domain.SeverityHigh, 5000, due, now)
	poor := Score(domain.SeverityHigh, 4999.99, due, now)
	if rich <= poor {
		t.Error("larger amount must outrank at equal severity")
	}

	// Equal severity and amount: soonest deadline wins
	soon := Score(domain.SeverityHigh, 5000, now.Add(2*time.Hour), now)
	late := Score(domain.SeverityHigh, 5000, now.Add(200*time.Hour), now)
	if soon <= late {
		t.Error("soonest deadline must win ties")
	}

	// A one-cent amount edge beats any urgency advantage
	richLate := Score(domain.SeverityHigh, 5000.01, now.Add(500*time.Hour), now)
	poorNow := Score(domain.SeverityHigh, 5000.00, now, now)
	if richLate <= poorNow {
		t.Error("amount tie-break must dominate urgency")
	}
}

func TestScore_LargeAmountsStayOrdered(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	due := now.Add(48 * time.Hour)

	// Amounts past $1M must still rank strictly by amount, not collapse
	// into a single tie.
	amounts := []float64{1e6, 1.5e6, 2e6, 10e6, 250e6}
	for i := 1; i < len(amounts); i++ {
		lo := Score(domain.SeverityHigh, amounts[i-1], due, now)
		hi := Score(domain.SeverityHigh, amounts[i], due, now)
		if hi <= lo {
			t.Errorf("$%.0f must outrank $%.0f, got %f <= %f", amounts[i], amounts[i-1], hi, lo)
		}
	}

	// But no amount, however large, may cross into the next severity band.
	huge := Score(domain.SeverityHigh, 1e12, due, now)
	critical := Score(domain.SeverityCritical, 0, time.Time{}, now)
	if huge >= critical {
		t.Error("amount must never outrank a higher severity")
	}

	// Negative amounts score as zero instead of inverting the order.
	if Score(domain.SeverityHigh, -100, due, now) > Score(domain.SeverityHigh, 0, due, now) {
		t.Error("negative amount must not outrank zero")
	}
}

func TestNewRuleTable_DefaultQueueClass(t *testing.T) {
	table := testTable()
	rule, ok := table.Lookup("CD10")
	if !ok {
		t.Fatal("expected CD10 to be known")
	}
	if rule.QueueClass != "claims" {
		t.Errorf("expected default queue class claims, got %s", rule.QueueClass)
	}
}
