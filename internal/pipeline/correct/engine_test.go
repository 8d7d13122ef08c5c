package correct

import (
	"bytes"
	"testing"

	"github.com/denialdesk/reclaim/internal/core/domain"
)

func mustTable(t *testing.T, raw map[string]Strategy) *StrategyTable {
	t.Helper()
	table, err := NewStrategyTable(raw)
	if err != nil {
		t.Fatalf("NewStrategyTable failed: %v", err)
	}
	return table
}

func testRecord() *domain.RejectionRecord {
	return &domain.RejectionRecord{
		ClaimID:       "CLM-1",
		PayerCode:     "AET",
		RejectionCode: "PA01",
		AmountAtRisk:  1200,
		Branch:        "north",
	}
}

func TestCorrect_AutoEligible(t *testing.T) {
	table := mustTable(t, map[string]Strategy{
		"PA01": {Transform: "attach_prior_auth", AutoEligible: true, Confidence: 0.85},
	})
	e := NewEngine(table, 0.70)

	got := e.Correct(testRecord())
	if !got.AutoEligible {
		t.Fatalf("expected auto eligible, got reason %q", got.Reason)
	}
	if got.Confidence != 0.85 {
		t.Errorf("expected confidence 0.85, got %f", got.Confidence)
	}
	if len(got.Payload) == 0 {
		t.Error("expected a corrected payload")
	}
}

func TestCorrect_Idempotent(t *testing.T) {
	table := mustTable(t, map[string]Strategy{
		"PA01": {Transform: "fix_payer_code", AutoEligible: true, Confidence: 0.9},
	})
	e := NewEngine(table, 0.70)
	rec := testRecord()

	first := e.Correct(rec)
	for i := 0; i < 20; i++ {
		again := e.Correct(rec)
		if !bytes.Equal(first.Payload, again.Payload) {
			t.Fatalf("payload not byte-identical across runs:\n%s\n%s", first.Payload, again.Payload)
		}
		if again.Confidence != first.Confidence || again.AutoEligible != first.AutoEligible {
			t.Fatal("correction result drifted across runs")
		}
	}
}

func TestCorrect_LowConfidenceGoesManual(t *testing.T) {
	table := mustTable(t, map[string]Strategy{
		"PA01": {Transform: "resubmit_as_is", AutoEligible: true, Confidence: 0.50},
	})
	e := NewEngine(table, 0.70)

	got := e.Correct(testRecord())
	if got.AutoEligible {
		t.Fatal("confidence 0.50 must not pass a 0.70 threshold")
	}
	if got.Reason == "" {
		t.Error("manual review must carry a human-readable reason")
	}
}

func TestCorrect_IneligibleDespiteConfidence(t *testing.T) {
	table := mustTable(t, map[string]Strategy{
		"PA01": {Transform: "resubmit_as_is", AutoEligible: false, Confidence: 0.99},
	})
	e := NewEngine(table, 0.70)

	if got := e.Correct(testRecord()); got.AutoEligible {
		t.Fatal("auto_eligible=false must pin the record to manual review")
	}
}

func TestCorrect_MissingStrategy(t *testing.T) {
	e := NewEngine(mustTable(t, nil), 0.70)

	got := e.Correct(testRecord())
	if got.AutoEligible || got.Confidence != 0 {
		t.Fatal("missing strategy must yield ineligible with confidence 0")
	}
}

func TestCorrect_PanickingTransform(t *testing.T) {
	transformRegistry["explode"] = func(rec *domain.RejectionRecord) (map[string]any, error) {
		panic("boom")
	}
	defer delete(transformRegistry, "explode")

	table := mustTable(t, map[string]Strategy{
		"PA01": {Transform: "explode", AutoEligible: true, Confidence: 0.99},
	})
	e := NewEngine(table, 0.70)

	got := e.Correct(testRecord())
	if got.AutoEligible || got.Confidence != 0 {
		t.Fatal("failed strategy must yield ineligible with confidence 0")
	}
	if got.Payload != nil {
		t.Error("failed strategy must not produce a payload")
	}
}

func TestNewStrategyTable_RejectsUnknownTransform(t *testing.T) {
	_, err := NewStrategyTable(map[string]Strategy{
		"XX": {Transform: "does_not_exist", AutoEligible: true, Confidence: 0.9},
	})
	if err == nil {
		t.Fatal("expected error for unknown transform")
	}
}

func TestFixPayerCode_Alias(t *testing.T) {
	rec := testRecord() // payer AET
	fields, err := fixPayerCode(rec)
	if err != nil {
		t.Fatalf("fixPayerCode failed: %v", err)
	}
	if fields["payer_code"] != "AETNA" {
		t.Errorf("expected payer alias AETNA, got %v", fields["payer_code"])
	}
	if fields["original_payer_code"] != "AET" {
		t.Errorf("expected original payer AET, got %v", fields["original_payer_code"])
	}
	if fields["claim_id"] != "CLM-1" {
		t.Errorf("expected claim id carried through, got %v", fields["claim_id"])
	}
}
