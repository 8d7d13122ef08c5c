package correct

import (
	"fmt"
	"strings"

	"github.com/denialdesk/reclaim/internal/core/domain"
)

// Transform derives a corrected claim payload from a rejection record. A
// transform must be pure: no clock reads, no randomness, no counters — the
// same record must always produce a byte-identical payload.
type Transform func(rec *domain.RejectionRecord) (map[string]any, error)

// transformRegistry holds the named transforms a strategy table may
// reference. Strategy YAML binds rejection codes to these names, so new
// codes can be routed to existing transforms without a deploy.
var transformRegistry = map[string]Transform{
	"resubmit_as_is":       resubmitAsIs,
	"attach_prior_auth":    attachPriorAuth,
	"fix_payer_code":       fixPayerCode,
	"strip_invalid_fields": stripInvalidFields,
}

// LookupTransform returns a registered transform by name.
func LookupTransform(name string) (Transform, error) {
	t, ok := transformRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown transform %q", name)
	}
	return t, nil
}

// basePayload is the shared skeleton every transform starts from.
func basePayload(rec *domain.RejectionRecord) map[string]any {
	return map[string]any{
		"claim_id":       rec.ClaimID,
		"payer_code":     rec.PayerCode,
		"rejection_code": rec.RejectionCode,
		"amount":         rec.AmountAtRisk,
		"branch":         rec.Branch,
	}
}

func resubmitAsIs(rec *domain.RejectionRecord) (map[string]any, error) {
	p := basePayload(rec)
	p["resubmission_reason"] = "transient payer rejection"
	return p, nil
}

func attachPriorAuth(rec *domain.RejectionRecord) (map[string]any, error) {
	p := basePayload(rec)
	p["prior_auth_required"] = true
	p["prior_auth_reference"] = fmt.Sprintf("PA-%s", rec.ClaimID)
	return p, nil
}

// payerAliases corrects the common misrouted-payer submissions.
var payerAliases = map[string]string{
	"BCBS-TX": "BCBSTX",
	"UHC-W":   "UHC",
	"AET":     "AETNA",
}

func fixPayerCode(rec *domain.RejectionRecord) (map[string]any, error) {
	p := basePayload(rec)
	if alias, ok := payerAliases[rec.PayerCode]; ok {
		p["payer_code"] = alias
		p["original_payer_code"] = rec.PayerCode
	}
	return p, nil
}

func stripInvalidFields(rec *domain.RejectionRecord) (map[string]any, error) {
	p := basePayload(rec)
	if strings.TrimSpace(rec.Branch) == "" {
		delete(p, "branch")
	}
	p["fields_stripped"] = true
	return p, nil
}
