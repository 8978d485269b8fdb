package domain

import dErrors "vitaex/pkg/domain-errors"

// ConsentPurpose is a domain value that identifies why data is processed.
// Invariant: the value must be one of the supported consent purposes.
//
// Usage: construct via ParseConsentPurpose at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type ConsentPurpose string

// Supported consent purposes. Purpose binding allows selective revocation
// without affecting other flows.
const (
	// PurposeDataProcessing covers ingestion, standardization, and the
	// longitudinal twin model built from the subject's own signals.
	PurposeDataProcessing ConsentPurpose = "data_processing"

	// PurposePersonalization covers derived outputs: simulations, generated
	// protocols, and product recommendations.
	PurposePersonalization ConsentPurpose = "personalization"

	// PurposeResearch covers contribution of de-identified data to research
	// imports.
	PurposeResearch ConsentPurpose = "research"
)

// validConsentPurposes is the single source of truth for valid consent purposes.
var validConsentPurposes = map[ConsentPurpose]bool{
	PurposeDataProcessing:  true,
	PurposePersonalization: true,
	PurposeResearch:        true,
}

// ParseConsentPurpose constructs a ConsentPurpose from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported; no
// other errors are expected.
func ParseConsentPurpose(s string) (ConsentPurpose, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "purpose cannot be empty")
	}
	p := ConsentPurpose(s)
	if !p.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid purpose")
	}
	return p, nil
}

// IsValid checks if the consent purpose is one of the supported enum values.
func (p ConsentPurpose) IsValid() bool {
	return validConsentPurposes[p]
}

func (p ConsentPurpose) String() string {
	return string(p)
}
