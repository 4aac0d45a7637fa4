package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/agro-tracker/internal/domain"
	"github.com/dvloznov/agro-tracker/internal/reference"
)

// VocabularyLookup is the subset of reference data the validator needs.
type VocabularyLookup interface {
	ResolveUnit(s string) (string, bool)
	CanonicalOperation(s string) (string, bool)
	CanonicalCrop(s string) (string, bool)
}

var _ VocabularyLookup = (*reference.Data)(nil)

// RecordValidator canonicalizes business unit, operation and crop values
// against the reference vocabularies.
type RecordValidator struct {
	vocab VocabularyLookup
}

// NewRecordValidator creates a validator backed by the given vocabularies.
func NewRecordValidator(vocab VocabularyLookup) *RecordValidator {
	return &RecordValidator{vocab: vocab}
}

// Validate rewrites recognized values to their canonical spelling. Values
// that cannot be matched are kept as-is, marked for review, and reported in
// the returned error. Placeholder records are left untouched.
func (v *RecordValidator) Validate(rec *domain.OperationRecord) error {
	if rec.IsEmpty() {
		return nil
	}

	var errs []error

	if unit := strings.TrimSpace(rec.BusinessUnit); unit != "" {
		if canon, ok := v.vocab.ResolveUnit(unit); ok {
			rec.BusinessUnit = canon
		} else {
			rec.MarkReview(domain.FieldBusinessUnit)
			errs = append(errs, fmt.Errorf("unknown business unit or department: %q", unit))
		}
	}

	if op := strings.TrimSpace(rec.Operation); op != "" {
		if canon, ok := v.vocab.CanonicalOperation(op); ok {
			rec.Operation = canon
		} else {
			rec.MarkReview(domain.FieldOperation)
			errs = append(errs, fmt.Errorf("invalid operation: %q", op))
		}
	}

	if crop := strings.TrimSpace(rec.Crop); crop != "" {
		if canon, ok := v.vocab.CanonicalCrop(crop); ok {
			rec.Crop = canon
		} else {
			rec.MarkReview(domain.FieldCrop)
			errs = append(errs, fmt.Errorf("invalid crop: %q", crop))
		}
	}

	if len(rec.UnknownKeys) > 0 {
		errs = append(errs, fmt.Errorf("unrecognized keys: %s", strings.Join(rec.UnknownKeys, ", ")))
	}

	return errors.Join(errs...)
}

// ValidateAll validates every record in place and returns the per-record
// problems keyed by index.
func (v *RecordValidator) ValidateAll(records []domain.OperationRecord) map[int]error {
	problems := make(map[int]error)
	for i := range records {
		if err := v.Validate(&records[i]); err != nil {
			problems[i] = err
		}
	}
	return problems
}
