package diagnosis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/synaptica-ai/triage/pkg/catalog"
	"github.com/synaptica-ai/triage/pkg/engine"
)

const maxEvidenceItems = 100

var (
	errMissingAge      = errors.New("age required")
	errEmptySymptomID  = errors.New("symptom id required")
	errTooManyEvidence = fmt.Errorf("at most %d evidence items allowed", maxEvidenceItems)
)

type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve) || errors.Is(err, engine.ErrInvalidInput)
}

// Validator checks request shape before anything reaches a scorer, so the
// local engine and an external scorer reject the same inputs.
type Validator struct {
	cat *catalog.Catalog
}

func NewValidator(cat *catalog.Catalog) *Validator {
	return &Validator{cat: cat}
}

// Patient validates and normalizes demographics.
func (v *Validator) Patient(sex string, age *int) (engine.Patient, error) {
	if age == nil {
		return engine.Patient{}, ValidationError{reason: errMissingAge}
	}
	p, err := engine.ValidatePatient(engine.Patient{Age: *age, Sex: sex})
	if err != nil {
		return engine.Patient{}, ValidationError{reason: err}
	}
	return p, nil
}

// Evidence converts request items to engine answers. Ids the catalog does
// not know are passed through for the engine to drop; a choice that does not
// resolve for a known symptom is rejected here.
func (v *Validator) Evidence(items []EvidenceItem) ([]engine.Answer, error) {
	if len(items) > maxEvidenceItems {
		return nil, ValidationError{reason: errTooManyEvidence}
	}
	answers := make([]engine.Answer, 0, len(items))
	for i, item := range items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			return nil, ValidationError{reason: fmt.Errorf("evidence[%d]: %w", i, errEmptySymptomID)}
		}
		choice := strings.ToLower(strings.TrimSpace(item.Choice))
		if symptom, ok := v.cat.SymptomByID(id); ok {
			if _, err := engine.ResolveChoice(symptom, choice); err != nil {
				return nil, ValidationError{reason: err}
			}
		}
		answers = append(answers, engine.Answer{SymptomID: id, Choice: choice})
	}
	return answers, nil
}
