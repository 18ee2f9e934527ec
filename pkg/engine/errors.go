package engine

import "errors"

var (
	// ErrInvalidInput is returned for malformed age, sex or choice values.
	// Callers translate it into a 4xx response.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidSymptomID marks an evidence item whose symptom is not in the
	// catalog. The orchestrator drops such items instead of failing.
	ErrInvalidSymptomID = errors.New("invalid symptom id")
)
