package engine

import (
	"fmt"

	"github.com/synaptica-ai/triage/pkg/catalog"
)

type Source string

const (
	SourceInitial  Source = "initial"
	SourceFollowUp Source = "follow_up"
)

type Evidence struct {
	SymptomID string        `json:"id"`
	State     catalog.State `json:"choice"`
	Source    Source        `json:"source,omitempty"`
}

// EvidenceSet holds at most one item per symptom. Re-adding a symptom
// overwrites its state but keeps its original position, so iteration order
// is the order in which symptoms were first reported.
type EvidenceSet struct {
	cat   *catalog.Catalog
	order []string
	items map[string]Evidence
}

func NewEvidenceSet(cat *catalog.Catalog) *EvidenceSet {
	return &EvidenceSet{cat: cat, items: make(map[string]Evidence)}
}

func (e *EvidenceSet) AddOrUpdate(item Evidence) error {
	if !e.cat.HasSymptom(item.SymptomID) {
		return fmt.Errorf("%w: %q", ErrInvalidSymptomID, item.SymptomID)
	}
	if !item.State.Valid() {
		return fmt.Errorf("%w: state %q for symptom %q", ErrInvalidInput, item.State, item.SymptomID)
	}
	if _, seen := e.items[item.SymptomID]; !seen {
		e.order = append(e.order, item.SymptomID)
	}
	e.items[item.SymptomID] = item
	return nil
}

func (e *EvidenceSet) Get(symptomID string) (Evidence, bool) {
	item, ok := e.items[symptomID]
	return item, ok
}

func (e *EvidenceSet) Items() []Evidence {
	out := make([]Evidence, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.items[id])
	}
	return out
}

func (e *EvidenceSet) Len() int { return len(e.order) }

func (e *EvidenceSet) PresentIDs() []string { return e.withState(catalog.StatePresent) }

func (e *EvidenceSet) AbsentIDs() []string { return e.withState(catalog.StateAbsent) }

// AskedIDs lists every symptom with any recorded answer, unknown included.
func (e *EvidenceSet) AskedIDs() []string {
	return append([]string(nil), e.order...)
}

func (e *EvidenceSet) Asked(symptomID string) bool {
	_, ok := e.items[symptomID]
	return ok
}

func (e *EvidenceSet) IsPresent(symptomID string) bool {
	item, ok := e.items[symptomID]
	return ok && item.State == catalog.StatePresent
}

// Informative counts present and absent answers; unknown answers carry no
// signal and do not consume the question budget.
func (e *EvidenceSet) Informative() int {
	n := 0
	for _, item := range e.items {
		if item.State != catalog.StateUnknown {
			n++
		}
	}
	return n
}

func (e *EvidenceSet) withState(state catalog.State) []string {
	var ids []string
	for _, id := range e.order {
		if e.items[id].State == state {
			ids = append(ids, id)
		}
	}
	return ids
}
