// Package engine implements the symptom evidence engine: it scores catalog
// conditions against reported evidence, decides whether to ask another
// question and classifies triage urgency.
//
// Every call is a pure function of its arguments and the immutable catalog,
// so an Engine may be shared by any number of goroutines.
package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/triage/pkg/catalog"
	"github.com/synaptica-ai/triage/pkg/common/logger"
)

const (
	MinAge = 0
	MaxAge = 130

	DefaultQuestionBudget = 8
	DefaultStopMargin     = 0.20
	DefaultTopK           = 5
)

type Options struct {
	QuestionBudget int
	StopMargin     float64
	TopK           int
	Logger         *logrus.Entry
}

func (o Options) withDefaults() Options {
	if o.QuestionBudget <= 0 {
		o.QuestionBudget = DefaultQuestionBudget
	}
	if o.StopMargin <= 0 {
		o.StopMargin = DefaultStopMargin
	}
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.Logger == nil {
		o.Logger = logger.Discard()
	}
	return o
}

type Patient struct {
	Age int
	Sex string
}

// Answer is one raw evidence entry as supplied by a caller. Choice is either
// an evidence state or a choice id defined on the symptom.
type Answer struct {
	SymptomID string `json:"id"`
	Choice    string `json:"choice"`
	Source    Source `json:"source,omitempty"`
}

type ScoredCondition struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Probability float64          `json:"probability"`
	Severity    catalog.Severity `json:"severity"`
	Specialist  string           `json:"-"`
}

type Result struct {
	Conditions            []ScoredCondition `json:"conditions"`
	Question              *Question         `json:"question"`
	ShouldStop            bool              `json:"should_stop"`
	StopReason            StopReason        `json:"stop_reason,omitempty"`
	Triage                Triage            `json:"triage"`
	RecommendedSpecialist string            `json:"recommended_specialist"`
	DroppedSymptomIDs     []string          `json:"dropped_symptom_ids,omitempty"`
}

type Specialists struct {
	Primary     string   `json:"primary"`
	Recommended []string `json:"recommended"`
}

type Engine struct {
	cat  *catalog.Catalog
	opts Options
}

func New(cat *catalog.Catalog, opts Options) *Engine {
	return &Engine{cat: cat, opts: opts.withDefaults()}
}

func (e *Engine) Catalog() *catalog.Catalog { return e.cat }

func (e *Engine) Options() Options { return e.opts }

// Start runs the pipeline over the initial evidence of a new session.
func (e *Engine) Start(p Patient, initial []Answer) (Result, error) {
	return e.run(p, initial, SourceInitial)
}

// Continue runs the pipeline over the complete evidence history. Callers
// resend everything answered so far; the engine keeps no session state.
func (e *Engine) Continue(p Patient, full []Answer) (Result, error) {
	return e.run(p, full, SourceFollowUp)
}

// Triage classifies urgency without selecting a question.
func (e *Engine) Triage(p Patient, evidence []Answer) (Triage, error) {
	p, err := ValidatePatient(p)
	if err != nil {
		return Triage{}, err
	}
	ev, _, err := e.accumulate(evidence, SourceFollowUp)
	if err != nil {
		return Triage{}, err
	}
	est := estimate(e.cat, ev, p, e.opts.TopK)
	return classify(e.cat, ev, est.Top()), nil
}

// RecommendedSpecialist maps ranked condition ids to specialists. Unknown
// ids are skipped; General Practitioner is always among the recommendations.
func (e *Engine) RecommendedSpecialist(conditionIDs []string) Specialists {
	out := Specialists{}
	seen := make(map[string]struct{})
	for _, id := range conditionIDs {
		cond, ok := e.cat.ConditionByID(id)
		if !ok || cond.Specialist == "" {
			continue
		}
		if out.Primary == "" {
			out.Primary = cond.Specialist
		}
		if _, dup := seen[cond.Specialist]; !dup {
			seen[cond.Specialist] = struct{}{}
			out.Recommended = append(out.Recommended, cond.Specialist)
		}
	}
	if out.Primary == "" {
		out.Primary = defaultSpecialist
	}
	if _, ok := seen[defaultSpecialist]; !ok {
		out.Recommended = append(out.Recommended, defaultSpecialist)
	}
	return out
}

func (e *Engine) run(p Patient, answers []Answer, defaultSource Source) (Result, error) {
	p, err := ValidatePatient(p)
	if err != nil {
		return Result{}, err
	}
	ev, dropped, err := e.accumulate(answers, defaultSource)
	if err != nil {
		return Result{}, err
	}

	est := estimate(e.cat, ev, p, e.opts.TopK)
	next := selectNext(e.cat, ev, est, e.opts)
	triage := classify(e.cat, ev, est.Top())

	res := Result{
		Conditions:            make([]ScoredCondition, 0, len(est.Ranked)),
		Question:              next.question,
		ShouldStop:            next.shouldStop,
		StopReason:            next.reason,
		Triage:                triage,
		RecommendedSpecialist: est.Top().Condition.Specialist,
		DroppedSymptomIDs:     dropped,
	}
	for _, c := range est.Ranked {
		res.Conditions = append(res.Conditions, ScoredCondition{
			ID:          c.Condition.ID,
			Name:        c.Condition.Name,
			Probability: c.Score,
			Severity:    c.Condition.SeverityClass,
			Specialist:  c.Condition.Specialist,
		})
	}
	if res.RecommendedSpecialist == "" {
		res.RecommendedSpecialist = defaultSpecialist
	}
	return res, nil
}

// accumulate builds the evidence set. Unknown symptom ids are dropped and
// reported; a malformed choice on a known symptom is an input error.
func (e *Engine) accumulate(answers []Answer, defaultSource Source) (*EvidenceSet, []string, error) {
	ev := NewEvidenceSet(e.cat)
	var dropped []string
	for _, a := range answers {
		symptom, ok := e.cat.SymptomByID(a.SymptomID)
		if !ok {
			e.opts.Logger.WithField("symptom_id", a.SymptomID).
				Warn("dropping evidence for unknown symptom")
			dropped = append(dropped, a.SymptomID)
			continue
		}
		state, err := ResolveChoice(symptom, a.Choice)
		if err != nil {
			return nil, nil, err
		}
		source := a.Source
		if source == "" {
			source = defaultSource
		}
		if err := ev.AddOrUpdate(Evidence{SymptomID: a.SymptomID, State: state, Source: source}); err != nil {
			if errors.Is(err, ErrInvalidSymptomID) {
				dropped = append(dropped, a.SymptomID)
				continue
			}
			return nil, nil, err
		}
	}
	return ev, dropped, nil
}

// ResolveChoice maps a raw choice to an evidence state. Plain states are
// always accepted; otherwise the choice must be one the symptom defines.
func ResolveChoice(s catalog.Symptom, choice string) (catalog.State, error) {
	normalized := strings.ToLower(strings.TrimSpace(choice))
	if st := catalog.State(normalized); st.Valid() {
		return st, nil
	}
	for _, ch := range s.Choices {
		if ch.ID == normalized {
			return ch.State, nil
		}
	}
	return "", fmt.Errorf("%w: choice %q for symptom %q", ErrInvalidInput, choice, s.ID)
}

// ValidatePatient normalizes sex and checks the supported age range.
func ValidatePatient(p Patient) (Patient, error) {
	if p.Age < MinAge || p.Age > MaxAge {
		return p, fmt.Errorf("%w: age %d outside %d-%d", ErrInvalidInput, p.Age, MinAge, MaxAge)
	}
	p.Sex = strings.ToLower(strings.TrimSpace(p.Sex))
	if p.Sex != "male" && p.Sex != "female" {
		return p, fmt.Errorf("%w: sex %q", ErrInvalidInput, p.Sex)
	}
	return p, nil
}
