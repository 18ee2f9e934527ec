package engine

import (
	"github.com/synaptica-ai/triage/pkg/catalog"
)

type StopReason string

const (
	StopNone               StopReason = ""
	StopBudgetExhausted    StopReason = "budget_exhausted"
	StopDiagnosisNarrowed  StopReason = "diagnosis_narrowed"
	StopQuestionsExhausted StopReason = "questions_exhausted"
)

// minPresentForMargin is the number of present symptoms needed before a
// clear score lead may end the interview.
const minPresentForMargin = 2

const marginEpsilon = 1e-9

type QuestionChoice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type Question struct {
	SymptomID string           `json:"symptom_id"`
	Text      string           `json:"text"`
	Choices   []QuestionChoice `json:"choices"`
}

var defaultChoices = []QuestionChoice{
	{ID: string(catalog.StatePresent), Label: "Yes"},
	{ID: string(catalog.StateAbsent), Label: "No"},
	{ID: string(catalog.StateUnknown), Label: "Don't know"},
}

type decision struct {
	shouldStop bool
	reason     StopReason
	question   *Question
}

func selectNext(cat *catalog.Catalog, ev *EvidenceSet, est Estimate, opts Options) decision {
	if opts.QuestionBudget > 0 && ev.Informative() >= opts.QuestionBudget {
		return decision{shouldStop: true, reason: StopBudgetExhausted}
	}

	if !est.Fallback && len(ev.PresentIDs()) >= minPresentForMargin {
		top := est.Top()
		second := 0.0
		if c, ok := est.Second(); ok {
			second = c.Score
		}
		if top.Score-second-opts.StopMargin > marginEpsilon {
			return decision{shouldStop: true, reason: StopDiagnosisNarrowed}
		}
	}

	for _, sid := range questionPool(ev, est, opts.TopK) {
		if ev.Asked(sid) {
			continue
		}
		symptom, ok := cat.SymptomByID(sid)
		if !ok {
			continue
		}
		return decision{question: buildQuestion(symptom)}
	}
	return decision{shouldStop: true, reason: StopQuestionsExhausted}
}

// questionPool lists follow-up candidates in the order they should be asked:
// eligible conditions by rank, then near-eligible ones, capped at topK
// conditions. With no candidate at all, the follow-ups of the present
// symptoms are used directly.
func questionPool(ev *EvidenceSet, est Estimate, topK int) []string {
	var conditions []catalog.Condition
	if !est.Fallback {
		for _, c := range est.Ranked {
			conditions = append(conditions, c.Condition)
		}
	}
	for _, c := range est.NearEligible {
		conditions = append(conditions, c.Condition)
	}
	if topK > 0 && len(conditions) > topK {
		conditions = conditions[:topK]
	}

	var pool []string
	seen := make(map[string]struct{})
	add := func(ids ...string) {
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			pool = append(pool, id)
		}
	}

	if len(conditions) == 0 {
		for _, sid := range ev.PresentIDs() {
			if s, ok := ev.cat.SymptomByID(sid); ok {
				add(s.FollowUpQuestionIDs...)
			}
		}
		return pool
	}

	for _, cond := range conditions {
		weighted := cond.WeightedSymptomIDs()
		for _, sid := range weighted {
			if !ev.IsPresent(sid) {
				continue
			}
			if s, ok := ev.cat.SymptomByID(sid); ok {
				add(s.FollowUpQuestionIDs...)
			}
		}
		add(weighted...)
	}
	return pool
}

func buildQuestion(s catalog.Symptom) *Question {
	q := &Question{SymptomID: s.ID, Text: s.QuestionText()}
	if len(s.Choices) == 0 {
		q.Choices = append([]QuestionChoice(nil), defaultChoices...)
		return q
	}
	for _, ch := range s.Choices {
		q.Choices = append(q.Choices, QuestionChoice{ID: ch.ID, Label: ch.Label})
	}
	return q
}
