package engine

import (
	"math"
	"sort"

	"github.com/synaptica-ai/triage/pkg/catalog"
)

const (
	// MaxProbability caps every reported score; the engine never claims
	// certainty.
	MaxProbability = 0.95

	FallbackConditionID = "general_concern"
	fallbackProbability = 0.50
	defaultSpecialist   = "General Practitioner"
)

var fallbackCondition = catalog.Condition{
	ID:              FallbackConditionID,
	Name:            "General / unspecified concern",
	Specialist:      defaultSpecialist,
	BaseProbability: fallbackProbability,
	SeverityClass:   catalog.SeverityLow,
	Description:     "Your answers do not clearly point to a specific condition. A general practitioner can assess your symptoms.",
	SelfCareTips: []string{
		"Rest and stay hydrated",
		"Monitor your symptoms and note any changes",
		"Seek medical attention if symptoms worsen",
	},
}

// Candidate is a condition scored against the current evidence.
type Candidate struct {
	Condition catalog.Condition
	Score     float64
	Matched   int
	Eligible  bool
}

// Estimate is the estimator's output. Ranked always has at least one entry:
// when nothing is eligible it holds the single fallback candidate.
type Estimate struct {
	Ranked       []Candidate
	NearEligible []Candidate
	Fallback     bool
}

func (e Estimate) Top() Candidate { return e.Ranked[0] }

// Second returns the runner-up among real eligible candidates.
func (e Estimate) Second() (Candidate, bool) {
	if e.Fallback || len(e.Ranked) < 2 {
		return Candidate{}, false
	}
	return e.Ranked[1], true
}

func estimate(cat *catalog.Catalog, ev *EvidenceSet, p Patient, topK int) Estimate {
	present := ev.PresentIDs()

	var eligible, near []Candidate
	for _, cond := range cat.Conditions() {
		if !cond.AppliesTo(p.Age, p.Sex) {
			continue
		}
		score := cond.BaseProbability
		matched := 0
		for _, sid := range present {
			if w, ok := cond.SymptomWeights[sid]; ok {
				score += w
				matched++
			}
		}
		c := Candidate{
			Condition: cond,
			Score:     clampProbability(score),
			Matched:   matched,
			Eligible:  matched >= cond.RequiredSymptomCount,
		}
		switch {
		case c.Eligible:
			eligible = append(eligible, c)
		case matched > 0 && cond.RequiredSymptomCount-matched == 1:
			near = append(near, c)
		}
	}

	sortCandidates(eligible)
	sortCandidates(near)

	est := Estimate{
		Ranked:       truncate(eligible, topK),
		NearEligible: truncate(near, topK),
	}
	if len(est.Ranked) == 0 {
		est.Ranked = []Candidate{{Condition: fallbackCondition, Score: fallbackProbability, Eligible: true}}
		est.Fallback = true
	}
	return est
}

// Descending score; exact ties prefer the condition that needed more
// specific evidence, then id for a total order.
func sortCandidates(cs []Candidate) {
	sort.Slice(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Condition.RequiredSymptomCount != b.Condition.RequiredSymptomCount {
			return a.Condition.RequiredSymptomCount > b.Condition.RequiredSymptomCount
		}
		return a.Condition.ID < b.Condition.ID
	})
}

func truncate(cs []Candidate, k int) []Candidate {
	if k > 0 && len(cs) > k {
		return cs[:k]
	}
	return cs
}

// Rounded to four decimals so that float noise from summing weights cannot
// break ties or leak into responses.
func clampProbability(p float64) float64 {
	p = math.Round(p*1e4) / 1e4
	if p < 0 {
		return 0
	}
	if p > MaxProbability {
		return MaxProbability
	}
	return p
}
