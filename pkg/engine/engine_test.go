package engine

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/synaptica-ai/triage/pkg/catalog"
)

func coldFluCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(catalog.Document{
		Symptoms: []catalog.Symptom{
			{ID: "cough", Name: "Cough", FollowUpQuestionIDs: []string{"fever", "runny_nose"}},
			{ID: "fever", Name: "Fever"},
			{ID: "runny_nose", Name: "Runny nose"},
			{ID: "chest_pain", Name: "Chest pain", EmergencyFlag: true},
		},
		Conditions: []catalog.Condition{
			{
				ID:                   "cold",
				Name:                 "Common Cold",
				Specialist:           "General Practitioner",
				BaseProbability:      0.1,
				SeverityClass:        catalog.SeverityLow,
				RequiredSymptomCount: 1,
				SymptomWeights:       map[string]float64{"cough": 0.2, "runny_nose": 0.3},
			},
			{
				ID:                   "flu",
				Name:                 "Influenza",
				Specialist:           "Internal Medicine",
				BaseProbability:      0.1,
				SeverityClass:        catalog.SeverityMedium,
				RequiredSymptomCount: 2,
				SymptomWeights:       map[string]float64{"cough": 0.1, "fever": 0.3},
			},
		},
	})
	if err != nil {
		t.Fatalf("building catalog: %v", err)
	}
	return cat
}

func defaultEngine(t *testing.T) *Engine {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	return New(cat, Options{})
}

func present(ids ...string) []Answer {
	out := make([]Answer, 0, len(ids))
	for _, id := range ids {
		out = append(out, Answer{SymptomID: id, Choice: "present"})
	}
	return out
}

func conditionIDs(res Result) []string {
	ids := make([]string, 0, len(res.Conditions))
	for _, c := range res.Conditions {
		ids = append(ids, c.ID)
	}
	return ids
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

var adult = Patient{Age: 30, Sex: "male"}

func TestStartCoughOnlyKeepsFluGated(t *testing.T) {
	e := New(coldFluCatalog(t), Options{})

	res, err := e.Start(adult, present("cough"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := conditionIDs(res)
	if !contains(ids, "cold") {
		t.Fatalf("expected cold in results, got %v", ids)
	}
	if contains(ids, "flu") {
		t.Fatalf("flu needs two matched symptoms, got %v", ids)
	}
	if res.ShouldStop {
		t.Fatalf("expected interview to continue, stopped with %s", res.StopReason)
	}
	if res.Question == nil || res.Question.SymptomID != "fever" {
		t.Fatalf("expected fever as next question, got %+v", res.Question)
	}
	if res.Triage.Level != LevelSelfCare {
		t.Fatalf("expected self_care, got %s", res.Triage.Level)
	}
}

func TestChestPainForcesEmergency(t *testing.T) {
	e := New(coldFluCatalog(t), Options{})

	res, err := e.Continue(adult, present("cough", "runny_nose", "chest_pain"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Conditions[0].ID != "cold" || res.Conditions[0].Severity != catalog.SeverityLow {
		t.Fatalf("expected low severity cold on top, got %+v", res.Conditions[0])
	}
	if res.Triage.Level != LevelEmergency {
		t.Fatalf("expected emergency, got %s", res.Triage.Level)
	}
	if !reflect.DeepEqual(res.Triage.EmergencySymptoms, []string{"chest_pain"}) {
		t.Fatalf("expected chest_pain as trigger, got %v", res.Triage.EmergencySymptoms)
	}
}

func TestEmptyEvidenceReturnsFallback(t *testing.T) {
	e := defaultEngine(t)

	res, err := e.Start(adult, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Conditions) != 1 || res.Conditions[0].ID != FallbackConditionID {
		t.Fatalf("expected fallback condition, got %v", conditionIDs(res))
	}
	if res.Conditions[0].Probability != 0.5 {
		t.Fatalf("expected fallback probability 0.5, got %v", res.Conditions[0].Probability)
	}
	if res.RecommendedSpecialist != "General Practitioner" {
		t.Fatalf("unexpected specialist %q", res.RecommendedSpecialist)
	}
}

func TestLastWriteWins(t *testing.T) {
	e := New(coldFluCatalog(t), Options{})

	res, err := e.Continue(adult, []Answer{
		{SymptomID: "runny_nose", Choice: "present"},
		{SymptomID: "runny_nose", Choice: "absent"},
		{SymptomID: "cough", Choice: "present"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Only cough counts: 0.1 + 0.2.
	if got := res.Conditions[0].Probability; got != 0.3 {
		t.Fatalf("expected 0.3 after overwrite, got %v", got)
	}
}

func TestUnknownSymptomIsDropped(t *testing.T) {
	e := New(coldFluCatalog(t), Options{})

	withBad, err := e.Continue(adult, append(present("not_a_symptom"), present("cough")...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clean, err := e.Continue(adult, present("cough"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(withBad.DroppedSymptomIDs, []string{"not_a_symptom"}) {
		t.Fatalf("expected dropped id reported, got %v", withBad.DroppedSymptomIDs)
	}
	withBad.DroppedSymptomIDs = nil
	if !reflect.DeepEqual(withBad, clean) {
		t.Fatalf("expected identical result without the bad id\n got %+v\nwant %+v", withBad, clean)
	}
}

func TestInvalidInput(t *testing.T) {
	e := New(coldFluCatalog(t), Options{})

	tests := []struct {
		name    string
		patient Patient
		answers []Answer
	}{
		{"negative age", Patient{Age: -1, Sex: "male"}, nil},
		{"age above range", Patient{Age: 131, Sex: "female"}, nil},
		{"unknown sex", Patient{Age: 30, Sex: "other"}, nil},
		{"bad choice", adult, []Answer{{SymptomID: "cough", Choice: "sometimes"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Start(tt.patient, tt.answers); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}

	if _, err := e.Start(Patient{Age: 130, Sex: " Female "}, nil); err != nil {
		t.Fatalf("expected boundary age and padded sex to be accepted, got %v", err)
	}
}

func TestTieBreakPrefersSpecificThenID(t *testing.T) {
	cat, err := catalog.New(catalog.Document{
		Symptoms: []catalog.Symptom{{ID: "x"}, {ID: "y"}},
		Conditions: []catalog.Condition{
			{ID: "generic_b", BaseProbability: 0.1, SeverityClass: catalog.SeverityLow, RequiredSymptomCount: 1, SymptomWeights: map[string]float64{"x": 0.2}},
			{ID: "generic_a", BaseProbability: 0.1, SeverityClass: catalog.SeverityLow, RequiredSymptomCount: 1, SymptomWeights: map[string]float64{"x": 0.2}},
			{ID: "specific", BaseProbability: 0.1, SeverityClass: catalog.SeverityLow, RequiredSymptomCount: 2, SymptomWeights: map[string]float64{"x": 0.1, "y": 0.1}},
		},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	res, err := New(cat, Options{}).Continue(adult, present("x", "y"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"specific", "generic_a", "generic_b"}
	if got := conditionIDs(res); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestProbabilityIsClamped(t *testing.T) {
	e := defaultEngine(t)

	res, err := e.Continue(adult, present("runny_nose", "sneezing", "sore_throat", "cough", "fever", "itchy_eyes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range res.Conditions {
		if c.Probability > MaxProbability {
			t.Fatalf("%s reported %v above cap", c.ID, c.Probability)
		}
	}
}

func TestMarginStopsInterview(t *testing.T) {
	e := New(coldFluCatalog(t), Options{})

	res, err := e.Continue(adult, present("cough", "runny_nose"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.ShouldStop || res.StopReason != StopDiagnosisNarrowed {
		t.Fatalf("expected narrowed stop, got stop=%t reason=%s", res.ShouldStop, res.StopReason)
	}
	if res.Question != nil {
		t.Fatalf("expected no question after stop, got %+v", res.Question)
	}
}

func TestQuestionsExhausted(t *testing.T) {
	e := New(coldFluCatalog(t), Options{})

	res, err := e.Continue(adult, []Answer{
		{SymptomID: "cough", Choice: "present"},
		{SymptomID: "fever", Choice: "absent"},
		{SymptomID: "runny_nose", Choice: "unknown"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.ShouldStop || res.StopReason != StopQuestionsExhausted {
		t.Fatalf("expected exhausted stop, got stop=%t reason=%s", res.ShouldStop, res.StopReason)
	}
}

func TestBudgetStopsInterview(t *testing.T) {
	e := defaultEngine(t)

	answers := []Answer{
		{SymptomID: "headache", Choice: "present"},
		{SymptomID: "sudden_severe_headache", Choice: "absent"},
		{SymptomID: "sensitivity_to_light", Choice: "absent"},
		{SymptomID: "stiff_neck", Choice: "absent"},
		{SymptomID: "nausea", Choice: "absent"},
		{SymptomID: "dizziness", Choice: "absent"},
		{SymptomID: "fever", Choice: "absent"},
		{SymptomID: "fatigue", Choice: "absent"},
	}
	res, err := e.Continue(adult, answers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.ShouldStop || res.StopReason != StopBudgetExhausted {
		t.Fatalf("expected budget stop, got stop=%t reason=%s", res.ShouldStop, res.StopReason)
	}
}

func TestUnknownAnswersDoNotConsumeBudget(t *testing.T) {
	e := New(coldFluCatalog(t), Options{QuestionBudget: 2})

	res, err := e.Continue(adult, []Answer{
		{SymptomID: "cough", Choice: "present"},
		{SymptomID: "fever", Choice: "unknown"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ShouldStop {
		t.Fatalf("expected to continue, stopped with %s", res.StopReason)
	}
	if res.Question == nil || res.Question.SymptomID != "runny_nose" {
		t.Fatalf("expected runny_nose next, got %+v", res.Question)
	}
}

func TestExplicitChoices(t *testing.T) {
	e := defaultEngine(t)

	res, err := e.Continue(adult, []Answer{
		{SymptomID: "cough", Choice: "present"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Question == nil || res.Question.SymptomID != "prolonged_cough" {
		t.Fatalf("expected prolonged_cough question, got %+v", res.Question)
	}
	if len(res.Question.Choices) != 4 || res.Question.Choices[2].ID != "over_3_weeks" {
		t.Fatalf("expected duration choices, got %+v", res.Question.Choices)
	}

	symptom, _ := e.Catalog().SymptomByID("prolonged_cough")
	state, err := ResolveChoice(symptom, "over_3_weeks")
	if err != nil || state != catalog.StatePresent {
		t.Fatalf("expected over_3_weeks to resolve to present, got %s, %v", state, err)
	}
	state, err = ResolveChoice(symptom, "one_to_three_weeks")
	if err != nil || state != catalog.StateAbsent {
		t.Fatalf("expected one_to_three_weeks to resolve to absent, got %s, %v", state, err)
	}
}

func TestTriageDecisionTable(t *testing.T) {
	cat, err := catalog.New(catalog.Document{
		Symptoms: []catalog.Symptom{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}},
		Conditions: []catalog.Condition{
			{ID: "crit", BaseProbability: 0.3, SeverityClass: catalog.SeverityCritical, RequiredSymptomCount: 1, SymptomWeights: map[string]float64{"a": 0.3}},
			{ID: "crit_low", BaseProbability: 0.01, SeverityClass: catalog.SeverityCritical, RequiredSymptomCount: 1, SymptomWeights: map[string]float64{"d": 0.1}},
			{ID: "high", BaseProbability: 0.1, SeverityClass: catalog.SeverityHigh, RequiredSymptomCount: 1, SymptomWeights: map[string]float64{"b": 0.3}},
			{ID: "medium", BaseProbability: 0.1, SeverityClass: catalog.SeverityMedium, RequiredSymptomCount: 1, SymptomWeights: map[string]float64{"c": 0.3}},
		},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	e := New(cat, Options{})

	tests := []struct {
		symptom string
		want    Level
	}{
		{"a", LevelEmergency},
		{"b", LevelUrgent24h},
		{"c", LevelRoutineConsultation},
		{"d", LevelSelfCare},
	}
	for _, tt := range tests {
		got, err := e.Triage(adult, present(tt.symptom))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Level != tt.want {
			t.Fatalf("symptom %s: expected %s, got %s", tt.symptom, tt.want, got.Level)
		}
		if got.Message == "" || got.Color == "" {
			t.Fatalf("symptom %s: missing presentation fields %+v", tt.symptom, got)
		}
	}
}

func TestDemographicGating(t *testing.T) {
	e := defaultEngine(t)

	male, err := e.Continue(Patient{Age: 45, Sex: "male"}, present("painful_urination", "frequent_urination"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	female, err := e.Continue(Patient{Age: 45, Sex: "female"}, present("painful_urination", "frequent_urination"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !contains(conditionIDs(male), "prostatitis") {
		t.Fatalf("expected prostatitis for male patient, got %v", conditionIDs(male))
	}
	if contains(conditionIDs(female), "prostatitis") {
		t.Fatalf("prostatitis must not be offered for female patient, got %v", conditionIDs(female))
	}
}

func TestTopKLimitsConditions(t *testing.T) {
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	e := New(cat, Options{TopK: 2})

	res, err := e.Continue(adult, present("fever", "cough", "runny_nose", "sneezing", "muscle_pain", "chills", "fatigue"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Conditions) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(res.Conditions))
	}
}

func TestRecommendedSpecialist(t *testing.T) {
	e := defaultEngine(t)

	got := e.RecommendedSpecialist([]string{"unknown", "migraine", "meningitis", "common_cold"})
	if got.Primary != "Neurologist" {
		t.Fatalf("expected Neurologist, got %q", got.Primary)
	}
	want := []string{"Neurologist", "General Practitioner"}
	if !reflect.DeepEqual(got.Recommended, want) {
		t.Fatalf("expected %v, got %v", want, got.Recommended)
	}

	empty := e.RecommendedSpecialist(nil)
	if empty.Primary != "General Practitioner" || !reflect.DeepEqual(empty.Recommended, []string{"General Practitioner"}) {
		t.Fatalf("unexpected empty recommendation %+v", empty)
	}
}

// randomAnswers draws evidence from the whole default catalog.
func randomAnswers(r *rand.Rand, cat *catalog.Catalog) []Answer {
	symptoms := cat.Symptoms()
	states := []string{"present", "present", "absent", "unknown"}
	n := r.Intn(12)
	out := make([]Answer, 0, n)
	for i := 0; i < n; i++ {
		s := symptoms[r.Intn(len(symptoms))]
		out = append(out, Answer{SymptomID: s.ID, Choice: states[r.Intn(len(states))]})
	}
	return out
}

func TestPropertiesOverRandomEvidence(t *testing.T) {
	e := defaultEngine(t)
	cat := e.Catalog()
	r := rand.New(rand.NewSource(20240611))

	var emergencyIDs []string
	for _, s := range cat.Symptoms() {
		if s.EmergencyFlag {
			emergencyIDs = append(emergencyIDs, s.ID)
		}
	}

	for i := 0; i < 300; i++ {
		answers := randomAnswers(r, cat)
		res, err := e.Continue(adult, answers)
		if err != nil {
			t.Fatalf("iteration %d: unexpected error: %v", i, err)
		}

		ev, _, _ := e.accumulate(answers, SourceFollowUp)
		presentSet := make(map[string]bool)
		for _, id := range ev.PresentIDs() {
			presentSet[id] = true
		}

		if len(res.Conditions) == 0 {
			t.Fatalf("iteration %d: empty condition list", i)
		}
		for _, c := range res.Conditions {
			if c.Probability < 0 || c.Probability > MaxProbability {
				t.Fatalf("iteration %d: probability %v out of range", i, c.Probability)
			}
			if c.ID == FallbackConditionID {
				continue
			}
			cond, _ := cat.ConditionByID(c.ID)
			matched := 0
			for sid := range cond.SymptomWeights {
				if presentSet[sid] {
					matched++
				}
			}
			if matched < cond.RequiredSymptomCount {
				t.Fatalf("iteration %d: %s matched %d < required %d", i, c.ID, matched, cond.RequiredSymptomCount)
			}
		}

		if res.Question != nil {
			for _, a := range answers {
				if a.SymptomID == res.Question.SymptomID {
					t.Fatalf("iteration %d: re-asked %s", i, a.SymptomID)
				}
			}
		}

		again, err := e.Continue(adult, answers)
		if err != nil {
			t.Fatalf("iteration %d: unexpected error on repeat: %v", i, err)
		}
		if !reflect.DeepEqual(res, again) {
			t.Fatalf("iteration %d: repeated call differs", i)
		}

		withEmergency := append(append([]Answer(nil), answers...), present(emergencyIDs[r.Intn(len(emergencyIDs))])...)
		tri, err := e.Triage(adult, withEmergency)
		if err != nil {
			t.Fatalf("iteration %d: unexpected triage error: %v", i, err)
		}
		if tri.Level != LevelEmergency {
			t.Fatalf("iteration %d: expected emergency with flagged symptom, got %s", i, tri.Level)
		}
	}
}

func TestBudgetPropertyOverRandomEvidence(t *testing.T) {
	e := defaultEngine(t)
	symptoms := e.Catalog().Symptoms()
	r := rand.New(rand.NewSource(7))

	for i := 0; i < 100; i++ {
		perm := r.Perm(len(symptoms))
		n := 8 + r.Intn(6)
		answers := make([]Answer, 0, n)
		for _, idx := range perm[:n] {
			choice := "absent"
			if r.Intn(3) == 0 {
				choice = "present"
			}
			answers = append(answers, Answer{SymptomID: symptoms[idx].ID, Choice: choice})
		}
		res, err := e.Continue(adult, answers)
		if err != nil {
			t.Fatalf("iteration %d: unexpected error: %v", i, err)
		}
		if !res.ShouldStop {
			t.Fatalf("iteration %d: expected stop with %d answered questions", i, n)
		}
	}
}

func TestBudgetIgnoresUnknownAndRepeatedAnswers(t *testing.T) {
	e := defaultEngine(t)
	symptoms := e.Catalog().Symptoms()
	if len(symptoms) < 8 {
		t.Fatalf("catalog too small: %d symptoms", len(symptoms))
	}

	unknowns := make([]Answer, 0, 8)
	for _, s := range symptoms[:8] {
		unknowns = append(unknowns, Answer{SymptomID: s.ID, Choice: "unknown"})
	}
	repeated := make([]Answer, 0, 8)
	for i := 0; i < 8; i++ {
		repeated = append(repeated, Answer{SymptomID: "headache", Choice: "present"})
	}

	for name, answers := range map[string][]Answer{"unknown": unknowns, "repeated": repeated} {
		res, err := e.Continue(adult, answers)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if res.StopReason == StopBudgetExhausted {
			t.Fatalf("%s: eight entries with fewer than eight answered questions must not exhaust the budget", name)
		}
	}
}
