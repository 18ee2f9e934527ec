package engine

import "github.com/synaptica-ai/triage/pkg/catalog"

type Level string

const (
	LevelEmergency           Level = "emergency"
	LevelUrgent24h           Level = "urgent_24h"
	LevelRoutineConsultation Level = "routine_consultation"
	LevelSelfCare            Level = "self_care"
)

// criticalEmergencyThreshold is the probability at which a critical top
// condition escalates to emergency on its own.
const criticalEmergencyThreshold = 0.5

type Triage struct {
	Level             Level    `json:"level"`
	Label             string   `json:"label"`
	Message           string   `json:"message"`
	Color             string   `json:"color"`
	EmergencySymptoms []string `json:"emergency_symptoms,omitempty"`
}

type levelPresentation struct {
	label   string
	message string
	color   string
}

var levels = map[Level]levelPresentation{
	LevelEmergency: {
		label:   "Emergency - Seek immediate care",
		message: "Seek emergency medical care immediately or call your local emergency number.",
		color:   "#EF4444",
	},
	LevelUrgent24h: {
		label:   "See a doctor within 24 hours",
		message: "Consult a doctor within 24 hours.",
		color:   "#F59E0B",
	},
	LevelRoutineConsultation: {
		label:   "Schedule a consultation",
		message: "Schedule an appointment with a doctor.",
		color:   "#3B82F6",
	},
	LevelSelfCare: {
		label:   "Self-care recommended",
		message: "Self-care may be appropriate, but consult a doctor if symptoms persist or get worse.",
		color:   "#22C55E",
	},
}

// NewTriage fills presentation fields for level.
func NewTriage(level Level) Triage {
	p, ok := levels[level]
	if !ok {
		level = LevelRoutineConsultation
		p = levels[level]
	}
	return Triage{Level: level, Label: p.label, Message: p.message, Color: p.color}
}

// Rank orders levels by urgency, emergency highest.
func (l Level) Rank() int {
	switch l {
	case LevelEmergency:
		return 3
	case LevelUrgent24h:
		return 2
	case LevelRoutineConsultation:
		return 1
	}
	return 0
}

// classify applies the decision table top to bottom; the first matching row
// wins.
func classify(cat *catalog.Catalog, ev *EvidenceSet, top Candidate) Triage {
	if flagged := emergencySymptoms(cat, ev); len(flagged) > 0 {
		t := NewTriage(LevelEmergency)
		t.EmergencySymptoms = flagged
		return t
	}

	severity := top.Condition.SeverityClass
	switch {
	case severity == catalog.SeverityCritical && top.Score >= criticalEmergencyThreshold:
		return NewTriage(LevelEmergency)
	case severity == catalog.SeverityHigh:
		return NewTriage(LevelUrgent24h)
	case severity == catalog.SeverityMedium:
		return NewTriage(LevelRoutineConsultation)
	}
	return NewTriage(LevelSelfCare)
}

func emergencySymptoms(cat *catalog.Catalog, ev *EvidenceSet) []string {
	var flagged []string
	for _, sid := range ev.PresentIDs() {
		if s, ok := cat.SymptomByID(sid); ok && s.EmergencyFlag {
			flagged = append(flagged, sid)
		}
	}
	return flagged
}
