package models

import (
	"time"
)

// Event types on the triage events topic.
const (
	EventTriageEmergency    = "triage.emergency"
	EventDiagnosisCompleted = "diagnosis.completed"
)

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // triage.emergency, diagnosis.completed
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// String reads a string field from Data, returning "" when absent.
func (e Event) String(key string) string {
	if v, ok := e.Data[key].(string); ok {
		return v
	}
	return ""
}

// Strings reads a list of strings from Data. JSON decoding yields
// []interface{}, so both shapes are accepted.
func (e Event) Strings(key string) []string {
	switch v := e.Data[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
