package diagnosis

import (
	"time"

	"github.com/synaptica-ai/triage/pkg/catalog"
	"github.com/synaptica-ai/triage/pkg/engine"
	"gorm.io/datatypes"
)

// EvidenceItem is one reported symptom. Choice is present, absent, unknown
// or a choice id defined on the symptom.
type EvidenceItem struct {
	ID     string `json:"id"`
	Choice string `json:"choice"`
}

type StartDiagnosisRequest struct {
	Sex      string         `json:"sex"`
	Age      *int           `json:"age"`
	Symptoms []EvidenceItem `json:"symptoms"`
}

// ContinueDiagnosisRequest carries the complete evidence history; the
// service keeps no per-session state between calls.
type ContinueDiagnosisRequest struct {
	SessionID string         `json:"session_id,omitempty"`
	Sex       string         `json:"sex"`
	Age       *int           `json:"age"`
	Evidence  []EvidenceItem `json:"evidence"`
}

type GetTriageRequest struct {
	Sex      string         `json:"sex"`
	Age      *int           `json:"age"`
	Evidence []EvidenceItem `json:"evidence"`
}

type GetRecommendedSpecialistRequest struct {
	ConditionIDs []string `json:"condition_ids"`
}

type DiagnosisResponse struct {
	SessionID             string                   `json:"session_id"`
	Source                string                   `json:"source"`
	Conditions            []engine.ScoredCondition `json:"conditions"`
	Question              *engine.Question         `json:"question"`
	ShouldStop            bool                     `json:"should_stop"`
	StopReason            engine.StopReason        `json:"stop_reason,omitempty"`
	Triage                engine.Triage            `json:"triage"`
	RecommendedSpecialist string                   `json:"recommended_specialist"`
	Warnings              []string                 `json:"warnings,omitempty"`
}

type SymptomView struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	DisplayName   string           `json:"display_name"`
	BodyRegion    string           `json:"body_region"`
	EmergencyFlag bool             `json:"emergency_flag"`
	Choices       []catalog.Choice `json:"choices,omitempty"`
}

type ConditionSummary struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Severity   catalog.Severity `json:"severity"`
	Specialist string           `json:"specialist"`
}

type ConditionInfo struct {
	ConditionSummary
	Description  string        `json:"description"`
	SelfCareTips []string      `json:"self_care_tips"`
	WarningSigns []string      `json:"warning_signs"`
	Symptoms     []SymptomView `json:"symptoms"`
}

const (
	SessionStatusInProgress = "in_progress"
	SessionStatusCompleted  = "completed"
)

// SessionRecord is one audited diagnosis call. A session accumulates one row
// per call; the latest row holds the full evidence history.
type SessionRecord struct {
	ID             string         `json:"id" gorm:"primaryKey;column:id"`
	SessionID      string         `json:"session_id" gorm:"column:session_id;index"`
	Sex            string         `json:"sex" gorm:"column:sex"`
	Age            int            `json:"age" gorm:"column:age"`
	Evidence       datatypes.JSON `json:"evidence" gorm:"column:evidence"`
	Conditions     datatypes.JSON `json:"conditions" gorm:"column:conditions"`
	TopConditionID string         `json:"top_condition_id" gorm:"column:top_condition_id"`
	TriageLevel    string         `json:"triage_level" gorm:"column:triage_level;index"`
	Source         string         `json:"source" gorm:"column:source"`
	Status         string         `json:"status" gorm:"column:status"`
	QuestionsAsked int            `json:"questions_asked" gorm:"column:questions_asked"`
	CatalogVersion string         `json:"catalog_version" gorm:"column:catalog_version"`
	CreatedAt      time.Time      `json:"created_at" gorm:"column:created_at"`
}

func (SessionRecord) TableName() string {
	return "symptom_sessions"
}
