// Package alerts consumes triage events and keeps a durable record of every
// emergency classification for follow-up by clinical staff.
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/triage/pkg/common/logger"
	"github.com/synaptica-ai/triage/pkg/common/models"
	"github.com/synaptica-ai/triage/pkg/observability/metrics"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultListLimit = 50

type Alert struct {
	ID                string            `json:"id" gorm:"primaryKey;column:id"`
	EventID           string            `json:"event_id" gorm:"column:event_id;uniqueIndex"`
	SessionID         string            `json:"session_id" gorm:"column:session_id;index"`
	TriageLevel       string            `json:"triage_level" gorm:"column:triage_level"`
	TopConditionID    string            `json:"top_condition_id" gorm:"column:top_condition_id"`
	EmergencySymptoms datatypes.JSON    `json:"emergency_symptoms" gorm:"column:emergency_symptoms"`
	Payload           datatypes.JSONMap `json:"payload" gorm:"column:payload"`
	Acknowledged      bool              `json:"acknowledged" gorm:"column:acknowledged"`
	RaisedAt          time.Time         `json:"raised_at" gorm:"column:raised_at"`
	CreatedAt         time.Time         `json:"created_at" gorm:"column:created_at"`
}

func (Alert) TableName() string {
	return "triage_alerts"
}

var ErrNotFound = errors.New("alert not found")

type Store interface {
	Record(ctx context.Context, alert *Alert) error
	Recent(ctx context.Context, limit int) ([]Alert, error)
	Acknowledge(ctx context.Context, id string) error
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Alert{})
}

// Record inserts alert. Redelivered events hit the event_id unique index and
// are ignored.
func (r *Repository) Record(ctx context.Context, alert *Alert) error {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(alert).Error
}

func (r *Repository) Recent(ctx context.Context, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var out []Alert
	err := r.db.WithContext(ctx).Order("raised_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (r *Repository) Acknowledge(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&Alert{}).
		Where("id = ?", id).
		Update("acknowledged", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// Handle is a kafka.EventHandler. Only emergency events produce alerts;
// everything else on the topic is acknowledged and skipped.
func (h *Handler) Handle(ctx context.Context, event models.Event) error {
	if event.Type != models.EventTriageEmergency {
		return nil
	}

	symptoms, err := json.Marshal(event.Strings("emergency_symptoms"))
	if err != nil {
		return err
	}

	raisedAt := event.Timestamp
	if raisedAt.IsZero() {
		raisedAt = time.Now().UTC()
	}

	alert := &Alert{
		ID:                uuid.New().String(),
		EventID:           event.ID,
		SessionID:         event.String("session_id"),
		TriageLevel:       event.String("triage_level"),
		TopConditionID:    event.String("top_condition_id"),
		EmergencySymptoms: datatypes.JSON(symptoms),
		Payload:           datatypes.JSONMap(event.Data),
		RaisedAt:          raisedAt,
	}

	if err := h.store.Record(ctx, alert); err != nil {
		return err
	}
	metrics.ObserveAlertRecorded()

	logger.Log.WithFields(map[string]interface{}{
		"alert_id":   alert.ID,
		"session_id": alert.SessionID,
		"symptoms":   event.Strings("emergency_symptoms"),
	}).Warn("Emergency triage alert recorded")
	return nil
}
