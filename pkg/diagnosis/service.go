package diagnosis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/triage/pkg/catalog"
	"github.com/synaptica-ai/triage/pkg/common/logger"
	"github.com/synaptica-ai/triage/pkg/common/models"
	"github.com/synaptica-ai/triage/pkg/engine"
	"github.com/synaptica-ai/triage/pkg/observability/metrics"
	"github.com/synaptica-ai/triage/pkg/scoring"
	"gorm.io/datatypes"
)

const EventSource = "triage-service"

// Publisher emits triage events; kafka.Producer satisfies it.
type Publisher interface {
	PublishEvent(ctx context.Context, eventType, source, key string, data map[string]interface{}) error
}

// Service owns all I/O around the engine. Cache, sessions and events are
// optional; a nil value disables that concern.
type Service struct {
	engine    *engine.Engine
	scorers   *scoring.Selector
	validator *Validator
	cache     ResultCache
	cacheTTL  time.Duration
	sessions  SessionStore
	events    Publisher
}

func NewService(eng *engine.Engine, scorers *scoring.Selector, cache ResultCache, cacheTTL time.Duration, sessions SessionStore, events Publisher) *Service {
	return &Service{
		engine:    eng,
		scorers:   scorers,
		validator: NewValidator(eng.Catalog()),
		cache:     cache,
		cacheTTL:  cacheTTL,
		sessions:  sessions,
		events:    events,
	}
}

func (s *Service) Start(ctx context.Context, req StartDiagnosisRequest) (*DiagnosisResponse, error) {
	p, err := s.validator.Patient(req.Sex, req.Age)
	if err != nil {
		return nil, err
	}
	answers, err := s.validator.Evidence(req.Symptoms)
	if err != nil {
		return nil, err
	}
	return s.diagnose(ctx, uuid.New().String(), p, answers, true)
}

func (s *Service) Continue(ctx context.Context, req ContinueDiagnosisRequest) (*DiagnosisResponse, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.New().String()
	} else if _, err := uuid.Parse(sessionID); err != nil {
		return nil, ValidationError{reason: fmt.Errorf("session_id %q is not a uuid", sessionID)}
	}

	p, err := s.validator.Patient(req.Sex, req.Age)
	if err != nil {
		return nil, err
	}
	answers, err := s.validator.Evidence(req.Evidence)
	if err != nil {
		return nil, err
	}
	return s.diagnose(ctx, sessionID, p, answers, false)
}

func (s *Service) diagnose(ctx context.Context, sessionID string, p engine.Patient, answers []engine.Answer, initial bool) (*DiagnosisResponse, error) {
	key := resultCacheKey(s.engine.Catalog().Fingerprint(), initial, p, answers)

	res, source, hit := s.lookup(ctx, key)
	if !hit {
		var err error
		res, source, err = s.scorers.Diagnose(ctx, scoring.Request{Patient: p, Evidence: answers, Initial: initial})
		if err != nil {
			return nil, err
		}
		if source == scoring.SourceLocal {
			if s.scorers.HasPrimary() {
				metrics.ObserveScorerFallback()
			}
		} else {
			res = s.escalate(p, answers, res)
		}
		s.store(ctx, key, source, res)
	}

	dropped := s.unknownSymptoms(answers)
	metrics.ObserveDroppedSymptoms(len(dropped))
	metrics.ObserveDiagnosis(source, string(res.Triage.Level))

	resp := &DiagnosisResponse{
		SessionID:             sessionID,
		Source:                source,
		Conditions:            res.Conditions,
		Question:              res.Question,
		ShouldStop:            res.ShouldStop,
		StopReason:            res.StopReason,
		Triage:                res.Triage,
		RecommendedSpecialist: res.RecommendedSpecialist,
	}
	for _, id := range dropped {
		resp.Warnings = append(resp.Warnings, fmt.Sprintf("unknown symptom id %q ignored", id))
	}

	raise := s.newEmergency(ctx, sessionID, initial, resp)
	s.audit(ctx, sessionID, p, answers, resp)
	s.publish(ctx, sessionID, p, resp, raise)

	return resp, nil
}

// escalate keeps the more urgent of the upstream triage and the local one.
// An external scorer may rank conditions differently, but it never
// downgrades an emergency the catalog flags.
func (s *Service) escalate(p engine.Patient, answers []engine.Answer, res engine.Result) engine.Result {
	local, err := s.engine.Triage(p, answers)
	if err != nil {
		logger.Log.WithError(err).Warn("local triage check failed")
		return res
	}
	if local.Level.Rank() > res.Triage.Level.Rank() {
		logger.Log.WithFields(map[string]interface{}{
			"upstream_level": res.Triage.Level,
			"local_level":    local.Level,
		}).Warn("escalating external triage to local level")
		res.Triage = local
	}
	return res
}

func (s *Service) lookup(ctx context.Context, key string) (engine.Result, string, bool) {
	if s.cache == nil {
		return engine.Result{}, "", false
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		logger.Log.WithError(err).Warn("result cache read failed")
	}
	if err != nil || !ok {
		metrics.ObserveCache(false)
		return engine.Result{}, "", false
	}
	var cached cachedResult
	if err := json.Unmarshal(raw, &cached); err != nil {
		logger.Log.WithError(err).Warn("discarding undecodable cache entry")
		metrics.ObserveCache(false)
		return engine.Result{}, "", false
	}
	metrics.ObserveCache(true)
	return cached.Result, cached.Source, true
}

func (s *Service) store(ctx context.Context, key, source string, res engine.Result) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(cachedResult{Source: source, Result: res})
	if err != nil {
		logger.Log.WithError(err).Warn("failed to encode cache entry")
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
		logger.Log.WithError(err).Warn("result cache write failed")
	}
}

func (s *Service) unknownSymptoms(answers []engine.Answer) []string {
	var out []string
	for _, a := range answers {
		if !s.engine.Catalog().HasSymptom(a.SymptomID) {
			out = append(out, a.SymptomID)
		}
	}
	return out
}

// newEmergency reports whether resp moves the session into emergency. A
// session already recorded at emergency does not raise a second alert.
func (s *Service) newEmergency(ctx context.Context, sessionID string, initial bool, resp *DiagnosisResponse) bool {
	if resp.Triage.Level != engine.LevelEmergency {
		return false
	}
	if initial || s.sessions == nil {
		return true
	}
	prev, err := s.sessions.Latest(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Log.WithError(err).WithField("session_id", sessionID).Warn("failed to load previous session state")
		}
		return true
	}
	return prev.TriageLevel != string(engine.LevelEmergency)
}

func (s *Service) audit(ctx context.Context, sessionID string, p engine.Patient, answers []engine.Answer, resp *DiagnosisResponse) {
	if s.sessions == nil {
		return
	}
	evidence, _ := json.Marshal(answers)
	conditions, _ := json.Marshal(resp.Conditions)

	rec := &SessionRecord{
		ID:             uuid.New().String(),
		SessionID:      sessionID,
		Sex:            p.Sex,
		Age:            p.Age,
		Evidence:       datatypes.JSON(evidence),
		Conditions:     datatypes.JSON(conditions),
		TriageLevel:    string(resp.Triage.Level),
		Source:         resp.Source,
		Status:         SessionStatusInProgress,
		QuestionsAsked: len(answers),
		CatalogVersion: s.engine.Catalog().Version(),
	}
	if len(resp.Conditions) > 0 {
		rec.TopConditionID = resp.Conditions[0].ID
	}
	if resp.ShouldStop {
		rec.Status = SessionStatusCompleted
	}

	if err := s.sessions.Save(ctx, rec); err != nil {
		logger.Log.WithError(err).WithField("session_id", sessionID).Error("failed to persist session audit")
	}
}

func (s *Service) publish(ctx context.Context, sessionID string, p engine.Patient, resp *DiagnosisResponse, raiseEmergency bool) {
	if s.events == nil {
		return
	}

	data := map[string]interface{}{
		"session_id":      sessionID,
		"triage_level":    string(resp.Triage.Level),
		"source":          resp.Source,
		"age":             p.Age,
		"sex":             p.Sex,
		"catalog_version": s.engine.Catalog().Version(),
	}
	if len(resp.Conditions) > 0 {
		data["top_condition_id"] = resp.Conditions[0].ID
		data["top_probability"] = resp.Conditions[0].Probability
	}

	if raiseEmergency {
		emergency := make(map[string]interface{}, len(data)+1)
		for k, v := range data {
			emergency[k] = v
		}
		emergency["emergency_symptoms"] = resp.Triage.EmergencySymptoms
		err := s.events.PublishEvent(ctx, models.EventTriageEmergency, EventSource, sessionID, emergency)
		metrics.ObserveEventPublish(err)
	}
	if resp.ShouldStop {
		data["stop_reason"] = string(resp.StopReason)
		err := s.events.PublishEvent(ctx, models.EventDiagnosisCompleted, EventSource, sessionID, data)
		metrics.ObserveEventPublish(err)
	}
}

func (s *Service) Triage(ctx context.Context, req GetTriageRequest) (*engine.Triage, error) {
	p, err := s.validator.Patient(req.Sex, req.Age)
	if err != nil {
		return nil, err
	}
	answers, err := s.validator.Evidence(req.Evidence)
	if err != nil {
		return nil, err
	}
	t, err := s.engine.Triage(p, answers)
	if err != nil {
		return nil, err
	}
	metrics.ObserveTriage(string(t.Level))
	return &t, nil
}

func (s *Service) RecommendedSpecialist(req GetRecommendedSpecialistRequest) engine.Specialists {
	return s.engine.RecommendedSpecialist(req.ConditionIDs)
}

// Symptoms lists catalog symptoms, optionally filtered by body region and a
// name search.
func (s *Service) Symptoms(region, search string) ([]SymptomView, error) {
	cat := s.engine.Catalog()
	var symptoms []catalog.Symptom
	if search != "" {
		symptoms = cat.Search(search)
	} else {
		symptoms = cat.Symptoms()
	}

	region = strings.TrimSpace(region)
	if region != "" {
		if _, ok := cat.RegionByID(region); !ok {
			return nil, fmt.Errorf("region %q: %w", region, ErrNotFound)
		}
	}

	out := make([]SymptomView, 0, len(symptoms))
	for _, sym := range symptoms {
		if region != "" && sym.BodyRegion != region {
			continue
		}
		out = append(out, newSymptomView(sym))
	}
	return out, nil
}

func (s *Service) Regions() []catalog.Region {
	return s.engine.Catalog().Regions()
}

func (s *Service) Conditions() []ConditionSummary {
	conditions := s.engine.Catalog().Conditions()
	out := make([]ConditionSummary, 0, len(conditions))
	for _, c := range conditions {
		out = append(out, newConditionSummary(c))
	}
	return out
}

func (s *Service) Condition(id string) (*ConditionInfo, error) {
	cat := s.engine.Catalog()
	c, ok := cat.ConditionByID(id)
	if !ok {
		return nil, fmt.Errorf("condition %q: %w", id, ErrNotFound)
	}
	info := &ConditionInfo{
		ConditionSummary: newConditionSummary(c),
		Description:      c.Description,
		SelfCareTips:     c.SelfCareTips,
		WarningSigns:     c.WarningSigns,
	}
	for _, sid := range c.WeightedSymptomIDs() {
		if sym, ok := cat.SymptomByID(sid); ok {
			info.Symptoms = append(info.Symptoms, newSymptomView(sym))
		}
	}
	return info, nil
}

func (s *Service) Session(ctx context.Context, sessionID string) (*SessionRecord, error) {
	if s.sessions == nil {
		return nil, ErrNotFound
	}
	return s.sessions.Latest(ctx, sessionID)
}

func (s *Service) Scorers(ctx context.Context) []scoring.Status {
	return s.scorers.Status(ctx)
}

func newSymptomView(s catalog.Symptom) SymptomView {
	return SymptomView{
		ID:            s.ID,
		Name:          s.Name,
		DisplayName:   s.DisplayName,
		BodyRegion:    s.BodyRegion,
		EmergencyFlag: s.EmergencyFlag,
		Choices:       s.Choices,
	}
}

func newConditionSummary(c catalog.Condition) ConditionSummary {
	return ConditionSummary{
		ID:         c.ID,
		Name:       c.Name,
		Severity:   c.SeverityClass,
		Specialist: c.Specialist,
	}
}
