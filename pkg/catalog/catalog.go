package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// State is the answer recorded for a symptom.
type State string

const (
	StatePresent State = "present"
	StateAbsent  State = "absent"
	StateUnknown State = "unknown"
)

func (s State) Valid() bool {
	switch s {
	case StatePresent, StateAbsent, StateUnknown:
		return true
	}
	return false
}

type Region struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Choice is an explicit labelled answer for a symptom question. Every choice
// resolves to one evidence state.
type Choice struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
	State State  `yaml:"state" json:"-"`
}

type Symptom struct {
	ID                  string   `yaml:"id" json:"id"`
	Name                string   `yaml:"name" json:"name"`
	DisplayName         string   `yaml:"display_name" json:"display_name"`
	BodyRegion          string   `yaml:"body_region" json:"body_region"`
	EmergencyFlag       bool     `yaml:"emergency_flag" json:"emergency_flag"`
	Question            string   `yaml:"question" json:"-"`
	FollowUpQuestionIDs []string `yaml:"follow_up_question_ids" json:"-"`
	Choices             []Choice `yaml:"choices" json:"-"`
}

// QuestionText is the prompt used when the symptom is asked as a follow-up.
func (s Symptom) QuestionText() string {
	if s.Question != "" {
		return s.Question
	}
	name := s.DisplayName
	if name == "" {
		name = s.Name
	}
	return fmt.Sprintf("Do you have %s?", strings.ToLower(name))
}

type Condition struct {
	ID                   string             `yaml:"id" json:"id"`
	Name                 string             `yaml:"name" json:"name"`
	Specialist           string             `yaml:"specialist" json:"specialist"`
	BaseProbability      float64            `yaml:"base_probability" json:"base_probability"`
	SeverityClass        Severity           `yaml:"severity_class" json:"severity"`
	SymptomWeights       map[string]float64 `yaml:"symptom_weights" json:"-"`
	RequiredSymptomCount int                `yaml:"required_symptom_count" json:"required_symptom_count"`
	Description          string             `yaml:"description" json:"description"`
	SelfCareTips         []string           `yaml:"self_care_tips" json:"self_care_tips"`
	WarningSigns         []string           `yaml:"warning_signs" json:"warning_signs"`

	// Optional demographic gating. Empty sex and zero ages mean unrestricted.
	Sex    string `yaml:"sex" json:"sex,omitempty"`
	MinAge int    `yaml:"min_age" json:"min_age,omitempty"`
	MaxAge int    `yaml:"max_age" json:"max_age,omitempty"`
}

// AppliesTo reports whether the condition is plausible for the patient.
func (c Condition) AppliesTo(age int, sex string) bool {
	if c.Sex != "" && !strings.EqualFold(c.Sex, sex) {
		return false
	}
	if c.MinAge > 0 && age < c.MinAge {
		return false
	}
	if c.MaxAge > 0 && age > c.MaxAge {
		return false
	}
	return true
}

// WeightedSymptomIDs returns the condition's symptoms ordered by weight
// descending, then id.
func (c Condition) WeightedSymptomIDs() []string {
	ids := make([]string, 0, len(c.SymptomWeights))
	for id := range c.SymptomWeights {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		wi, wj := c.SymptomWeights[ids[i]], c.SymptomWeights[ids[j]]
		if wi != wj {
			return wi > wj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Document is the on-disk shape of a catalog.
type Document struct {
	Version    string      `yaml:"version"`
	Regions    []Region    `yaml:"regions"`
	Symptoms   []Symptom   `yaml:"symptoms"`
	Conditions []Condition `yaml:"conditions"`
}

// Catalog is immutable once built and safe for concurrent readers.
type Catalog struct {
	version     string
	fingerprint string

	regions    []Region
	symptoms   []Symptom
	conditions []Condition

	symptomIdx   map[string]int
	conditionIdx map[string]int
	regionIdx    map[string]int
	byRegion     map[string][]string
	bySymptom    map[string][]string
}

func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrCatalogLoad, path, err)
	}
	return Parse(content)
}

func Parse(content []byte) (*Catalog, error) {
	var doc Document
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogLoad, err)
	}
	cat, err := New(doc)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(content)
	cat.fingerprint = hex.EncodeToString(sum[:8])
	return cat, nil
}

// New validates doc and builds the lookup indexes.
func New(doc Document) (*Catalog, error) {
	if err := validate(doc); err != nil {
		return nil, err
	}

	c := &Catalog{
		version:      doc.Version,
		regions:      doc.Regions,
		symptoms:     doc.Symptoms,
		conditions:   doc.Conditions,
		symptomIdx:   make(map[string]int, len(doc.Symptoms)),
		conditionIdx: make(map[string]int, len(doc.Conditions)),
		regionIdx:    make(map[string]int, len(doc.Regions)),
		byRegion:     make(map[string][]string),
		bySymptom:    make(map[string][]string),
	}
	for i, r := range doc.Regions {
		c.regionIdx[r.ID] = i
	}
	for i, s := range doc.Symptoms {
		c.symptomIdx[s.ID] = i
		c.byRegion[s.BodyRegion] = append(c.byRegion[s.BodyRegion], s.ID)
	}
	for i, cond := range doc.Conditions {
		c.conditionIdx[cond.ID] = i
		for sid := range cond.SymptomWeights {
			c.bySymptom[sid] = append(c.bySymptom[sid], cond.ID)
		}
	}
	for sid := range c.bySymptom {
		sort.Strings(c.bySymptom[sid])
	}
	c.fingerprint = structuralFingerprint(doc)
	return c, nil
}

func structuralFingerprint(doc Document) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|%d", doc.Version, len(doc.Regions), len(doc.Symptoms), len(doc.Conditions))
	for _, s := range doc.Symptoms {
		fmt.Fprintf(h, "|s:%s:%t:%v", s.ID, s.EmergencyFlag, s.FollowUpQuestionIDs)
	}
	for _, cond := range doc.Conditions {
		fmt.Fprintf(h, "|c:%s:%v:%s:%d", cond.ID, cond.BaseProbability, cond.SeverityClass, cond.RequiredSymptomCount)
		for _, sid := range cond.WeightedSymptomIDs() {
			fmt.Fprintf(h, ",%s=%v", sid, cond.SymptomWeights[sid])
		}
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}

func (c *Catalog) Version() string { return c.version }

// Fingerprint identifies the catalog content; cache keys include it so a
// catalog change never serves stale results.
func (c *Catalog) Fingerprint() string { return c.fingerprint }

func (c *Catalog) SymptomByID(id string) (Symptom, bool) {
	idx, ok := c.symptomIdx[id]
	if !ok {
		return Symptom{}, false
	}
	return c.symptoms[idx], true
}

func (c *Catalog) ConditionByID(id string) (Condition, bool) {
	idx, ok := c.conditionIdx[id]
	if !ok {
		return Condition{}, false
	}
	return c.conditions[idx], true
}

func (c *Catalog) HasSymptom(id string) bool {
	_, ok := c.symptomIdx[id]
	return ok
}

func (c *Catalog) SymptomsInRegion(regionID string) []Symptom {
	ids := c.byRegion[regionID]
	out := make([]Symptom, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.symptoms[c.symptomIdx[id]])
	}
	return out
}

func (c *Catalog) ConditionsReferencingSymptom(symptomID string) []Condition {
	ids := c.bySymptom[symptomID]
	out := make([]Condition, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.conditions[c.conditionIdx[id]])
	}
	return out
}

func (c *Catalog) Symptoms() []Symptom {
	return append([]Symptom(nil), c.symptoms...)
}

func (c *Catalog) Conditions() []Condition {
	return append([]Condition(nil), c.conditions...)
}

func (c *Catalog) Regions() []Region {
	return append([]Region(nil), c.regions...)
}

func (c *Catalog) RegionByID(id string) (Region, bool) {
	idx, ok := c.regionIdx[id]
	if !ok {
		return Region{}, false
	}
	return c.regions[idx], true
}

// Search matches term case-insensitively against symptom names.
func (c *Catalog) Search(term string) []Symptom {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return c.Symptoms()
	}
	var out []Symptom
	for _, s := range c.symptoms {
		if strings.Contains(strings.ToLower(s.Name), term) ||
			strings.Contains(strings.ToLower(s.DisplayName), term) ||
			strings.Contains(s.ID, term) {
			out = append(out, s)
		}
	}
	return out
}
