package catalog

import (
	"errors"
	"fmt"
)

// ErrCatalogLoad marks a catalog that must not be served.
var ErrCatalogLoad = errors.New("catalog load failed")

func loadErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrCatalogLoad, fmt.Sprintf(format, args...))
}

func validate(doc Document) error {
	if len(doc.Symptoms) == 0 {
		return loadErr("no symptoms defined")
	}
	if len(doc.Conditions) == 0 {
		return loadErr("no conditions defined")
	}

	regions := make(map[string]struct{}, len(doc.Regions))
	for _, r := range doc.Regions {
		if r.ID == "" {
			return loadErr("region with empty id")
		}
		if _, dup := regions[r.ID]; dup {
			return loadErr("duplicate region %q", r.ID)
		}
		regions[r.ID] = struct{}{}
	}

	symptoms := make(map[string]struct{}, len(doc.Symptoms))
	for _, s := range doc.Symptoms {
		if s.ID == "" {
			return loadErr("symptom with empty id")
		}
		if _, dup := symptoms[s.ID]; dup {
			return loadErr("duplicate symptom %q", s.ID)
		}
		symptoms[s.ID] = struct{}{}
	}

	for _, s := range doc.Symptoms {
		if len(regions) > 0 {
			if _, ok := regions[s.BodyRegion]; !ok {
				return loadErr("symptom %q references unknown region %q", s.ID, s.BodyRegion)
			}
		}
		for _, ref := range s.FollowUpQuestionIDs {
			if _, ok := symptoms[ref]; !ok {
				return loadErr("symptom %q follow-up references unknown symptom %q", s.ID, ref)
			}
			if ref == s.ID {
				return loadErr("symptom %q lists itself as a follow-up", s.ID)
			}
		}
		seen := make(map[string]struct{}, len(s.Choices))
		for _, ch := range s.Choices {
			if ch.ID == "" || ch.Label == "" {
				return loadErr("symptom %q has a choice without id or label", s.ID)
			}
			if _, dup := seen[ch.ID]; dup {
				return loadErr("symptom %q has duplicate choice %q", s.ID, ch.ID)
			}
			seen[ch.ID] = struct{}{}
			if !ch.State.Valid() {
				return loadErr("symptom %q choice %q has invalid state %q", s.ID, ch.ID, ch.State)
			}
		}
	}

	conditions := make(map[string]struct{}, len(doc.Conditions))
	for _, c := range doc.Conditions {
		if c.ID == "" {
			return loadErr("condition with empty id")
		}
		if _, dup := conditions[c.ID]; dup {
			return loadErr("duplicate condition %q", c.ID)
		}
		conditions[c.ID] = struct{}{}

		if !c.SeverityClass.Valid() {
			return loadErr("condition %q has invalid severity %q", c.ID, c.SeverityClass)
		}
		if c.BaseProbability < 0 || c.BaseProbability > 1 {
			return loadErr("condition %q base probability %v outside [0,1]", c.ID, c.BaseProbability)
		}
		if c.RequiredSymptomCount < 1 {
			return loadErr("condition %q requires at least one symptom", c.ID)
		}
		if len(c.SymptomWeights) < c.RequiredSymptomCount {
			return loadErr("condition %q requires %d symptoms but weights only %d", c.ID, c.RequiredSymptomCount, len(c.SymptomWeights))
		}
		for sid, w := range c.SymptomWeights {
			if _, ok := symptoms[sid]; !ok {
				return loadErr("condition %q weights unknown symptom %q", c.ID, sid)
			}
			if w <= 0 {
				return loadErr("condition %q weight for %q must be positive", c.ID, sid)
			}
		}
		if c.Sex != "" && c.Sex != "male" && c.Sex != "female" {
			return loadErr("condition %q has invalid sex restriction %q", c.ID, c.Sex)
		}
		if c.MaxAge > 0 && c.MinAge > c.MaxAge {
			return loadErr("condition %q has min_age above max_age", c.ID)
		}
	}
	return nil
}
