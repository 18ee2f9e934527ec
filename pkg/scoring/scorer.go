// Package scoring selects between the local evidence engine and an optional
// external scoring service exposing the same response contract.
package scoring

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/triage/pkg/engine"
)

const (
	SourceLocal    = "local"
	SourceExternal = "external"
)

type Request struct {
	Patient  engine.Patient
	Evidence []engine.Answer
	// Initial marks the first call of a session.
	Initial bool
}

type Scorer interface {
	Name() string
	Available(ctx context.Context) bool
	Diagnose(ctx context.Context, req Request) (engine.Result, error)
}

// Local runs the in-process engine. It is always available.
type Local struct {
	engine *engine.Engine
}

func NewLocal(e *engine.Engine) *Local {
	return &Local{engine: e}
}

func (l *Local) Name() string { return SourceLocal }

func (l *Local) Available(context.Context) bool { return true }

func (l *Local) Diagnose(_ context.Context, req Request) (engine.Result, error) {
	if req.Initial {
		return l.engine.Start(req.Patient, req.Evidence)
	}
	return l.engine.Continue(req.Patient, req.Evidence)
}

type Status struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Active    bool   `json:"active"`
}

// Selector prefers the primary scorer when it reports itself available and
// falls back to the local engine on unavailability or error.
type Selector struct {
	primary  Scorer
	fallback Scorer
	log      *logrus.Entry
}

func NewSelector(primary, fallback Scorer, log *logrus.Entry) *Selector {
	return &Selector{primary: primary, fallback: fallback, log: log}
}

// Diagnose returns the result and the name of the scorer that produced it.
func (s *Selector) Diagnose(ctx context.Context, req Request) (engine.Result, string, error) {
	if s.primary != nil && s.primary.Available(ctx) {
		res, err := s.primary.Diagnose(ctx, req)
		if err == nil {
			return res, s.primary.Name(), nil
		}
		s.log.WithError(err).WithField("scorer", s.primary.Name()).
			Warn("primary scorer failed, falling back")
	}
	res, err := s.fallback.Diagnose(ctx, req)
	return res, s.fallback.Name(), err
}

// HasPrimary reports whether an external scorer is configured at all.
func (s *Selector) HasPrimary() bool { return s.primary != nil }

func (s *Selector) Status(ctx context.Context) []Status {
	var out []Status
	primaryUp := false
	if s.primary != nil {
		primaryUp = s.primary.Available(ctx)
		out = append(out, Status{Name: s.primary.Name(), Available: primaryUp, Active: primaryUp})
	}
	out = append(out, Status{Name: s.fallback.Name(), Available: s.fallback.Available(ctx), Active: !primaryUp})
	return out
}
