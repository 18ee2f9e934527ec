package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/synaptica-ai/triage/pkg/catalog"
	"github.com/synaptica-ai/triage/pkg/common/httpclient"
	"github.com/synaptica-ai/triage/pkg/engine"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type ExternalConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
	Retries      int

	// ProbeTTL is how long a health probe result is reused.
	ProbeTTL time.Duration

	// Catalog, when set, rejects follow-up questions for symptoms it does
	// not define.
	Catalog *catalog.Catalog
}

// External calls a remote scoring service over HTTP. Requests carry an
// OAuth2 client-credentials token when ClientID and TokenURL are set.
type External struct {
	cfg    ExternalConfig
	client *http.Client
	retry  httpclient.RetryPolicy

	mu        sync.Mutex
	probedAt  time.Time
	available bool
	now       func() time.Time
}

func NewExternal(cfg ExternalConfig) *External {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	client := httpclient.New(cfg.Timeout)
	if cfg.ClientID != "" && cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		client = cc.Client(ctx)
		client.Timeout = cfg.Timeout
	}

	return &External{
		cfg:    cfg,
		client: client,
		retry: httpclient.RetryPolicy{
			Attempts:  cfg.Retries + 1,
			BaseDelay: 100 * time.Millisecond,
			MaxDelay:  time.Second,
		},
		now: time.Now,
	}
}

func (e *External) Name() string { return SourceExternal }

// Available probes GET /health, caching the answer for ProbeTTL.
func (e *External) Available(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.probedAt.IsZero() && e.now().Sub(e.probedAt) < e.cfg.ProbeTTL {
		return e.available
	}

	e.available = e.probe(ctx)
	e.probedAt = e.now()
	return e.available
}

func (e *External) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

type externalEvidence struct {
	ID     string `json:"id"`
	Choice string `json:"choice"`
}

type externalRequest struct {
	Sex      string             `json:"sex"`
	Age      int                `json:"age"`
	Evidence []externalEvidence `json:"evidence"`
}

func (e *External) Diagnose(ctx context.Context, req Request) (engine.Result, error) {
	body := externalRequest{Sex: req.Patient.Sex, Age: req.Patient.Age}
	for _, a := range req.Evidence {
		body.Evidence = append(body.Evidence, externalEvidence{ID: a.SymptomID, Choice: a.Choice})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return engine.Result{}, fmt.Errorf("encoding external request: %w", err)
	}

	var result engine.Result
	err = httpclient.Retry(ctx, e.retry, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/diagnosis", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, resp.Body)
			return &httpclient.StatusError{Code: resp.StatusCode}
		}
		result = engine.Result{}
		return json.NewDecoder(resp.Body).Decode(&result)
	})
	if err != nil {
		return engine.Result{}, fmt.Errorf("external scorer: %w", err)
	}
	if err := sanitize(&result, req.Evidence, e.cfg.Catalog); err != nil {
		return engine.Result{}, err
	}
	return result, nil
}

// sanitize holds an upstream result to the same contract as the local
// engine: capped probabilities ranked highest first, a non-empty condition
// list, a known triage level and no question about an answered symptom.
// A rejected result sends the caller to the local engine.
func sanitize(res *engine.Result, evidence []engine.Answer, cat *catalog.Catalog) error {
	if len(res.Conditions) == 0 {
		return fmt.Errorf("external scorer returned no conditions")
	}
	for i := range res.Conditions {
		p := res.Conditions[i].Probability
		if p < 0 {
			p = 0
		}
		if p > engine.MaxProbability {
			p = engine.MaxProbability
		}
		res.Conditions[i].Probability = p
	}
	sort.SliceStable(res.Conditions, func(i, j int) bool {
		a, b := res.Conditions[i], res.Conditions[j]
		if a.Probability != b.Probability {
			return a.Probability > b.Probability
		}
		return a.ID < b.ID
	})

	if res.Triage.Level.Rank() == 0 && res.Triage.Level != engine.LevelSelfCare {
		return fmt.Errorf("external scorer returned unknown triage level %q", res.Triage.Level)
	}
	presentation := engine.NewTriage(res.Triage.Level)
	if res.Triage.Message == "" {
		res.Triage.Message = presentation.Message
	}
	if res.Triage.Color == "" {
		res.Triage.Color = presentation.Color
	}
	if res.Triage.Label == "" {
		res.Triage.Label = presentation.Label
	}

	if res.ShouldStop {
		res.Question = nil
		return nil
	}
	if res.Question == nil {
		return nil
	}
	for _, a := range evidence {
		if a.SymptomID == res.Question.SymptomID {
			return fmt.Errorf("external scorer repeated question %q", a.SymptomID)
		}
	}
	if cat != nil && !cat.HasSymptom(res.Question.SymptomID) {
		return fmt.Errorf("external scorer asked about unknown symptom %q", res.Question.SymptomID)
	}
	return nil
}
