package diagnosis

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/triage/pkg/engine"
)

func newRouter(t *testing.T) (*mux.Router, fixture) {
	t.Helper()
	f := newFixture(t, nil)
	router := mux.NewRouter()
	NewHTTPHandler(f.svc, 64*1024).Register(router.PathPrefix("/api/v1").Subrouter())
	return router, f
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleStart(t *testing.T) {
	router, _ := newRouter(t)

	rec := do(router, http.MethodPost, "/api/v1/diagnosis/start",
		`{"sex":"female","age":34,"symptoms":[{"id":"headache","choice":"present"},{"id":"sensitivity_to_light","choice":"present"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp DiagnosisResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID == "" || len(resp.Conditions) == 0 {
		t.Fatalf("unexpected response %+v", resp)
	}
	for _, c := range resp.Conditions {
		if c.Probability < 0 || c.Probability > engine.MaxProbability {
			t.Fatalf("probability %v out of range", c.Probability)
		}
	}
}

func TestHandleStartRejectsBadInput(t *testing.T) {
	router, _ := newRouter(t)

	cases := map[string]string{
		"malformed json": `{"sex":`,
		"missing age":    `{"sex":"male","symptoms":[]}`,
		"bad choice":     `{"sex":"male","age":20,"symptoms":[{"id":"cough","choice":"often"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(router, http.MethodPost, "/api/v1/diagnosis/start", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestHandleTriage(t *testing.T) {
	router, _ := newRouter(t)

	rec := do(router, http.MethodPost, "/api/v1/diagnosis/triage",
		`{"sex":"male","age":45,"evidence":[{"id":"facial_drooping","choice":"present"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var tr engine.Triage
	if err := json.Unmarshal(rec.Body.Bytes(), &tr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tr.Level != engine.LevelEmergency || tr.Color != "#EF4444" {
		t.Fatalf("unexpected triage %+v", tr)
	}
}

func TestHandleSpecialist(t *testing.T) {
	router, _ := newRouter(t)

	rec := do(router, http.MethodPost, "/api/v1/diagnosis/specialist", `{"condition_ids":["migraine","common_cold"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var spec engine.Specialists
	if err := json.Unmarshal(rec.Body.Bytes(), &spec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if spec.Primary == "" {
		t.Fatalf("unexpected specialists %+v", spec)
	}
	found := false
	for _, s := range spec.Recommended {
		if s == "General Practitioner" {
			found = true
		}
	}
	if !found {
		t.Fatalf("general practitioner missing from %v", spec.Recommended)
	}
}

func TestHandleCatalogRoutes(t *testing.T) {
	router, _ := newRouter(t)

	cases := []struct {
		path string
		code int
	}{
		{"/api/v1/symptoms", http.StatusOK},
		{"/api/v1/symptoms?region=skin", http.StatusOK},
		{"/api/v1/symptoms?region=tail", http.StatusNotFound},
		{"/api/v1/body-regions", http.StatusOK},
		{"/api/v1/conditions", http.StatusOK},
		{"/api/v1/conditions/asthma", http.StatusOK},
		{"/api/v1/conditions/unknown", http.StatusNotFound},
		{"/api/v1/scorers", http.StatusOK},
		{"/api/v1/diagnosis/sessions/00000000-0000-0000-0000-000000000000", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			rec := do(router, http.MethodGet, tc.path, "")
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
		})
	}
}

func TestHandleSessionAfterStart(t *testing.T) {
	router, _ := newRouter(t)

	rec := do(router, http.MethodPost, "/api/v1/diagnosis/start", `{"sex":"male","age":40,"symptoms":[{"id":"back_pain","choice":"present"}]}`)
	var resp DiagnosisResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = do(router, http.MethodGet, "/api/v1/diagnosis/sessions/"+resp.SessionID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var session SessionRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if session.SessionID != resp.SessionID || session.TopConditionID == "" {
		t.Fatalf("unexpected session %+v", session)
	}
}
