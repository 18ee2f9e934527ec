package diagnosis

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/triage/pkg/common/logger"
	"github.com/synaptica-ai/triage/pkg/observability/metrics"
)

type HTTPHandler struct {
	service *Service
	maxBody int64
}

func NewHTTPHandler(service *Service, maxBody int64) *HTTPHandler {
	return &HTTPHandler{service: service, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/diagnosis/start", h.handleStart).Methods(http.MethodPost)
	router.HandleFunc("/diagnosis/continue", h.handleContinue).Methods(http.MethodPost)
	router.HandleFunc("/diagnosis/triage", h.handleTriage).Methods(http.MethodPost)
	router.HandleFunc("/diagnosis/specialist", h.handleSpecialist).Methods(http.MethodPost)
	router.HandleFunc("/diagnosis/sessions/{id}", h.handleSession).Methods(http.MethodGet)
	router.HandleFunc("/symptoms", h.handleSymptoms).Methods(http.MethodGet)
	router.HandleFunc("/body-regions", h.handleRegions).Methods(http.MethodGet)
	router.HandleFunc("/conditions", h.handleConditions).Methods(http.MethodGet)
	router.HandleFunc("/conditions/{id}", h.handleCondition).Methods(http.MethodGet)
	router.HandleFunc("/scorers", h.handleScorers).Methods(http.MethodGet)
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logger.Log.WithError(err).WithField("path", r.URL.Path).Warn("invalid diagnosis payload")
		metrics.ObserveInvalidRequest()
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *HTTPHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartDiagnosisRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.service.Start(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "failed to start diagnosis")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) handleContinue(w http.ResponseWriter, r *http.Request) {
	var req ContinueDiagnosisRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.service.Continue(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "failed to continue diagnosis")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) handleTriage(w http.ResponseWriter, r *http.Request) {
	var req GetTriageRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.service.Triage(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "failed to classify triage")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) handleSpecialist(w http.ResponseWriter, r *http.Request) {
	var req GetRecommendedSpecialistRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.service.RecommendedSpecialist(req))
}

func (h *HTTPHandler) handleSession(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Session(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err, "failed to fetch session")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *HTTPHandler) handleSymptoms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symptoms, err := h.service.Symptoms(q.Get("region"), q.Get("search"))
	if err != nil {
		h.writeError(w, err, "failed to list symptoms")
		return
	}
	writeJSON(w, http.StatusOK, symptoms)
}

func (h *HTTPHandler) handleRegions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Regions())
}

func (h *HTTPHandler) handleConditions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Conditions())
}

func (h *HTTPHandler) handleCondition(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Condition(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err, "failed to fetch condition")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *HTTPHandler) handleScorers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Scorers(r.Context()))
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error, msg string) {
	if IsValidationError(err) {
		metrics.ObserveInvalidRequest()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if errors.Is(err, ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	logger.Log.WithError(err).Error(msg)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
