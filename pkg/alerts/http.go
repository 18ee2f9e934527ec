package alerts

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/triage/pkg/common/auth"
	"github.com/synaptica-ai/triage/pkg/common/logger"
	"github.com/synaptica-ai/triage/pkg/common/middleware"
)

type HTTPHandler struct {
	store Store
}

func NewHTTPHandler(store Store) *HTTPHandler {
	return &HTTPHandler{store: store}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/alerts", h.handleList).Methods(http.MethodGet)
	router.HandleFunc("/alerts/{id}/ack", h.handleAck).Methods(http.MethodPost)
}

// RegisterSecured mounts the alert API behind a clinician or admin token
// check. With no validator the routes are not mounted and false is returned.
func (h *HTTPHandler) RegisterSecured(router *mux.Router, validator middleware.TokenValidator) bool {
	if validator == nil {
		return false
	}
	secured := router.NewRoute().Subrouter()
	secured.Use(middleware.Authenticate(validator, auth.RoleClinician, auth.RoleAdmin))
	h.Register(secured)
	return true
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	out, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list alerts")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (h *HTTPHandler) handleAck(w http.ResponseWriter, r *http.Request) {
	err := h.store.Acknowledge(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "alert not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to acknowledge alert")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
