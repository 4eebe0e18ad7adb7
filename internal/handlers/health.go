package handlers

import (
	"context"
	"net/http"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler reports liveness along with the reachability of the backing store.
type HealthHandler struct {
	Store string
	Check func(ctx context.Context) error
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Handle implements GET /healthz.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	resp := healthResponse{Status: "ok", Store: h.Store}
	if h.Check != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.Check(ctx); err != nil {
			resp.Status = "unavailable"
			resp.Error = err.Error()
			respondJSON(r.Context(), w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	respondJSON(r.Context(), w, http.StatusOK, resp)
}
