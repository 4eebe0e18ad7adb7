package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/friendchat/backend/internal/apperr"
	"github.com/friendchat/backend/internal/logging"
)

// Kinds used only at the HTTP boundary.
const (
	kindUnauthorized apperr.Kind = "unauthorized"
	kindRateLimited  apperr.Kind = "rate_limited"
	kindMethod       apperr.Kind = "method_not_allowed"
)

type errorBody struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

// respondError maps err onto its HTTP status and writes the structured body.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	respondJSON(ctx, w, statusFor(kind), errorResponse{Error: errorBody{Kind: kind, Message: apperr.MessageOf(err)}})
	var appErr *apperr.Error
	if kind == apperr.KindStore && errors.As(err, &appErr) && appErr.Err != nil {
		logging.FromContext(ctx).Error("store failure", "error", appErr.Err)
	}
}

func respondFailure(ctx context.Context, w http.ResponseWriter, status int, kind apperr.Kind, message string) {
	respondJSON(ctx, w, status, errorResponse{Error: errorBody{Kind: kind, Message: message}})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	respondFailure(r.Context(), w, http.StatusMethodNotAllowed, kindMethod, "method not allowed")
	return false
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("request body exceeds %d bytes", tooLarge.Limit)
		}
		return apperr.Validation("invalid request body")
	}
	return nil
}

func queryParam(r *http.Request, name string) (string, error) {
	value := strings.TrimSpace(r.URL.Query().Get(name))
	if value == "" {
		return "", apperr.Validation("query parameter %q is required", name)
	}
	return value, nil
}
