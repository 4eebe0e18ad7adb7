package handlers

import (
	"errors"
	"net/http"

	"github.com/friendchat/backend/internal/apperr"
	"github.com/friendchat/backend/internal/repositories"
)

// UserHandler serves the user directory.
type UserHandler struct {
	Users UserStore
}

// List handles GET /api/v1/users?user={id}, returning everyone except the caller.
func (h UserHandler) List(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()

	userID, err := queryParam(r, "user")
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if _, err := h.Users.FindByID(ctx, userID); err != nil {
		respondError(ctx, w, userLookupError(userID, err))
		return
	}

	others, err := h.Users.ListOthers(ctx, userID)
	if err != nil {
		respondError(ctx, w, apperr.Store("list users", err))
		return
	}
	respondJSON(ctx, w, http.StatusOK, others)
}

// Profile handles GET /api/v1/users/profile?user={id}.
func (h UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()

	userID, err := queryParam(r, "user")
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	user, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		respondError(ctx, w, userLookupError(userID, err))
		return
	}
	respondJSON(ctx, w, http.StatusOK, user.Summary())
}

func userLookupError(userID string, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return apperr.NotFound("user %s not found", userID)
	}
	return apperr.Store("lookup user", err)
}
