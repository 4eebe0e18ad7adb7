package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/friendchat/backend/internal/logging"
	"github.com/friendchat/backend/internal/models"
)

// FriendHandler exposes the friend-request workflow.
type FriendHandler struct {
	Friends FriendService
}

type friendRequestPayload struct {
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
}

type relationshipResponse struct {
	User  string `json:"user"`
	Peer  string `json:"peer"`
	State string `json:"state"`
}

// Send handles POST /api/v1/friends/requests.
func (h FriendHandler) Send(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "send", h.Friends.SendRequest, http.StatusCreated)
}

// Accept handles POST /api/v1/friends/requests/accept.
func (h FriendHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "accept", h.Friends.AcceptRequest, http.StatusOK)
}

// Reject handles POST /api/v1/friends/requests/reject.
func (h FriendHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "reject", h.Friends.RejectRequest, http.StatusOK)
}

// Cancel handles POST /api/v1/friends/requests/cancel.
func (h FriendHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel", h.Friends.CancelRequest, http.StatusOK)
}

func (h FriendHandler) transition(w http.ResponseWriter, r *http.Request, action string, apply func(context.Context, string, string) error, status int) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	ctx := r.Context()

	var req friendRequestPayload
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := apply(ctx, req.SenderID, req.RecipientID); err != nil {
		logging.FromContext(ctx).Warn("friend request "+action+" failed", slog.Any("error", err))
		respondError(ctx, w, err)
		return
	}

	state, err := h.Friends.Relationship(ctx, req.SenderID, req.RecipientID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, status, relationshipResponse{User: req.SenderID, Peer: req.RecipientID, State: state.String()})
}

// Incoming handles GET /api/v1/friends/requests/incoming?user={id}.
func (h FriendHandler) Incoming(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Friends.ListIncoming)
}

// Outgoing handles GET /api/v1/friends/requests/outgoing?user={id}.
func (h FriendHandler) Outgoing(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Friends.ListOutgoing)
}

// List handles GET /api/v1/friends?user={id}.
func (h FriendHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Friends.ListFriends)
}

func (h FriendHandler) list(w http.ResponseWriter, r *http.Request, fetch func(context.Context, string) ([]models.UserSummary, error)) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()

	userID, err := queryParam(r, "user")
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	out, err := fetch(ctx, userID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, out)
}

// IDs handles GET /api/v1/friends/ids?user={id}.
func (h FriendHandler) IDs(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()

	userID, err := queryParam(r, "user")
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	ids, err := h.Friends.ListFriendIDs(ctx, userID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, ids)
}

// Status handles GET /api/v1/friends/status?user={a}&peer={b}.
func (h FriendHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()

	userID, err := queryParam(r, "user")
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	peerID, err := queryParam(r, "peer")
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	state, err := h.Friends.Relationship(ctx, userID, peerID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, relationshipResponse{User: userID, Peer: peerID, State: state.String()})
}
