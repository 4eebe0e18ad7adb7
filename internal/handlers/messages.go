package handlers

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/friendchat/backend/internal/apperr"
	"github.com/friendchat/backend/internal/delivery"
	"github.com/friendchat/backend/internal/logging"
	"github.com/friendchat/backend/internal/models"
	"github.com/friendchat/backend/internal/storage"
)

const (
	defaultMaxUploadBytes = 10 << 20
	maxJSONBodyBytes      = 1 << 20
)

// MessageHandler serves direct-message history and submission.
type MessageHandler struct {
	Messages       MessageRouter
	Images         ImageUploader
	MaxUploadBytes int64
	NowFunc        func() time.Time
}

// sendMessagePayload also accepts the misspelled recepientId sent by older clients.
type sendMessagePayload struct {
	SenderID        string             `json:"senderId"`
	RecipientID     string             `json:"recipientId"`
	LegacyRecipient string             `json:"recepientId"`
	MessageType     models.MessageType `json:"messageType"`
	MessageText     string             `json:"messageText"`
	ImageURL        string             `json:"imageUrl"`
}

func (p sendMessagePayload) input() delivery.SendInput {
	recipient := p.RecipientID
	if strings.TrimSpace(recipient) == "" {
		recipient = p.LegacyRecipient
	}
	return delivery.SendInput{
		SenderID:    p.SenderID,
		RecipientID: recipient,
		Type:        p.MessageType,
		Text:        p.MessageText,
		ImageURL:    p.ImageURL,
	}
}

type messageResponse struct {
	Message models.Message `json:"message"`
}

type deleteMessagesRequest struct {
	Messages []string `json:"messages"`
}

type deleteMessagesResponse struct {
	Deleted int `json:"deleted"`
}

// Collection dispatches GET (history) and POST (send) on /api/v1/messages.
func (h MessageHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.History(w, r)
	case http.MethodPost:
		h.Send(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		respondFailure(r.Context(), w, http.StatusMethodNotAllowed, kindMethod, "method not allowed")
	}
}

// Send handles POST /api/v1/messages with a JSON body or a multipart form
// carrying the image in the imageFile field.
func (h MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	ctx := r.Context()

	var (
		in       delivery.SendInput
		uploaded string
		err      error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		in, uploaded, err = h.parseMultipart(w, r)
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
		var req sendMessagePayload
		err = decodeJSON(r, &req)
		in = req.input()
	}
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	msg, err := h.Messages.SendMessage(ctx, in)
	if err != nil {
		if uploaded != "" {
			h.discard(r, uploaded)
		}
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, messageResponse{Message: msg})
}

// discard removes an upload whose message was rejected.
func (h MessageHandler) discard(r *http.Request, ref string) {
	// The request context may already be cancelled; the cleanup must still run.
	ctx := context.WithoutCancel(r.Context())
	if err := h.Images.Delete(ctx, ref); err != nil {
		logging.FromContext(ctx).Warn("remove rejected upload", "ref", ref, "error", err)
	}
}

// parseMultipart reads the form and stores imageFile, returning the stored
// reference so the caller can remove it if the send is rejected. Inputs that can
// be rejected without the store are checked before anything is written.
func (h MessageHandler) parseMultipart(w http.ResponseWriter, r *http.Request) (delivery.SendInput, string, error) {
	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return delivery.SendInput{}, "", apperr.Validation("upload exceeds %d bytes", limit)
		}
		return delivery.SendInput{}, "", apperr.Validation("invalid multipart form")
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	payload := sendMessagePayload{
		SenderID:        r.FormValue("senderId"),
		RecipientID:     r.FormValue("recipientId"),
		LegacyRecipient: r.FormValue("recepientId"),
		MessageType:     models.MessageType(r.FormValue("messageType")),
		MessageText:     r.FormValue("messageText"),
		ImageURL:        r.FormValue("imageUrl"),
	}

	file, header, err := r.FormFile("imageFile")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return payload.input(), "", nil
	case err != nil:
		return delivery.SendInput{}, "", apperr.Validation("invalid image upload")
	}
	defer file.Close()

	if payload.MessageType == "" {
		payload.MessageType = models.MessageTypeImage
	}
	in := payload.input()
	switch {
	case in.Type != models.MessageTypeImage:
		return delivery.SendInput{}, "", apperr.Validation("imageFile is only accepted on %q messages", models.MessageTypeImage)
	case strings.TrimSpace(in.SenderID) == "" || strings.TrimSpace(in.RecipientID) == "":
		return delivery.SendInput{}, "", apperr.Validation("sender and recipient are required")
	case h.Images == nil:
		return delivery.SendInput{}, "", apperr.Validation("image uploads are not enabled")
	}

	ref, err := h.Images.Save(r.Context(), storage.UploadName(header.Filename, h.now()), file)
	if err != nil {
		return delivery.SendInput{}, "", apperr.Store("save upload", err)
	}
	logging.FromContext(r.Context()).Info("image uploaded", "ref", ref, "size", header.Size)

	in.ImageURL = ref
	return in, ref, nil
}

// History handles GET /api/v1/messages?user={a}&peer={b}.
func (h MessageHandler) History(w http.ResponseWriter, r *http.Request) {
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

	history, err := h.Messages.FetchHistory(ctx, userID, peerID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, history)
}

// Delete handles POST /api/v1/messages/delete with {"messages": [...]}.
func (h MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	ctx := r.Context()

	var req deleteMessagesRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	removed, err := h.Messages.DeleteMessages(ctx, req.Messages)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, deleteMessagesResponse{Deleted: removed})
}

func (h MessageHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now()
}
