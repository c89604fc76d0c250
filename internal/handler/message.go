package handler

import (
	"log/slog"
	"net/http"

	"github.com/ecopower/ecopower/internal/apperror"
	"github.com/ecopower/ecopower/internal/auth"
	"github.com/ecopower/ecopower/internal/chat"
	"github.com/ecopower/ecopower/internal/model"
	"github.com/ecopower/ecopower/internal/storage"
	"github.com/ecopower/ecopower/internal/store"
)

type MessageHandler struct {
	service     *chat.Service
	messages    *store.MessageStore
	attachments *storage.Store
	logger      *slog.Logger
}

func NewMessageHandler(service *chat.Service, messages *store.MessageStore, attachments *storage.Store, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{
		service:     service,
		messages:    messages,
		attachments: attachments,
		logger:      logger,
	}
}

type sendMessageRequest struct {
	ReceiverID int64  `json:"receiver_id"`
	HouseID    int64  `json:"house_id"`
	Body       string `json:"body"`
}

// Send handles POST /api/messages. A receiver_id sends a direct message;
// a house_id without receiver broadcasts to the house (owners only).
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	senderID := auth.UserID(r.Context())

	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var (
		msg *model.Message
		err error
	)
	switch {
	case req.ReceiverID != 0:
		msg, err = h.service.SendDirect(r.Context(), senderID, req.ReceiverID, req.Body)
	case req.HouseID != 0:
		msg, err = h.service.SendHouse(r.Context(), senderID, req.HouseID, req.Body, model.MessageText)
	default:
		err = apperror.Validation("receiver_id or house_id is required")
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// Conversation handles GET /api/messages/conversation/{id}, the thread
// between the caller and another user.
func (h *MessageHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	peerID, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	msgs, err := h.service.Conversation(auth.UserID(r.Context()), peerID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// HouseHistory handles GET /api/houses/{id}/messages
func (h *MessageHandler) HouseHistory(w http.ResponseWriter, r *http.Request) {
	houseID, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	msgs, err := h.service.HouseHistory(houseID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// MarkRead handles POST /api/messages/conversation/{id}/read. The peer is
// told over their live connection that the thread was read.
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	peerID, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.service.MarkRead(auth.UserID(r.Context()), peerID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unread handles GET /api/messages/unread
func (h *MessageHandler) Unread(w http.ResponseWriter, r *http.Request) {
	count, err := h.messages.CountUnread(auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": count})
}

// SendAttachment handles POST /api/messages/attachments as a multipart
// upload. The file lands in object storage; the message carries its URL.
func (h *MessageHandler) SendAttachment(w http.ResponseWriter, r *http.Request) {
	senderID := auth.UserID(r.Context())

	if err := r.ParseMultipartForm(storage.MaxAttachmentSize); err != nil {
		writeError(w, h.logger, apperror.Validation("invalid multipart form"))
		return
	}

	receiverID, err := parseFormID(r, "receiver_id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, h.logger, apperror.Validation("file is required"))
		return
	}
	defer file.Close()

	att, err := h.attachments.Upload(r.Context(), senderID, header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	msg, err := h.service.SendAttachment(r.Context(), senderID, receiverID, att.URL, att.Name, att.Size)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
