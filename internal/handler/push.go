package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ecopower/ecopower/internal/apperror"
	"github.com/ecopower/ecopower/internal/auth"
	"github.com/ecopower/ecopower/internal/model"
	"github.com/ecopower/ecopower/internal/push"
	"github.com/ecopower/ecopower/internal/store"
)

type PushHandler struct {
	subscriptions *store.PushStore
	notifications *store.NotificationStore
	service       *push.Service
	dispatcher    *push.Dispatcher
	logger        *slog.Logger
}

func NewPushHandler(subscriptions *store.PushStore, notifications *store.NotificationStore, service *push.Service, dispatcher *push.Dispatcher, logger *slog.Logger) *PushHandler {
	return &PushHandler{
		subscriptions: subscriptions,
		notifications: notifications,
		service:       service,
		dispatcher:    dispatcher,
		logger:        logger,
	}
}

type pushSubscribeRequest struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// Subscribe handles POST /api/push/subscribe. Re-registering an endpoint
// moves it to the current user.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req pushSubscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeError(w, h.logger, apperror.Validation("endpoint, p256dh and auth are required"))
		return
	}

	sub, err := h.subscriptions.Save(userID, req.Endpoint, req.P256dh, req.Auth)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

type pushUnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// Unsubscribe handles POST /api/push/unsubscribe
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req pushUnsubscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Endpoint == "" {
		writeError(w, h.logger, apperror.Validation("endpoint is required"))
		return
	}

	sub, err := h.subscriptions.GetByEndpoint(req.Endpoint)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if sub != nil && sub.UserID != auth.UserID(r.Context()) {
		writeError(w, h.logger, apperror.Forbidden("endpoint belongs to another user"))
		return
	}
	if err := h.subscriptions.DeleteByEndpoint(req.Endpoint); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}

// Notifications handles GET /api/notifications
func (h *PushHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}

	notifs, err := h.notifications.ListByUser(auth.UserID(r.Context()), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if notifs == nil {
		notifs = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, notifs)
}

// MarkNotificationRead handles POST /api/notifications/{id}/read
func (h *PushHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.notifications.MarkRead(id, auth.UserID(r.Context()), time.Now()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TestNotification handles POST /api/push/test
func (h *PushHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if err := h.dispatcher.Send(r.Context(), userID, "Test notification", "Push notifications are working.", model.NotifSystem); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
