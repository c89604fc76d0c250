package handler

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ecopower/ecopower/internal/apperror"
	"github.com/ecopower/ecopower/internal/auth"
	"github.com/ecopower/ecopower/internal/model"
	"github.com/ecopower/ecopower/internal/payments"
	"github.com/ecopower/ecopower/internal/store"
	"github.com/ecopower/ecopower/internal/subscription"
)

// maxWebhookBody bounds the Stripe webhook payload size.
const maxWebhookBody = 65536

type SubscriptionHandler struct {
	service   *subscription.Service
	subs      *store.SubscriptionStore
	users     *store.UserStore
	stripe    *payments.Client
	processor *payments.Processor
	logger    *slog.Logger
}

func NewSubscriptionHandler(service *subscription.Service, subs *store.SubscriptionStore, users *store.UserStore, stripe *payments.Client, processor *payments.Processor, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		service:   service,
		subs:      subs,
		users:     users,
		stripe:    stripe,
		processor: processor,
		logger:    logger,
	}
}

// Offers handles GET /api/subscriptions/offers
func (h *SubscriptionHandler) Offers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, subscription.Offers())
}

// Current handles GET /api/subscriptions/current
func (h *SubscriptionHandler) Current(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.CurrentFor(auth.UserID(r.Context()), time.Now())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if sub == nil {
		writeError(w, h.logger, apperror.NotFound("subscription"))
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// History handles GET /api/subscriptions/history
func (h *SubscriptionHandler) History(w http.ResponseWriter, r *http.Request) {
	subs, err := h.service.History(auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if subs == nil {
		subs = []model.Subscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

type subscribeRequest struct {
	Plan string `json:"plan"`
}

type subscribeResponse struct {
	Subscription *model.Subscription `json:"subscription"`
	CheckoutURL  string              `json:"checkout_url,omitempty"`
}

// Subscribe handles POST /api/subscriptions. When Stripe is configured the
// response carries a checkout URL; the subscription activates when the
// payment webhook confirms. Without Stripe an administrator activates it.
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.UserID(r.Context())

	var req subscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	sub, err := h.service.Subscribe(ownerID, req.Plan, time.Now())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := subscribeResponse{Subscription: sub}
	if h.stripe.Enabled() && sub.ID != 0 {
		owner, err := h.users.GetByID(ownerID)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		sessionID, url, err := h.stripe.CreateCheckoutSession(sub, owner.Email)
		if err != nil {
			writeError(w, h.logger, apperror.Wrap(apperror.KindDependency, "payment provider unavailable", err))
			return
		}
		if err := h.subs.SetStripeSession(sub.ID, sessionID); err != nil {
			writeError(w, h.logger, err)
			return
		}
		resp.CheckoutURL = url
	}

	writeJSON(w, http.StatusCreated, resp)
}

// Renew handles POST /api/subscriptions/renew
func (h *SubscriptionHandler) Renew(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.Renew(auth.UserID(r.Context()), time.Now())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// Cancel handles POST /api/subscriptions/cancel
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Cancel(auth.UserID(r.Context())); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Activate handles POST /api/admin/subscriptions/{id}/activate, the manual
// path when payments run outside Stripe.
func (h *SubscriptionHandler) Activate(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.service.Activate(id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Webhook handles POST /api/webhooks/stripe
func (h *SubscriptionHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body", http.StatusServiceUnavailable)
		return
	}

	event, err := h.stripe.ConstructWebhookEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	if err := h.processor.Process(event); err != nil {
		h.logger.Error("process webhook", "type", event.Type, "error", err)
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
