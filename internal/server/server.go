package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ecopower/ecopower/internal/auth"
	"github.com/ecopower/ecopower/internal/chat"
	"github.com/ecopower/ecopower/internal/handler"
	"github.com/ecopower/ecopower/internal/middleware"
	"github.com/ecopower/ecopower/internal/payments"
	"github.com/ecopower/ecopower/internal/push"
	"github.com/ecopower/ecopower/internal/storage"
	"github.com/ecopower/ecopower/internal/store"
	"github.com/ecopower/ecopower/internal/subscription"
	"github.com/ecopower/ecopower/internal/sweep"
)

// Config carries everything the server wires together at startup.
type Config struct {
	JWTSecret string
	FreeMode  bool
	Push      push.Config
	Stripe    payments.Config
	Storage   storage.S3Config
}

type Server struct {
	db     *sql.DB
	hub    *chat.Hub
	runner *sweep.Runner

	authH         *handler.AuthHandler
	houseH        *handler.HouseHandler
	residentH     *handler.ResidentHandler
	consumptionH  *handler.ConsumptionHandler
	invoiceH      *handler.InvoiceHandler
	subscriptionH *handler.SubscriptionHandler
	messageH      *handler.MessageHandler
	pushH         *handler.PushHandler
	maintenanceH  *handler.MaintenanceHandler

	tokens      *auth.TokenManager
	subService  *subscription.Service
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	users := store.NewUserStore(db)
	houses := store.NewHouseStore(db)
	consumptions := store.NewConsumptionStore(db)
	invoices := store.NewInvoiceStore(db)
	subs := store.NewSubscriptionStore(db)
	messages := store.NewMessageStore(db)
	notifications := store.NewNotificationStore(db)
	pushSubs := store.NewPushStore(db)

	tokens := auth.NewTokenManager(cfg.JWTSecret)

	pushSvc := push.NewService(cfg.Push)
	dispatcher := push.NewDispatcher(pushSvc, pushSubs, notifications, logger)

	subService := subscription.NewService(subs, users, cfg.FreeMode, logger.With("component", "subscription"))

	stripeClient := payments.NewClient(cfg.Stripe)
	processor := payments.NewProcessor(subs, subService, logger)

	hub := chat.NewHub(logger.With("component", "chat"))
	chatService := chat.NewService(hub, messages, users, houses, dispatcher, logger.With("component", "chat"))

	attachments := storage.NewStore(cfg.Storage)

	runner := sweep.NewRunner(subs, invoices, messages, dispatcher, logger.With("component", "sweep"))

	return &Server{
		db:     db,
		hub:    hub,
		runner: runner,

		authH:         handler.NewAuthHandler(users, tokens, logger.With("component", "auth")),
		houseH:        handler.NewHouseHandler(houses, logger.With("component", "house")),
		residentH:     handler.NewResidentHandler(users, houses, subService, logger.With("component", "resident")),
		consumptionH:  handler.NewConsumptionHandler(consumptions, houses, users, dispatcher, logger.With("component", "consumption")),
		invoiceH:      handler.NewInvoiceHandler(invoices, consumptions, houses, messages, dispatcher, logger.With("component", "invoice")),
		subscriptionH: handler.NewSubscriptionHandler(subService, subs, users, stripeClient, processor, logger.With("component", "subscription")),
		messageH:      handler.NewMessageHandler(chatService, messages, attachments, logger.With("component", "message")),
		pushH:         handler.NewPushHandler(pushSubs, notifications, pushSvc, dispatcher, logger.With("component", "push")),
		maintenanceH:  handler.NewMaintenanceHandler(runner, logger.With("component", "maintenance")),

		tokens:      tokens,
		subService:  subService,
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// Runner exposes the sweep runner so the scheduler can be started alongside
// the HTTP listener.
func (s *Server) Runner() *sweep.Runner {
	return s.runner
}

// RateLimiter returns the limiter for periodic cleanup.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("POST /api/auth/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /api/auth/refresh", s.rateLimitedHandler(s.authH.Refresh))
	outerMux.HandleFunc("POST /api/webhooks/stripe", s.subscriptionH.Webhook)
	outerMux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.tokens)
	outerMux.Handle("/api/", authMiddleware(protectedMux))
	outerMux.Handle("GET /ws", authMiddleware(chat.HandleWebSocket(s.hub, s.logger.With("component", "chat"))))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	subscribed := middleware.RequireUsableSubscription(s.subService)
	ownerOnly := middleware.RequireCapability(auth.CapManageHouses)
	adminOnly := middleware.RequireCapability(auth.CapRunMaintenance)

	handle := func(pattern string, mws []func(http.Handler) http.Handler, h http.HandlerFunc) {
		var wrapped http.Handler = h
		for i := len(mws) - 1; i >= 0; i-- {
			wrapped = mws[i](wrapped)
		}
		mux.Handle(pattern, wrapped)
	}
	gated := []func(http.Handler) http.Handler{ownerOnly, subscribed}
	owner := []func(http.Handler) http.Handler{ownerOnly}
	admin := []func(http.Handler) http.Handler{adminOnly}
	open := []func(http.Handler) http.Handler{}

	// Session
	handle("POST /api/auth/logout", open, s.authH.Logout)
	handle("POST /api/auth/password", open, s.authH.ChangePassword)
	handle("GET /api/auth/me", open, s.authH.Me)

	// Houses
	handle("POST /api/houses", gated, s.houseH.Create)
	handle("GET /api/houses", owner, s.houseH.List)
	handle("GET /api/houses/{id}", owner, s.houseH.Get)
	handle("PUT /api/houses/{id}", gated, s.houseH.Update)
	handle("PUT /api/houses/{id}/tariff", gated, s.houseH.SetTariff)
	handle("GET /api/houses/{id}/members", owner, s.houseH.Members)
	handle("DELETE /api/houses/{id}", gated, s.houseH.Delete)
	handle("GET /api/houses/{id}/consumptions", owner, s.consumptionH.ListByHouse)
	handle("GET /api/houses/{id}/messages", open, s.messageH.HouseHistory)

	// Residents
	handle("POST /api/residents", gated, s.residentH.Create)
	handle("GET /api/residents", owner, s.residentH.List)
	handle("GET /api/residents/{id}", owner, s.residentH.Get)
	handle("PUT /api/residents/{id}", gated, s.residentH.Update)
	handle("PUT /api/residents/{id}/house", gated, s.residentH.AssignHouse)
	handle("DELETE /api/residents/{id}", gated, s.residentH.Delete)

	// Consumptions
	handle("POST /api/consumptions", open, s.consumptionH.Record)
	handle("GET /api/consumptions", open, s.consumptionH.List)
	handle("GET /api/consumptions/{id}", open, s.consumptionH.Get)
	handle("PUT /api/consumptions/{id}", gated, s.consumptionH.Update)
	handle("DELETE /api/consumptions/{id}", gated, s.consumptionH.Delete)

	// Invoices
	handle("POST /api/invoices", gated, s.invoiceH.Generate)
	handle("GET /api/invoices", open, s.invoiceH.List)
	handle("GET /api/invoices/{id}", open, s.invoiceH.Get)
	handle("GET /api/invoices/{id}/status", open, s.invoiceH.Status)
	handle("POST /api/invoices/{id}/pay", owner, s.invoiceH.MarkPaid)

	// Subscriptions
	handle("GET /api/subscriptions/offers", open, s.subscriptionH.Offers)
	handle("GET /api/subscriptions/current", owner, s.subscriptionH.Current)
	handle("GET /api/subscriptions/history", owner, s.subscriptionH.History)
	handle("POST /api/subscriptions", owner, s.subscriptionH.Subscribe)
	handle("POST /api/subscriptions/renew", owner, s.subscriptionH.Renew)
	handle("POST /api/subscriptions/cancel", owner, s.subscriptionH.Cancel)

	// Messaging
	handle("POST /api/messages", open, s.messageH.Send)
	handle("POST /api/messages/attachments", open, s.messageH.SendAttachment)
	handle("GET /api/messages/conversation/{id}", open, s.messageH.Conversation)
	handle("POST /api/messages/conversation/{id}/read", open, s.messageH.MarkRead)
	handle("GET /api/messages/unread", open, s.messageH.Unread)

	// Push and notifications
	handle("POST /api/push/subscribe", open, s.pushH.Subscribe)
	handle("POST /api/push/unsubscribe", open, s.pushH.Unsubscribe)
	handle("POST /api/push/test", open, s.pushH.TestNotification)
	handle("GET /api/notifications", open, s.pushH.Notifications)
	handle("POST /api/notifications/{id}/read", open, s.pushH.MarkNotificationRead)

	// Administration
	handle("POST /api/admin/maintenance/{task}", admin, s.maintenanceH.Run)
	handle("POST /api/admin/subscriptions/{id}/activate", []func(http.Handler) http.Handler{middleware.RequireCapability(auth.CapActivateSubs)}, s.subscriptionH.Activate)
}
