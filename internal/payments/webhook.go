package payments

import (
	"encoding/json"
	"fmt"
	"log/slog"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/ecopower/ecopower/internal/store"
	"github.com/ecopower/ecopower/internal/subscription"
)

// Processor turns verified Stripe events into subscription state changes.
type Processor struct {
	subs    *store.SubscriptionStore
	service *subscription.Service
	logger  *slog.Logger
}

func NewProcessor(subs *store.SubscriptionStore, service *subscription.Service, logger *slog.Logger) *Processor {
	return &Processor{
		subs:    subs,
		service: service,
		logger:  logger.With("component", "payments"),
	}
}

// Process dispatches a webhook event. Unknown event types are logged and
// acknowledged so Stripe does not retry them.
func (p *Processor) Process(event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return p.handleCheckoutCompleted(event)
	case "checkout.session.expired":
		return p.handleCheckoutExpired(event)
	default:
		p.logger.Debug("unhandled stripe event", "type", event.Type)
		return nil
	}
}

func (p *Processor) handleCheckoutCompleted(event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("parse checkout session: %w", err)
	}
	sub, err := p.subs.GetByStripeSession(sess.ID)
	if err != nil {
		return err
	}
	if sub == nil {
		p.logger.Warn("checkout completed for unknown session", "session_id", sess.ID)
		return nil
	}
	if err := p.service.Activate(sub.ID); err != nil {
		return err
	}
	p.logger.Info("payment confirmed",
		"subscription_id", sub.ID,
		"owner_id", sub.OwnerID,
		"session_id", sess.ID)
	return nil
}

func (p *Processor) handleCheckoutExpired(event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("parse checkout session: %w", err)
	}
	sub, err := p.subs.GetByStripeSession(sess.ID)
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}
	p.logger.Info("checkout session expired", "subscription_id", sub.ID, "session_id", sess.ID)
	return nil
}
