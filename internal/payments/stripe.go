package payments

import (
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	checksession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/ecopower/ecopower/internal/model"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	SuccessURL    string
	CancelURL     string
}

type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	stripe.Key = cfg.SecretKey
	if cfg.Currency == "" {
		cfg.Currency = "eur"
	}
	return &Client{cfg: cfg}
}

// Enabled reports whether Stripe is configured. Without it subscriptions
// are activated manually by an administrator.
func (c *Client) Enabled() bool {
	return c.cfg.SecretKey != ""
}

// CreateCheckoutSession opens a one-time payment session for the
// subscription period and returns the session ID and redirect URL. The
// subscription ID rides along as metadata so the webhook can find it.
func (c *Client) CreateCheckoutSession(sub *model.Subscription, ownerEmail string) (sessionID, url string, err error) {
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail: stripe.String(ownerEmail),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(c.cfg.Currency),
					UnitAmount: stripe.Int64(int64(sub.Price * 100)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(fmt.Sprintf("%s plan (1 month)", sub.Plan)),
						Description: stripe.String(fmt.Sprintf("Up to %d residents", sub.MaxResidents)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(c.cfg.SuccessURL),
		CancelURL:  stripe.String(c.cfg.CancelURL),
		Metadata: map[string]string{
			"subscription_id": fmt.Sprintf("%d", sub.ID),
		},
	}
	sess, err := checksession.New(params)
	if err != nil {
		return "", "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.ID, sess.URL, nil
}

// ConstructWebhookEvent verifies the signature and returns the parsed event.
func (c *Client) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, c.cfg.WebhookSecret)
}
