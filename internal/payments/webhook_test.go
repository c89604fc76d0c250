package payments

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/ecopower/ecopower/internal/database"
	"github.com/ecopower/ecopower/internal/store"
	"github.com/ecopower/ecopower/internal/subscription"
)

func setupProcessorTest(t *testing.T) (*Processor, *store.SubscriptionStore, int64) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	subs := store.NewSubscriptionStore(db)
	users := store.NewUserStore(db)
	owner, err := users.CreateOwner("Ama", "Kodjo", "ama@example.com", "", "hash")
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := subscription.NewService(subs, users, false, logger)
	return NewProcessor(subs, service, logger), subs, owner.ID
}

func checkoutEvent(t *testing.T, eventType, sessionID string) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"id": sessionID})
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	return stripe.Event{
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestCheckoutCompletedActivatesSubscription(t *testing.T) {
	proc, subs, ownerID := setupProcessorTest(t)

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sub, err := subs.Create(ownerID, "basic", 500, 5, now, now.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if sub.IsActive {
		t.Fatal("subscription should start unactivated")
	}
	if err := subs.SetStripeSession(sub.ID, "cs_test_123"); err != nil {
		t.Fatalf("set stripe session: %v", err)
	}

	if err := proc.Process(checkoutEvent(t, "checkout.session.completed", "cs_test_123")); err != nil {
		t.Fatalf("process event: %v", err)
	}

	got, err := subs.GetByID(sub.ID)
	if err != nil {
		t.Fatalf("reload subscription: %v", err)
	}
	if !got.IsActive {
		t.Error("subscription should be activated after checkout completes")
	}
}

func TestUnknownSessionAcknowledged(t *testing.T) {
	proc, _, _ := setupProcessorTest(t)

	if err := proc.Process(checkoutEvent(t, "checkout.session.completed", "cs_missing")); err != nil {
		t.Errorf("unknown session should be acknowledged, got %v", err)
	}
}

func TestUnhandledEventIgnored(t *testing.T) {
	proc, _, _ := setupProcessorTest(t)

	if err := proc.Process(checkoutEvent(t, "invoice.paid", "cs_other")); err != nil {
		t.Errorf("unhandled event should be acknowledged, got %v", err)
	}
}
