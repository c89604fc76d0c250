package sweep

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ecopower/ecopower/internal/database"
	"github.com/ecopower/ecopower/internal/model"
	"github.com/ecopower/ecopower/internal/push"
	"github.com/ecopower/ecopower/internal/store"
)

type sweepFixture struct {
	runner        *Runner
	subs          *store.SubscriptionStore
	invoices      *store.InvoiceStore
	consumptions  *store.ConsumptionStore
	messages      *store.MessageStore
	notifications *store.NotificationStore
	ownerID       int64
	residentID    int64
	houseID       int64
}

func setupSweepTest(t *testing.T) *sweepFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := store.NewUserStore(db)
	houses := store.NewHouseStore(db)
	owner, err := users.CreateOwner("Ama", "Kodjo", "ama@example.com", "", "hash")
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	resident, err := users.CreateResident(owner.ID, "Kossi", "Mensah", "kossi@example.com", "", "hash")
	if err != nil {
		t.Fatalf("create resident: %v", err)
	}
	house, err := houses.Create(owner.ID, "Villa Rose", "12 Rue des Palmiers", "Lome", "01BP45", "Togo", "", 0.15)
	if err != nil {
		t.Fatalf("create house: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifications := store.NewNotificationStore(db)
	dispatcher := push.NewDispatcher(
		push.NewService(push.Config{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv"}),
		store.NewPushStore(db), notifications, logger,
	)

	f := &sweepFixture{
		subs:          store.NewSubscriptionStore(db),
		invoices:      store.NewInvoiceStore(db),
		consumptions:  store.NewConsumptionStore(db),
		messages:      store.NewMessageStore(db),
		notifications: notifications,
		ownerID:       owner.ID,
		residentID:    resident.ID,
		houseID:       house.ID,
	}
	f.runner = NewRunner(f.subs, f.invoices, f.messages, dispatcher, logger)
	return f
}

func TestExpireSubscriptionsSweep(t *testing.T) {
	f := setupSweepTest(t)

	past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 15, 2, 0, 0, 0, time.UTC)

	lapsed, err := f.subs.Create(f.ownerID, "basic", 500, 5, past, past.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if err := f.subs.SetActive(lapsed.ID, true); err != nil {
		t.Fatalf("activate: %v", err)
	}
	// ending exactly now is already out of its window
	boundary, err := f.subs.Create(f.ownerID, "basic", 500, 5, past, now)
	if err != nil {
		t.Fatalf("create boundary subscription: %v", err)
	}

	if err := f.runner.ExpireSubscriptions(context.Background(), now); err != nil {
		t.Fatalf("expire sweep: %v", err)
	}
	if err := f.runner.ExpireSubscriptions(context.Background(), now); err != nil {
		t.Fatalf("expire sweep twice: %v", err)
	}

	got, err := f.subs.GetByID(lapsed.ID)
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if got.Status != model.SubscriptionExpired {
		t.Errorf("status = %q, want %q", got.Status, model.SubscriptionExpired)
	}
	if got.IsActive {
		t.Error("expired subscription should also be deactivated")
	}

	atEdge, err := f.subs.GetByID(boundary.ID)
	if err != nil {
		t.Fatalf("get boundary subscription: %v", err)
	}
	if atEdge.Status != model.SubscriptionExpired {
		t.Errorf("boundary status = %q, want %q", atEdge.Status, model.SubscriptionExpired)
	}
}

func TestOverdueSweepAndReminders(t *testing.T) {
	f := setupSweepTest(t)

	c, err := f.consumptions.Create(f.residentID, f.houseID, 1, 2026, 1000, 1100, 100, 15, "")
	if err != nil {
		t.Fatalf("create consumption: %v", err)
	}
	issuedAt := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	inv, err := f.invoices.CreateForConsumption(context.Background(), c, issuedAt, "")
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	// a second invoice overdue for less than the reminder grace
	c2, err := f.consumptions.Create(f.residentID, f.houseID, 2, 2026, 1100, 1200, 100, 15, "")
	if err != nil {
		t.Fatalf("create second consumption: %v", err)
	}
	recent, err := f.invoices.CreateForConsumption(context.Background(), c2, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC), "")
	if err != nil {
		t.Fatalf("create second invoice: %v", err)
	}

	now := time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC)
	if err := f.runner.MarkOverdueInvoices(context.Background(), now); err != nil {
		t.Fatalf("overdue sweep: %v", err)
	}

	got, err := f.invoices.GetByID(inv.ID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if got.Status != model.InvoiceOverdue {
		t.Errorf("status = %q, want %q", got.Status, model.InvoiceOverdue)
	}
	gotRecent, err := f.invoices.GetByID(recent.ID)
	if err != nil {
		t.Fatalf("get second invoice: %v", err)
	}
	if gotRecent.Status != model.InvoiceOverdue {
		t.Errorf("second status = %q, want %q", gotRecent.Status, model.InvoiceOverdue)
	}

	if err := f.runner.RemindOverdueInvoices(context.Background(), now); err != nil {
		t.Fatalf("reminder sweep: %v", err)
	}
	notifs, err := f.notifications.ListByUser(f.residentID, 10)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	// only the invoice past the grace period is nagged about
	if len(notifs) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifs))
	}
	if notifs[0].Kind != model.NotifAlert {
		t.Errorf("kind = %q, want %q", notifs[0].Kind, model.NotifAlert)
	}
	if !strings.Contains(notifs[0].Body, got.Number) {
		t.Errorf("body = %q, want the overdue invoice number in it", notifs[0].Body)
	}
}

func TestExpiryWarningSweep(t *testing.T) {
	f := setupSweepTest(t)

	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	soon, err := f.subs.Create(f.ownerID, "basic", 500, 5, now.AddDate(0, -1, 0), now.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if err := f.subs.SetActive(soon.ID, true); err != nil {
		t.Fatalf("activate: %v", err)
	}

	if err := f.runner.WarnExpiringSubscriptions(context.Background(), now); err != nil {
		t.Fatalf("warning sweep: %v", err)
	}

	notifs, err := f.notifications.ListByUser(f.ownerID, 10)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notifs) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifs))
	}
	if notifs[0].Kind != model.NotifWarning {
		t.Errorf("kind = %q, want %q", notifs[0].Kind, model.NotifWarning)
	}
}

func TestMessageCleanupSweep(t *testing.T) {
	f := setupSweepTest(t)

	if _, err := f.messages.Create(&model.Message{
		SenderID:   f.ownerID,
		ReceiverID: &f.residentID,
		HouseID:    f.houseID,
		Body:       "old chat",
		Kind:       model.MessageText,
	}); err != nil {
		t.Fatalf("create message: %v", err)
	}
	// nothing old enough yet
	if err := f.runner.CleanupMessages(context.Background(), time.Now()); err != nil {
		t.Fatalf("cleanup sweep: %v", err)
	}
	remaining, err := f.messages.ListConversation(f.ownerID, f.residentID, 50)
	if err != nil {
		t.Fatalf("list conversation: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("messages = %d, want 1", len(remaining))
	}

	// a run far in the future clears it
	if err := f.runner.CleanupMessages(context.Background(), time.Now().AddDate(1, 0, 0)); err != nil {
		t.Fatalf("future cleanup sweep: %v", err)
	}
	remaining, err = f.messages.ListConversation(f.ownerID, f.residentID, 50)
	if err != nil {
		t.Fatalf("list conversation: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("messages = %d, want 0", len(remaining))
	}
}

func TestRunAll(t *testing.T) {
	f := setupSweepTest(t)

	past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := f.subs.Create(f.ownerID, "basic", 500, 5, past, past.AddDate(0, 1, 0)); err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if err := f.runner.RunAll(context.Background(), now); err != nil {
		t.Fatalf("run all: %v", err)
	}
}
