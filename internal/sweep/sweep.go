package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ecopower/ecopower/internal/invoicing"
	"github.com/ecopower/ecopower/internal/model"
	"github.com/ecopower/ecopower/internal/push"
	"github.com/ecopower/ecopower/internal/store"
	"github.com/ecopower/ecopower/internal/subscription"
)

// ExpiryWarningWindow is how far ahead the warning sweep looks for
// subscriptions about to lapse.
const ExpiryWarningWindow = 7 * 24 * time.Hour

// MessageRetention is how long plain chat traffic is kept before the
// cleanup sweep removes it. Invoice notices are exempt.
const MessageRetention = 6 * 30 * 24 * time.Hour

// ReminderGrace is how long an invoice must be past due before the reminder
// sweep starts nagging the resident.
const ReminderGrace = 30 * 24 * time.Hour

// Runner executes the periodic maintenance sweeps. Every sweep is
// idempotent and can also be invoked directly, outside the schedule.
type Runner struct {
	subs     *store.SubscriptionStore
	invoices *store.InvoiceStore
	messages *store.MessageStore
	push     *push.Dispatcher
	logger   *slog.Logger
}

func NewRunner(subs *store.SubscriptionStore, invoices *store.InvoiceStore, messages *store.MessageStore, dispatcher *push.Dispatcher, logger *slog.Logger) *Runner {
	return &Runner{
		subs:     subs,
		invoices: invoices,
		messages: messages,
		push:     dispatcher,
		logger:   logger.With("component", "sweep"),
	}
}

// ExpireSubscriptions marks every active subscription whose window has
// closed as expired.
func (r *Runner) ExpireSubscriptions(ctx context.Context, now time.Time) error {
	n, err := r.subs.ExpireAllPast(now)
	if err != nil {
		return fmt.Errorf("expire subscriptions: %w", err)
	}
	if n > 0 {
		r.logger.Info("subscriptions expired", "count", n)
	}
	return nil
}

// MarkOverdueInvoices flips unpaid invoices past their due date to overdue.
func (r *Runner) MarkOverdueInvoices(ctx context.Context, now time.Time) error {
	n, err := r.invoices.MarkOverdueAllPast(now)
	if err != nil {
		return fmt.Errorf("mark overdue invoices: %w", err)
	}
	if n > 0 {
		r.logger.Info("invoices marked overdue", "count", n)
	}
	return nil
}

// WarnExpiringSubscriptions notifies owners whose subscription ends within
// the warning window.
func (r *Runner) WarnExpiringSubscriptions(ctx context.Context, now time.Time) error {
	expiring, err := r.subs.ListExpiring(now, ExpiryWarningWindow)
	if err != nil {
		return fmt.Errorf("list expiring subscriptions: %w", err)
	}
	for i := range expiring {
		sub := &expiring[i]
		days := subscription.DaysRemaining(sub, now)
		if err := r.push.Send(ctx, sub.OwnerID,
			"Subscription expiring soon",
			fmt.Sprintf("Your %s plan expires in %d day(s). Renew to keep managing your residents.", sub.Plan, days),
			model.NotifWarning,
		); err != nil {
			r.logger.Error("expiry warning failed", "owner_id", sub.OwnerID, "error", err)
		}
	}
	if len(expiring) > 0 {
		r.logger.Info("expiry warnings dispatched", "count", len(expiring))
	}
	return nil
}

// RemindOverdueInvoices notifies residents holding invoices more than
// ReminderGrace past their due date.
func (r *Runner) RemindOverdueInvoices(ctx context.Context, now time.Time) error {
	overdue, err := r.invoices.ListOverdue(now.Add(-ReminderGrace))
	if err != nil {
		return fmt.Errorf("list overdue invoices: %w", err)
	}
	for i := range overdue {
		inv := &overdue[i]
		days := invoicing.DaysOverdue(inv, now)
		if err := r.push.Send(ctx, inv.ResidentID,
			"Invoice overdue",
			fmt.Sprintf("Invoice %s is %d day(s) overdue. Amount due: %.2f.", inv.Number, days, inv.Amount),
			model.NotifAlert,
		); err != nil {
			r.logger.Error("overdue reminder failed", "resident_id", inv.ResidentID, "error", err)
		}
	}
	if len(overdue) > 0 {
		r.logger.Info("overdue reminders dispatched", "count", len(overdue))
	}
	return nil
}

// CleanupMessages removes old chat traffic past the retention window.
func (r *Runner) CleanupMessages(ctx context.Context, now time.Time) error {
	n, err := r.messages.DeleteOlderThan(now.Add(-MessageRetention))
	if err != nil {
		return fmt.Errorf("cleanup messages: %w", err)
	}
	if n > 0 {
		r.logger.Info("old messages removed", "count", n)
	}
	return nil
}

// RunAll executes every sweep concurrently, for the maintenance endpoint.
// Each sweep is independent; one failing does not stop the others, and the
// first error is returned after all complete.
func (r *Runner) RunAll(ctx context.Context, now time.Time) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.ExpireSubscriptions(gctx, now) })
	g.Go(func() error { return r.MarkOverdueInvoices(gctx, now) })
	g.Go(func() error { return r.CleanupMessages(gctx, now) })
	if err := g.Wait(); err != nil {
		return err
	}
	// notification sweeps run after the state sweeps so they see fresh
	// statuses
	g2, ctx2 := errgroup.WithContext(ctx)
	g2.Go(func() error { return r.WarnExpiringSubscriptions(ctx2, now) })
	g2.Go(func() error { return r.RemindOverdueInvoices(ctx2, now) })
	return g2.Wait()
}
