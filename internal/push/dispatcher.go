package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ecopower/ecopower/internal/model"
	"github.com/ecopower/ecopower/internal/store"
)

// Dispatcher fans a notification out to every device a user has registered
// and records each attempt in the notification log.
type Dispatcher struct {
	service       *Service
	subscriptions *store.PushStore
	notifications *store.NotificationStore
	logger        *slog.Logger
}

func NewDispatcher(service *Service, subscriptions *store.PushStore, notifications *store.NotificationStore, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		service:       service,
		subscriptions: subscriptions,
		notifications: notifications,
		logger:        logger.With("component", "push"),
	}
}

// Send delivers a notification to all of the user's devices. A user with
// no registered device still gets a log entry so the in-app list shows the
// event. Expired endpoints are pruned as they are discovered.
func (d *Dispatcher) Send(ctx context.Context, userID int64, title, body, kind string) error {
	notif, err := d.notifications.Create(userID, title, body, kind)
	if err != nil {
		return err
	}

	subs, err := d.subscriptions.ListByUser(userID)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		// nothing to push; the in-app entry is the delivery
		return d.notifications.MarkSent(notif.ID, time.Now())
	}

	payload := Payload{Title: title, Body: body}
	delivered := 0
	for i := range subs {
		sub := &subs[i]
		if err := d.sendWithRetry(ctx, sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				if delErr := d.subscriptions.DeleteByEndpoint(sub.Endpoint); delErr != nil {
					d.logger.Error("prune expired endpoint", "error", delErr)
				}
				continue
			}
			d.logger.Error("push delivery failed", "user_id", userID, "error", err)
			continue
		}
		delivered++
	}

	if delivered == 0 && len(subs) > 0 {
		return d.notifications.MarkFailed(notif.ID)
	}
	return d.notifications.MarkSent(notif.ID, time.Now())
}

// Notify sends in the background. Callers on the request path use it so a
// slow push service never delays the response.
func (d *Dispatcher) Notify(userID int64, title, body, kind string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := d.Send(ctx, userID, title, body, kind); err != nil {
			d.logger.Error("background push failed", "user_id", userID, "error", err)
		}
	}()
}

// NotifyAnomalousConsumption alerts a resident that their reading exceeds
// their recent average. Both values go in the body so the alert stands on
// its own without opening the app.
func (d *Dispatcher) NotifyAnomalousConsumption(resident *model.User, kwh, average float64) {
	d.Notify(resident.ID,
		"Unusual consumption recorded",
		fmt.Sprintf("Your reading of %.2f kWh is above your recent average of %.2f kWh", kwh, average),
		model.NotifAlert)
	d.logger.Info("anomaly notification queued", "resident_id", resident.ID, "kwh", kwh, "average", average)
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, sub *model.PushSubscription, payload Payload) error {
	backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := d.service.Send(sub, payload)
		if err == nil || errors.Is(err, ErrExpired) {
			return err
		}
		return retry.RetryableError(err)
	})
}
