package subscription

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ecopower/ecopower/internal/apperror"
	"github.com/ecopower/ecopower/internal/model"
	"github.com/ecopower/ecopower/internal/store"
)

// Free-mode grants. When the platform runs in free mode every owner gets a
// virtual subscription with these limits and nothing is persisted.
const (
	FreeModeMaxResidents = 9999
	FreeModeYears        = 5
)

// TermMonths is the length of one paid subscription period.
const TermMonths = 1

// Usable reports whether a subscription currently authorizes owner
// operations: it must be in the active state, within its window, and
// payment-activated. All three are required.
func Usable(sub *model.Subscription, now time.Time) bool {
	if sub == nil {
		return false
	}
	return sub.Status == model.SubscriptionActive && sub.EndDate.After(now) && sub.IsActive
}

// DaysRemaining returns whole days until the subscription window closes,
// rounding partial days up. Past windows yield zero.
func DaysRemaining(sub *model.Subscription, now time.Time) int {
	if sub == nil || !sub.EndDate.After(now) {
		return 0
	}
	return int(math.Ceil(sub.EndDate.Sub(now).Hours() / 24))
}

type Service struct {
	subs     *store.SubscriptionStore
	users    *store.UserStore
	freeMode bool
	logger   *slog.Logger
}

func NewService(subs *store.SubscriptionStore, users *store.UserStore, freeMode bool, logger *slog.Logger) *Service {
	return &Service{
		subs:     subs,
		users:    users,
		freeMode: freeMode,
		logger:   logger.With("component", "subscription"),
	}
}

func (s *Service) FreeMode() bool { return s.freeMode }

func (s *Service) freeSubscription(ownerID int64, now time.Time) *model.Subscription {
	return &model.Subscription{
		OwnerID:      ownerID,
		Plan:         PlanEnterprise,
		Price:        0,
		MaxResidents: FreeModeMaxResidents,
		StartDate:    now,
		EndDate:      now.AddDate(FreeModeYears, 0, 0),
		Status:       model.SubscriptionActive,
		IsActive:     true,
	}
}

// CurrentFor returns the owner's latest subscription. A subscription whose
// window has lapsed but is still marked active is expired in place before
// being returned, so reads never observe a stale status.
func (s *Service) CurrentFor(ownerID int64, now time.Time) (*model.Subscription, error) {
	if s.freeMode {
		return s.freeSubscription(ownerID, now), nil
	}
	sub, err := s.subs.Latest(ownerID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, nil
	}
	if sub.Status == model.SubscriptionActive && !sub.EndDate.After(now) {
		if err := s.subs.Expire(sub.ID); err != nil {
			return nil, err
		}
		sub.Status = model.SubscriptionExpired
		sub.IsActive = false
		s.logger.Info("subscription lapsed", "subscription_id", sub.ID, "owner_id", ownerID)
	}
	return sub, nil
}

// RequireUsable returns the owner's subscription if it authorizes owner
// operations right now.
func (s *Service) RequireUsable(ownerID int64, now time.Time) (*model.Subscription, error) {
	sub, err := s.CurrentFor(ownerID, now)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, apperror.New(apperror.KindNoSubscription, "no subscription found, please subscribe to a plan")
	}
	if !Usable(sub, now) {
		return nil, apperror.New(apperror.KindSubscriptionExpired, "subscription is expired or not activated")
	}
	return sub, nil
}

// CheckQuota verifies the owner can add one more resident under the
// current plan ceiling.
func (s *Service) CheckQuota(ownerID int64, now time.Time) error {
	sub, err := s.RequireUsable(ownerID, now)
	if err != nil {
		return err
	}
	count, err := s.users.CountResidents(ownerID)
	if err != nil {
		return err
	}
	if count >= sub.MaxResidents {
		return apperror.New(apperror.KindQuotaExceeded, fmt.Sprintf("resident limit reached for plan %s", sub.Plan)).
			WithDetail("current", count).
			WithDetail("max", sub.MaxResidents)
	}
	return nil
}

// Subscribe creates a subscription to the named plan. A still-usable
// subscription blocks a new one; a lapsed or never-activated one is
// replaced.
func (s *Service) Subscribe(ownerID int64, plan string, now time.Time) (*model.Subscription, error) {
	if s.freeMode {
		return s.freeSubscription(ownerID, now), nil
	}
	offer, ok := OfferFor(plan)
	if !ok {
		return nil, apperror.Validation("unknown plan %q", plan)
	}

	existing, err := s.CurrentFor(ownerID, now)
	if err != nil {
		return nil, err
	}
	if Usable(existing, now) {
		return nil, apperror.Conflict("an active subscription already exists")
	}
	// a lapsed or never-activated subscription is replaced outright
	if existing != nil {
		if err := s.subs.Delete(existing.ID); err != nil {
			return nil, err
		}
		s.logger.Info("subscription replaced", "subscription_id", existing.ID, "owner_id", ownerID)
	}

	sub, err := s.subs.Create(ownerID, offer.Plan, offer.Price, offer.MaxResidents, now, now.AddDate(0, TermMonths, 0))
	if err != nil {
		return nil, err
	}
	if err := s.users.SetSubscriptionID(ownerID, &sub.ID); err != nil {
		return nil, err
	}
	s.logger.Info("subscription created", "subscription_id", sub.ID, "owner_id", ownerID, "plan", sub.Plan)
	return sub, nil
}

// Renew restarts the owner's latest subscription for a fresh term from
// now, active and activated.
func (s *Service) Renew(ownerID int64, now time.Time) (*model.Subscription, error) {
	if s.freeMode {
		return s.freeSubscription(ownerID, now), nil
	}
	sub, err := s.subs.Latest(ownerID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, apperror.New(apperror.KindNoSubscription, "no subscription to renew")
	}
	renewed, err := s.subs.Renew(sub.ID, now, now.AddDate(0, TermMonths, 0))
	if err != nil {
		return nil, err
	}
	s.logger.Info("subscription renewed", "subscription_id", sub.ID, "owner_id", ownerID, "until", renewed.EndDate)
	return renewed, nil
}

// Cancel suspends the owner's latest subscription.
func (s *Service) Cancel(ownerID int64) error {
	if s.freeMode {
		return nil
	}
	sub, err := s.subs.Latest(ownerID)
	if err != nil {
		return err
	}
	if sub == nil {
		return apperror.New(apperror.KindNoSubscription, "no subscription to cancel")
	}
	if err := s.subs.Suspend(sub.ID); err != nil {
		return err
	}
	s.logger.Info("subscription suspended", "subscription_id", sub.ID, "owner_id", ownerID)
	return nil
}

// History returns the owner's past and present subscriptions.
func (s *Service) History(ownerID int64) ([]model.Subscription, error) {
	if s.freeMode {
		return nil, nil
	}
	return s.subs.History(ownerID)
}

// Activate flips the payment flag after a confirmed payment.
func (s *Service) Activate(subscriptionID int64) error {
	sub, err := s.subs.GetByID(subscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return apperror.NotFound(fmt.Sprintf("subscription %d", subscriptionID))
	}
	if err := s.subs.SetActive(subscriptionID, true); err != nil {
		return err
	}
	s.logger.Info("subscription activated", "subscription_id", subscriptionID, "owner_id", sub.OwnerID)
	return nil
}

// Deactivate clears the payment flag, for refunds or failed payments.
func (s *Service) Deactivate(subscriptionID int64) error {
	sub, err := s.subs.GetByID(subscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return apperror.NotFound(fmt.Sprintf("subscription %d", subscriptionID))
	}
	if err := s.subs.SetActive(subscriptionID, false); err != nil {
		return err
	}
	s.logger.Info("subscription deactivated", "subscription_id", subscriptionID, "owner_id", sub.OwnerID)
	return nil
}
