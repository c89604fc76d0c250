package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ecopower/ecopower/internal/model"
)

type SubscriptionStore struct {
	db *sql.DB
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.Subscription, error) {
	var sub model.Subscription
	var isActive int
	var stripeSessionID sql.NullString
	err := scanner.Scan(
		&sub.ID, &sub.OwnerID, &sub.Plan, &sub.Price, &sub.MaxResidents,
		&sub.StartDate, &sub.EndDate, &sub.Status, &isActive, &stripeSessionID,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.IsActive = isActive != 0
	sub.StripeSessionID = stringPtr(stripeSessionID)
	return &sub, nil
}

const subscriptionCols = `id, owner_id, plan, price, max_residents, start_date, end_date, status, is_active, stripe_session_id, created_at, updated_at`

// Create inserts a subscription in the active state but not yet activated.
// Activation happens when payment is confirmed.
func (s *SubscriptionStore) Create(ownerID int64, plan string, price float64, maxResidents int, start, end time.Time) (*model.Subscription, error) {
	result, err := s.db.Exec(
		`INSERT INTO subscriptions (owner_id, plan, price, max_residents, start_date, end_date, status, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		ownerID, plan, price, maxResidents, start, end, model.SubscriptionActive,
	)
	if err != nil {
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *SubscriptionStore) GetByID(id int64) (*model.Subscription, error) {
	row := s.db.QueryRow(`SELECT `+subscriptionCols+` FROM subscriptions WHERE id = ?`, id)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// Latest returns the owner's most recent subscription regardless of state.
func (s *SubscriptionStore) Latest(ownerID int64) (*model.Subscription, error) {
	row := s.db.QueryRow(
		`SELECT `+subscriptionCols+` FROM subscriptions
		 WHERE owner_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		ownerID,
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest subscription: %w", err)
	}
	return sub, nil
}

// History returns all of the owner's subscriptions, newest first.
func (s *SubscriptionStore) History(ownerID int64) ([]model.Subscription, error) {
	rows, err := s.db.Query(
		`SELECT `+subscriptionCols+` FROM subscriptions
		 WHERE owner_id = ? ORDER BY created_at DESC, id DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// Expire marks a subscription expired and deactivates it. Already-expired
// rows are untouched, so the lazy expiry on read and the nightly sweep can
// both call it.
func (s *SubscriptionStore) Expire(id int64) error {
	_, err := s.db.Exec(
		`UPDATE subscriptions SET status = ?, is_active = 0, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status != ?`,
		model.SubscriptionExpired, id, model.SubscriptionExpired,
	)
	if err != nil {
		return fmt.Errorf("expire subscription: %w", err)
	}
	return nil
}

// ExpireAllPast marks every active subscription whose end date has been
// reached as expired and deactivated, returning the number of rows changed.
func (s *SubscriptionStore) ExpireAllPast(now time.Time) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE subscriptions SET status = ?, is_active = 0, updated_at = CURRENT_TIMESTAMP
		 WHERE status = ? AND end_date <= ?`,
		model.SubscriptionExpired, model.SubscriptionActive, now,
	)
	if err != nil {
		return 0, fmt.Errorf("expire past subscriptions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// ListExpiring returns active activated subscriptions ending within the
// window, for expiry warnings.
func (s *SubscriptionStore) ListExpiring(now time.Time, window time.Duration) ([]model.Subscription, error) {
	rows, err := s.db.Query(
		`SELECT `+subscriptionCols+` FROM subscriptions
		 WHERE status = ? AND is_active = 1 AND end_date > ? AND end_date <= ?
		 ORDER BY end_date ASC`,
		model.SubscriptionActive, now, now.Add(window),
	)
	if err != nil {
		return nil, fmt.Errorf("list expiring subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// Renew resets the billing window and reactivates the subscription in one
// update.
func (s *SubscriptionStore) Renew(id int64, start, end time.Time) (*model.Subscription, error) {
	_, err := s.db.Exec(
		`UPDATE subscriptions SET start_date = ?, end_date = ?, status = ?, is_active = 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		start, end, model.SubscriptionActive, id,
	)
	if err != nil {
		return nil, fmt.Errorf("renew subscription: %w", err)
	}
	return s.GetByID(id)
}

func (s *SubscriptionStore) Suspend(id int64) error {
	_, err := s.db.Exec(
		`UPDATE subscriptions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		model.SubscriptionSuspended, id,
	)
	if err != nil {
		return fmt.Errorf("suspend subscription: %w", err)
	}
	return nil
}

// SetActive flips the payment-activation flag.
func (s *SubscriptionStore) SetActive(id int64, active bool) error {
	v := 0
	if active {
		v = 1
	}
	_, err := s.db.Exec(
		`UPDATE subscriptions SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		v, id,
	)
	if err != nil {
		return fmt.Errorf("set subscription active: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) SetStripeSession(id int64, sessionID string) error {
	_, err := s.db.Exec(
		`UPDATE subscriptions SET stripe_session_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		sessionID, id,
	)
	if err != nil {
		return fmt.Errorf("set stripe session: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) GetByStripeSession(sessionID string) (*model.Subscription, error) {
	row := s.db.QueryRow(`SELECT `+subscriptionCols+` FROM subscriptions WHERE stripe_session_id = ?`, sessionID)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by stripe session: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}
