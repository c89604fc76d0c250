package model

import "time"

// Subscription status values.
const (
	SubscriptionActive    = "active"
	SubscriptionExpired   = "expired"
	SubscriptionSuspended = "suspended"
)

type Subscription struct {
	ID              int64     `json:"id"`
	OwnerID         int64     `json:"owner_id"`
	Plan            string    `json:"plan"`
	Price           float64   `json:"price"`
	MaxResidents    int       `json:"max_residents"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	Status          string    `json:"status"`
	IsActive        bool      `json:"is_active"`
	StripeSessionID *string   `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
