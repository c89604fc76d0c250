package model

import "time"

// Notification kinds.
const (
	NotifSystem  = "system"
	NotifAlert   = "alert"
	NotifInfo    = "info"
	NotifWarning = "warning"
	NotifSuccess = "success"
)

// Notification delivery status values.
const (
	NotifPending = "pending"
	NotifSent    = "sent"
	NotifFailed  = "failed"
	NotifRead    = "read"
)

type Notification struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Kind      string     `json:"kind"`
	Status    string     `json:"status"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type PushSubscription struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Endpoint  string    `json:"endpoint"`
	P256dhKey string    `json:"p256dh_key"`
	AuthKey   string    `json:"auth_key"`
	CreatedAt time.Time `json:"created_at"`
}
