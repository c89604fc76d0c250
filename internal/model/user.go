package model

import "time"

// Role values for User.Role.
const (
	RoleOwner    = "owner"
	RoleResident = "resident"
	RoleAdmin    = "admin"
)

type User struct {
	ID             int64      `json:"id"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Email          string     `json:"email"`
	Phone          string     `json:"phone"`
	PasswordHash   string     `json:"-"`
	Role           string     `json:"role"`
	OwnerID        *int64     `json:"owner_id,omitempty"`
	HouseID        *int64     `json:"house_id,omitempty"`
	SubscriptionID *int64     `json:"subscription_id,omitempty"`
	FirstLogin     bool       `json:"first_login"`
	RefreshToken   *string    `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// FullName returns the display name used in notifications and chat.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}
