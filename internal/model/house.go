package model

import "time"

// House status values.
const (
	HouseActive   = "active"
	HouseInactive = "inactive"
)

type House struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	OwnerID     int64     `json:"owner_id"`
	Street      string    `json:"street"`
	City        string    `json:"city"`
	PostalCode  string    `json:"postal_code"`
	Country     string    `json:"country"`
	Description string    `json:"description"`
	TariffKWh   float64   `json:"tariff_kwh"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
