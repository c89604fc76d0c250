package model

import "time"

// Invoice status values.
const (
	InvoiceUnpaid  = "unpaid"
	InvoiceOverdue = "overdue"
	InvoicePaid    = "paid"
)

type Invoice struct {
	ID            int64      `json:"id"`
	ResidentID    int64      `json:"resident_id"`
	HouseID       int64      `json:"house_id"`
	ConsumptionID int64      `json:"consumption_id"`
	Number        string     `json:"number"`
	Amount        float64    `json:"amount"`
	KWh           float64    `json:"kwh"`
	TariffKWh     float64    `json:"tariff_kwh"`
	Status        string     `json:"status"`
	IssuedAt      time.Time  `json:"issued_at"`
	DueAt         time.Time  `json:"due_at"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	Comment       string     `json:"comment,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
