package model

import (
	"fmt"
	"time"
)

// Consumption status values.
const (
	ConsumptionRecorded = "recorded"
	ConsumptionBilled   = "billed"
)

type Consumption struct {
	ID            int64     `json:"id"`
	ResidentID    int64     `json:"resident_id"`
	HouseID       int64     `json:"house_id"`
	PreviousIndex float64   `json:"previous_index"`
	CurrentIndex  float64   `json:"current_index"`
	KWh           float64   `json:"kwh"`
	Amount        float64   `json:"amount"`
	Month         int       `json:"month"`
	Year          int       `json:"year"`
	ReadingDate   time.Time `json:"reading_date"`
	Comment       string    `json:"comment,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Period renders the billing period as "YYYY-MM".
func (c *Consumption) Period() string {
	return fmt.Sprintf("%04d-%02d", c.Year, c.Month)
}
