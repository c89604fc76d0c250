package model

import "time"

// Message kinds.
const (
	MessageText       = "text"
	MessageInvoice    = "invoice"
	MessageSystem     = "system"
	MessageAttachment = "attachment"
)

type Message struct {
	ID             int64      `json:"id"`
	SenderID       int64      `json:"sender_id"`
	ReceiverID     *int64     `json:"receiver_id,omitempty"`
	HouseID        int64      `json:"house_id"`
	Body           string     `json:"body"`
	Kind           string     `json:"kind"`
	InvoiceID      *int64     `json:"invoice_id,omitempty"`
	AttachmentURL  string     `json:"attachment_url,omitempty"`
	AttachmentName string     `json:"attachment_name,omitempty"`
	AttachmentSize int64      `json:"attachment_size,omitempty"`
	Read           bool       `json:"read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	SentAt         time.Time  `json:"sent_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Direct reports whether the message targets a single recipient rather
// than the whole house.
func (m *Message) Direct() bool {
	return m.ReceiverID != nil
}
