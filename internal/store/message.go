package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ecopower/ecopower/internal/model"
)

type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

func scanMessage(scanner interface{ Scan(...any) error }) (*model.Message, error) {
	var m model.Message
	var receiverID, invoiceID sql.NullInt64
	var readAt sql.NullTime
	var read int
	err := scanner.Scan(
		&m.ID, &m.SenderID, &receiverID, &m.HouseID, &m.Body, &m.Kind,
		&invoiceID, &m.AttachmentURL, &m.AttachmentName, &m.AttachmentSize,
		&read, &readAt, &m.SentAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.ReceiverID = int64Ptr(receiverID)
	m.InvoiceID = int64Ptr(invoiceID)
	m.Read = read != 0
	m.ReadAt = timePtr(readAt)
	return &m, nil
}

const messageCols = `id, sender_id, receiver_id, house_id, body, kind, invoice_id, attachment_url, attachment_name, attachment_size, read, read_at, sent_at, created_at, updated_at`

// Create persists a message. A nil receiver addresses the whole house.
func (s *MessageStore) Create(m *model.Message) (*model.Message, error) {
	result, err := s.db.Exec(
		`INSERT INTO messages (sender_id, receiver_id, house_id, body, kind, invoice_id, attachment_url, attachment_name, attachment_size, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		m.SenderID, nullInt64(m.ReceiverID), m.HouseID, m.Body, m.Kind,
		nullInt64(m.InvoiceID), m.AttachmentURL, m.AttachmentName, m.AttachmentSize,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *MessageStore) GetByID(id int64) (*model.Message, error) {
	row := s.db.QueryRow(`SELECT `+messageCols+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// ListConversation returns direct messages between two users, oldest first.
func (s *MessageStore) ListConversation(userA, userB int64, limit int) ([]model.Message, error) {
	rows, err := s.db.Query(
		`SELECT `+messageCols+` FROM messages
		 WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		 ORDER BY sent_at ASC LIMIT ?`,
		userA, userB, userB, userA, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// ListHouse returns broadcast and house-scoped messages, oldest first.
func (s *MessageStore) ListHouse(houseID int64, limit int) ([]model.Message, error) {
	rows, err := s.db.Query(
		`SELECT `+messageCols+` FROM messages
		 WHERE house_id = ? AND receiver_id IS NULL
		 ORDER BY sent_at ASC LIMIT ?`,
		houseID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list house messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func collectMessages(rows *sql.Rows) ([]model.Message, error) {
	var messages []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// MarkRead marks every direct message from the peer to the reader as read.
func (s *MessageStore) MarkRead(readerID, peerID int64, readAt time.Time) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE messages SET read = 1, read_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE receiver_id = ? AND sender_id = ? AND read = 0`,
		readAt, readerID, peerID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (s *MessageStore) CountUnread(userID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE receiver_id = ? AND read = 0`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread messages: %w", err)
	}
	return count, nil
}

// DeleteOlderThan removes chat traffic older than the cutoff. Invoice
// notices are kept for their audit value.
func (s *MessageStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM messages WHERE sent_at < ? AND kind != ?`,
		cutoff, model.MessageInvoice,
	)
	if err != nil {
		return 0, fmt.Errorf("delete old messages: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
