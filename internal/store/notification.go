package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ecopower/ecopower/internal/model"
)

type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

func scanNotification(scanner interface{ Scan(...any) error }) (*model.Notification, error) {
	var n model.Notification
	var sentAt, readAt sql.NullTime
	err := scanner.Scan(
		&n.ID, &n.UserID, &n.Title, &n.Body, &n.Kind, &n.Status,
		&sentAt, &readAt, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.SentAt = timePtr(sentAt)
	n.ReadAt = timePtr(readAt)
	return &n, nil
}

const notificationCols = `id, user_id, title, body, kind, status, sent_at, read_at, created_at`

func (s *NotificationStore) Create(userID int64, title, body, kind string) (*model.Notification, error) {
	result, err := s.db.Exec(
		`INSERT INTO notifications (user_id, title, body, kind) VALUES (?, ?, ?, ?)`,
		userID, title, body, kind,
	)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *NotificationStore) GetByID(id int64) (*model.Notification, error) {
	row := s.db.QueryRow(`SELECT `+notificationCols+` FROM notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

func (s *NotificationStore) ListByUser(userID int64, limit int) ([]model.Notification, error) {
	rows, err := s.db.Query(
		`SELECT `+notificationCols+` FROM notifications
		 WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, *n)
	}
	return notifications, rows.Err()
}

// MarkSent records the delivery outcome of a push attempt.
func (s *NotificationStore) MarkSent(id int64, sentAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE notifications SET status = ?, sent_at = ? WHERE id = ?`,
		model.NotifSent, sentAt, id,
	)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}

func (s *NotificationStore) MarkFailed(id int64) error {
	_, err := s.db.Exec(
		`UPDATE notifications SET status = ? WHERE id = ?`,
		model.NotifFailed, id,
	)
	if err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	return nil
}

func (s *NotificationStore) MarkRead(id, userID int64, readAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE notifications SET status = ?, read_at = ? WHERE id = ? AND user_id = ?`,
		model.NotifRead, readAt, id, userID,
	)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}
