package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"chargeslot/internal/db"
)

// NotificationRepo is the notification sink: an append-only table of pending
// email/SMS records. The delivery worker drains pending rows and flips them
// to sent; writers never block on delivery.
type NotificationRepo struct {
	DB *sql.DB
}

func NewNotificationRepo(database *sql.DB) *NotificationRepo {
	return &NotificationRepo{DB: database}
}

// Enqueue appends a pending notification and returns its generated id.
func (r *NotificationRepo) Enqueue(ctx context.Context, n *db.Notification) (string, error) {
	n.ID = uuid.NewString()
	n.Status = db.StatusPending
	err := withRetry(ctx, func(ctx context.Context) error {
		return r.DB.QueryRowContext(ctx, `
			INSERT INTO notifications (id, kind, recipient, subject, message, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at`,
			n.ID, n.Kind, n.Recipient, n.Subject, n.Message, n.Status,
		).Scan(&n.CreatedAt)
	})
	if err != nil {
		return "", err
	}
	return n.ID, nil
}

// ListPending returns the oldest undelivered notifications, up to limit.
func (r *NotificationRepo) ListPending(ctx context.Context, limit int) ([]db.Notification, error) {
	var pending []db.Notification
	err := withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.DB.QueryContext(ctx, `
			SELECT id, kind, recipient, subject, message, status, created_at
			FROM notifications
			WHERE status = $1
			ORDER BY created_at
			LIMIT $2`, db.StatusPending, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		pending = pending[:0]
		for rows.Next() {
			var n db.Notification
			err := rows.Scan(&n.ID, &n.Kind, &n.Recipient, &n.Subject, &n.Message, &n.Status, &n.CreatedAt)
			if err != nil {
				return err
			}
			pending = append(pending, n)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// MarkSent flips a delivered notification to sent.
func (r *NotificationRepo) MarkSent(ctx context.Context, id string) error {
	return withRetry(ctx, func(ctx context.Context) error {
		_, err := r.DB.ExecContext(ctx, `
			UPDATE notifications SET status = $2, sent_at = NOW() WHERE id = $1`,
			id, db.StatusSent)
		return err
	})
}
