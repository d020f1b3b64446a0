package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/easybook/internal/model"
)

// NotificationRepo keeps a record of every message sent to a user.
type NotificationRepo struct {
	db *sql.DB
}

func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

// Create inserts n with status pending.
func (r *NotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	now := time.Now().UTC().Truncate(time.Second)
	if n.ScheduledAt.IsZero() {
		n.ScheduledAt = now
	}
	n.Status = model.NotificationPending
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, kind, subject, message, html_message, status, scheduled_at, created_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		n.UserID, n.Kind, n.Subject, n.Message, n.HTMLMessage, n.Status, n.ScheduledAt.UTC(), now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	n.ID, n.CreatedAt = uint64(id), now
	return nil
}

// MarkStatus records the delivery outcome.
func (r *NotificationRepo) MarkStatus(ctx context.Context, id uint64, status model.NotificationStatus) error {
	var sentAt any
	if status == model.NotificationSent {
		sentAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET status=?, sent_at=COALESCE(?, sent_at) WHERE id=?`, status, sentAt, id)
	return err
}

// ListByUser returns a user's most recent notifications.
func (r *NotificationRepo) ListByUser(ctx context.Context, userID uint64, limit int) ([]model.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, kind, subject, message, status, scheduled_at, sent_at, created_at
		   FROM notifications WHERE user_id=? ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		var sent sql.NullTime
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Subject, &n.Message, &n.Status, &n.ScheduledAt, &sent, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.SentAt = nullTime(sent)
		out = append(out, n)
	}
	return out, rows.Err()
}
