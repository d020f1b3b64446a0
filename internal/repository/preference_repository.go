package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/easybook/internal/model"
)

// PreferenceRepo stores notification preferences, one row per user.
type PreferenceRepo struct{ db *sql.DB }

func NewPreferenceRepo(db *sql.DB) *PreferenceRepo { return &PreferenceRepo{db: db} }

// Get returns apperr.ErrNotFound for a user without a row.
func (r *PreferenceRepo) Get(ctx context.Context, userID uint64) (*model.NotificationPreference, error) {
	var p model.NotificationPreference
	err := r.db.QueryRowContext(ctx,
		"SELECT user_id, email_enabled, email, updated_at FROM notification_preferences WHERE user_id=?", userID).
		Scan(&p.UserID, &p.EmailEnabled, &p.Email, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "notification preference for user %d", userID)
	}
	return &p, nil
}

// Upsert writes p, creating the row when missing.
func (r *PreferenceRepo) Upsert(ctx context.Context, p *model.NotificationPreference) error {
	return upsertPreference(ctx, r.db, p.UserID, p.EmailEnabled, p.Email)
}

func upsertPreference(ctx context.Context, q querier, userID uint64, enabled bool, email string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO notification_preferences (user_id, email_enabled, email) VALUES (?,?,?)
		 ON DUPLICATE KEY UPDATE email_enabled=VALUES(email_enabled), email=VALUES(email)`,
		userID, enabled, strings.ToLower(strings.TrimSpace(email)))
	return err
}
