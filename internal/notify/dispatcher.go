package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/easybook/internal/apperr"
	"github.com/iliyamo/easybook/internal/model"
)

// NotificationStore records notifications.  *repository.NotificationRepo
// satisfies it.
type NotificationStore interface {
	Create(ctx context.Context, n *model.Notification) error
	MarkStatus(ctx context.Context, id uint64, status model.NotificationStatus) error
}

// PreferenceStore reads notification preferences.  *repository.PreferenceRepo
// satisfies it.
type PreferenceStore interface {
	Get(ctx context.Context, userID uint64) (*model.NotificationPreference, error)
}

// Dispatcher is the consumer-side Handler: it renders the event, stores a
// pending notification, sends it and records the outcome.
type Dispatcher struct {
	store NotificationStore
	prefs PreferenceStore
	sink  Sink
	log   *zap.Logger
}

func NewDispatcher(store NotificationStore, prefs PreferenceStore, sink Sink, log *zap.Logger) *Dispatcher {
	return &Dispatcher{store: store, prefs: prefs, sink: sink, log: log}
}

// Handle returns an error only when the preference or the notification
// could not be read or stored; delivery failures end up as status failed.
// A user who turned email off still gets the notification row, marked
// failed without a send.  A user with no preference row gets email at the
// address carried by the event.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) error {
	msg, err := Render(ev)
	if err != nil {
		d.log.Error("notify.Dispatcher render failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
		return nil
	}
	enabled := true
	pref, err := d.prefs.Get(ctx, ev.UserID)
	switch {
	case err == nil:
		enabled = pref.EmailEnabled
		if pref.Email != "" {
			msg.To = pref.Email
		}
	case !errors.Is(err, apperr.ErrNotFound):
		return fmt.Errorf("load preference: %w", err)
	}

	n := &model.Notification{
		UserID:      ev.UserID,
		Kind:        ev.Kind,
		Subject:     msg.Subject,
		Message:     msg.Text,
		HTMLMessage: msg.HTML,
		ScheduledAt: ev.OccurredAt,
	}
	if err := d.store.Create(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}

	status := model.NotificationSent
	switch {
	case !enabled:
		status = model.NotificationFailed
	case !d.sink.Send(ctx, msg):
		status = model.NotificationFailed
	}
	if err := d.store.MarkStatus(ctx, n.ID, status); err != nil {
		d.log.Warn("notify.Dispatcher mark status failed", zap.Uint64("notification_id", n.ID), zap.Error(err))
	}
	d.log.Debug("notification dispatched",
		zap.String("kind", string(ev.Kind)), zap.Uint64("user_id", ev.UserID), zap.String("status", string(status)))
	return nil
}
