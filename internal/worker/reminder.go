package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/easybook/internal/model"
	"github.com/iliyamo/easybook/internal/notify"
)

// ReminderStore is implemented by *repository.Store.
type ReminderStore interface {
	DueReminders(ctx context.Context, from, to time.Time, limit int) ([]model.AppointmentDetail, error)
	ClaimReminder(ctx context.Context, appointmentID string) (bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, ev notify.Event) error
}

// ReminderWorker sends one appointment_reminder per confirmed appointment
// starting within the lead time.  Claiming before sending keeps concurrent
// workers from reminding twice.
type ReminderWorker struct {
	store    ReminderStore
	notifier Notifier
	interval time.Duration
	lead     time.Duration
	batch    int
	log      *zap.Logger
	now      func() time.Time
}

func NewReminderWorker(store ReminderStore, notifier Notifier, interval, lead time.Duration, batch int, log *zap.Logger) *ReminderWorker {
	return &ReminderWorker{store: store, notifier: notifier, interval: interval, lead: lead, batch: batch, log: log, now: time.Now}
}

func (w *ReminderWorker) Run(ctx context.Context) {
	runEvery(ctx, w.log, "reminders", w.interval, w.process)
}

func (w *ReminderWorker) process(ctx context.Context) error {
	now := w.now()
	due, err := w.store.DueReminders(ctx, now, now.Add(w.lead), w.batch)
	if err != nil {
		return err
	}
	sent := 0
	for i := range due {
		d := &due[i]
		claimed, err := w.store.ClaimReminder(ctx, d.ID)
		if err != nil {
			return err
		}
		if !claimed {
			continue
		}
		if err := w.notifier.Notify(ctx, notify.EventFromDetail(model.KindAppointmentReminder, d)); err != nil {
			// claimed but not published; the reminder is lost rather than sent twice
			w.log.Warn("reminder dispatch failed", zap.String("appointment_id", d.ID), zap.Error(err))
			continue
		}
		sent++
	}
	if sent > 0 {
		w.log.Info("reminders sent", zap.Int("count", sent))
	}
	return nil
}
