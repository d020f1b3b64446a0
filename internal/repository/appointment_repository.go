package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/easybook/internal/apperr"
	"github.com/iliyamo/easybook/internal/model"
)

// AppointmentRepo persists appointments.  Slot exclusivity is enforced by
// the uq_appointments_active_timeslot index, so every write that can make an
// appointment active maps a duplicate key to apperr.ErrConflict.
type AppointmentRepo struct {
	db *sql.DB
}

func NewAppointmentRepo(db *sql.DB) *AppointmentRepo { return &AppointmentRepo{db: db} }

const appointmentColumns = `a.id, a.user_id, a.timeslot_id, a.service_id, a.pricing_id, a.status, a.reminder_sent_at, a.created_at, a.updated_at`

const detailSelect = `SELECT ` + appointmentColumns + `,
       u.email, u.full_name, s.business_id, s.name, p.price, p.currency, t.starts_at, t.ends_at
  FROM appointments a
  JOIN users u     ON u.id = a.user_id
  JOIN services s  ON s.id = a.service_id
  JOIN pricing p   ON p.id = a.pricing_id
  JOIN timeslots t ON t.id = a.timeslot_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner, a *model.Appointment, extra ...any) error {
	var reminder sql.NullTime
	dest := append([]any{&a.ID, &a.UserID, &a.TimeslotID, &a.ServiceID, &a.PricingID, &a.Status, &reminder, &a.CreatedAt, &a.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	a.ReminderSentAt = nullTime(reminder)
	return nil
}

func scanDetail(row rowScanner) (*model.AppointmentDetail, error) {
	var d model.AppointmentDetail
	err := scanAppointment(row, &d.Appointment,
		&d.UserEmail, &d.UserName, &d.BusinessID, &d.ServiceName, &d.Price, &d.Currency, &d.SlotStartsAt, &d.SlotEndsAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateTx inserts a new appointment.  The insert itself is the availability
// check: if another active appointment holds the timeslot the unique index
// rejects it and ErrConflict is returned.
func (r *AppointmentRepo) CreateTx(ctx context.Context, tx *sql.Tx, a *model.Appointment) error {
	now := time.Now().UTC().Truncate(time.Second)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO appointments (id, user_id, timeslot_id, service_id, pricing_id, status, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		a.ID, a.UserID, a.TimeslotID, a.ServiceID, a.PricingID, a.Status, now, now)
	if err != nil {
		return conflictOnDuplicate(err, "timeslot %d is already booked", a.TimeslotID)
	}
	a.CreatedAt, a.UpdatedAt = now, now
	return nil
}

// GetForUpdateTx loads an appointment and locks its row until tx ends.
func (r *AppointmentRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.Appointment, error) {
	var a model.Appointment
	row := tx.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments a WHERE a.id=? FOR UPDATE`, id)
	if err := scanAppointment(row, &a); err != nil {
		return nil, notFound(err, "appointment %s", id)
	}
	return &a, nil
}

// SetStatusTx writes a new status; callers hold the row lock from
// GetForUpdateTx.  Moving back into an active status can collide with a
// newer booking of the same slot, reported as ErrConflict.
func (r *AppointmentRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id string, status model.AppointmentStatus) error {
	_, err := tx.ExecContext(ctx, `UPDATE appointments SET status=?, updated_at=? WHERE id=?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return conflictOnDuplicate(err, "timeslot of appointment %s is held by another booking", id)
	}
	return nil
}

// DeleteTx removes an appointment.  Ledger rows keep its id.
func (r *AppointmentRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM appointments WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("appointment %s", id)
	}
	return nil
}

// Detail returns the appointment joined with its customer, service, price
// and timeslot.
func (r *AppointmentRepo) Detail(ctx context.Context, id string) (*model.AppointmentDetail, error) {
	d, err := scanDetail(r.db.QueryRowContext(ctx, detailSelect+` WHERE a.id=?`, id))
	if err != nil {
		return nil, notFound(err, "appointment %s", id)
	}
	return d, nil
}

// ListByUser returns a customer's appointments, newest slot first.
func (r *AppointmentRepo) ListByUser(ctx context.Context, userID uint64) ([]model.AppointmentDetail, error) {
	return r.listDetails(ctx, detailSelect+` WHERE a.user_id=? ORDER BY t.starts_at DESC`, userID)
}

// ListByBusiness returns the appointments booked against a business's
// services, optionally filtered by status.
func (r *AppointmentRepo) ListByBusiness(ctx context.Context, businessID uint64, status model.AppointmentStatus) ([]model.AppointmentDetail, error) {
	if status != "" {
		return r.listDetails(ctx, detailSelect+` WHERE s.business_id=? AND a.status=? ORDER BY t.starts_at`, businessID, status)
	}
	return r.listDetails(ctx, detailSelect+` WHERE s.business_id=? ORDER BY t.starts_at`, businessID)
}

// DueReminders lists confirmed appointments starting in [from, to) whose
// reminder has not been sent yet.
func (r *AppointmentRepo) DueReminders(ctx context.Context, from, to time.Time, limit int) ([]model.AppointmentDetail, error) {
	return r.listDetails(ctx, detailSelect+`
		WHERE a.status=? AND a.reminder_sent_at IS NULL AND t.starts_at >= ? AND t.starts_at < ?
		ORDER BY t.starts_at LIMIT ?`,
		model.AppointmentConfirmed, from.UTC(), to.UTC(), limit)
}

// ClaimReminder marks the reminder as sent.  It returns false when another
// worker claimed it first.
func (r *AppointmentRepo) ClaimReminder(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE appointments SET reminder_sent_at=? WHERE id=? AND reminder_sent_at IS NULL`,
		time.Now().UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *AppointmentRepo) listDetails(ctx context.Context, q string, args ...any) ([]model.AppointmentDetail, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.AppointmentDetail{}
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}
