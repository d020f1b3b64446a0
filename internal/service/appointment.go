package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/easybook/internal/apperr"
	"github.com/iliyamo/easybook/internal/model"
	"github.com/iliyamo/easybook/internal/notify"
	"github.com/iliyamo/easybook/internal/repository"
)

// AppointmentService books, cancels and deletes appointments.
type AppointmentService struct {
	store    AppointmentStore
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewAppointmentService(store AppointmentStore, notifier Notifier, log *zap.Logger) *AppointmentService {
	return &AppointmentService{store: store, notifier: notifier, log: log, now: time.Now}
}

// BookRequest asks for one timeslot at one price of one service.
type BookRequest struct {
	UserID     uint64
	TimeslotID uint64
	ServiceID  uint64
	PricingID  uint64
}

// Book creates a PENDING appointment.  When another active appointment holds
// the timeslot the insert is rejected and apperr.ErrConflict returned.
func (s *AppointmentService) Book(ctx context.Context, req BookRequest) (*model.AppointmentDetail, error) {
	if req.UserID == 0 || req.TimeslotID == 0 || req.ServiceID == 0 || req.PricingID == 0 {
		return nil, apperr.Validation("timeslot_id, service_id and pricing_id are required")
	}
	a := &model.Appointment{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		TimeslotID: req.TimeslotID,
		ServiceID:  req.ServiceID,
		PricingID:  req.PricingID,
		Status:     model.AppointmentPending,
	}
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		bc, err := tx.BookingContext(ctx, req.TimeslotID, req.ServiceID, req.PricingID)
		if err != nil {
			return err
		}
		if bc.Pricing.ServiceID != bc.Service.ID {
			return apperr.Validation("pricing %d does not belong to service %d", bc.Pricing.ID, bc.Service.ID)
		}
		if bc.Timeslot.BusinessID != bc.Service.BusinessID {
			return apperr.Validation("timeslot %d is not offered by the business of service %d", bc.Timeslot.ID, bc.Service.ID)
		}
		if !bc.Timeslot.StartsAt.After(s.now()) {
			return apperr.Validation("timeslot %d has already started", bc.Timeslot.ID)
		}
		return tx.InsertAppointment(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	d, err := s.store.AppointmentDetail(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	s.log.Info("appointment booked", zap.String("appointment_id", a.ID), zap.Uint64("timeslot_id", a.TimeslotID))
	dispatch(ctx, s.notifier, s.log, notify.EventFromDetail(model.KindAppointmentCreated, d))
	return d, nil
}

// Get returns an appointment visible to viewer: its customer or the
// business that offers the service.
func (s *AppointmentService) Get(ctx context.Context, viewer uint64, id string) (*model.AppointmentDetail, error) {
	d, err := s.store.AppointmentDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.UserID != viewer && d.BusinessID != viewer {
		return nil, apperr.Forbidden("appointment %s belongs to another user", id)
	}
	return d, nil
}

func (s *AppointmentService) ListForCustomer(ctx context.Context, userID uint64) ([]model.AppointmentDetail, error) {
	return s.store.UserAppointments(ctx, userID)
}

// ListForBusiness lists appointments against a business's services; an
// empty status means all.
func (s *AppointmentService) ListForBusiness(ctx context.Context, businessID uint64, status model.AppointmentStatus) ([]model.AppointmentDetail, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.Validation("unknown status %q", status)
	}
	return s.store.BusinessAppointments(ctx, businessID, status)
}

// Cancel moves a PENDING or CONFIRMED appointment to CANCELED, releasing
// its timeslot.
func (s *AppointmentService) Cancel(ctx context.Context, userID uint64, id string) (*model.AppointmentDetail, error) {
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		a, err := tx.LockAppointment(ctx, id)
		if err != nil {
			return err
		}
		if a.UserID != userID {
			return apperr.Forbidden("appointment %s belongs to another user", id)
		}
		if !a.Status.CanTransition(model.AppointmentCanceled) {
			return apperr.Conflict("appointment in status %s cannot be cancelled", a.Status)
		}
		return tx.SetAppointmentStatus(ctx, id, model.AppointmentCanceled)
	})
	if err != nil {
		return nil, err
	}

	d, err := s.store.AppointmentDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	s.log.Info("appointment cancelled", zap.String("appointment_id", id))
	dispatch(ctx, s.notifier, s.log, notify.EventFromDetail(model.KindAppointmentCancelled, d))
	return d, nil
}

// Delete removes an appointment in any state.  The detail is captured first
// so the cancellation notice can still describe it; payment rows keep the
// appointment id.
func (s *AppointmentService) Delete(ctx context.Context, userID uint64, id string) error {
	snapshot, err := s.store.AppointmentDetail(ctx, id)
	if err != nil {
		return err
	}
	if snapshot.UserID != userID {
		return apperr.Forbidden("appointment %s belongs to another user", id)
	}
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.LockAppointment(ctx, id); err != nil {
			return err
		}
		return tx.DeleteAppointment(ctx, id)
	})
	if err != nil {
		return err
	}

	s.log.Info("appointment deleted", zap.String("appointment_id", id), zap.String("status", string(snapshot.Status)))
	ev := notify.EventFromDetail(model.KindAppointmentCancelled, snapshot)
	ev.Reason = "the appointment was deleted"
	dispatch(ctx, s.notifier, s.log, ev)
	return nil
}
