package model

import "time"

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	AppointmentPending        AppointmentStatus = "PENDING"
	AppointmentPaymentPending AppointmentStatus = "PAYMENT_PENDING"
	AppointmentConfirmed      AppointmentStatus = "CONFIRMED"
	AppointmentPaymentFailed  AppointmentStatus = "PAYMENT_FAILED"
	AppointmentCanceled       AppointmentStatus = "CANCELED"
	AppointmentRefunded       AppointmentStatus = "REFUNDED"
)

// transitions lists the allowed moves.  PAYMENT_FAILED -> CONFIRMED only
// happens when the processor settles a charge after the session was
// reported as failed; the money is captured, so the ledger must follow.
var transitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentPending:        {AppointmentPaymentPending, AppointmentPaymentFailed, AppointmentCanceled},
	AppointmentPaymentPending: {AppointmentConfirmed, AppointmentPaymentFailed},
	AppointmentPaymentFailed:  {AppointmentConfirmed},
	AppointmentConfirmed:      {AppointmentCanceled, AppointmentRefunded},
}

// Active reports whether an appointment in this state holds its timeslot.
// The database mirrors this set in the active_timeslot_id generated column.
func (s AppointmentStatus) Active() bool {
	switch s {
	case AppointmentPending, AppointmentPaymentPending, AppointmentConfirmed:
		return true
	}
	return false
}

// CanTransition reports whether s may move to next.
func (s AppointmentStatus) CanTransition(next AppointmentStatus) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentPending, AppointmentPaymentPending, AppointmentConfirmed,
		AppointmentPaymentFailed, AppointmentCanceled, AppointmentRefunded:
		return true
	}
	return false
}

// Appointment mirrors the appointments table.
type Appointment struct {
	ID             string            `json:"id"` // UUID
	UserID         uint64            `json:"user_id"`
	TimeslotID     uint64            `json:"timeslot_id"`
	ServiceID      uint64            `json:"service_id"`
	PricingID      uint64            `json:"pricing_id"`
	Status         AppointmentStatus `json:"status"`
	ReminderSentAt *time.Time        `json:"reminder_sent_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// AppointmentDetail joins an appointment with the data needed to charge for
// it and to describe it in notifications.  It is also the snapshot captured
// before an appointment is deleted.
type AppointmentDetail struct {
	Appointment
	UserEmail    string    `json:"user_email"`
	UserName     string    `json:"user_name"`
	BusinessID   uint64    `json:"business_id"`
	ServiceName  string    `json:"service_name"`
	Price        Money     `json:"price"`
	Currency     string    `json:"currency"`
	SlotStartsAt time.Time `json:"starts_at"`
	SlotEndsAt   time.Time `json:"ends_at"`
}

// BookingContext is what a booking request is validated against, loaded in
// the same database transaction as the insert.
type BookingContext struct {
	Timeslot Timeslot
	Service  Service
	Pricing  Pricing
}
