package model

import "time"

// NotificationKind names the event a notification is about.
type NotificationKind string

const (
	KindAppointmentCreated   NotificationKind = "appointment_created"
	KindAppointmentConfirmed NotificationKind = "appointment_confirmed"
	KindAppointmentUpdated   NotificationKind = "appointment_updated"
	KindAppointmentCancelled NotificationKind = "appointment_cancelled"
	KindAppointmentReminder  NotificationKind = "appointment_reminder"
	KindPaymentFailed        NotificationKind = "payment_failed"
	KindPaymentRefunded      NotificationKind = "payment_refunded"
)

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// Notification mirrors the notifications table.
type Notification struct {
	ID          uint64             `json:"id"`
	UserID      uint64             `json:"user_id"`
	Kind        NotificationKind   `json:"kind"`
	Subject     string             `json:"subject"`
	Message     string             `json:"message"`
	HTMLMessage string             `json:"-"`
	Status      NotificationStatus `json:"status"`
	ScheduledAt time.Time          `json:"scheduled_at"`
	SentAt      *time.Time         `json:"sent_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// NotificationPreference controls whether a user receives email and where
// it goes.  An empty Email means the account email.
type NotificationPreference struct {
	UserID       uint64    `json:"user_id"`
	EmailEnabled bool      `json:"email_enabled"`
	Email        string    `json:"email"`
	UpdatedAt    time.Time `json:"updated_at"`
}
