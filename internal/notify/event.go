// Package notify carries appointment and payment events from the services
// to the people involved.  Services publish an Event to a RabbitMQ topic
// exchange after their database transaction commits; the worker consumes
// it, records a Notification row and hands the rendered message to a Sink.
package notify

import (
	"time"

	"github.com/iliyamo/easybook/internal/model"
)

// Event is the message published for every notifiable transition.  It is
// self-contained so the consumer never reads rows that may have been
// deleted in the meantime.
type Event struct {
	Kind          model.NotificationKind `json:"kind"`
	UserID        uint64                 `json:"user_id"`
	Email         string                 `json:"email"`
	Name          string                 `json:"name,omitempty"`
	AppointmentID string                 `json:"appointment_id,omitempty"`
	ServiceName   string                 `json:"service_name,omitempty"`
	StartsAt      time.Time              `json:"starts_at"`
	EndsAt        time.Time              `json:"ends_at"`
	Amount        string                 `json:"amount,omitempty"`
	Currency      string                 `json:"currency,omitempty"`
	Reference     string                 `json:"reference,omitempty"`
	Reason        string                 `json:"reason,omitempty"`
	OccurredAt    time.Time              `json:"occurred_at"`
}

// EventFromDetail builds an event addressed to the appointment's customer.
func EventFromDetail(kind model.NotificationKind, d *model.AppointmentDetail) Event {
	return Event{
		Kind:          kind,
		UserID:        d.UserID,
		Email:         d.UserEmail,
		Name:          d.UserName,
		AppointmentID: d.ID,
		ServiceName:   d.ServiceName,
		StartsAt:      d.SlotStartsAt,
		EndsAt:        d.SlotEndsAt,
		Amount:        model.FormatMoney(d.Price),
		Currency:      d.Currency,
		OccurredAt:    time.Now().UTC(),
	}
}

// RoutingKey is the topic an event is published under.
func RoutingKey(kind model.NotificationKind) string {
	return "notification." + string(kind)
}

// BindingKey matches every notification topic.
const BindingKey = "notification.#"
