package model

import "time"

// Service is something a business offers for booking.
type Service struct {
	ID          uint64    `json:"id"`
	BusinessID  uint64    `json:"business_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Pricing is a price option of exactly one service.  Once a transaction
// references it the price is frozen.
type Pricing struct {
	ID          uint64    `json:"id"`
	ServiceID   uint64    `json:"service_id"`
	Price       Money     `json:"price"`
	Currency    string    `json:"currency"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Timeslot is a bookable window published by a business.
type Timeslot struct {
	ID         uint64    `json:"id"`
	BusinessID uint64    `json:"business_id"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
	CreatedAt  time.Time `json:"created_at"`
}
