package model

import "time"

// Roles carried in the JWT "role" claim.
const (
	RoleCustomer = "CUSTOMER"
	RoleBusiness = "BUSINESS"
)

// User represents a row of the users table.  Customers book appointments;
// businesses publish services and timeslots and receive payouts.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique, lower-cased email address.
//  PasswordHash – bcrypt hashed password.
//  Role         – CUSTOMER or BUSINESS.
//  FullName     – display name used in notifications.
//  Phone        – optional contact number.
//  IsActive     – whether the account may sign in.
type User struct {
	ID           uint64
	Email        string
	PasswordHash string
	Role         string
	FullName     string
	Phone        string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshToken models an entry in the refresh_tokens table.  Only the
// SHA-256 hash of the token is stored.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}
