package application

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of account roles.
type Role int

const (
	// RoleMember is a regular company account.
	RoleMember Role = iota + 1
	// RoleAdmin may generate slots and act on any company's reservations.
	RoleAdmin
)

// ParseRole accepts the stored and historical spellings of a role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, nil
	case "member", "user":
		return RoleMember, nil
	}
	return 0, fmt.Errorf("application: unknown role %q", s)
}

// String returns the canonical persisted spelling.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleMember:
		return "member"
	}
	return "unknown"
}

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID  string
	Company string
	Role    Role
}

// IsAdmin reports whether the principal holds the administrator role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// PrincipalFor builds the principal acting as user.
func PrincipalFor(user User) Principal {
	return Principal{UserID: user.ID, Company: user.Company, Role: user.Role}
}

// User represents a company account exposed by the application services.
type User struct {
	ID        string
	Email     string
	Company   string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserCredentials pairs a user with the stored password hash.
type UserCredentials struct {
	User         User
	PasswordHash string
}

// Slot is a bookable half-hour window.
type Slot struct {
	ID        string
	Date      string
	StartTime string
	CreatedAt time.Time
}

// Reservation is one unit of a slot's capacity held by a company.
type Reservation struct {
	ID        string
	SlotID    string
	UserID    string
	Company   string
	Date      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SlotView is a slot annotated with its current occupancy.
type SlotView struct {
	Slot          Slot
	Reservations  []Reservation
	ReservedCount int
	MaxCapacity   int
	IsFull        bool
}

// ReservationWithSlot joins a reservation with the slot it occupies.
type ReservationWithSlot struct {
	Reservation Reservation
	Slot        Slot
}

// AuthenticateParams carries login input. A nil Password restores an existing
// session by email without verification.
type AuthenticateParams struct {
	Email    string
	Password *string
}

// RegisterParams carries self-service signup input.
type RegisterParams struct {
	Email    string
	Password string
	Company  string
}

// UpdateProfileParams changes the provided fields only.
type UpdateProfileParams struct {
	UserID  string
	Email   *string
	Company *string
}

// ChangePasswordParams carries password change input.
type ChangePasswordParams struct {
	UserID          string
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

// SeedUser describes an account inserted by SeedUsers.
type SeedUser struct {
	Email    string
	Password string
	Company  string
	Role     Role
}

// DemoUsers are the accounts shipped for local use.
var DemoUsers = []SeedUser{
	{Email: "admin@internal", Password: "password123", Company: "INTERNAL", Role: RoleAdmin},
	{Email: "a@company", Password: "password123", Company: "A", Role: RoleMember},
	{Email: "b@company", Password: "password123", Company: "B", Role: RoleMember},
}

// GenerateSlotsParams requests the daily grid for one date.
type GenerateSlotsParams struct {
	Principal Principal
	Date      string
}

// GenerateSlotsRangeParams requests the daily grid for every matching day of a range.
type GenerateSlotsRangeParams struct {
	Principal Principal
	From      string
	To        string
	Weekdays  []time.Weekday
}

// BookParams requests a reservation on a slot for the user's company.
type BookParams struct {
	UserID string
	SlotID string
}

// MoveParams requests moving a reservation to another slot.
type MoveParams struct {
	ActorUserID   string
	ReservationID string
	NewSlotID     string
}

// CancelParams requests removing a reservation.
type CancelParams struct {
	ActorUserID   string
	ReservationID string
}

// ViolationKind classifies a problem found by AuditCapacity.
type ViolationKind string

const (
	// ViolationOverCapacity marks a slot holding more than the maximum reservations.
	ViolationOverCapacity ViolationKind = "over_capacity"
	// ViolationMissingSlot marks a reservation whose slot does not exist.
	ViolationMissingSlot ViolationKind = "missing_slot"
	// ViolationDateMismatch marks a reservation whose date differs from its slot's date.
	ViolationDateMismatch ViolationKind = "date_mismatch"
)

// CapacityViolation describes one inconsistency in the stored state.
type CapacityViolation struct {
	Kind          ViolationKind
	SlotID        string
	ReservationID string
	Detail        string
}

// ReservationPolicy holds optional booking rules.
type ReservationPolicy struct {
	// OneBookingPerCompanyPerDay rejects a second reservation by the same company on one date.
	OneBookingPerCompanyPerDay bool
}
