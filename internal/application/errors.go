package application

import (
	"errors"
	"fmt"

	"github.com/example/slot-booking/internal/persistence"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrDuplicateEmail is returned when an email address is already registered.
	ErrDuplicateEmail = errors.New("application: email already registered")
	// ErrSlotFull is returned when a slot already holds the maximum reservations.
	ErrSlotFull = errors.New("application: slot is full")
	// ErrInvalidCredentials is returned when a password does not verify.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrMismatch is returned when a new password and its confirmation differ.
	ErrMismatch = errors.New("application: password confirmation does not match")
	// ErrDataIntegrity is returned when stored records reference each other inconsistently.
	ErrDataIntegrity = errors.New("application: data integrity violation")
	// ErrCompanyDailyLimit is returned when the company already holds a reservation on the date.
	ErrCompanyDailyLimit = errors.New("application: company already has a reservation on this date")
	// ErrConflict is returned when the store stayed contended after retries.
	ErrConflict = errors.New("application: concurrent modification")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

func fieldError(field, message string) *ValidationError {
	vErr := &ValidationError{}
	vErr.add(field, message)
	return vErr
}

// mapStoreError translates persistence failures into application errors.
// Domain errors raised inside a transaction pass through unchanged.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrVersionConflict), errors.Is(err, persistence.ErrLockTimeout):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
