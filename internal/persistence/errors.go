package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrVersionConflict is returned by Save when the stored document changed since it was loaded.
	ErrVersionConflict = errors.New("persistence: version conflict")
	// ErrLockTimeout is returned when the mutation lock could not be acquired in time.
	ErrLockTimeout = errors.New("persistence: lock acquisition timed out")
)

// ErrSkipWrite may be returned by an Update mutation to end the transaction
// successfully without saving. Update itself returns nil in that case.
var ErrSkipWrite = errors.New("persistence: skip write")
