package persistence

import "context"

// DocumentStore loads and saves the booking document as a unit.
type DocumentStore interface {
	// Load returns the current document. A store that has never been written
	// returns an empty document with Version 0.
	Load(ctx context.Context) (Document, error)
	// Save overwrites the document if the stored version still equals doc.Version
	// and returns the document carrying its new version. Otherwise it returns
	// ErrVersionConflict and leaves the stored document untouched.
	Save(ctx context.Context, doc Document) (Document, error)
}

// Locker serializes read-modify-write cycles on the document.
type Locker interface {
	// Acquire blocks until the lock is held or ctx is done. The returned release
	// function must be called exactly once.
	Acquire(ctx context.Context) (release func(), err error)
}
