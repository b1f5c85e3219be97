package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// DefaultMaxAttempts bounds how often Update re-runs a mutation after a version conflict.
const DefaultMaxAttempts = 3

// MutateFunc changes the document in place. Returning an error aborts the
// transaction and nothing is saved.
type MutateFunc func(doc *Document) error

// Database runs read-modify-write transactions over a DocumentStore.
type Database struct {
	store       DocumentStore
	locker      Locker
	maxAttempts int
	logger      *slog.Logger
}

// Option customises a Database.
type Option func(*Database)

// WithLocker replaces the default in-process lock.
func WithLocker(locker Locker) Option {
	return func(d *Database) {
		if locker != nil {
			d.locker = locker
		}
	}
}

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(d *Database) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithLogger sets the logger used for conflict diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Database) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDatabase wraps store with locking and optimistic retry.
func NewDatabase(store DocumentStore, opts ...Option) *Database {
	d := &Database{
		store:       store,
		locker:      NewLocalLocker(),
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// View loads a snapshot and passes it to fn. The snapshot is a private copy.
func (d *Database) View(ctx context.Context, fn func(doc Document) error) error {
	doc, err := d.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	return fn(doc)
}

// Update acquires the lock, loads the document, applies fn to a copy and saves
// it. A version conflict reloads and re-runs fn, up to the configured number of
// attempts, after which ErrVersionConflict is returned.
func (d *Database) Update(ctx context.Context, fn MutateFunc) error {
	release, err := d.locker.Acquire(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrLockTimeout, err)
		}
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer release()

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		current, err := d.store.Load(ctx)
		if err != nil {
			return fmt.Errorf("load document: %w", err)
		}

		working := current.Clone()
		if err := fn(&working); err != nil {
			if errors.Is(err, ErrSkipWrite) {
				return nil
			}
			return err
		}
		working.Version = current.Version

		if _, err := d.store.Save(ctx, working); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				d.logger.WarnContext(ctx, "document version conflict",
					"attempt", attempt,
					"max_attempts", d.maxAttempts,
					"version", current.Version,
				)
				continue
			}
			return fmt.Errorf("save document: %w", err)
		}
		return nil
	}

	return ErrVersionConflict
}
