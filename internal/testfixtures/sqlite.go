package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/slot-booking/internal/persistence"
	"github.com/example/slot-booking/internal/persistence/sqlite"
)

// SQLiteHarness provides a migrated SQLite document store in a temporary
// directory for integration-style tests.
type SQLiteHarness struct {
	Store    *sqlite.Store
	Database *persistence.Database
	Path     string

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness. Callers may optionally invoke
// Close, but the helper also registers a cleanup callback with tb.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "slotbook.db")

	store, err := sqlite.Open(sqlite.DefaultConfig(path))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Store:    store,
		Database: persistence.NewDatabase(store),
		Path:     path,
		cleanup: func() {
			_ = store.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
