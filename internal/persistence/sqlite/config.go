package sqlite

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds SQLite-specific connection settings.
type Config struct {
	// DSN is the database file path or a "file:" URI.
	DSN string
	// BusyTimeout sets how long SQLite waits on a locked database file.
	BusyTimeout time.Duration
	// JournalMode sets the journal mode (WAL, DELETE, ...). Empty leaves the default.
	JournalMode string
	// Synchronous sets the synchronous mode (FULL, NORMAL, OFF). Empty leaves the default.
	Synchronous string
}

// DefaultConfig returns settings suitable for a single-file deployment.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:         dsn,
		BusyTimeout: 5 * time.Second,
		JournalMode: "WAL",
		Synchronous: "NORMAL",
	}
}

func (c Config) validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return errors.New("sqlite: dsn is required")
	}
	if c.BusyTimeout < 0 {
		return errors.New("sqlite: busy timeout must not be negative")
	}
	return nil
}

func (c Config) pragmas() []string {
	out := []string{fmt.Sprintf("PRAGMA busy_timeout = %d", c.BusyTimeout.Milliseconds())}
	if c.JournalMode != "" && !c.inMemory() {
		out = append(out, "PRAGMA journal_mode = "+c.JournalMode)
	}
	if c.Synchronous != "" {
		out = append(out, "PRAGMA synchronous = "+c.Synchronous)
	}
	return out
}

func (c Config) inMemory() bool {
	return c.DSN == ":memory:" || strings.Contains(c.DSN, "mode=memory")
}

// filePath extracts the on-disk path from the DSN, or "" for in-memory databases.
func (c Config) filePath() string {
	if c.inMemory() {
		return ""
	}
	path := strings.TrimPrefix(c.DSN, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path
}

func (c Config) ensureDir() error {
	path := c.filePath()
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("sqlite: create database directory %s: %w", dir, err)
	}
	return nil
}
