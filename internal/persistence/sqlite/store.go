package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/slot-booking/internal/persistence"
	_ "modernc.org/sqlite"
)

const documentName = "booking"

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	name       TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	version    INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);`

// Store persists the booking document as a single JSON row guarded by a
// version column.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ persistence.DocumentStore = (*Store)(nil)

// Open connects to the database described by cfg and applies its pragmas.
func Open(cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := cfg.ensureDir(); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// A single connection keeps pragmas and in-memory databases consistent.
	db.SetMaxOpenConns(1)

	for _, pragma := range cfg.pragmas() {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the documents table when it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Load reads the whole document. A missing row yields an empty document at version 0.
func (s *Store) Load(ctx context.Context) (persistence.Document, error) {
	var (
		body    string
		version int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT body, version FROM documents WHERE name = ?`, documentName,
	).Scan(&body, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.Document{}, nil
	}
	if err != nil {
		return persistence.Document{}, fmt.Errorf("sqlite: load document: %w", err)
	}

	var doc persistence.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return persistence.Document{}, fmt.Errorf("sqlite: decode document: %w", err)
	}
	doc.Version = version
	return doc, nil
}

// Save overwrites the document when the stored version equals doc.Version.
func (s *Store) Save(ctx context.Context, doc persistence.Document) (persistence.Document, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return persistence.Document{}, fmt.Errorf("sqlite: encode document: %w", err)
	}

	next := doc.Clone()
	next.Version = doc.Version + 1
	updatedAt := s.now().UTC().Format(time.RFC3339Nano)

	err = s.withTransaction(ctx, func(tx *sql.Tx) error {
		var current int64
		err := tx.QueryRowContext(ctx,
			`SELECT version FROM documents WHERE name = ?`, documentName,
		).Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			current = 0
		case err != nil:
			return err
		}

		if current != doc.Version {
			return persistence.ErrVersionConflict
		}

		if current == 0 {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO documents (name, body, version, updated_at) VALUES (?, ?, ?, ?)`,
				documentName, string(body), next.Version, updatedAt,
			)
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE documents SET body = ?, version = ?, updated_at = ? WHERE name = ? AND version = ?`,
			string(body), next.Version, updatedAt, documentName, doc.Version,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return persistence.ErrVersionConflict
		}
		return nil
	})
	if err != nil {
		return persistence.Document{}, mapError(err)
	}
	return next, nil
}

func (s *Store) withTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrVersionConflict) {
		return err
	}
	// A concurrent first insert from another process loses the primary key race.
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", persistence.ErrVersionConflict, err)
	}
	return fmt.Errorf("sqlite: save document: %w", err)
}
