package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// ErrAlreadyExists is returned by CreateEmpty when a snapshot file is already
// present. The caller should restore from it instead.
var ErrAlreadyExists = errors.New("snapshot already exists")

// Store is the in-memory relational store.
type Store struct {
	db *sqlx.DB
}

// New opens an empty in-memory database with no schema. It is the target for
// a snapshot restore.
func New(ctx context.Context) (*Store, error) {
	// A unique name keeps separate stores in one process apart.
	dsn := fmt.Sprintf("file:orderkeep-%s?mode=memory", uuid.NewString())

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The database exists only while its connection is open, so the pool
	// must hold exactly one connection and never recycle it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	return &Store{db: db}, nil
}

// CreateEmpty creates a store with a fresh schema for a first run.
// It refuses with ErrAlreadyExists when snapshotPath already holds a
// snapshot, so prior data is never silently replaced.
func CreateEmpty(ctx context.Context, snapshotPath string) (*Store, error) {
	if _, err := os.Stat(snapshotPath); err == nil {
		return nil, fmt.Errorf("create store: %s: %w", snapshotPath, ErrAlreadyExists)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("create store: %w", err)
	}

	s, err := New(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	return s, nil
}

// Close closes the database. The in-memory data is gone afterwards.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying connection for the snapshot codec.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Update runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise, so a failed merge leaves no rows.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA encoding = 'UTF-8'",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.Get(&value, fmt.Sprintf("PRAGMA %s", name)); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
