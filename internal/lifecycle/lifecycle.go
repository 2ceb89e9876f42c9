// Package lifecycle owns one process run against a snapshot file: it opens
// the store by restoring the snapshot (or starts empty), hands the store to
// the caller and writes a full snapshot back on Close.
//
// Close is the only write path to disk. Callers defer it right after Open so
// that orders committed in memory survive errors and panics in the body.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/orderkeep/internal/cipher"
	"github.com/roach88/orderkeep/internal/snapshot"
	"github.com/roach88/orderkeep/internal/store"
)

// State is the position of a Session in its lifecycle.
type State int

const (
	Uninitialized State = iota
	Loaded
	Running
	Saved
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loaded:
		return "loaded"
	case Running:
		return "running"
	case Saved:
		return "saved"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("session is closed")

// Options configures Open.
type Options struct {
	// Path of the snapshot file. Created on the first Close when missing.
	Path string

	// Password for the snapshot. Distinct from the portal credentials.
	Password string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Session is one open store bound to its snapshot file.
// Concurrent processes on the same path are not detected.
type Session struct {
	path     string
	key      *cipher.Key
	store    *store.Store
	state    State
	restored bool
	logger   *slog.Logger

	closed   bool
	closeErr error
}

// Open restores the snapshot at opts.Path into a fresh store, or creates an
// empty store when no snapshot exists yet. A wrong password or a tampered
// file fails with an error wrapping cipher.ErrAuthentication; the file on
// disk is left untouched.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.Path == "" {
		return nil, errors.New("open session: snapshot path is empty")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		path:   opts.Path,
		key:    cipher.DeriveKey([]byte(opts.Password)),
		logger: logger.With("snapshot", opts.Path),
	}

	_, err := os.Stat(opts.Path)
	switch {
	case err == nil:
		st, err := restore(ctx, opts.Path, s.key)
		if err != nil {
			return nil, err
		}
		s.store = st
		s.restored = true
	case errors.Is(err, os.ErrNotExist):
		st, err := store.CreateEmpty(ctx, opts.Path)
		if err != nil {
			return nil, fmt.Errorf("open session: %w", err)
		}
		s.store = st
	default:
		return nil, fmt.Errorf("open session: %w", err)
	}

	s.state = Loaded
	s.logger.Debug("session opened", "restored", s.restored)
	return s, nil
}

func restore(ctx context.Context, path string, key *cipher.Key) (*store.Store, error) {
	script, err := snapshot.Load(path, key)
	if err != nil {
		return nil, err
	}

	st, err := store.New(ctx)
	if err != nil {
		return nil, err
	}
	if err := snapshot.Restore(ctx, st, script); err != nil {
		st.Close()
		return nil, fmt.Errorf("open session: %w", err)
	}
	return st, nil
}

// Store returns the session's store.
func (s *Session) Store() *store.Store {
	return s.store
}

// State reports where the session is in its lifecycle.
func (s *Session) State() State {
	return s.state
}

// Restored reports whether the store was loaded from an existing snapshot.
func (s *Session) Restored() bool {
	return s.restored
}

// Run calls fn with the store. Errors from fn are returned as-is and do not
// prevent Close from saving.
func (s *Session) Run(ctx context.Context, fn func(ctx context.Context, st *store.Store) error) error {
	if s.closed {
		return ErrClosed
	}
	s.state = Running
	return fn(ctx, s.store)
}

// Close dumps the store, seals it and atomically replaces the snapshot file,
// then releases the store. It runs even when ctx is already cancelled and is
// safe to call more than once; later calls return the first result.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return s.closeErr
	}
	s.closed = true
	defer s.store.Close()

	// an interrupted run must still be saved
	ctx = context.WithoutCancel(ctx)

	s.closeErr = s.save(ctx)
	if s.closeErr != nil {
		s.state = Failed
		s.logger.Error("snapshot not saved", "error", s.closeErr)
		return s.closeErr
	}
	s.state = Saved
	s.logger.Debug("snapshot saved")
	return nil
}

func (s *Session) save(ctx context.Context) error {
	script, err := snapshot.Dump(ctx, s.store)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if err := snapshot.Save(s.path, s.key, script); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}
