package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/orderkeep/internal/store"
)

var (
	// ErrNotEmpty is returned when restoring into a store that already has a schema.
	ErrNotEmpty = errors.New("restore target is not empty")

	// ErrReplay is wrapped by every failed replay. The target store is in an
	// undefined state afterwards and must be discarded.
	ErrReplay = errors.New("snapshot replay failed")
)

// foreignKeyViolation is one row of PRAGMA foreign_key_check.
type foreignKeyViolation struct {
	Table  string `db:"table"`
	RowID  *int64 `db:"rowid"`
	Parent string `db:"parent"`
	FKID   int64  `db:"fkid"`
}

// Restore replays script into st, which must be freshly created by store.New.
//
// Foreign keys are off during replay because older snapshots list tables
// by name rather than by dependency. Integrity is checked once at the end.
func Restore(ctx context.Context, st *store.Store, script []byte) error {
	db := st.DB()

	var objects int
	if err := db.GetContext(ctx, &objects, `SELECT COUNT(*) FROM sqlite_master`); err != nil {
		return fmt.Errorf("restore: inspect target: %w", err)
	}
	if objects > 0 {
		return ErrNotEmpty
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	for i, fragment := range Statements(script) {
		if _, err := db.ExecContext(ctx, fragment); err != nil {
			return fmt.Errorf("%w: statement %d: %s: %v", ErrReplay, i+1, abbreviate(fragment), err)
		}
	}

	var violations []foreignKeyViolation
	if err := db.SelectContext(ctx, &violations, "PRAGMA foreign_key_check"); err != nil {
		return fmt.Errorf("%w: foreign key check: %v", ErrReplay, err)
	}
	if len(violations) > 0 {
		v := violations[0]
		return fmt.Errorf("%w: %d foreign key violations, first in %s referencing %s", ErrReplay, len(violations), v.Table, v.Parent)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	return nil
}

// Statements splits a script on ';' and returns the non-blank fragments in
// order, trimmed of surrounding whitespace.
func Statements(script []byte) []string {
	parts := strings.Split(string(script), ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func abbreviate(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:57] + "..."
	}
	return s
}
