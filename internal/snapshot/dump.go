// Package snapshot converts a store to and from its durable form: a SQL
// script, encrypted into a Fernet token, gzipped into one file.
//
// The script is a flat list of statements separated by ';'. Schema comes
// first, then every row in table creation order and rowid order, wrapped in
// BEGIN TRANSACTION / COMMIT. Restore splits on ';' and replays each
// fragment, so no statement may contain a raw ';'. Text values containing
// one are written as 'a'||char(59)||'b'.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/orderkeep/internal/store"
)

const (
	beginStmt  = "BEGIN TRANSACTION"
	commitStmt = "COMMIT"
)

type schemaObject struct {
	Type string `db:"type"`
	Name string `db:"name"`
	SQL  string `db:"sql"`
}

// Dump renders the whole store as a replayable script.
func Dump(ctx context.Context, st *store.Store) ([]byte, error) {
	db := st.DB()

	var objects []schemaObject
	if err := db.SelectContext(ctx, &objects, `
		SELECT type, name, sql FROM sqlite_master
		WHERE sql NOT NULL AND type IN ('table', 'index', 'trigger', 'view')
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY rowid ASC
	`); err != nil {
		return nil, fmt.Errorf("dump: read schema: %w", err)
	}

	var buf bytes.Buffer
	writeStmt(&buf, beginStmt)

	var tables []string
	for _, obj := range objects {
		if strings.Contains(obj.SQL, ";") {
			return nil, fmt.Errorf("dump: %s %q: schema text contains ';'", obj.Type, obj.Name)
		}
		writeStmt(&buf, obj.SQL)
		if obj.Type == "table" {
			tables = append(tables, obj.Name)
		}
	}

	for _, table := range tables {
		if err := dumpTable(ctx, db, table, &buf); err != nil {
			return nil, err
		}
	}

	writeStmt(&buf, commitStmt)
	return buf.Bytes(), nil
}

// dumpTable appends one INSERT per row of table, in rowid order.
// Values are rendered by SQLite's quote() so they replay byte-for-byte.
func dumpTable(ctx context.Context, db *sqlx.DB, table string, buf *bytes.Buffer) error {
	var columns []string
	if err := db.SelectContext(ctx, &columns, `SELECT name FROM pragma_table_info(?) ORDER BY cid`, table); err != nil {
		return fmt.Errorf("dump: columns of %s: %w", table, err)
	}
	if len(columns) == 0 {
		return nil
	}

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = "quote(" + quoteIdent(col) + ")"
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid ASC", strings.Join(quoted, ", "), quoteIdent(table))

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("dump: rows of %s: %w", table, err)
	}
	defer rows.Close()

	values := make([]string, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("dump: scan %s: %w", table, err)
		}
		for i, v := range values {
			values[i] = escapeDelimiter(v)
		}
		writeStmt(buf, fmt.Sprintf("INSERT INTO %s VALUES(%s)", quoteIdent(table), strings.Join(values, ",")))
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("dump: iterate %s: %w", table, err)
	}
	return nil
}

func writeStmt(buf *bytes.Buffer, stmt string) {
	buf.WriteString(stmt)
	buf.WriteString(";\n")
}

// escapeDelimiter rewrites ';' inside a quoted text literal as a char(59)
// concatenation. Numbers, NULL and blob literals never contain ';'.
func escapeDelimiter(literal string) string {
	if !strings.HasPrefix(literal, "'") || !strings.Contains(literal, ";") {
		return literal
	}
	return strings.ReplaceAll(literal, ";", "'||char(59)||'")
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
