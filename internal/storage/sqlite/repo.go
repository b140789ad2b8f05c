// Package sqlite implements the properties sink on SQLite via the pure-Go
// modernc driver.
//
// The DSN is a file path (or a file: URI), which makes this backend the
// cheapest way to run the pipeline locally and to exercise real SQL in
// tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"primesquare/internal/storage"
)

// insertChunk keeps each multi-row INSERT under SQLite's variable limit.
const insertChunk = 500

// Repo implements storage.Repository for SQLite.
type Repo struct {
	db    *sql.DB
	table string
}

func init() {
	storage.Register("sqlite", New)
}

// New opens (creating if needed) the SQLite database at cfg.DSN.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db, table: cfg.Table}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// Replace makes rows the entire content of the destination table inside one
// transaction.
func (r *Repo) Replace(ctx context.Context, columns []string, rows [][]any) error {
	if len(columns) == 0 {
		return fmt.Errorf("sqlite: replace %s: no columns", r.table)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, dropTableSQL(r.table)); err != nil {
		return fmt.Errorf("drop table %s: %w", r.table, err)
	}
	if _, err := tx.ExecContext(ctx, createTableSQL(r.table, columns, false)); err != nil {
		return fmt.Errorf("create table %s: %w", r.table, err)
	}
	if err := insertRowsTx(ctx, tx, r.table, columns, rows); err != nil {
		return err
	}
	return tx.Commit()
}

// Append adds rows, creating the table when absent.
func (r *Repo) Append(ctx context.Context, columns []string, rows [][]any) error {
	if len(columns) == 0 {
		return fmt.Errorf("sqlite: append %s: no columns", r.table)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createTableSQL(r.table, columns, true)); err != nil {
		return fmt.Errorf("create table %s: %w", r.table, err)
	}
	if err := insertRowsTx(ctx, tx, r.table, columns, rows); err != nil {
		return err
	}
	return tx.Commit()
}

func insertRowsTx(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) error {
	for start := 0; start < len(rows); start += insertChunk {
		end := start + insertChunk
		if end > len(rows) {
			end = len(rows)
		}
		stmt, args := buildInsertSQL(table, columns, rows[start:end])
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	return nil
}

// buildInsertSQL constructs a single multi-row INSERT and its args.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	colList := make([]string, 0, len(columns))
	for _, c := range columns {
		colList = append(colList, sqlIdent(c))
	}
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(colList, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		args = append(args, row...)
	}
	return b.String(), args
}

// createTableSQL renders the landing table DDL with TEXT affinity for every
// column.
func createTableSQL(table string, columns []string, ifNotExists bool) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = sqlIdent(c) + " TEXT"
	}

	create := "CREATE TABLE "
	if ifNotExists {
		create = "CREATE TABLE IF NOT EXISTS "
	}
	return fmt.Sprintf("%s%s (%s);", create, sqlIdent(table), strings.Join(defs, ", "))
}

func dropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + sqlIdent(table) + ";"
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
