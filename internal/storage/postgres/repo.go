// Package postgres implements the properties sink on PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"primesquare/internal/storage"
)

// insertChunk bounds the multi-row VALUES size. 15 columns per row keeps the
// parameter count well under the protocol limit of 65535.
const insertChunk = 1000

// Repo implements storage.Repository for PostgreSQL.
type Repo struct {
	pool  *pgxpool.Pool
	table string
}

// New creates a PostgreSQL-backed Repo and verifies connectivity, so a bad
// DSN fails the run before any extraction work happens.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool, table: cfg.Table}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() { r.pool.Close() }

// Replace makes rows the entire content of the destination table. Drop,
// create and inserts run in one transaction so a failed run cannot leave a
// half-replaced table.
func (r *Repo) Replace(ctx context.Context, columns []string, rows [][]any) error {
	if len(columns) == 0 {
		return fmt.Errorf("postgres: replace %s: no columns", r.table)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if schemaSQL := createSchemaSQL(r.table); schemaSQL != "" {
		if _, err := tx.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema for %s: %w", r.table, err)
		}
	}
	if _, err := tx.Exec(ctx, dropTableSQL(r.table)); err != nil {
		return fmt.Errorf("drop table %s: %w", r.table, err)
	}
	if _, err := tx.Exec(ctx, createTableSQL(r.table, columns, false)); err != nil {
		return fmt.Errorf("create table %s: %w", r.table, err)
	}
	if err := insertRowsTx(ctx, tx, r.table, columns, rows); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Append adds rows to the destination table, creating it when absent.
func (r *Repo) Append(ctx context.Context, columns []string, rows [][]any) error {
	if len(columns) == 0 {
		return fmt.Errorf("postgres: append %s: no columns", r.table)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if schemaSQL := createSchemaSQL(r.table); schemaSQL != "" {
		if _, err := tx.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema for %s: %w", r.table, err)
		}
	}
	if _, err := tx.Exec(ctx, createTableSQL(r.table, columns, true)); err != nil {
		return fmt.Errorf("create table %s: %w", r.table, err)
	}
	if err := insertRowsTx(ctx, tx, r.table, columns, rows); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertRowsTx(ctx context.Context, tx pgx.Tx, table string, columns []string, rows [][]any) error {
	for start := 0; start < len(rows); start += insertChunk {
		end := start + insertChunk
		if end > len(rows) {
			end = len(rows)
		}
		sql, args := buildInsertSQL(table, columns, rows[start:end])
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	return nil
}

// buildInsertSQL constructs a single multi-row INSERT and its args.
//
// It is pure and deterministic, so placeholder numbering can be unit tested
// without a database. Every row must have the same length as columns.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgTableIdent(table))
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	b.WriteString(";")
	return b.String(), args
}

// createTableSQL renders the landing table DDL. Every column is TEXT: values
// arrive as artifact strings and NULLs, and typing stays with the artifact's
// consumers.
func createTableSQL(table string, columns []string, ifNotExists bool) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = pgIdent(c) + " TEXT"
	}

	create := "CREATE TABLE "
	if ifNotExists {
		create = "CREATE TABLE IF NOT EXISTS "
	}
	return fmt.Sprintf("%s%s (%s);", create, pgTableIdent(table), strings.Join(defs, ", "))
}

func dropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + pgTableIdent(table) + ";"
}

// createSchemaSQL returns a CREATE SCHEMA statement when table is
// schema-qualified, or "" when it is not.
func createSchemaSQL(table string) string {
	schema, _ := splitQualifiedName(table)
	if schema == "" {
		return ""
	}
	return fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s;", pgIdent(schema))
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// pgTableIdent quotes a possibly schema-qualified name:
// "public.properties_data" -> "public"."properties_data".
func pgTableIdent(name string) string {
	schema, table := splitQualifiedName(name)
	if schema == "" {
		return pgIdent(table)
	}
	return pgIdent(schema) + "." + pgIdent(table)
}

// splitQualifiedName splits a schema-qualified name into (schema, table).
// It only handles a single dot; anything else is treated as unqualified.
func splitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}
