// Package mssql implements the properties sink on Microsoft SQL Server.
//
// DDL is guarded with OBJECT_ID checks so Replace and Append stay idempotent
// without IF NOT EXISTS syntax. Landing columns are NVARCHAR(MAX).
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"primesquare/internal/storage"
)

// insertChunk keeps each multi-row INSERT under SQL Server's limit of 2100
// parameters per request.
const insertChunk = 100

// Repo implements storage.Repository for SQL Server.
type Repo struct {
	db    dbConn
	table string
}

// New connects using the "sqlserver" driver and verifies connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	raw.SetMaxOpenConns(4)
	raw.SetMaxIdleConns(4)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Repo{db: &sqlDB{db: raw}, table: cfg.Table}, nil
}

func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// Replace makes rows the entire content of the destination table inside one
// transaction.
func (r *Repo) Replace(ctx context.Context, columns []string, rows [][]any) error {
	if len(columns) == 0 {
		return fmt.Errorf("mssql: replace %s: no columns", r.table)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, dropTableSQL(r.table)); err != nil {
		return fmt.Errorf("mssql: drop table %s: %w", r.table, err)
	}
	if _, err := tx.ExecContext(ctx, createTableSQL(r.table, columns)); err != nil {
		return fmt.Errorf("mssql: create table %s: %w", r.table, err)
	}
	if err := insertRowsTx(ctx, tx, r.table, columns, rows); err != nil {
		return err
	}
	return tx.Commit()
}

// Append adds rows, creating the table when absent.
func (r *Repo) Append(ctx context.Context, columns []string, rows [][]any) error {
	if len(columns) == 0 {
		return fmt.Errorf("mssql: append %s: no columns", r.table)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createTableSQL(r.table, columns)); err != nil {
		return fmt.Errorf("mssql: create table %s: %w", r.table, err)
	}
	if err := insertRowsTx(ctx, tx, r.table, columns, rows); err != nil {
		return err
	}
	return tx.Commit()
}

func insertRowsTx(ctx context.Context, tx txConn, table string, columns []string, rows [][]any) error {
	for start := 0; start < len(rows); start += insertChunk {
		end := start + insertChunk
		if end > len(rows) {
			end = len(rows)
		}
		stmt, args := buildInsertSQL(table, columns, rows[start:end])
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("mssql: insert into %s: %w", table, err)
		}
	}
	return nil
}

// buildInsertSQL constructs a single multi-row INSERT with @pN placeholders.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
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
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	b.WriteString(";")
	return b.String(), args
}

// createTableSQL wraps the landing table DDL in an OBJECT_ID guard so it is
// idempotent.
func createTableSQL(table string, columns []string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = mssqlIdent(c) + " NVARCHAR(MAX)"
	}
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		sqlStringLiteral(table),
		mssqlTableIdent(table),
		strings.Join(defs, ", "),
	)
}

func dropTableSQL(table string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NOT NULL BEGIN DROP TABLE %s; END;",
		sqlStringLiteral(table),
		mssqlTableIdent(table),
	)
}

func sqlStringLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent returns a bracket-quoted identifier for schema-qualified
// names: "dbo.properties_data" -> [dbo].[properties_data].
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

// dbConn is a small interface over *sql.DB used to make this package
// testable without a SQL Server instance.
type dbConn interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error)
	PingContext(ctx context.Context) error
	Close() error
}

type txConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

// sqlDB wraps *sql.DB to implement dbConn.
type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *sqlDB) PingContext(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqlDB) Close() error { return s.db.Close() }

var _ dbConn = (*sqlDB)(nil)
