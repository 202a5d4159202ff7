//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 The RecordFlow Authors
//
// This file is part of RecordFlow.
//
// RecordFlow is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// RecordFlow is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with RecordFlow. If not, see https://www.gnu.org/licenses/.

package load

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/recordflow/recordflow/core"
)

// Package load provides the target-side collaborator: a relational loader
// that persists batches of flat records into PostgreSQL or SQL Server
// tables. One batch maps to one transaction; a bad row is rolled back to a
// savepoint and reported in the per-record outcome list, and never poisons
// the rest of the batch.

// SQLLoaderStats holds counters for one load run.
type SQLLoaderStats struct {
	RowsInserted   int64
	RowsFailed     int64
	BatchesLoaded  int64
	WriteDuration  time.Duration
	LastWriteTime  time.Time
	ConnectionTime time.Duration
}

// SQLLoaderOptions configures the SQL loader.
type SQLLoaderOptions struct {
	Dialect       string // "postgres" or "sqlserver"
	DSN           string // Driver connection string
	Table         string // Target table name
	CreateTable   bool   // Create the table from the first record's shape
	TruncateTable bool   // Truncate before the first batch
	Columns       []string

	QueryTimeout time.Duration
	MaxOpenConns int
	MaxIdleConns int
}

// SQLOption is a functional option for SQLLoaderOptions.
type SQLOption func(*SQLLoaderOptions)

// WithSQLDialect selects the target dialect.
func WithSQLDialect(dialect string) SQLOption {
	return func(opts *SQLLoaderOptions) { opts.Dialect = dialect }
}

// WithSQLDSN sets the driver connection string.
func WithSQLDSN(dsn string) SQLOption {
	return func(opts *SQLLoaderOptions) { opts.DSN = dsn }
}

// WithSQLTable sets the target table name.
func WithSQLTable(table string) SQLOption {
	return func(opts *SQLLoaderOptions) { opts.Table = table }
}

// WithSQLCreateTable creates the table from the first record's shape.
func WithSQLCreateTable(create bool) SQLOption {
	return func(opts *SQLLoaderOptions) { opts.CreateTable = create }
}

// WithSQLTruncate truncates the table before the first batch.
func WithSQLTruncate(truncate bool) SQLOption {
	return func(opts *SQLLoaderOptions) { opts.TruncateTable = truncate }
}

// WithSQLColumns fixes the column set instead of deriving it from the
// first record.
func WithSQLColumns(columns []string) SQLOption {
	return func(opts *SQLLoaderOptions) {
		opts.Columns = append([]string(nil), columns...)
	}
}

// WithSQLQueryTimeout sets the per-statement timeout.
func WithSQLQueryTimeout(timeout time.Duration) SQLOption {
	return func(opts *SQLLoaderOptions) { opts.QueryTimeout = timeout }
}

// dialect captures the syntax differences between supported targets.
type dialect struct {
	driver      string
	placeholder func(i int) string
	quote       func(ident string) string
	createTable func(table string, columnDefs []string) string
	truncate    func(table string) string
	savepoint   func(name string) string
	rollbackTo  func(name string) string
	columnType  func(value interface{}) string
}

var dialects = map[string]dialect{
	"postgres": {
		driver:      "postgres",
		placeholder: func(i int) string { return fmt.Sprintf("$%d", i) },
		quote:       func(ident string) string { return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"` },
		createTable: func(table string, defs []string) string {
			return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", "))
		},
		truncate:   func(table string) string { return "TRUNCATE TABLE " + table },
		savepoint:  func(name string) string { return "SAVEPOINT " + name },
		rollbackTo: func(name string) string { return "ROLLBACK TO SAVEPOINT " + name },
		columnType: postgresType,
	},
	"sqlserver": {
		driver:      "sqlserver",
		placeholder: func(i int) string { return fmt.Sprintf("@p%d", i) },
		quote:       func(ident string) string { return "[" + strings.ReplaceAll(ident, "]", "]]") + "]" },
		createTable: func(table string, defs []string) string {
			return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s)",
				table, table, strings.Join(defs, ", "))
		},
		truncate:   func(table string) string { return "TRUNCATE TABLE " + table },
		savepoint:  func(name string) string { return "SAVE TRANSACTION " + name },
		rollbackTo: func(name string) string { return "ROLLBACK TRANSACTION " + name },
		columnType: sqlserverType,
	},
}

func postgresType(value interface{}) string {
	switch value.(type) {
	case bool:
		return "BOOLEAN"
	case int, int32, int64:
		return "BIGINT"
	case float32, float64:
		return "DOUBLE PRECISION"
	case time.Time:
		return "TIMESTAMP"
	case []byte:
		return "BYTEA"
	default:
		return "TEXT"
	}
}

func sqlserverType(value interface{}) string {
	switch value.(type) {
	case bool:
		return "BIT"
	case int, int32, int64:
		return "BIGINT"
	case float32, float64:
		return "FLOAT"
	case time.Time:
		return "DATETIME2"
	case []byte:
		return "VARBINARY(MAX)"
	default:
		return "NVARCHAR(MAX)"
	}
}

// SQLLoader persists record batches into one relational table. It
// implements core.Loader. The column set is fixed on the first batch:
// configured columns when given, otherwise the sorted field names of the
// first record. Later records with missing columns insert NULL; extra
// fields are dropped.
type SQLLoader struct {
	opts    *SQLLoaderOptions
	dialect dialect
	db      *sql.DB
	columns []string
	insert  string
	stats   SQLLoaderStats
	ready   bool
}

// NewSQLLoader creates a SQL loader with configurable options.
func NewSQLLoader(options ...SQLOption) (*SQLLoader, error) {
	opts := &SQLLoaderOptions{
		Dialect:      "postgres",
		QueryTimeout: 30 * time.Second,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	}
	for _, option := range options {
		option(opts)
	}

	d, ok := dialects[opts.Dialect]
	if !ok {
		return nil, &core.ConfigError{
			Section: "target",
			Err:     fmt.Errorf("unknown dialect %q", opts.Dialect),
		}
	}
	if opts.DSN == "" {
		return nil, &core.ConfigError{
			Section: "target",
			Err:     fmt.Errorf("dsn is required"),
		}
	}
	if opts.Table == "" {
		return nil, &core.ConfigError{
			Section: "target",
			Err:     fmt.Errorf("table name is required"),
		}
	}

	return &SQLLoader{opts: opts, dialect: d}, nil
}

// Load implements core.Loader.
func (l *SQLLoader) Load(ctx context.Context, batch *core.Batch) ([]core.LoadOutcome, error) {
	records := batch.Records()
	outcomes := make([]core.LoadOutcome, len(records))
	if len(records) == 0 {
		return outcomes, nil
	}

	start := time.Now()
	defer func() {
		l.stats.WriteDuration += time.Since(start)
		l.stats.LastWriteTime = time.Now()
	}()

	if !l.ready {
		if err := l.initialize(ctx, records[0]); err != nil {
			return nil, err
		}
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &core.CollaboratorError{Collaborator: "loader", Op: "begin", Err: err}
	}

	for i, rec := range records {
		values := make([]interface{}, len(l.columns))
		for c, col := range l.columns {
			values[c] = normalizeValue(rec.Fields[col])
		}

		sp := fmt.Sprintf("row_%d", i)
		if _, err := tx.ExecContext(ctx, l.dialect.savepoint(sp)); err != nil {
			tx.Rollback()
			return nil, &core.CollaboratorError{Collaborator: "loader", Op: "savepoint", Err: err}
		}

		if _, err := tx.ExecContext(ctx, l.insert, values...); err != nil {
			if _, rbErr := tx.ExecContext(ctx, l.dialect.rollbackTo(sp)); rbErr != nil {
				tx.Rollback()
				return nil, &core.CollaboratorError{Collaborator: "loader", Op: "rollback_row", Err: rbErr}
			}
			outcomes[i] = core.LoadOutcome{Err: err}
			l.stats.RowsFailed++
			continue
		}
		outcomes[i] = core.LoadOutcome{Persisted: true}
		l.stats.RowsInserted++
	}

	if err := tx.Commit(); err != nil {
		return nil, &core.CollaboratorError{Collaborator: "loader", Op: "commit", Err: err}
	}
	l.stats.BatchesLoaded++

	return outcomes, nil
}

// Close implements core.Loader.
func (l *SQLLoader) Close() error {
	if l.db == nil {
		return nil
	}
	if err := l.db.Close(); err != nil {
		return &core.CollaboratorError{Collaborator: "loader", Op: "close", Err: err}
	}
	l.db = nil
	return nil
}

// Stats returns load counters for the run so far.
func (l *SQLLoader) Stats() SQLLoaderStats { return l.stats }

func (l *SQLLoader) initialize(ctx context.Context, first core.Record) error {
	if err := l.connect(ctx); err != nil {
		return err
	}

	l.columns = l.opts.Columns
	if len(l.columns) == 0 {
		for name := range first.Fields {
			l.columns = append(l.columns, name)
		}
		sort.Strings(l.columns)
	}

	if l.opts.CreateTable {
		defs := make([]string, len(l.columns))
		for i, col := range l.columns {
			defs[i] = l.dialect.quote(col) + " " + l.dialect.columnType(first.Fields[col])
		}
		query := l.dialect.createTable(l.opts.Table, defs)
		if _, err := l.db.ExecContext(ctx, query); err != nil {
			return &core.CollaboratorError{Collaborator: "loader", Op: "create_table", Err: err}
		}
	}

	if l.opts.TruncateTable {
		if _, err := l.db.ExecContext(ctx, l.dialect.truncate(l.opts.Table)); err != nil {
			return &core.CollaboratorError{Collaborator: "loader", Op: "truncate", Err: err}
		}
	}

	l.insert = buildInsert(l.dialect, l.opts.Table, l.columns)
	l.ready = true
	return nil
}

func (l *SQLLoader) connect(ctx context.Context) error {
	start := time.Now()

	db, err := sql.Open(l.dialect.driver, l.opts.DSN)
	if err != nil {
		return &core.CollaboratorError{Collaborator: "loader", Op: "open", Err: err}
	}
	db.SetMaxOpenConns(l.opts.MaxOpenConns)
	db.SetMaxIdleConns(l.opts.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, l.opts.QueryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return &core.CollaboratorError{Collaborator: "loader", Op: "ping", Err: err}
	}

	l.db = db
	l.stats.ConnectionTime = time.Since(start)
	return nil
}

func buildInsert(d dialect, table string, columns []string) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = d.quote(col)
		placeholders[i] = d.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
}

// normalizeValue maps record values onto types every driver accepts.
func normalizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case nil, bool, int64, float64, string, time.Time, []byte:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float32:
		return float64(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
