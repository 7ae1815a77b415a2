package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const tablePrefix = "samples_"

var (
	//go:embed sql/*
	ddlFS embed.FS
)

// SQLStore keeps every table in a relational database: one data table per
// function plus the surface_tables catalog. Parameter columns carry a UNIQUE
// constraint so appends skip known points.
type SQLStore struct {
	db       *sql.DB
	driver   string
	location string
}

// NewSQLStore opens the database and creates the catalog if needed.
func NewSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn cannot be empty")
	}

	location := dsn
	switch driver {
	case DriverSQLite:
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	case DriverPostgres:
		location = redactDSN(dsn)
	default:
		return nil, fmt.Errorf("unknown sql driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", location, err)
	}
	if driver == DriverSQLite {
		// a single connection serializes writers and keeps :memory: alive
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", location, err)
	}

	b, err := ddlFS.ReadFile("sql/ddl.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read the schema creation file: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(b)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create database schema in %s: %w", location, err)
	}

	slog.Debug("SQL store opened", "driver", driver, "location", location)
	return &SQLStore{db: db, driver: driver, location: location}, nil
}

func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "postgres"
	}
	return u.Redacted()
}

// ph returns the n-th (1-based) bind placeholder for the driver.
func (s *SQLStore) ph(n int) string {
	if s.driver == DriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (s *SQLStore) sqlType(kind ColumnKind) string {
	if s.driver == DriverPostgres {
		switch kind {
		case Real:
			return "DOUBLE PRECISION"
		case Integer:
			return "BIGINT"
		}
	}
	return string(kind)
}

func quote(ident string) string {
	return `"` + ident + `"`
}

func dataTable(name string) string {
	return quote(tablePrefix + name)
}

func (s *SQLStore) createDDL(name string, cols []Column) string {
	defs := make([]string, 0, len(cols)+2)
	keys := make([]string, len(cols))
	for i, c := range cols {
		defs = append(defs, quote(c.Name)+" "+s.sqlType(c.Kind)+" NOT NULL")
		keys[i] = quote(c.Name)
	}
	defs = append(defs, quote(ScoreColumn)+" "+s.sqlType(Real))
	defs = append(defs, "UNIQUE ("+strings.Join(keys, ", ")+")")
	return "CREATE TABLE " + dataTable(name) + " (\n    " + strings.Join(defs, ",\n    ") + "\n)"
}

func (s *SQLStore) insertSQL(name string, cols []Column) string {
	names := make([]string, 0, len(cols)+1)
	marks := make([]string, 0, len(cols)+1)
	for i, c := range cols {
		names = append(names, quote(c.Name))
		marks = append(marks, s.ph(i+1))
	}
	names = append(names, quote(ScoreColumn))
	marks = append(marks, s.ph(len(cols)+1))
	return "INSERT INTO " + dataTable(name) + " (" + strings.Join(names, ", ") + ") VALUES (" +
		strings.Join(marks, ", ") + ") ON CONFLICT DO NOTHING"
}

// lookup returns the stored columns of name, or nil when the table is not
// in the catalog.
func (s *SQLStore) lookup(ctx context.Context, q queryer, name string) ([]Column, error) {
	var raw string
	err := q.QueryRowContext(ctx, "SELECT columns FROM surface_tables WHERE name = "+s.ph(1), name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog for %s: %w", name, err)
	}
	cols, err := ParseColumns(raw)
	if err != nil {
		return nil, fmt.Errorf("corrupt catalog entry for %s: %w", name, err)
	}
	return cols, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Save writes t to the named table.
func (s *SQLStore) Save(ctx context.Context, name string, t *Table, mode Mode) error {
	if err := checkName(name); err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("table cannot be nil")
	}
	if err := t.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cols, err := s.lookup(ctx, tx, name)
	if err != nil {
		return err
	}
	if cols != nil && mode == Replace {
		if err := s.drop(ctx, tx, name); err != nil {
			return err
		}
		cols = nil
	}
	if cols != nil && !SameColumns(cols, t.Columns) {
		return &CompatibilityError{Field: "columns", Expected: FormatColumns(cols), Actual: FormatColumns(t.Columns)}
	}
	if cols == nil {
		if _, err := tx.ExecContext(ctx, s.createDDL(name, t.Columns)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", name, err)
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO surface_tables (name, columns, row_count, updated_at) VALUES ("+s.ph(1)+", "+s.ph(2)+", 0, "+s.ph(3)+")",
			name, FormatColumns(t.Columns), time.Now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to register table %s: %w", name, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, s.insertSQL(name, t.Columns))
	if err != nil {
		return fmt.Errorf("failed to prepare insert for %s: %w", name, err)
	}
	defer stmt.Close()

	args := make([]any, len(t.Columns)+1)
	for _, r := range t.Rows {
		copy(args, r.Values)
		args[len(t.Columns)] = nullScore(r.Score)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row into %s: %w", name, err)
		}
	}

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+dataTable(name)).Scan(&count); err != nil {
		return fmt.Errorf("failed to count rows of %s: %w", name, err)
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE surface_tables SET row_count = "+s.ph(1)+", updated_at = "+s.ph(2)+" WHERE name = "+s.ph(3),
		count, time.Now().UTC().Format(time.RFC3339Nano), name)
	if err != nil {
		return fmt.Errorf("failed to update catalog for %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit table %s: %w", name, err)
	}
	slog.Debug("Table saved", "name", name, "rows", count, "mode", mode, "location", s.location)
	return nil
}

func nullScore(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func (s *SQLStore) drop(ctx context.Context, tx *sql.Tx, name string) error {
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+dataTable(name)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM surface_tables WHERE name = "+s.ph(1), name); err != nil {
		return fmt.Errorf("failed to unregister table %s: %w", name, err)
	}
	return nil
}

// Load retrieves the named table.
func (s *SQLStore) Load(ctx context.Context, name string) (*Table, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	cols, err := s.lookup(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	if cols == nil {
		return nil, &NotFoundError{Name: name}
	}

	names := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		names = append(names, quote(c.Name))
	}
	names = append(names, quote(ScoreColumn))
	rows, err := s.db.QueryContext(ctx, "SELECT "+strings.Join(names, ", ")+" FROM "+dataTable(name))
	if err != nil {
		return nil, fmt.Errorf("failed to query table %s: %w", name, err)
	}
	defer rows.Close()

	t := NewTable(cols)
	dest := make([]any, len(cols)+1)
	for rows.Next() {
		for i, c := range cols {
			switch c.Kind {
			case Real:
				dest[i] = new(float64)
			case Integer:
				dest[i] = new(int64)
			default:
				dest[i] = new(string)
			}
		}
		var score sql.NullFloat64
		dest[len(cols)] = &score
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row of %s: %w", name, err)
		}

		values := make([]any, len(cols))
		for i := range cols {
			switch v := dest[i].(type) {
			case *float64:
				values[i] = *v
			case *int64:
				values[i] = int(*v)
			case *string:
				values[i] = *v
			}
		}
		value := math.NaN()
		if score.Valid {
			value = score.Float64
		}
		t.Add(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", name, err)
	}

	slog.Debug("Table loaded", "name", name, "rows", t.Len())
	return t, nil
}

// List returns metadata for all stored tables.
func (s *SQLStore) List(ctx context.Context) ([]TableInfo, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, columns, row_count, updated_at FROM surface_tables ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	infos := []TableInfo{}
	for rows.Next() {
		var (
			info    TableInfo
			rawCols string
			updated string
		)
		if err := rows.Scan(&info.Name, &rawCols, &info.Rows, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		if info.Columns, err = ParseColumns(rawCols); err != nil {
			return nil, fmt.Errorf("corrupt catalog entry for %s: %w", info.Name, err)
		}
		if info.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
			slog.Warn("Unparseable catalog timestamp", "name", info.Name, "value", updated)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return infos, nil
}

// Delete drops the named table.
func (s *SQLStore) Delete(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cols, err := s.lookup(ctx, tx, name)
	if err != nil {
		return err
	}
	if cols == nil {
		return &NotFoundError{Name: name}
	}
	if err := s.drop(ctx, tx, name); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of %s: %w", name, err)
	}
	slog.Debug("Table deleted", "name", name, "location", s.location)
	return nil
}

// Location returns the database path or redacted connection string.
func (s *SQLStore) Location() string { return s.location }

func (s *SQLStore) Close() error {
	return s.db.Close()
}
