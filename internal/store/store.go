package store

import (
	"context"
	"errors"
	"fmt"
)

// Store defines the interface for sample table persistence.
// Implementations must be safe for concurrent use, but concurrent writers to
// the same table name are not coordinated.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return ErrNotFound if the table doesn't exist (for Load/Delete)
//   - Return *ValidationError for malformed tables or names
//   - Return *CompatibilityError when appending with a different column layout
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// Save writes the rows of t to the named table. In Append mode rows whose
	// parameter values already exist are skipped; in Replace mode the table is
	// dropped first.
	Save(ctx context.Context, name string, t *Table, mode Mode) error

	// Load returns all rows of the named table.
	Load(ctx context.Context, name string) (*Table, error)

	// List returns metadata for all stored tables ordered by name.
	List(ctx context.Context) ([]TableInfo, error)

	// Delete removes the named table.
	Delete(ctx context.Context, name string) error

	// Location describes where the data lives, for diagnostics.
	Location() string

	Close() error
}

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverFS       = "fs"
)

// Open returns the store for driver. For sqlite the dsn is a file path, for
// postgres a lib/pq connection string and for fs a base directory.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
		return NewSQLStore(ctx, driver, dsn)
	case DriverFS:
		return NewFSStore(dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// ErrNotFound is returned when a requested table does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing table error.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	if e.Name != "" {
		return "table not found: " + e.Name
	}
	return "table not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func checkName(name string) error {
	if name == "" {
		return &ValidationError{Field: "name", Reason: "cannot be empty"}
	}
	if !ValidName(name) {
		return &ValidationError{Field: "name", Reason: fmt.Sprintf("%q is not a valid identifier", name)}
	}
	return nil
}
