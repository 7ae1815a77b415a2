package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FSStore implements the Store interface using filesystem-based persistence.
// Tables are stored as JSON in a directory structure:
// <baseDir>/tables/<name>/table.json
//
// Writes use temp file + rename; a mutex serializes the read-merge-write
// cycle of Append.
type FSStore struct {
	baseDir string // Root directory for all table data (e.g., "./data")
	mu      sync.Mutex
}

type tableFile struct {
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
	Table     *Table    `json:"table"`
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{
		baseDir: baseDir,
	}, nil
}

// tableDir returns the directory path for a given table.
func (fs *FSStore) tableDir(name string) string {
	return filepath.Join(fs.baseDir, "tables", name)
}

// tablePath returns the path to the table.json file for a table.
func (fs *FSStore) tablePath(name string) string {
	return filepath.Join(fs.tableDir(name), "table.json")
}

// Save writes t to the named table.
func (fs *FSStore) Save(ctx context.Context, name string, t *Table, mode Mode) error {
	if err := checkName(name); err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("table cannot be nil")
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	merged := NewTable(t.Columns)
	if mode == Append {
		existing, err := fs.read(name)
		switch {
		case err == nil:
			merged = existing
		case !isNotFound(err):
			return err
		}
	}
	if _, err := merged.Merge(t); err != nil {
		return err
	}

	if err := os.MkdirAll(fs.tableDir(name), 0755); err != nil {
		return fmt.Errorf("failed to create table directory: %w", err)
	}

	data, err := json.MarshalIndent(tableFile{Name: name, UpdatedAt: time.Now().UTC(), Table: merged}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize table: %w", err)
	}

	// Write to temporary file first (atomic pattern)
	finalPath := fs.tablePath(name)
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp table file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename table file: %w", err)
	}

	slog.Debug("Table saved", "name", name, "rows", merged.Len(), "mode", mode, "path", finalPath)
	return nil
}

// Load retrieves the named table.
func (fs *FSStore) Load(ctx context.Context, name string) (*Table, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.read(name)
}

func (fs *FSStore) readFile(name string) (*tableFile, error) {
	path := fs.tablePath(name)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{Name: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read table file: %w", err)
	}

	var tf tableFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to deserialize table %s: %w", name, err)
	}
	if tf.Table == nil {
		return nil, &ValidationError{Field: "table", Reason: "missing in " + path}
	}
	tf.Table.normalizeRows()
	if err := tf.Table.Validate(); err != nil {
		return nil, err
	}
	return &tf, nil
}

func (fs *FSStore) read(name string) (*Table, error) {
	tf, err := fs.readFile(name)
	if err != nil {
		return nil, err
	}
	slog.Debug("Table loaded", "name", name, "rows", tf.Table.Len())
	return tf.Table, nil
}

// List returns metadata for all stored tables.
func (fs *FSStore) List(ctx context.Context) ([]TableInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	tablesDir := filepath.Join(fs.baseDir, "tables")
	entries, err := os.ReadDir(tablesDir)
	if os.IsNotExist(err) {
		return []TableInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tables directory: %w", err)
	}

	infos := []TableInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		tf, err := fs.readFile(entry.Name())
		if err != nil {
			slog.Warn("Failed to load table for listing", "name", entry.Name(), "error", err)
			continue
		}
		infos = append(infos, TableInfo{
			Name:      entry.Name(),
			Columns:   tf.Table.Columns,
			Rows:      tf.Table.Len(),
			UpdatedAt: tf.UpdatedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	slog.Debug("Listed tables", "count", len(infos))
	return infos, nil
}

// Delete removes the named table and its directory.
func (fs *FSStore) Delete(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir := fs.tableDir(name)
	if _, err := os.Stat(fs.tablePath(name)); os.IsNotExist(err) {
		return &NotFoundError{Name: name}
	} else if err != nil {
		return fmt.Errorf("failed to stat table file: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove table directory: %w", err)
	}

	slog.Debug("Table deleted", "name", name, "path", dir)
	return nil
}

// Location returns the base directory.
func (fs *FSStore) Location() string { return fs.baseDir }

// Close is a no-op.
func (fs *FSStore) Close() error { return nil }
