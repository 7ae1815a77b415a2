package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// setupTestStore creates a temporary directory and returns an FSStore for testing.
func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	tempDir := t.TempDir() // Automatically cleaned up after test
	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}

	return store, tempDir
}

func TestFSStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		s, _ := setupTestStore(t)
		return s
	})
}

func TestNewFSStore_EmptyBaseDir(t *testing.T) {
	if _, err := NewFSStore(""); err == nil {
		t.Fatal("Expected error for empty baseDir")
	}
}

func TestFSStore_FileLayout(t *testing.T) {
	store, tempDir := setupTestStore(t)
	in := sampleTable(Row{Values: []any{3, "kd_tree", 0.5}, Score: 0.93})

	if err := store.Save(context.Background(), "knn", in, Append); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	path := filepath.Join(tempDir, "tables", "knn", "table.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Table file not written: %v", err)
	}
	var tf tableFile
	if err := json.Unmarshal(data, &tf); err != nil {
		t.Fatalf("Table file is not valid JSON: %v", err)
	}
	if tf.Name != "knn" || tf.Table.Len() != 1 {
		t.Errorf("Unexpected file contents: name=%q rows=%d", tf.Name, tf.Table.Len())
	}

	// Temp file should be gone after the rename
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temporary file still exists after save")
	}
}

func TestFSStore_LoadNormalizesJSONNumbers(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	if err := store.Save(ctx, "knn", sampleTable(Row{Values: []any{3, "kd_tree", 2.0}, Score: 1}), Append); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	out, err := store.Load(ctx, "knn")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, ok := out.Rows[0].Values[0].(int); !ok {
		t.Errorf("Integer column decoded as %T", out.Rows[0].Values[0])
	}
	if _, ok := out.Rows[0].Values[2].(float64); !ok {
		t.Errorf("Real column decoded as %T", out.Rows[0].Values[2])
	}
}

func TestFSStore_ListSkipsInvalidDirectories(t *testing.T) {
	store, tempDir := setupTestStore(t)
	ctx := context.Background()
	if err := store.Save(ctx, "good", sampleTable(Row{Values: []any{1, "a", 1.0}, Score: 1}), Append); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Directory without table.json
	if err := os.MkdirAll(filepath.Join(tempDir, "tables", "empty"), 0755); err != nil {
		t.Fatal(err)
	}
	// Directory with corrupt table.json
	badDir := filepath.Join(tempDir, "tables", "corrupt")
	if err := os.MkdirAll(badDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(badDir, "table.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	infos, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "good" {
		t.Errorf("Expected only the valid table, got %+v", infos)
	}
}

func TestFSStore_ConcurrentAppend(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := sampleTable(Row{Values: []any{i, fmt.Sprintf("a%d", i), 0.0}, Score: float64(i)})
			errs <- store.Save(ctx, "shared", in, Append)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Concurrent save failed: %v", err)
		}
	}

	out, err := store.Load(ctx, "shared")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if out.Len() != 10 {
		t.Errorf("Expected 10 rows, got %d", out.Len())
	}
}

func TestFSStore_CancelledContext(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Save(ctx, "knn", sampleTable(), Append); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
