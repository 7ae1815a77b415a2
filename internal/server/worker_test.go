package server

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cwbudde/surfaces/internal/catalog"
	"github.com/cwbudde/surfaces/internal/store"
)

func setupTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLStore(context.Background(), store.DriverSQLite, filepath.Join(t.TempDir(), "search.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func bealeJob() JobConfig {
	return JobConfig{
		Function:    "beale_function",
		Metric:      "loss",
		Space:       catalog.SpaceSpec{Min: 0, Max: 4, Step: 0.5},
		RoundBudget: 20,
	}
}

func TestRunJob_Success(t *testing.T) {
	st := setupTestStore(t)
	jm := NewJobManager()
	job, ctx, err := jm.CreateJob(context.Background(), bealeJob())
	if err != nil {
		t.Fatal(err)
	}

	events := jm.broadcaster.Subscribe(job.ID)
	defer jm.broadcaster.Unsubscribe(job.ID, events)

	if err := runJob(ctx, jm, st, CollectDefaults{Patience: 3}, job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	got, _ := jm.GetJob(job.ID)
	if got.State != StateCompleted {
		t.Fatalf("Expected completed, got %s (%s)", got.State, got.Error)
	}
	if got.Collected != 64 || got.Total != 64 {
		t.Errorf("Expected 64/64 collected, got %d/%d", got.Collected, got.Total)
	}
	if got.Round != 4 {
		t.Errorf("Expected 4 rounds of 20, got %d", got.Round)
	}
	if got.Best == nil || *got.Best > 1e-12 {
		t.Errorf("Expected best loss 0, got %v", got.Best)
	}
	if got.EndTime == nil {
		t.Error("EndTime should be set")
	}

	tbl, err := st.Load(context.Background(), "beale_function")
	if err != nil {
		t.Fatalf("Samples not stored: %v", err)
	}
	if tbl.Len() != 64 {
		t.Errorf("Expected 64 stored rows, got %d", tbl.Len())
	}

	// running + 4 rounds + completed, within the channel buffer
	var last ProgressEvent
	n := len(events)
	for i := 0; i < n; i++ {
		last = <-events
	}
	if n != 6 {
		t.Errorf("Expected 6 events, got %d", n)
	}
	if last.State != StateCompleted {
		t.Errorf("Last event should be completed, got %s", last.State)
	}
}

func TestRunJob_InvalidFunction(t *testing.T) {
	jm := NewJobManager()
	job, ctx, _ := jm.CreateJob(context.Background(), JobConfig{Function: "nope"})

	if err := runJob(ctx, jm, setupTestStore(t), CollectDefaults{}, job.ID); err == nil {
		t.Fatal("Expected error for unknown function")
	}
	got, _ := jm.GetJob(job.ID)
	if got.State != StateFailed || got.Error == "" {
		t.Errorf("Expected failed job with error, got %s %q", got.State, got.Error)
	}
}

func TestRunJob_Cancellation(t *testing.T) {
	jm := NewJobManager()
	job, ctx, _ := jm.CreateJob(context.Background(), bealeJob())
	jm.CancelJob(job.ID)

	if err := runJob(ctx, jm, setupTestStore(t), CollectDefaults{}, job.ID); err == nil {
		t.Fatal("Expected error for cancelled job")
	}
	got, _ := jm.GetJob(job.ID)
	if got.State != StateCancelled {
		t.Errorf("Expected cancelled, got %s", got.State)
	}
}

func TestRunJob_Trace(t *testing.T) {
	traceDir := t.TempDir()
	jm := NewJobManager()
	job, ctx, _ := jm.CreateJob(context.Background(), bealeJob())

	if err := runJob(ctx, jm, setupTestStore(t), CollectDefaults{TraceDir: traceDir}, job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	tr, err := store.NewTraceReader(traceDir, "beale_function")
	if err != nil {
		t.Fatalf("Trace not written: %v", err)
	}
	defer tr.Close()
	entries, err := tr.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Errorf("Expected 4 trace entries, got %d", len(entries))
	}
	if runs := store.Runs(entries); len(runs) != 1 || runs[0][0].RunID == "" {
		t.Errorf("Expected one run with an ID, got %d runs", len(runs))
	}
}
