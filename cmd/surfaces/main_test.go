package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/surfaces/internal/server"
	"github.com/cwbudde/surfaces/internal/store"
	"github.com/cwbudde/surfaces/internal/surface"
)

// resetFlags restores every scalar flag of the command tree to its default so
// that runs of the shared rootCmd do not leak into each other.
func resetFlags(cmd *cobra.Command) {
	for _, fs := range []*pflag.FlagSet{cmd.PersistentFlags(), cmd.Flags()} {
		fs.VisitAll(func(f *pflag.Flag) {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				sv.Replace(nil)
			} else {
				f.Value.Set(f.DefValue)
			}
			f.Changed = false
		})
	}
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestFunctionsCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "functions")
	require.NoError(t, err)
	assert.Contains(t, out, "beale_function")
	assert.Contains(t, out, "k_neighbors_classifier")

	out, err = execute(t, "functions", "-o", "json")
	require.NoError(t, err)
	var rows []functionRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Len(t, rows, 5)
}

func TestEvalCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "eval", "beale_function", "x0=3", "x1=0.5", "--metric", "loss", "-o", "json")
	require.NoError(t, err)

	var res evalResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotNil(t, res.Value)
	assert.InDelta(t, 0, *res.Value, 1e-12)
	assert.Equal(t, "loss", string(res.Metric))

	out, err = execute(t, "eval", "rosenbrock_function", "x0=0", "x1=0")
	require.NoError(t, err)
	assert.Equal(t, "rosenbrock_function score = -1\n", out)
}

func TestEvalCommandErrors(t *testing.T) {
	t.Chdir(t.TempDir())

	for _, args := range [][]string{
		{"eval", "nope"},
		{"eval", "beale_function", "x0=1"},
		{"eval", "beale_function", "x0=1", "x1=abc"},
		{"eval", "beale_function", "x0", "x1=1"},
		{"eval", "beale_function", "x0=1", "x0=2"},
		{"eval", "beale_function", "x0=1", "x1=1", "--metric", "gain"},
	} {
		_, err := execute(t, args...)
		assert.Error(t, err, "args %v", args)
	}
}

func TestSpaceCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "space", "beale_function", "--min", "0", "--max", "4", "--step", "1", "-o", "json")
	require.NoError(t, err)

	var view spaceView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, 16, view.Size)
	require.Len(t, view.Dimensions, 2)
	assert.Equal(t, "x0", view.Dimensions[0].Name)

	out, err = execute(t, "space", "k_neighbors_classifier")
	require.NoError(t, err)
	assert.Contains(t, out, "n_neighbors")
	assert.Contains(t, out, "Grid size:")

	out, err = execute(t, "space", "k_neighbors_classifier", "--set", "n_neighbors=5,5", "-o", "json")
	require.NoError(t, err)
	view = spaceView{}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, 4*6*3, view.Size)
	assert.Len(t, view.Dimensions[0].Values, 1)
}

func TestCollectAndSamplesCommands(t *testing.T) {
	t.Chdir(t.TempDir())
	dsn := filepath.Join(t.TempDir(), "samples.db")

	out, err := execute(t, "collect", "beale_function", "--metric", "loss",
		"--min", "0", "--max", "4", "--step", "1", "--budget", "5",
		"--store-dsn", dsn, "-o", "json")
	require.NoError(t, err)
	var summary collectSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 16, summary.Rows)

	out, err = execute(t, "samples", "list", "--store-dsn", dsn, "-o", "json")
	require.NoError(t, err)
	var infos []store.TableInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "beale_function", infos[0].Name)
	assert.Equal(t, 16, infos[0].Rows)

	out, err = execute(t, "samples", "show", "beale_function", "--limit", "3", "--store-dsn", dsn)
	require.NoError(t, err)
	assert.Contains(t, out, "SCORE")
	assert.Contains(t, out, "13 more rows")

	// Without --force the prompt reads an empty answer and aborts
	out, err = execute(t, "samples", "delete", "beale_function", "--store-dsn", dsn)
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted.")

	_, err = execute(t, "samples", "delete", "beale_function", "--force", "--store-dsn", dsn)
	require.NoError(t, err)

	_, err = execute(t, "samples", "show", "beale_function", "--store-dsn", dsn)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCollectUsesConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	dataDir := filepath.Join(dir, "tables-root")
	config := "store:\n  driver: fs\n  dsn: " + dataDir + "\ncollect:\n  patience: 2\n  trace_dir: " + filepath.Join(dir, "traces") + "\n"
	require.NoError(t, os.WriteFile("surfaces.yaml", []byte(config), 0644))

	_, err := execute(t, "collect", "rosenbrock_function", "--min", "0", "--max", "2", "--step", "0.5")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dataDir, "tables", "rosenbrock_function", "table.json"))
	assert.FileExists(t, filepath.Join(dir, "traces", "rosenbrock_function", "trace.jsonl"))

	out, err := execute(t, "samples", "trace", "rosenbrock_function")
	require.NoError(t, err)
	assert.Contains(t, out, "ROUND")
	assert.Contains(t, out, "Total runs: 1")

	out, err = execute(t, "samples", "trace", "rosenbrock_function", "-o", "json")
	require.NoError(t, err)
	var entries []store.RoundEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.NotEmpty(t, entries)
	assert.NotEmpty(t, entries[0].RunID)
	assert.Positive(t, entries[len(entries)-1].Total)

	_, err = execute(t, "samples", "trace", "beale_function")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCollectRejectsRangeForClassifier(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, "collect", "k_neighbors_classifier", "--step", "1",
		"--store-dsn", filepath.Join(t.TempDir(), "s.db"))
	assert.Error(t, err)
}

func TestOptimizeCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "optimize", "rastrigin_function", "--iters", "50", "-o", "json")
	require.NoError(t, err)
	var res optimizeResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "rastrigin_function", res.Function)
	assert.Len(t, res.Best, 2)
	assert.GreaterOrEqual(t, res.Loss, 0.0)
	assert.Positive(t, res.Evaluations)

	_, err = execute(t, "optimize", "k_neighbors_classifier")
	assert.Error(t, err)
}

func TestNearestOptimum(t *testing.T) {
	optima := []surface.Point{{X: []float64{0, 0}}, {X: []float64{3, 3}}, {X: []float64{1, 1, 1}}}
	p, d := nearestOptimum(optima, []float64{2, 3})
	assert.Equal(t, []float64{3, 3}, p.X)
	assert.InDelta(t, 1, d, 1e-12)
}

func TestSelectTablesForDeletion(t *testing.T) {
	now := time.Now()
	infos := []store.TableInfo{
		{Name: "a", UpdatedAt: now.AddDate(0, 0, -10)},
		{Name: "b", UpdatedAt: now.AddDate(0, 0, -5)},
		{Name: "c", UpdatedAt: now.AddDate(0, 0, -1)},
		{Name: "d", UpdatedAt: now.AddDate(0, 0, -30)},
	}

	t.Run("by age", func(t *testing.T) {
		got, err := selectTablesForDeletion(infos, nil, 7, now)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "d"}, tableNames(got))
	})

	t.Run("by name", func(t *testing.T) {
		got, err := selectTablesForDeletion(infos, []string{"c", "b", "c"}, 0, now)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "b"}, tableNames(got))
	})

	t.Run("combined", func(t *testing.T) {
		got, err := selectTablesForDeletion(infos, []string{"a", "c"}, 7, now)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c", "d"}, tableNames(got))
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := selectTablesForDeletion(infos, []string{"zzz"}, 0, now)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func tableNames(infos []store.TableInfo) []string {
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}

func TestJobsCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	st, err := store.NewSQLStore(context.Background(), store.DriverSQLite, filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	srv := server.NewServer(":0", st, server.CollectDefaults{Patience: 3})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ts.Close()
	})

	out, err := execute(t, "jobs", "--server", ts.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "No jobs found")

	body := `{"function":"beale_function","metric":"loss","space":{"min":0,"max":2,"step":1}}`
	resp, err := http.Post(ts.URL+"/api/v1/jobs", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	var job server.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	out, err = execute(t, "jobs", "--server", ts.URL, "-o", "json")
	require.NoError(t, err)
	var jobs []server.Job
	require.NoError(t, json.Unmarshal([]byte(out), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)

	require.Eventually(t, func() bool {
		out, err := execute(t, "jobs", job.ID, "--server", ts.URL)
		return err == nil && strings.Contains(out, "State: completed")
	}, 10*time.Second, 20*time.Millisecond)

	out, err = execute(t, "jobs", job.ID, "--server", ts.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Collected: 4/4")

	out, err = execute(t, "jobs", job.ID, "--cancel", "--server", ts.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed job")

	_, err = execute(t, "jobs", "nonexistent", "--server", ts.URL)
	assert.ErrorContains(t, err, "404")
}

func TestRootCommandValidation(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := execute(t, "functions", "-o", "xml")
	assert.Error(t, err)

	_, err = execute(t, "functions", "--store-driver", "mongo")
	assert.Error(t, err)

	_, err = execute(t, "functions", "--config", "missing.yaml")
	assert.Error(t, err)

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "surfaces version "+version+"\n", out)
}

func TestEncode(t *testing.T) {
	v := map[string]int{"rows": 3}

	var buf bytes.Buffer
	ok, err := encode(&buf, formatYAML, v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "rows: 3\n", buf.String())

	buf.Reset()
	ok, err = encode(&buf, formatJSON, v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"rows":3}`, buf.String())

	buf.Reset()
	ok, err = encode(&buf, formatText, v)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, buf.Len())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "warn", "text")
	assert.False(t, l.Enabled(context.Background(), -4))
	l.Warn("Something happened", "function", "beale_function")
	assert.Contains(t, buf.String(), "function=beale_function")

	buf.Reset()
	newLogger(&buf, "debug", "json").Debug("Round finished", "round", 1)
	assert.True(t, json.Valid(buf.Bytes()))
}
