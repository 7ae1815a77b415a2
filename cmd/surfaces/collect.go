package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/surfaces/internal/collect"
	"github.com/cwbudde/surfaces/internal/opt"
	"github.com/cwbudde/surfaces/internal/store"
)

var (
	collectFnFlags    functionFlags
	collectSpaceFlags spaceFlags
	collectMode       string
	collectBudget     int
	collectPatience   int
	collectConcurrent int
	collectWarmStart  bool
	collectTraceDir   string
)

var collectCmd = &cobra.Command{
	Use:   "collect <function>",
	Short: "Evaluate a function over its search grid and store the samples",
	Long: `Evaluates a function on every point of its search space, round by round,
and writes one row per point to the configured store. Rows already stored are
reused when warm start is enabled. The run stops early when several rounds in
a row add nothing, or on interrupt.`,
	Args: cobra.ExactArgs(1),
	RunE: runCollect,
}

func init() {
	collectFnFlags.register(collectCmd)
	collectSpaceFlags.register(collectCmd)
	collectCmd.Flags().StringVar(&collectMode, "mode", string(store.Append), "Write mode: append, replace")
	collectCmd.Flags().IntVar(&collectBudget, "budget", 0, "Evaluations per round (0 = config value)")
	collectCmd.Flags().IntVar(&collectPatience, "patience", 0, "Rounds without new rows before giving up (0 = config value)")
	collectCmd.Flags().IntVar(&collectConcurrent, "concurrent", 0, "Parallel evaluations per round (0 = config value)")
	collectCmd.Flags().BoolVar(&collectWarmStart, "warm-start", true, "Reuse rows already in the store")
	collectCmd.Flags().StringVar(&collectTraceDir, "trace-dir", "", "Directory for the per-round JSONL trace")
	rootCmd.AddCommand(collectCmd)
}

type collectSummary struct {
	Function string  `json:"function" yaml:"function"`
	Rows     int     `json:"rows" yaml:"rows"`
	Store    string  `json:"store" yaml:"store"`
	Elapsed  float64 `json:"elapsed" yaml:"elapsed"`
}

func runCollect(cmd *cobra.Command, args []string) error {
	fn, space, err := resolveSpace(args[0], &collectFnFlags, &collectSpaceFlags)
	if err != nil {
		return err
	}
	mode, err := store.ParseMode(collectMode)
	if err != nil {
		return err
	}
	if collectBudget < 0 || collectPatience < 0 || collectConcurrent < 0 {
		return fmt.Errorf("--budget, --patience and --concurrent must be >= 0")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	c := &collect.Collector{
		Store:       st,
		Patience:    firstNonZero(collectPatience, cfg.Collect.Patience),
		RoundBudget: firstNonZero(collectBudget, cfg.Collect.RoundBudget),
		WarmStart:   cfg.Collect.WarmStart,
		OnRound: func(p collect.Progress) {
			attrs := []any{"round", p.Round, "added", p.Added, "collected", p.Collected, "total", p.Total}
			if !math.IsNaN(p.Best) {
				attrs = append(attrs, "best", p.Best)
			}
			slog.Info("Round finished", attrs...)
		},
	}
	if cmd.Flags().Changed("warm-start") {
		c.WarmStart = collectWarmStart
	}
	c.Searcher = opt.GridSearch{
		MaxEvaluations: c.RoundBudget,
		Concurrent:     firstNonZero(collectConcurrent, cfg.Collect.Concurrent),
	}

	if traceDir := firstNonEmpty(collectTraceDir, cfg.Collect.TraceDir); traceDir != "" {
		tw, err := store.NewTraceWriter(traceDir, fn.Name(), mode == store.Append)
		if err != nil {
			return fmt.Errorf("failed to open trace: %w", err)
		}
		defer tw.Close()
		c.Trace = tw
	}

	slog.Info("Starting collection", "function", fn.Name(), "points", space.Size(), "mode", mode, "store", st.Location())

	start := time.Now()
	tbl, err := c.Collect(ctx, fn, space, mode)
	if err != nil {
		return fmt.Errorf("collect %s: %w", fn.Name(), err)
	}

	summary := collectSummary{
		Function: fn.Name(),
		Rows:     tbl.Len(),
		Store:    st.Location(),
		Elapsed:  time.Since(start).Seconds(),
	}
	out := cmd.OutOrStdout()
	if ok, err := encode(out, outputFormat, summary); ok || err != nil {
		return err
	}
	fmt.Fprintf(out, "Collected %d rows of %s into %s (%.1fs)\n", summary.Rows, summary.Function, summary.Store, summary.Elapsed)
	return nil
}

// openStore opens the configured sample store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return st, nil
}

func firstNonZero(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}
