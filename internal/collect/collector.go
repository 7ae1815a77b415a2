// Package collect drives exhaustive evaluation of a function over a search
// space and persists the resulting samples.
package collect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/surfaces/internal/opt"
	"github.com/cwbudde/surfaces/internal/store"
	"github.com/cwbudde/surfaces/internal/surface"
)

// ErrStalled is returned when too many consecutive rounds add no rows.
var ErrStalled = errors.New("collection stalled")

// Progress describes the state after one collection round.
type Progress struct {
	RunID     string  `json:"runId"`
	Function  string  `json:"function"`
	Round     int     `json:"round"`
	Evaluated int     `json:"evaluated"`
	Added     int     `json:"added"`
	Collected int     `json:"collected"`
	Total     int     `json:"total"`
	Best      float64 `json:"best"`
	Stalled   int     `json:"stalled"`
}

// Done reports whether every grid point has been collected.
func (p Progress) Done() bool { return p.Collected >= p.Total }

// Collector evaluates a function on every point of a search space, round by
// round, and writes the samples to Store.
type Collector struct {
	// Store receives the finished table. A nil Store keeps the result in
	// memory only.
	Store store.Store

	// Searcher evaluates the pending grid points of a round. Nil selects
	// opt.GridSearch limited to RoundBudget evaluations.
	Searcher opt.Searcher

	// Patience is the number of consecutive rounds without new rows after
	// which Collect returns ErrStalled.
	Patience int

	// RoundBudget caps the evaluations of one round for the default
	// searcher. Zero means unlimited.
	RoundBudget int

	// WarmStart seeds the collection with rows already in Store.
	WarmStart bool

	// Trace, if set, receives one entry per round.
	Trace *store.TraceWriter

	// OnRound, if set, is called after every round.
	OnRound func(Progress)
}

func (c *Collector) searcher() opt.Searcher {
	if c.Searcher != nil {
		return c.Searcher
	}
	return opt.GridSearch{MaxEvaluations: c.RoundBudget}
}

// Collect evaluates fn until every point of space has a row, then saves the
// table under fn's name using mode. The collected table is returned.
func (c *Collector) Collect(ctx context.Context, fn surface.Function, space surface.SearchSpace, mode store.Mode) (*store.Table, error) {
	if err := checkCoverage(fn.Schema(), space); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	name := fn.Name()
	total := space.Size()
	collected := store.NewTable(store.ColumnsFor(fn.Schema()))
	logger := slog.With("function", name, "run", runID)

	if c.WarmStart {
		c.seed(ctx, logger, name, space, collected)
	}

	logger.Info("Collection started",
		"points", total,
		"seeded", collected.Len(),
		"mode", mode,
		"round_budget", c.RoundBudget,
	)

	var (
		searcher = c.searcher()
		tracker  = NewStallTracker(c.Patience)
		best     *opt.Evaluation
		round    int
	)
	for collected.Len() < total {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		round++

		evals, err := searcher.Search(ctx, fn, space, pending(space, collected))
		if err != nil {
			logger.Error("Collection round failed", "round", round, "error", err)
			return nil, fmt.Errorf("round %d of %s: %w", round, name, err)
		}

		added := 0
		for _, e := range evals {
			if collected.Add(collected.ValuesOf(e.Params), e.Value) {
				added++
			}
		}
		candidates := evals
		if best != nil {
			candidates = append(candidates, *best)
		}
		if b, ok := opt.Best(candidates, fn.Metric()); ok {
			best = &b
		}

		stalled := tracker.Update(added)
		p := Progress{
			RunID:     runID,
			Function:  name,
			Round:     round,
			Evaluated: len(evals),
			Added:     added,
			Collected: collected.Len(),
			Total:     total,
			Best:      math.NaN(),
			Stalled:   tracker.StaleCount(),
		}
		if best != nil {
			p.Best = best.Value
		}
		c.report(logger, p)

		if stalled {
			logger.Warn("Collection stalled", "round", round, "collected", collected.Len(), "total", total)
			return nil, fmt.Errorf("%w: %s has %d of %d points after %d rounds", ErrStalled, name, collected.Len(), total, round)
		}
	}

	if c.Store != nil {
		if err := c.Store.Save(ctx, name, collected, mode); err != nil {
			return nil, fmt.Errorf("failed to save samples of %s: %w", name, err)
		}
	}
	logger.Info("Collection complete", "rounds", round, "rows", collected.Len())
	return collected, nil
}

func (c *Collector) report(logger *slog.Logger, p Progress) {
	logger.Debug("Collection round",
		"round", p.Round,
		"evaluated", p.Evaluated,
		"added", p.Added,
		"collected", p.Collected,
		"total", p.Total,
	)
	if c.Trace != nil {
		entry := store.RoundEntry{
			RunID:     p.RunID,
			Round:     p.Round,
			Evaluated: p.Evaluated,
			Added:     p.Added,
			Total:     p.Collected,
			Timestamp: time.Now(),
		}
		if !math.IsNaN(p.Best) {
			b := p.Best
			entry.Best = &b
		}
		if err := c.Trace.Write(entry); err != nil {
			logger.Warn("Failed to write round trace", "error", err)
		}
	}
	if c.OnRound != nil {
		c.OnRound(p)
	}
}

// seed copies stored rows that lie on the grid into collected.
func (c *Collector) seed(ctx context.Context, logger *slog.Logger, name string, space surface.SearchSpace, collected *store.Table) {
	if c.Store == nil {
		return
	}
	existing, err := c.Store.Load(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		logger.Warn("Warm start skipped", "location", c.Store.Location(), "error", err)
		return
	}
	if !store.SameColumns(existing.Columns, collected.Columns) {
		logger.Warn("Warm start skipped: stored columns differ",
			"stored", store.FormatColumns(existing.Columns),
			"want", store.FormatColumns(collected.Columns),
		)
		return
	}
	space.Each(func(_ []int, p surface.Params) bool {
		values := collected.ValuesOf(p)
		if row, ok := existing.Lookup(values); ok {
			collected.Add(values, row.Score)
		}
		return true
	})
}

// pending returns the grid locations without a row, in row-major order.
func pending(space surface.SearchSpace, collected *store.Table) [][]int {
	var locs [][]int
	space.Each(func(idx []int, p surface.Params) bool {
		if !collected.Has(collected.ValuesOf(p)) {
			locs = append(locs, idx)
		}
		return true
	})
	return locs
}

// checkCoverage requires the space dimensions to match the schema names.
func checkCoverage(schema surface.Schema, space surface.SearchSpace) error {
	if space.Len() == 0 {
		return fmt.Errorf("%w: no dimensions", surface.ErrSearchSpace)
	}
	for _, f := range schema {
		if _, ok := space.Values(f.Name); !ok {
			return fmt.Errorf("%w: missing dimension %q", surface.ErrSearchSpace, f.Name)
		}
	}
	if space.Len() != len(schema) {
		return fmt.Errorf("%w: %d dimensions for %d parameters", surface.ErrSearchSpace, space.Len(), len(schema))
	}
	return nil
}

// LoadSearchData returns the stored samples of the named function. Failures
// are logged with the store location and reported as ok == false.
func (c *Collector) LoadSearchData(ctx context.Context, name string) (*store.Table, bool) {
	if c.Store == nil {
		slog.Warn("Search data unavailable: no store configured", "function", name)
		return nil, false
	}
	t, err := c.Store.Load(ctx, name)
	if err != nil {
		slog.Warn("Failed to load search data",
			"function", name,
			"location", c.Store.Location(),
			"error", err,
		)
		return nil, false
	}
	return t, true
}
