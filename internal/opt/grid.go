package opt

import (
	"context"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/cwbudde/surfaces/internal/surface"
)

// Evaluation is one scored grid point.
type Evaluation struct {
	Index  []int          `json:"index"`
	Params surface.Params `json:"params"`
	Value  float64        `json:"value"`
}

// Searcher evaluates a function at a list of grid locations of a search
// space. It may stop early and return a subset; the caller decides whether to
// ask again for the remainder.
type Searcher interface {
	Search(ctx context.Context, fn surface.Function, space surface.SearchSpace, locs [][]int) ([]Evaluation, error)
}

// GridSearch evaluates grid locations with gonum's ListSearch method. Each
// location is encoded as its per-dimension value indices, so categorical
// dimensions work the same way as numeric ones.
type GridSearch struct {
	// MaxEvaluations caps the evaluations of one Search call. Zero means no
	// cap.
	MaxEvaluations int
	// Concurrent is the number of concurrent evaluations; zero or one runs
	// serially.
	Concurrent int
}

// Search evaluates fn at locs. An evaluation error or a cancelled context
// stops the search; the evaluations completed so far are returned with the
// error.
func (g GridSearch) Search(ctx context.Context, fn surface.Function, space surface.SearchSpace, locs [][]int) ([]Evaluation, error) {
	if len(locs) == 0 {
		return nil, nil
	}
	dim := space.Len()
	if dim == 0 {
		return nil, fmt.Errorf("%w: no dimensions", surface.ErrSearchSpace)
	}

	m := mat.NewDense(len(locs), dim, nil)
	for i, idx := range locs {
		if len(idx) != dim {
			return nil, fmt.Errorf("%w: location %d has %d entries, want %d", surface.ErrSearchSpace, i, len(idx), dim)
		}
		for j, v := range idx {
			m.Set(i, j, float64(v))
		}
	}

	var (
		mu      sync.Mutex
		out     = make([]Evaluation, 0, len(locs))
		evalErr error
	)
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			idx := make([]int, len(x))
			for i, v := range x {
				idx[i] = int(math.Round(v))
			}
			p, err := space.Params(idx)
			var v float64
			if err == nil {
				v, err = surface.EvaluateContext(ctx, fn, p)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if evalErr == nil {
					evalErr = fmt.Errorf("evaluate %v: %w", p, err)
				}
				return math.Inf(1)
			}
			out = append(out, Evaluation{Index: idx, Params: p, Value: v})
			return minimizable(fn.Metric(), v)
		},
		Status: func() (optimize.Status, error) {
			mu.Lock()
			defer mu.Unlock()
			if evalErr != nil {
				return optimize.Failure, evalErr
			}
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		Converger:       optimize.NeverTerminate{},
		FuncEvaluations: g.MaxEvaluations,
		Concurrent:      g.Concurrent,
	}

	_, err := optimize.Minimize(problem, make([]float64, dim), settings, &optimize.ListSearch{Locs: m})

	mu.Lock()
	defer mu.Unlock()
	return out, err
}

// minimizable maps a metric-transformed value onto a loss for gonum, keeping
// NaN scores away from the best-location bookkeeping.
func minimizable(m surface.Metric, v float64) float64 {
	if m == surface.Score {
		v = -v
	}
	if math.IsNaN(v) || math.IsInf(v, -1) {
		return math.Inf(1)
	}
	return v
}

// Best returns the evaluation with the lowest loss under m, skipping NaN
// values. ok is false when no finite evaluation exists.
func Best(evals []Evaluation, m surface.Metric) (best Evaluation, ok bool) {
	bestLoss := math.Inf(1)
	for _, e := range evals {
		l := minimizable(m, e.Value)
		if l < bestLoss {
			best, bestLoss, ok = e, l, true
		}
	}
	return best, ok
}
