package opt

import (
	"fmt"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter. popSize must be at least
// 20.
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization using the external library.
//
// Mayfly only supports scalar bounds, so the search runs in the unit cube and
// every candidate is mapped onto [lower[i], upper[i]] before evaluation.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) (Result, error) {
	if len(lower) != dim || len(upper) != dim {
		return Result{}, fmt.Errorf("bounds have %d/%d entries, want %d", len(lower), len(upper), dim)
	}
	for i := range lower {
		if !(upper[i] > lower[i]) {
			return Result{}, fmt.Errorf("dimension %d: empty bounds [%v, %v]", i, lower[i], upper[i])
		}
	}

	scale := func(u []float64) []float64 {
		x := make([]float64, dim)
		for i, v := range u {
			x[i] = lower[i] + v*(upper[i]-lower[i])
		}
		return x
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(u []float64) float64 { return eval(scale(u)) }
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.NPopF = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return Result{}, fmt.Errorf("mayfly optimization failed: %w", err)
	}

	return Result{
		Best:        scale(result.GlobalBest.Position),
		Cost:        result.GlobalBest.Cost,
		Evaluations: result.FuncEvalCount,
		Iterations:  result.IterationCount,
	}, nil
}
