package main

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/surfaces/internal/catalog"
	"github.com/cwbudde/surfaces/internal/opt"
	"github.com/cwbudde/surfaces/internal/surface"
)

var (
	optNDim    int
	optIters   int
	optPopSize int
	optSeed    int64
	optMin     float64
	optMax     float64
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize <function>",
	Short: "Minimise a mathematical surface with the mayfly optimizer",
	Long: `Runs the mayfly optimizer on the loss of a mathematical surface within
its default bounds (or --min/--max) and compares the result with the known
global minimum.`,
	Args: cobra.ExactArgs(1),
	RunE: runOptimize,
}

func init() {
	optimizeCmd.Flags().IntVar(&optNDim, "ndim", 0, "Dimension of functions with a configurable dimension")
	optimizeCmd.Flags().IntVar(&optIters, "iters", 200, "Max iterations")
	optimizeCmd.Flags().IntVar(&optPopSize, "pop", 30, "Population size (at least 20)")
	optimizeCmd.Flags().Int64Var(&optSeed, "seed", 42, "Random seed")
	optimizeCmd.Flags().Float64Var(&optMin, "min", surface.DefaultMin, "Lower bound of every parameter")
	optimizeCmd.Flags().Float64Var(&optMax, "max", surface.DefaultMax, "Upper bound of every parameter")
	rootCmd.AddCommand(optimizeCmd)
}

type optimizeResult struct {
	Function    string        `json:"function" yaml:"function"`
	Best        []float64     `json:"best" yaml:"best"`
	Loss        float64       `json:"loss" yaml:"loss"`
	Optimum     surface.Point `json:"optimum" yaml:"optimum"`
	Distance    float64       `json:"distance" yaml:"distance"`
	Evaluations int           `json:"evaluations" yaml:"evaluations"`
	Iterations  int           `json:"iterations" yaml:"iterations"`
	Elapsed     float64       `json:"elapsed" yaml:"elapsed"`
}

func runOptimize(cmd *cobra.Command, args []string) error {
	fn, err := catalog.New(args[0], catalog.Settings{Metric: surface.Loss, NDim: optNDim})
	if err != nil {
		return err
	}
	s, ok := fn.(surface.Surface)
	if !ok {
		return fmt.Errorf("%s is not a mathematical surface", fn.Name())
	}

	dim := s.NDim()
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for i := range lower {
		lower[i], upper[i] = optMin, optMax
	}

	slog.Info("Starting optimization", "function", s.Name(), "dim", dim, "iters", optIters, "pop", optPopSize)

	start := time.Now()
	res, err := opt.NewMayfly(optIters, optPopSize, optSeed).Run(s.LossAt, lower, upper, dim)
	if err != nil {
		return fmt.Errorf("failed to optimize %s: %w", s.Name(), err)
	}

	optimum, dist := nearestOptimum(s.Optima(), res.Best)
	out := optimizeResult{
		Function:    s.Name(),
		Best:        res.Best,
		Loss:        res.Cost,
		Optimum:     optimum,
		Distance:    dist,
		Evaluations: res.Evaluations,
		Iterations:  res.Iterations,
		Elapsed:     time.Since(start).Seconds(),
	}

	slog.Info("Optimization complete", "function", s.Name(), "loss", res.Cost, "distance", dist, "elapsed", time.Since(start))

	w := cmd.OutOrStdout()
	if ok, err := encode(w, outputFormat, out); ok || err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: loss %s at %v\n", out.Function, formatFloat(out.Loss), out.Best)
	fmt.Fprintf(w, "Known minimum %s at %v (distance %.4g)\n", formatFloat(out.Optimum.Loss), out.Optimum.X, out.Distance)
	return nil
}

// nearestOptimum returns the known minimum closest to x.
func nearestOptimum(optima []surface.Point, x []float64) (surface.Point, float64) {
	best := surface.Point{}
	dist := math.Inf(1)
	for _, p := range optima {
		if len(p.X) != len(x) {
			continue
		}
		if d := floats.Distance(p.X, x, 2); d < dist {
			best, dist = p, d
		}
	}
	return best, dist
}
