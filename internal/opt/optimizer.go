package opt

// Optimizer defines an optimization algorithm interface
type Optimizer interface {
	// Run executes the optimization
	// eval: objective function to minimize
	// lower, upper: per-dimension parameter bounds
	// dim: dimensionality of parameter space
	Run(eval func([]float64) float64, lower, upper []float64, dim int) (Result, error)
}

// Result is the outcome of an optimizer run.
type Result struct {
	Best        []float64 `json:"best"`
	Cost        float64   `json:"cost"`
	Evaluations int       `json:"evaluations"`
	Iterations  int       `json:"iterations"`
}
