// Package surface defines the objective function contract shared by every
// benchmark surface, together with the classic non-convex mathematical test
// functions.
package surface

import (
	"context"
	"fmt"
	"time"
)

// Function is a named objective that maps a parameter dictionary to a scalar.
// The returned value is already transformed by the function's Metric.
type Function interface {
	Name() string
	Schema() Schema
	Metric() Metric
	Evaluate(p Params) (float64, error)
	// DefaultSpace returns the documented default search space.
	DefaultSpace() SearchSpace
}

// ContextEvaluator is implemented by functions whose evaluation can be
// cancelled.
type ContextEvaluator interface {
	EvaluateContext(ctx context.Context, p Params) (float64, error)
}

// EvaluateContext evaluates fn, passing ctx through when fn supports it.
func EvaluateContext(ctx context.Context, fn Function, p Params) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if ce, ok := fn.(ContextEvaluator); ok {
		return ce.EvaluateContext(ctx, p)
	}
	return fn.Evaluate(p)
}

// Surface is a Function over the real-valued positional parameters
// x0..x{NDim-1}. LossAt evaluates the raw loss without validation or metric.
type Surface interface {
	Function
	NDim() int
	LossAt(x []float64) float64
	Optima() []Point
}

// Point is a known global minimum.
type Point struct {
	X    []float64 `json:"x"`
	Loss float64   `json:"loss"`
}

// Option configures the metric and evaluation delay of a function.
type Option func(*Options)

// Options holds the settings shared by all functions.
type Options struct {
	Metric Metric
	Sleep  time.Duration
}

// WithMetric selects the output metric. The default is Score.
func WithMetric(m Metric) Option {
	return func(o *Options) { o.Metric = m }
}

// WithSleep delays every evaluation by d, emulating an expensive objective.
func WithSleep(d time.Duration) Option {
	return func(o *Options) { o.Sleep = d }
}

// NewOptions applies opts over the defaults.
func NewOptions(opts ...Option) Options {
	o := Options{Metric: Score}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Finish applies the configured sleep and metric to a raw loss.
func (o Options) Finish(loss float64) float64 {
	if o.Sleep > 0 {
		time.Sleep(o.Sleep)
	}
	return o.Metric.Apply(loss)
}

// base is embedded by the positional surfaces.
type base struct {
	opts Options
	ndim int
}

func newBase(ndim int, opts []Option) base {
	return base{opts: NewOptions(opts...), ndim: ndim}
}

func (b *base) Metric() Metric { return b.opts.Metric }
func (b *base) NDim() int      { return b.ndim }
func (b *base) Schema() Schema { return PositionalSchema(b.ndim) }

// DefaultSpace returns arange(-5, 5, 0.1) for every dimension.
func (b *base) DefaultSpace() SearchSpace {
	s, _ := b.SearchSpace(DefaultMin, DefaultMax, DefaultStep)
	return s
}

// SearchSpace returns arange(min, max, step) for every dimension.
func (b *base) SearchSpace(min, max, step float64) (SearchSpace, error) {
	return PositionalSpace(b.ndim, min, max, step)
}

// evaluate validates p and applies loss to the positional vector.
func (b *base) evaluate(p Params, loss func([]float64) float64) (float64, error) {
	v, err := b.Schema().Validate(p)
	if err != nil {
		return 0, err
	}
	x := make([]float64, b.ndim)
	for i := range x {
		x[i] = v.Float(PositionalName(i))
	}
	return b.opts.Finish(loss(x)), nil
}

// Positional evaluates fn with args[i] bound to parameter "x<i>".
func Positional(fn Function, args ...float64) (float64, error) {
	p := make(Params, len(args))
	for i, a := range args {
		p[PositionalName(i)] = a
	}
	return fn.Evaluate(p)
}

// EvaluateArrays evaluates fn element-wise over column vectors, where cols[i]
// holds the values of "x<i>". Columns of length one are broadcast against the
// others; all remaining columns must share a length.
func EvaluateArrays(fn Function, cols ...[]float64) ([]float64, error) {
	n := 0
	for _, c := range cols {
		switch {
		case len(c) == 0:
			return nil, fmt.Errorf("%w: empty column", ErrShape)
		case len(c) == 1:
		case n <= 1:
			n = len(c)
		case len(c) != n:
			return nil, fmt.Errorf("%w: lengths %d and %d", ErrShape, n, len(c))
		}
	}
	if n == 0 && len(cols) > 0 {
		n = 1
	}

	out := make([]float64, n)
	args := make([]float64, len(cols))
	for i := range out {
		for j, c := range cols {
			if len(c) == 1 {
				args[j] = c[0]
			} else {
				args[j] = c[i]
			}
		}
		v, err := Positional(fn, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
