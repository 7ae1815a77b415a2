package surface

import (
	"fmt"
	"math"
)

// Function names as registered in the catalog and used as store table names.
const (
	AckleyName     = "ackley_function"
	RastriginName  = "rastrigin_function"
	RosenbrockName = "rosenbrock_function"
	BealeName      = "beale_function"
)

// Ackley is the two-dimensional Ackley function
//
//	f(x, y) = -A·exp(-0.2·sqrt(0.5(x²+y²))) - exp(0.5(cos Bx + cos By)) + e + A
//
// with global minimum f(0, 0) = 0.
type Ackley struct {
	base
	A, B float64
}

// NewAckley returns the Ackley function with A=20 and B=2π.
func NewAckley(opts ...Option) *Ackley {
	return &Ackley{base: newBase(2, opts), A: 20, B: 2 * math.Pi}
}

func (f *Ackley) Name() string { return AckleyName }

// Loss evaluates the raw Ackley loss.
func (f *Ackley) Loss(x, y float64) float64 {
	t1 := -f.A * math.Exp(-0.2*math.Sqrt(0.5*(x*x+y*y)))
	t2 := -math.Exp(0.5 * (math.Cos(f.B*x) + math.Cos(f.B*y)))
	return t1 + t2 + math.E + f.A
}

func (f *Ackley) LossAt(x []float64) float64 { return f.Loss(x[0], x[1]) }

func (f *Ackley) Evaluate(p Params) (float64, error) { return f.evaluate(p, f.LossAt) }

func (f *Ackley) Optima() []Point {
	return []Point{{X: []float64{0, 0}, Loss: 0}}
}

// Rastrigin is the n-dimensional Rastrigin function
//
//	f(x) = A·n + Σ (xᵢ² - A·cos(B·xᵢ))
//
// with global minimum f(0, ..., 0) = 0.
type Rastrigin struct {
	base
	A, B float64
}

// NewRastrigin returns an nDim-dimensional Rastrigin function with A=1 and
// B=2π.
func NewRastrigin(nDim int, opts ...Option) (*Rastrigin, error) {
	if nDim < 1 {
		return nil, fmt.Errorf("%w: rastrigin needs at least one dimension, got %d", ErrDimension, nDim)
	}
	return &Rastrigin{base: newBase(nDim, opts), A: 1, B: 2 * math.Pi}, nil
}

func (f *Rastrigin) Name() string { return RastriginName }

// Loss evaluates the raw Rastrigin loss; len(x) must equal NDim.
func (f *Rastrigin) Loss(x []float64) float64 {
	sum := f.A * float64(len(x))
	for _, xi := range x {
		sum += xi*xi - f.A*math.Cos(f.B*xi)
	}
	return sum
}

func (f *Rastrigin) LossAt(x []float64) float64 { return f.Loss(x) }

func (f *Rastrigin) Evaluate(p Params) (float64, error) { return f.evaluate(p, f.Loss) }

func (f *Rastrigin) Optima() []Point {
	return []Point{{X: make([]float64, f.ndim), Loss: 0}}
}

// Rosenbrock is the two-dimensional Rosenbrock valley
//
//	f(x, y) = (A-x)² + B(y-x²)²
//
// with global minimum f(A, A²) = 0.
type Rosenbrock struct {
	base
	A, B float64
}

// NewRosenbrock returns the Rosenbrock function with A=1 and B=100.
func NewRosenbrock(opts ...Option) *Rosenbrock {
	return &Rosenbrock{base: newBase(2, opts), A: 1, B: 100}
}

func (f *Rosenbrock) Name() string { return RosenbrockName }

func (f *Rosenbrock) Loss(x, y float64) float64 {
	a := f.A - x
	b := y - x*x
	return a*a + f.B*b*b
}

func (f *Rosenbrock) LossAt(x []float64) float64 { return f.Loss(x[0], x[1]) }

func (f *Rosenbrock) Evaluate(p Params) (float64, error) { return f.evaluate(p, f.LossAt) }

func (f *Rosenbrock) Optima() []Point {
	return []Point{{X: []float64{f.A, f.A * f.A}, Loss: 0}}
}

// Beale is the two-dimensional Beale function
//
//	f(x, y) = (A-x+xy)² + (B-x+xy²)² + (C-x+xy³)²
//
// with global minimum f(3, 0.5) = 0.
type Beale struct {
	base
	A, B, C float64
}

// NewBeale returns the Beale function with A=1.5, B=2.25 and C=2.625.
func NewBeale(opts ...Option) *Beale {
	return &Beale{base: newBase(2, opts), A: 1.5, B: 2.25, C: 2.625}
}

func (f *Beale) Name() string { return BealeName }

func (f *Beale) Loss(x, y float64) float64 {
	t1 := f.A - x + x*y
	t2 := f.B - x + x*y*y
	t3 := f.C - x + x*y*y*y
	return t1*t1 + t2*t2 + t3*t3
}

func (f *Beale) LossAt(x []float64) float64 { return f.Loss(x[0], x[1]) }

func (f *Beale) Evaluate(p Params) (float64, error) { return f.evaluate(p, f.LossAt) }

func (f *Beale) Optima() []Point {
	return []Point{{X: []float64{3, 0.5}, Loss: 0}}
}
