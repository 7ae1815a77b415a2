package surface

import (
	"fmt"
	"math"
	"strconv"
)

// Default bounds of the positional search space.
const (
	DefaultMin  = -5.0
	DefaultMax  = 5.0
	DefaultStep = 0.1
)

// Dimension is one named axis of a search space.
type Dimension struct {
	Name   string `json:"name"`
	Values []any  `json:"values"`
}

// SearchSpace is an ordered list of dimensions whose cartesian product forms
// the grid to explore.
type SearchSpace struct {
	dims []Dimension
}

// NewSearchSpace validates and assembles a search space. Every dimension needs
// a unique, non-empty name and at least one value. Repeated values of a
// dimension are dropped, keeping the first occurrence, so every grid point
// is a distinct parameter tuple.
func NewSearchSpace(dims ...Dimension) (SearchSpace, error) {
	seen := make(map[string]bool, len(dims))
	out := make([]Dimension, len(dims))
	for i, d := range dims {
		if d.Name == "" {
			return SearchSpace{}, fmt.Errorf("%w: dimension %d has no name", ErrSearchSpace, i)
		}
		if seen[d.Name] {
			return SearchSpace{}, fmt.Errorf("%w: duplicate dimension %q", ErrSearchSpace, d.Name)
		}
		if len(d.Values) == 0 {
			return SearchSpace{}, fmt.Errorf("%w: dimension %q has no values", ErrSearchSpace, d.Name)
		}
		seen[d.Name] = true
		out[i] = Dimension{Name: d.Name, Values: uniqueValues(d.Values)}
	}
	return SearchSpace{dims: out}, nil
}

func uniqueValues(values []any) []any {
	seen := make(map[string]bool, len(values))
	out := make([]any, 0, len(values))
	for _, v := range values {
		k := valueKey(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

func valueKey(v any) string {
	if x, ok := v.(float64); ok {
		return "f" + strconv.FormatFloat(x, 'g', -1, 64)
	}
	return fmt.Sprintf("%T:%v", v, v)
}

// PositionalSpace returns a space with dimensions x0..x{n-1}, each holding
// Arange(min, max, step).
func PositionalSpace(n int, min, max, step float64) (SearchSpace, error) {
	if n < 1 {
		return SearchSpace{}, fmt.Errorf("%w: %d", ErrDimension, n)
	}
	vals, err := Arange(min, max, step)
	if err != nil {
		return SearchSpace{}, err
	}
	dims := make([]Dimension, n)
	for i := range dims {
		dims[i] = Dimension{Name: PositionalName(i), Values: Floats(vals...)}
	}
	return NewSearchSpace(dims...)
}

// Arange returns min, min+step, ... up to but excluding max.
func Arange(min, max, step float64) ([]float64, error) {
	if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("%w: step must be positive, got %v", ErrSearchSpace, step)
	}
	if !(max > min) {
		return nil, fmt.Errorf("%w: empty range [%v, %v)", ErrSearchSpace, min, max)
	}
	n := int(math.Ceil((max - min) / step))
	out := make([]float64, n)
	for i := range out {
		out[i] = min + float64(i)*step
	}
	return out, nil
}

// Floats converts values for use as a dimension.
func Floats(vs ...float64) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

// Ints converts values for use as a dimension.
func Ints(vs ...int) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

// Strings converts values for use as a dimension.
func Strings(vs ...string) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

// Dims returns a copy of the dimensions.
func (s SearchSpace) Dims() []Dimension {
	out := make([]Dimension, len(s.dims))
	copy(out, s.dims)
	return out
}

// Len returns the number of dimensions.
func (s SearchSpace) Len() int { return len(s.dims) }

// Names returns the dimension names in order.
func (s SearchSpace) Names() []string {
	out := make([]string, len(s.dims))
	for i, d := range s.dims {
		out[i] = d.Name
	}
	return out
}

// Values returns the candidate values of the named dimension.
func (s SearchSpace) Values(name string) ([]any, bool) {
	for _, d := range s.dims {
		if d.Name == name {
			return d.Values, true
		}
	}
	return nil, false
}

// Size returns the number of grid points, or 0 for an empty space.
func (s SearchSpace) Size() int {
	if len(s.dims) == 0 {
		return 0
	}
	n := 1
	for _, d := range s.dims {
		n *= len(d.Values)
	}
	return n
}

// Params returns the parameters at the grid index idx, one entry per
// dimension.
func (s SearchSpace) Params(idx []int) (Params, error) {
	if len(idx) != len(s.dims) {
		return nil, fmt.Errorf("%w: index has %d entries, space has %d dimensions", ErrSearchSpace, len(idx), len(s.dims))
	}
	p := make(Params, len(s.dims))
	for i, d := range s.dims {
		if idx[i] < 0 || idx[i] >= len(d.Values) {
			return nil, fmt.Errorf("%w: index %d out of range for %q", ErrSearchSpace, idx[i], d.Name)
		}
		p[d.Name] = d.Values[idx[i]]
	}
	return p, nil
}

// Index returns the flat grid position of idx in row-major order.
func (s SearchSpace) Index(idx []int) int {
	flat := 0
	for i, d := range s.dims {
		flat = flat*len(d.Values) + idx[i]
	}
	return flat
}

// Unravel converts a flat grid position into a per-dimension index.
func (s SearchSpace) Unravel(flat int) []int {
	idx := make([]int, len(s.dims))
	for i := len(s.dims) - 1; i >= 0; i-- {
		n := len(s.dims[i].Values)
		idx[i] = flat % n
		flat /= n
	}
	return idx
}

// Each calls fn for every grid point in row-major order until fn returns
// false.
func (s SearchSpace) Each(fn func(idx []int, p Params) bool) {
	size := s.Size()
	for flat := 0; flat < size; flat++ {
		idx := s.Unravel(flat)
		p, _ := s.Params(idx)
		if !fn(idx, p) {
			return
		}
	}
}

// With returns a copy of s in which the named dimension holds values. Unknown
// names are appended as new dimensions.
func (s SearchSpace) With(name string, values []any) (SearchSpace, error) {
	dims := s.Dims()
	for i := range dims {
		if dims[i].Name == name {
			dims[i].Values = values
			return NewSearchSpace(dims...)
		}
	}
	return NewSearchSpace(append(dims, Dimension{Name: name, Values: values})...)
}
