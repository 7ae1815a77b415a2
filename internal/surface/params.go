package surface

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind is the value type of a single parameter.
type Kind string

const (
	KindFloat  Kind = "float"
	KindInt    Kind = "int"
	KindString Kind = "string"
)

// Field describes one named parameter of a function.
type Field struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Schema is the fixed, ordered parameter layout of a function.
type Schema []Field

// PositionalSchema returns the schema x0..x{n-1} used by the mathematical
// surfaces.
func PositionalSchema(n int) Schema {
	s := make(Schema, n)
	for i := range s {
		s[i] = Field{Name: PositionalName(i), Kind: KindFloat}
	}
	return s
}

// PositionalName returns the parameter name of dimension i.
func PositionalName(i int) string {
	return "x" + strconv.Itoa(i)
}

// Names returns the parameter names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Field looks up a field by name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks p against the schema and returns a normalized copy in which
// every value has the Go type matching its Kind (float64, int or string).
// Missing, unknown and mistyped parameters are reported as errors wrapping
// ErrMissingParam, ErrUnknownParam and ErrParamType.
func (s Schema) Validate(p Params) (Params, error) {
	out := make(Params, len(s))
	for _, f := range s {
		v, ok := p[f.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingParam, f.Name)
		}
		nv, err := normalize(f.Kind, v)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrParamType, f.Name, err)
		}
		out[f.Name] = nv
	}
	if len(p) != len(s) {
		var unknown []string
		for k := range p {
			if _, ok := s.Field(k); !ok {
				unknown = append(unknown, k)
			}
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %q", ErrUnknownParam, unknown)
	}
	return out, nil
}

// IntFromFloat converts x to int when it is a whole number within the range
// of int.
func IntFromFloat(x float64) (int, bool) {
	if x != math.Trunc(x) || x < math.MinInt || x >= math.MaxInt {
		return 0, false
	}
	return int(x), true
}

func normalize(kind Kind, v any) (any, error) {
	switch kind {
	case KindFloat:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int:
			return float64(x), nil
		case int32:
			return float64(x), nil
		case int64:
			return float64(x), nil
		}
	case KindInt:
		switch x := v.(type) {
		case int:
			return x, nil
		case int32:
			return int(x), nil
		case int64:
			return int(x), nil
		case float64:
			// JSON numbers decode as float64.
			if n, ok := IntFromFloat(x); ok {
				return n, nil
			}
			return nil, fmt.Errorf("%v is not an integer", x)
		}
	case KindString:
		if x, ok := v.(string); ok {
			return x, nil
		}
	default:
		return nil, fmt.Errorf("unsupported kind %q", kind)
	}
	return nil, fmt.Errorf("want %s, got %T", kind, v)
}

// Params maps parameter names to values. After Schema.Validate every value is
// a float64, int or string.
type Params map[string]any

// Float returns the named value as float64. It is meant for validated
// parameters and returns 0 when the value is absent or not numeric.
func (p Params) Float(name string) float64 {
	switch x := p[name].(type) {
	case float64:
		return x
	case int:
		return float64(x)
	}
	return 0
}

// Int returns the named value as int; see Float.
func (p Params) Int(name string) int {
	switch x := p[name].(type) {
	case int:
		return x
	case float64:
		return int(x)
	}
	return 0
}

// String returns the named value as string; see Float.
func (p Params) String(name string) string {
	s, _ := p[name].(string)
	return s
}

// Copy returns a shallow copy of p.
func (p Params) Copy() Params {
	c := make(Params, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}
