package catalog

import (
	"fmt"
	"sort"

	"github.com/cwbudde/surfaces/internal/surface"
)

// SpaceSpec describes a search space request. Step > 0 selects a uniform
// grid [Min, Max) for positional functions; Values replaces the candidate
// values of individual parameters.
type SpaceSpec struct {
	Min    float64          `json:"min,omitempty" yaml:"min"`
	Max    float64          `json:"max,omitempty" yaml:"max"`
	Step   float64          `json:"step,omitempty" yaml:"step"`
	Values map[string][]any `json:"values,omitempty" yaml:"values"`
}

type rangedSpace interface {
	SearchSpace(min, max, step float64) (surface.SearchSpace, error)
}

// BuildSpace returns fn's default space with spec applied.
func BuildSpace(fn surface.Function, spec SpaceSpec) (surface.SearchSpace, error) {
	space := fn.DefaultSpace()
	if spec.Step != 0 {
		r, ok := fn.(rangedSpace)
		if !ok {
			return surface.SearchSpace{}, fmt.Errorf("%w: %s does not take a numeric range", surface.ErrSearchSpace, fn.Name())
		}
		var err error
		if space, err = r.SearchSpace(spec.Min, spec.Max, spec.Step); err != nil {
			return surface.SearchSpace{}, err
		}
	}

	names := make([]string, 0, len(spec.Values))
	for name := range spec.Values {
		names = append(names, name)
	}
	sort.Strings(names)

	schema := fn.Schema()
	for _, name := range names {
		field, ok := schema.Field(name)
		if !ok {
			return surface.SearchSpace{}, fmt.Errorf("%w: %q", surface.ErrUnknownParam, name)
		}
		values := make([]any, len(spec.Values[name]))
		for i, v := range spec.Values[name] {
			p, err := surface.Schema{field}.Validate(surface.Params{name: v})
			if err != nil {
				return surface.SearchSpace{}, err
			}
			values[i] = p[name]
		}
		var err error
		if space, err = space.With(name, values); err != nil {
			return surface.SearchSpace{}, err
		}
	}
	return space, nil
}
