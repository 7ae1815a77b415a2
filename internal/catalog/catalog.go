// Package catalog maps function names to constructors for every objective
// shipped with surfaces.
package catalog

import (
	"fmt"
	"sort"

	"github.com/cwbudde/surfaces/internal/ml"
	"github.com/cwbudde/surfaces/internal/surface"
)

// Settings are the construction options shared by all functions.
type Settings struct {
	Metric surface.Metric
	// NDim is only used by functions with a configurable dimension.
	NDim    int
	Scoring ml.Scoring
	Options []surface.Option
}

// Constructor builds a function from settings.
type Constructor func(Settings) (surface.Function, error)

// Entry describes one registered function.
type Entry struct {
	Name        string
	Description string
	// Math is true for the closed-form surfaces.
	Math bool
	New  Constructor
}

var entries = map[string]Entry{
	surface.AckleyName: {
		Name:        surface.AckleyName,
		Description: "Ackley function in two dimensions, minimum 0 at (0, 0)",
		Math:        true,
		New: func(s Settings) (surface.Function, error) {
			return surface.NewAckley(s.options()...), nil
		},
	},
	surface.RastriginName: {
		Name:        surface.RastriginName,
		Description: "Rastrigin function in n dimensions, minimum 0 at the origin",
		Math:        true,
		New: func(s Settings) (surface.Function, error) {
			n := s.NDim
			if n == 0 {
				n = 2
			}
			return surface.NewRastrigin(n, s.options()...)
		},
	},
	surface.RosenbrockName: {
		Name:        surface.RosenbrockName,
		Description: "Rosenbrock valley in two dimensions, minimum 0 at (1, 1)",
		Math:        true,
		New: func(s Settings) (surface.Function, error) {
			return surface.NewRosenbrock(s.options()...), nil
		},
	},
	surface.BealeName: {
		Name:        surface.BealeName,
		Description: "Beale function in two dimensions, minimum 0 at (3, 0.5)",
		Math:        true,
		New: func(s Settings) (surface.Function, error) {
			return surface.NewBeale(s.options()...), nil
		},
	},
	ml.KNNName: {
		Name:        ml.KNNName,
		Description: "k-nearest-neighbours classifier scored by stratified k-fold cross-validation",
		New: func(s Settings) (surface.Function, error) {
			f := ml.NewKNeighborsClassifierFunction(s.options()...)
			if s.Scoring != "" {
				sc, err := ml.ParseScoring(string(s.Scoring))
				if err != nil {
					return nil, err
				}
				f.Scoring = sc
			}
			return f, nil
		},
	},
}

func (s Settings) options() []surface.Option {
	opts := append([]surface.Option(nil), s.Options...)
	if s.Metric != "" {
		opts = append(opts, surface.WithMetric(s.Metric))
	}
	return opts
}

// Names returns all registered names in sorted order.
func Names() []string {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries returns all registered entries in name order.
func Entries() []Entry {
	out := make([]Entry, 0, len(entries))
	for _, name := range Names() {
		out = append(out, entries[name])
	}
	return out
}

// Lookup returns the entry registered under name.
func Lookup(name string) (Entry, error) {
	e, ok := entries[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", surface.ErrUnknownFunction, name)
	}
	return e, nil
}

// New constructs the named function.
func New(name string, s Settings) (surface.Function, error) {
	e, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	f, err := e.New(s)
	if err != nil {
		return nil, fmt.Errorf("failed to construct %s: %w", name, err)
	}
	return f, nil
}
