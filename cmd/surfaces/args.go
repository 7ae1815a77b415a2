package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cwbudde/surfaces/internal/catalog"
	"github.com/cwbudde/surfaces/internal/ml"
	"github.com/cwbudde/surfaces/internal/surface"
)

// functionFlags are the construction options shared by eval, space, collect
// and optimize.
type functionFlags struct {
	metric  string
	ndim    int
	scoring string
}

func (f *functionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.metric, "metric", "score", "Output metric (score, loss)")
	cmd.Flags().IntVar(&f.ndim, "ndim", 0, "Dimension of functions with a configurable dimension")
	cmd.Flags().StringVar(&f.scoring, "scoring", "", "Cross-validation scoring (accuracy, balanced_accuracy)")
}

// build constructs the named function from the flags.
func (f *functionFlags) build(name string) (surface.Function, error) {
	metric, err := surface.ParseMetric(f.metric)
	if err != nil {
		return nil, err
	}
	scoring, err := ml.ParseScoring(f.scoring)
	if err != nil {
		return nil, err
	}
	return catalog.New(name, catalog.Settings{Metric: metric, NDim: f.ndim, Scoring: scoring})
}

// parseValue converts s to the Go type of kind. Names outside the schema are
// kept as strings and rejected later by Schema.Validate.
func parseValue(kind surface.Kind, s string) (any, error) {
	switch kind {
	case surface.KindFloat:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", surface.ErrParamType, s)
		}
		return v, nil
	case surface.KindInt:
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", surface.ErrParamType, s)
		}
		return v, nil
	}
	return s, nil
}

func splitAssignment(arg string) (string, string, error) {
	name, value, ok := strings.Cut(arg, "=")
	if !ok || name == "" {
		return "", "", fmt.Errorf("expected name=value, got %q", arg)
	}
	return name, value, nil
}

// parseAssignments turns name=value arguments into parameters typed by schema.
func parseAssignments(schema surface.Schema, args []string) (surface.Params, error) {
	p := make(surface.Params, len(args))
	for _, arg := range args {
		name, raw, err := splitAssignment(arg)
		if err != nil {
			return nil, err
		}
		if _, dup := p[name]; dup {
			return nil, fmt.Errorf("parameter %q given twice", name)
		}
		field, _ := schema.Field(name)
		v, err := parseValue(field.Kind, raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		p[name] = v
	}
	return p, nil
}

// parseValueSets turns name=v1,v2,... arguments into search space overrides.
func parseValueSets(schema surface.Schema, sets []string) (map[string][]any, error) {
	if len(sets) == 0 {
		return nil, nil
	}
	out := make(map[string][]any, len(sets))
	for _, set := range sets {
		name, raw, err := splitAssignment(set)
		if err != nil {
			return nil, err
		}
		field, ok := schema.Field(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", surface.ErrUnknownParam, name)
		}
		for _, item := range strings.Split(raw, ",") {
			v, err := parseValue(field.Kind, strings.TrimSpace(item))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			out[name] = append(out[name], v)
		}
	}
	return out, nil
}

// spaceFlags describe a search space override on the command line.
type spaceFlags struct {
	min, max, step float64
	sets           []string
}

func (f *spaceFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.min, "min", surface.DefaultMin, "Lower bound of positional parameters")
	cmd.Flags().Float64Var(&f.max, "max", surface.DefaultMax, "Upper bound (exclusive) of positional parameters")
	cmd.Flags().Float64Var(&f.step, "step", 0, "Grid step of positional parameters (0 keeps the default space)")
	cmd.Flags().StringArrayVar(&f.sets, "set", nil, "Candidate values as name=v1,v2,... (repeatable)")
}

func (f *spaceFlags) spec(schema surface.Schema) (catalog.SpaceSpec, error) {
	values, err := parseValueSets(schema, f.sets)
	if err != nil {
		return catalog.SpaceSpec{}, err
	}
	return catalog.SpaceSpec{Min: f.min, Max: f.max, Step: f.step, Values: values}, nil
}
