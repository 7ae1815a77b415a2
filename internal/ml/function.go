// Package ml provides hyperparameter-search surfaces backed by small machine
// learning models scored with k-fold cross-validation.
package ml

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/surfaces/internal/surface"
)

// KNNName is the catalog name of the k-nearest-neighbours surface.
const KNNName = "k_neighbors_classifier"

// Parameter names of the k-nearest-neighbours surface.
const (
	ParamNNeighbors = "n_neighbors"
	ParamAlgorithm  = "algorithm"
	ParamCV         = "cv"
	ParamDataset    = "dataset"
)

var knnSchema = surface.Schema{
	{Name: ParamNNeighbors, Kind: surface.KindInt},
	{Name: ParamAlgorithm, Kind: surface.KindString},
	{Name: ParamCV, Kind: surface.KindInt},
	{Name: ParamDataset, Kind: surface.KindString},
}

// KNeighborsClassifierFunction scores a k-nearest-neighbours classifier with
// stratified k-fold cross-validation. Under the Score metric the mean fold
// score is returned unchanged; Loss negates it.
type KNeighborsClassifierFunction struct {
	opts    surface.Options
	Scoring Scoring
}

// NewKNeighborsClassifierFunction returns the surface scored by accuracy.
func NewKNeighborsClassifierFunction(opts ...surface.Option) *KNeighborsClassifierFunction {
	return &KNeighborsClassifierFunction{opts: surface.NewOptions(opts...), Scoring: Accuracy}
}

func (f *KNeighborsClassifierFunction) Name() string           { return KNNName }
func (f *KNeighborsClassifierFunction) Schema() surface.Schema { return knnSchema }
func (f *KNeighborsClassifierFunction) Metric() surface.Metric { return f.opts.Metric }

// Evaluate runs one cross-validation with the given hyperparameters.
func (f *KNeighborsClassifierFunction) Evaluate(p surface.Params) (float64, error) {
	return f.EvaluateContext(context.Background(), p)
}

// EvaluateContext is Evaluate with cancellation of the fold workers.
func (f *KNeighborsClassifierFunction) EvaluateContext(ctx context.Context, p surface.Params) (float64, error) {
	v, err := knnSchema.Validate(p)
	if err != nil {
		return 0, err
	}
	algo, err := ParseAlgorithm(v.String(ParamAlgorithm))
	if err != nil {
		return 0, err
	}
	k := v.Int(ParamNNeighbors)
	if _, err := NewKNeighborsClassifier(k, algo); err != nil {
		return 0, err
	}
	ds, err := LoadDataset(v.String(ParamDataset))
	if err != nil {
		return 0, err
	}
	folds, err := StratifiedKFold(ds.Y, v.Int(ParamCV))
	if err != nil {
		return 0, err
	}

	scoring := f.Scoring
	if scoring == "" {
		scoring = Accuracy
	}
	scores, err := CrossValScore(ctx, func() Classifier {
		return &KNeighborsClassifier{NNeighbors: k, Algorithm: algo}
	}, ds.X, ds.Y, folds, scoring)
	if err != nil {
		return 0, fmt.Errorf("cross-validation on %s: %w", ds.Name, err)
	}

	mean := stat.Mean(scores, nil)
	return f.opts.Finish(-mean), nil
}

// SpaceOption overrides one hyperparameter of the default search space.
type SpaceOption func(*spaceConfig)

type spaceConfig struct {
	nNeighbors []int
	algorithms []string
	cv         []int
	datasets   []string
}

func WithNNeighbors(v ...int) SpaceOption    { return func(c *spaceConfig) { c.nNeighbors = v } }
func WithAlgorithms(v ...string) SpaceOption { return func(c *spaceConfig) { c.algorithms = v } }
func WithCV(v ...int) SpaceOption            { return func(c *spaceConfig) { c.cv = v } }
func WithDatasets(v ...string) SpaceOption   { return func(c *spaceConfig) { c.datasets = v } }

// DefaultNNeighbors returns 3, 8, ..., 148.
func DefaultNNeighbors() []int {
	var out []int
	for k := 3; k < 150; k += 5 {
		out = append(out, k)
	}
	return out
}

// DefaultCV returns the default fold counts.
func DefaultCV() []int { return []int{2, 3, 4, 5, 8, 10} }

// SearchSpace returns the default hyperparameter grid with the given
// overrides applied.
func (f *KNeighborsClassifierFunction) SearchSpace(opts ...SpaceOption) (surface.SearchSpace, error) {
	algos := make([]string, len(Algorithms))
	for i, a := range Algorithms {
		algos[i] = string(a)
	}
	c := spaceConfig{
		nNeighbors: DefaultNNeighbors(),
		algorithms: algos,
		cv:         DefaultCV(),
		datasets:   []string{Iris, Blobs, Moons},
	}
	for _, opt := range opts {
		opt(&c)
	}
	return surface.NewSearchSpace(
		surface.Dimension{Name: ParamNNeighbors, Values: surface.Ints(c.nNeighbors...)},
		surface.Dimension{Name: ParamAlgorithm, Values: surface.Strings(c.algorithms...)},
		surface.Dimension{Name: ParamCV, Values: surface.Ints(c.cv...)},
		surface.Dimension{Name: ParamDataset, Values: surface.Strings(c.datasets...)},
	)
}

// DefaultSpace returns the search space without overrides.
func (f *KNeighborsClassifierFunction) DefaultSpace() surface.SearchSpace {
	s, _ := f.SearchSpace()
	return s
}
