package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/surfaces/internal/surface"
)

func knnParams(k int, algo string, cv int, dataset string) surface.Params {
	return surface.Params{
		ParamNNeighbors: k,
		ParamAlgorithm:  algo,
		ParamCV:         cv,
		ParamDataset:    dataset,
	}
}

func TestKNNEvaluateIris(t *testing.T) {
	f := NewKNeighborsClassifierFunction()
	assert.Equal(t, surface.Score, f.Metric())

	score, err := f.Evaluate(knnParams(5, "kd_tree", 5, Iris))
	require.NoError(t, err)
	assert.Greater(t, score, 0.9)
	assert.LessOrEqual(t, score, 1.0)

	loss, err := NewKNeighborsClassifierFunction(surface.WithMetric(surface.Loss)).
		Evaluate(knnParams(5, "kd_tree", 5, Iris))
	require.NoError(t, err)
	assert.Equal(t, -score, loss)
}

func TestKNNEvaluateAcceptsJSONNumbers(t *testing.T) {
	f := NewKNeighborsClassifierFunction()
	a, err := f.Evaluate(knnParams(8, "brute", 3, Moons))
	require.NoError(t, err)

	b, err := f.Evaluate(surface.Params{
		ParamNNeighbors: 8.0,
		ParamAlgorithm:  "brute",
		ParamCV:         3.0,
		ParamDataset:    Moons,
	})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestKNNTooManyNeighborsScoresNaN(t *testing.T) {
	f := NewKNeighborsClassifierFunction()
	// cv=2 leaves 75 training samples per fold
	got, err := f.Evaluate(knnParams(148, "brute", 2, Iris))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got))
}

func TestKNNEvaluateErrors(t *testing.T) {
	f := NewKNeighborsClassifierFunction()

	_, err := f.Evaluate(knnParams(5, "brute", 5, "wine"))
	assert.ErrorIs(t, err, ErrUnknownDataset)

	_, err = f.Evaluate(knnParams(5, "annoy", 5, Iris))
	assert.ErrorIs(t, err, ErrInvalidHyperparameter)

	_, err = f.Evaluate(knnParams(5, "brute", 1, Iris))
	assert.ErrorIs(t, err, ErrInvalidHyperparameter)

	_, err = f.Evaluate(surface.Params{ParamNNeighbors: 5, ParamAlgorithm: "brute", ParamCV: 5})
	assert.ErrorIs(t, err, surface.ErrMissingParam)
}

func TestKNNBalancedAccuracy(t *testing.T) {
	f := NewKNeighborsClassifierFunction()
	f.Scoring = BalancedAccuracy

	got, err := f.Evaluate(knnParams(3, "ball_tree", 4, Blobs))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, got, 0.0)
	assert.LessOrEqual(t, got, 1.0)
}

func TestKNNSearchSpace(t *testing.T) {
	f := NewKNeighborsClassifierFunction()

	def := f.DefaultSpace()
	assert.Equal(t, []string{ParamNNeighbors, ParamAlgorithm, ParamCV, ParamDataset}, def.Names())
	k, _ := def.Values(ParamNNeighbors)
	require.Len(t, k, 30)
	assert.Equal(t, 3, k[0])
	assert.Equal(t, 148, k[29])
	assert.Equal(t, 30*4*6*3, def.Size())

	s, err := f.SearchSpace(WithNNeighbors(1, 2), WithDatasets(Moons))
	require.NoError(t, err)
	k, _ = s.Values(ParamNNeighbors)
	assert.Equal(t, surface.Ints(1, 2), k)
	ds, _ := s.Values(ParamDataset)
	assert.Equal(t, surface.Strings(Moons), ds)
	cv, _ := s.Values(ParamCV)
	assert.Equal(t, surface.Ints(DefaultCV()...), cv)
	algo, _ := s.Values(ParamAlgorithm)
	assert.Equal(t, surface.Strings("auto", "ball_tree", "kd_tree", "brute"), algo)

	s, err = f.SearchSpace(WithNNeighbors(5, 5), WithCV(3, 3), WithDatasets(Iris))
	require.NoError(t, err)
	k, _ = s.Values(ParamNNeighbors)
	assert.Equal(t, surface.Ints(5), k)
	assert.Equal(t, 1*4*1*1, s.Size())

	_, err = f.SearchSpace(WithCV())
	assert.ErrorIs(t, err, surface.ErrSearchSpace)
}
