package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/surfaces/internal/ml"
	"github.com/cwbudde/surfaces/internal/surface"
)

func TestBuildSpaceDefault(t *testing.T) {
	f, err := New(surface.AckleyName, Settings{})
	require.NoError(t, err)
	space, err := BuildSpace(f, SpaceSpec{})
	require.NoError(t, err)
	assert.Equal(t, f.DefaultSpace().Size(), space.Size())
}

func TestBuildSpaceRange(t *testing.T) {
	f, err := New(surface.BealeName, Settings{})
	require.NoError(t, err)
	space, err := BuildSpace(f, SpaceSpec{Min: 0, Max: 4, Step: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 64, space.Size())

	knn, err := New(ml.KNNName, Settings{})
	require.NoError(t, err)
	_, err = BuildSpace(knn, SpaceSpec{Min: 0, Max: 4, Step: 0.5})
	assert.ErrorIs(t, err, surface.ErrSearchSpace)

	// integer and float spellings of one value normalise to the same point
	space, err = BuildSpace(f, SpaceSpec{Min: 0, Max: 4, Step: 0.5, Values: map[string][]any{
		"x0": {1, 1.0},
	}})
	require.NoError(t, err)
	values, _ := space.Values("x0")
	assert.Equal(t, []any{1.0}, values)
	assert.Equal(t, 8, space.Size())
}

func TestBuildSpaceValues(t *testing.T) {
	knn, err := New(ml.KNNName, Settings{})
	require.NoError(t, err)

	// JSON decoding yields float64 for integer parameters
	space, err := BuildSpace(knn, SpaceSpec{Values: map[string][]any{
		ml.ParamNNeighbors: {3.0, 5.0},
		ml.ParamDataset:    {"iris"},
	}})
	require.NoError(t, err)

	values, ok := space.Values(ml.ParamNNeighbors)
	require.True(t, ok)
	assert.Equal(t, []any{3, 5}, values)
	values, ok = space.Values(ml.ParamDataset)
	require.True(t, ok)
	assert.Equal(t, []any{"iris"}, values)

	space, err = BuildSpace(knn, SpaceSpec{Values: map[string][]any{
		ml.ParamNNeighbors: {5, 5.0, int64(5), 7},
	}})
	require.NoError(t, err)
	values, _ = space.Values(ml.ParamNNeighbors)
	assert.Equal(t, []any{5, 7}, values)

	_, err = BuildSpace(knn, SpaceSpec{Values: map[string][]any{"bogus": {1}}})
	assert.ErrorIs(t, err, surface.ErrUnknownParam)

	_, err = BuildSpace(knn, SpaceSpec{Values: map[string][]any{ml.ParamNNeighbors: {2.5}}})
	assert.ErrorIs(t, err, surface.ErrParamType)
}
