package surface

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArange(t *testing.T) {
	vals, err := Arange(-1, 1, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, -0.5, 0, 0.5}, vals)

	_, err = Arange(0, 1, 0)
	assert.ErrorIs(t, err, ErrSearchSpace)
	_, err = Arange(1, 1, 0.1)
	assert.ErrorIs(t, err, ErrSearchSpace)
}

func TestNewSearchSpaceRejectsBadDimensions(t *testing.T) {
	_, err := NewSearchSpace(Dimension{Name: "a"})
	assert.ErrorIs(t, err, ErrSearchSpace)

	_, err = NewSearchSpace(
		Dimension{Name: "a", Values: Ints(1)},
		Dimension{Name: "a", Values: Ints(2)},
	)
	assert.ErrorIs(t, err, ErrSearchSpace)

	_, err = NewSearchSpace(Dimension{Values: Ints(1)})
	assert.ErrorIs(t, err, ErrSearchSpace)
}

func TestNewSearchSpaceDropsRepeatedValues(t *testing.T) {
	s, err := NewSearchSpace(
		Dimension{Name: "x0", Values: Floats(3, 3, 1, 3)},
		Dimension{Name: "algo", Values: Strings("b", "a", "b")},
	)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Size())
	vals, _ := s.Values("x0")
	assert.Equal(t, Floats(3, 1), vals)
	vals, _ = s.Values("algo")
	assert.Equal(t, Strings("b", "a"), vals)

	s, err = s.With("x0", Floats(2, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Size())

	// distinct types stay distinct
	s, err = NewSearchSpace(Dimension{Name: "v", Values: []any{1, 1.0, "1"}})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Size())
}

func TestSearchSpaceEnumeration(t *testing.T) {
	s, err := NewSearchSpace(
		Dimension{Name: "k", Values: Ints(1, 2, 3)},
		Dimension{Name: "algo", Values: Strings("a", "b")},
	)
	require.NoError(t, err)
	assert.Equal(t, 6, s.Size())
	assert.Equal(t, 2, s.Len())

	seen := map[int]Params{}
	s.Each(func(idx []int, p Params) bool {
		flat := s.Index(idx)
		assert.Equal(t, idx, s.Unravel(flat))
		seen[flat] = p
		return true
	})
	require.Len(t, seen, 6)
	assert.Equal(t, Params{"k": 1, "algo": "a"}, seen[0])
	assert.Equal(t, Params{"k": 3, "algo": "b"}, seen[5])

	count := 0
	s.Each(func([]int, Params) bool {
		count++
		return count < 2
	})
	assert.Equal(t, 2, count)

	_, err = s.Params([]int{3, 0})
	assert.ErrorIs(t, err, ErrSearchSpace)
}

func TestSearchSpaceWith(t *testing.T) {
	s, err := NewSearchSpace(Dimension{Name: "k", Values: Ints(1, 2)})
	require.NoError(t, err)

	s2, err := s.With("k", Ints(7))
	require.NoError(t, err)
	vals, _ := s2.Values("k")
	assert.Equal(t, Ints(7), vals)

	// receiver untouched
	vals, _ = s.Values("k")
	assert.Equal(t, Ints(1, 2), vals)

	s3, err := s.With("cv", Ints(2, 3))
	require.NoError(t, err)
	assert.Equal(t, []string{"k", "cv"}, s3.Names())
}

func TestEvaluateArrays(t *testing.T) {
	f := NewRosenbrock(WithMetric(Loss))

	xs := []float64{0, 0.5, 1, 2}
	out, err := EvaluateArrays(f, xs, []float64{1})
	require.NoError(t, err)
	require.Len(t, out, len(xs))
	for i, x := range xs {
		want, err := f.Evaluate(Params{"x0": x, "x1": 1.0})
		require.NoError(t, err)
		assert.Equal(t, want, out[i])
	}

	_, err = EvaluateArrays(f, []float64{1, 2}, []float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrShape)
	_, err = EvaluateArrays(f, []float64{}, []float64{1})
	assert.ErrorIs(t, err, ErrShape)
}

func TestSchemaNormalizesNumbers(t *testing.T) {
	s := Schema{{Name: "n", Kind: KindInt}, {Name: "x", Kind: KindFloat}, {Name: "s", Kind: KindString}}

	p, err := s.Validate(Params{"n": 4.0, "x": int64(3), "s": "brute"})
	require.NoError(t, err)
	assert.Equal(t, Params{"n": 4, "x": 3.0, "s": "brute"}, p)
	assert.Equal(t, 4, p.Int("n"))
	assert.Equal(t, 3.0, p.Float("x"))
	assert.Equal(t, "brute", p.String("s"))

	_, err = s.Validate(Params{"n": 4.5, "x": 1.0, "s": "brute"})
	assert.ErrorIs(t, err, ErrParamType)
}

func TestIntFromFloat(t *testing.T) {
	n, ok := IntFromFloat(-7)
	assert.True(t, ok)
	assert.Equal(t, -7, n)

	for _, x := range []float64{0.5, 1e300, -1e300, math.Inf(1), math.NaN(), math.MaxInt64} {
		_, ok := IntFromFloat(x)
		assert.False(t, ok, "%v", x)
	}

	s := Schema{{Name: "n", Kind: KindInt}}
	_, err := s.Validate(Params{"n": 1e300})
	assert.ErrorIs(t, err, ErrParamType)
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, Score, m)

	m, err = ParseMetric("loss")
	require.NoError(t, err)
	assert.Equal(t, Loss, m)

	_, err = ParseMetric("accuracy")
	assert.Error(t, err)
}
