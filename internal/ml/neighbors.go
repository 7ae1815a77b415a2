package ml

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/vptree"
)

// neighborIndex answers k-nearest-neighbour queries over a fixed training set.
// nearest returns the indices of the k closest training samples, closest
// first.
type neighborIndex interface {
	nearest(q []float64, k int) []int
}

// bruteIndex scans every training sample. Ties are broken by sample index.
type bruteIndex struct {
	rows [][]float64
}

func (b *bruteIndex) nearest(q []float64, k int) []int {
	type cand struct {
		i int
		d float64
	}
	cands := make([]cand, len(b.rows))
	for i, r := range b.rows {
		cands[i] = cand{i: i, d: sqDist(q, r)}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].d < cands[j].d })

	k = min(k, len(cands))
	out := make([]int, k)
	for i := range out {
		out[i] = cands[i].i
	}
	return out
}

func sqDist(a, b []float64) float64 {
	var sum float64
	for i, v := range a {
		d := v - b[i]
		sum += d * d
	}
	return sum
}

// kdPoint is a training sample stored in a k-d tree.
type kdPoint struct {
	x   []float64
	idx int
}

func (p kdPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.x[d] - c.(kdPoint).x[d]
}

func (p kdPoint) Dims() int { return len(p.x) }

func (p kdPoint) Distance(c kdtree.Comparable) float64 {
	return sqDist(p.x, c.(kdPoint).x)
}

type kdPoints []kdPoint

func (p kdPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p kdPoints) Len() int                              { return len(p) }
func (p kdPoints) Pivot(d kdtree.Dim) int                { return kdPlane{Dim: d, kdPoints: p}.Pivot() }
func (p kdPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// kdPlane pivots kdPoints on one dimension.
type kdPlane struct {
	kdtree.Dim
	kdPoints
}

func (p kdPlane) Less(i, j int) bool { return p.kdPoints[i].x[p.Dim] < p.kdPoints[j].x[p.Dim] }
func (p kdPlane) Swap(i, j int)      { p.kdPoints[i], p.kdPoints[j] = p.kdPoints[j], p.kdPoints[i] }
func (p kdPlane) Pivot() int {
	return kdtree.Partition(p, kdtree.MedianOfRandoms(p, 100))
}
func (p kdPlane) Slice(start, end int) kdtree.SortSlicer {
	p.kdPoints = p.kdPoints[start:end]
	return p
}

type kdIndex struct {
	tree *kdtree.Tree
}

func newKDIndex(rows [][]float64) *kdIndex {
	pts := make(kdPoints, len(rows))
	for i, r := range rows {
		pts[i] = kdPoint{x: r, idx: i}
	}
	return &kdIndex{tree: kdtree.New(pts, false)}
}

func (t *kdIndex) nearest(q []float64, k int) []int {
	query := kdPoint{x: q, idx: -1}
	get := func(c kdtree.ComparableDist) (int, float64, bool) {
		if c.Comparable == nil {
			return 0, 0, false
		}
		return c.Comparable.(kdPoint).idx, c.Dist, true
	}

	keep := kdtree.NewNKeeper(k)
	t.tree.NearestSet(keep, query)
	bound, ok := boundary([]kdtree.ComparableDist(keep.Heap), get)
	if !ok {
		return nil
	}
	ties := kdtree.NewDistKeeper(bound)
	t.tree.NearestSet(ties, query)
	return keptIndices([]kdtree.ComparableDist(ties.Heap), k, get)
}

// vpPoint is a training sample stored in a vantage point tree, which needs a
// true metric.
type vpPoint struct {
	x   []float64
	idx int
}

func (p vpPoint) Distance(c vptree.Comparable) float64 {
	return math.Sqrt(sqDist(p.x, c.(vpPoint).x))
}

type ballIndex struct {
	tree *vptree.Tree
}

func newBallIndex(rows [][]float64) (*ballIndex, error) {
	pts := make([]vptree.Comparable, len(rows))
	for i, r := range rows {
		pts[i] = vpPoint{x: r, idx: i}
	}
	t, err := vptree.New(pts, 3, rand.NewPCG(1, 2))
	if err != nil {
		return nil, err
	}
	return &ballIndex{tree: t}, nil
}

func (t *ballIndex) nearest(q []float64, k int) []int {
	query := vpPoint{x: q, idx: -1}
	get := func(c vptree.ComparableDist) (int, float64, bool) {
		if c.Comparable == nil {
			return 0, 0, false
		}
		return c.Comparable.(vpPoint).idx, c.Dist, true
	}

	keep := vptree.NewNKeeper(k)
	t.tree.NearestSet(keep, query)
	bound, ok := boundary([]vptree.ComparableDist(keep.Heap), get)
	if !ok {
		return nil
	}
	ties := vptree.NewDistKeeper(bound)
	t.tree.NearestSet(ties, query)
	return keptIndices([]vptree.ComparableDist(ties.Heap), k, get)
}

// boundary returns the distance of the farthest kept neighbour.
func boundary[T any](heap []T, get func(T) (int, float64, bool)) (float64, bool) {
	bound, found := 0.0, false
	for _, c := range heap {
		if _, d, ok := get(c); ok && (!found || d > bound) {
			bound, found = d, true
		}
	}
	return bound, found
}

// keptIndices orders tree results by distance then sample index and keeps
// the first k. Given every sample up to the k-th distance, this selects the
// same neighbours as bruteIndex.
func keptIndices[T any](heap []T, k int, get func(T) (int, float64, bool)) []int {
	type cand struct {
		i int
		d float64
	}
	cands := make([]cand, 0, len(heap))
	for _, c := range heap {
		if i, d, ok := get(c); ok {
			cands = append(cands, cand{i: i, d: d})
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].d != cands[j].d {
			return cands[i].d < cands[j].d
		}
		return cands[i].i < cands[j].i
	})
	cands = cands[:min(k, len(cands))]
	out := make([]int, len(cands))
	for i, c := range cands {
		out[i] = c.i
	}
	return out
}
