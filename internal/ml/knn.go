package ml

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Algorithm selects the neighbour search structure.
type Algorithm string

const (
	Auto     Algorithm = "auto"
	BallTree Algorithm = "ball_tree"
	KDTree   Algorithm = "kd_tree"
	Brute    Algorithm = "brute"
)

// Algorithms lists every supported algorithm.
var Algorithms = []Algorithm{Auto, BallTree, KDTree, Brute}

// autoKDTreeMaxDims is the largest feature count for which Auto picks a k-d
// tree.
const autoKDTreeMaxDims = 15

// ParseAlgorithm validates an algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	for _, a := range Algorithms {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: algorithm %q", ErrInvalidHyperparameter, s)
}

// Classifier is a supervised model over dense feature rows.
type Classifier interface {
	Fit(x mat.Matrix, y []int) error
	Predict(x mat.Matrix) ([]int, error)
}

// KNeighborsClassifier predicts the majority label among the NNeighbors
// closest training samples under the Euclidean distance. Ties go to the
// smallest label. Equidistant samples at the k-th distance are taken in
// sample order, whichever Algorithm is used.
type KNeighborsClassifier struct {
	NNeighbors int
	Algorithm  Algorithm

	index  neighborIndex
	labels []int
	dims   int
}

// NewKNeighborsClassifier validates the hyperparameters and returns an
// unfitted classifier.
func NewKNeighborsClassifier(nNeighbors int, algorithm Algorithm) (*KNeighborsClassifier, error) {
	if nNeighbors < 1 {
		return nil, fmt.Errorf("%w: n_neighbors must be positive, got %d", ErrInvalidHyperparameter, nNeighbors)
	}
	if _, err := ParseAlgorithm(string(algorithm)); err != nil {
		return nil, err
	}
	return &KNeighborsClassifier{NNeighbors: nNeighbors, Algorithm: algorithm}, nil
}

// Fit stores the training set in the configured search structure.
func (c *KNeighborsClassifier) Fit(x mat.Matrix, y []int) error {
	r, d := x.Dims()
	if r != len(y) {
		return fmt.Errorf("fit: %d rows but %d labels", r, len(y))
	}
	if r < c.NNeighbors {
		return fmt.Errorf("%w: n_neighbors=%d but only %d samples", ErrTooFewSamples, c.NNeighbors, r)
	}

	rows := denseRows(x)
	algo := c.Algorithm
	if algo == Auto {
		algo = Brute
		if d <= autoKDTreeMaxDims {
			algo = KDTree
		}
	}

	switch algo {
	case Brute:
		c.index = &bruteIndex{rows: rows}
	case KDTree:
		c.index = newKDIndex(rows)
	case BallTree:
		idx, err := newBallIndex(rows)
		if err != nil {
			return fmt.Errorf("failed to build ball tree: %w", err)
		}
		c.index = idx
	default:
		return fmt.Errorf("%w: algorithm %q", ErrInvalidHyperparameter, c.Algorithm)
	}
	c.labels = append([]int(nil), y...)
	c.dims = d
	return nil
}

// Predict returns one label per row of x.
func (c *KNeighborsClassifier) Predict(x mat.Matrix) ([]int, error) {
	if c.index == nil {
		return nil, ErrNotFitted
	}
	r, d := x.Dims()
	if d != c.dims {
		return nil, fmt.Errorf("predict: fitted on %d features, got %d", c.dims, d)
	}

	out := make([]int, r)
	votes := map[int]int{}
	row := make([]float64, d)
	for i := 0; i < r; i++ {
		mat.Row(row, i, x)
		clear(votes)
		for _, j := range c.index.nearest(row, c.NNeighbors) {
			votes[c.labels[j]]++
		}
		out[i] = majority(votes)
	}
	return out, nil
}

func majority(votes map[int]int) int {
	best, bestN := -1, 0
	for label, n := range votes {
		if n > bestN || (n == bestN && label < best) {
			best, bestN = label, n
		}
	}
	return best
}

// denseRows copies the rows of x into separate slices.
func denseRows(x mat.Matrix) [][]float64 {
	r, _ := x.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(nil, i, x)
	}
	return rows
}
