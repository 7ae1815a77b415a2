package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Scoring names a per-fold score.
type Scoring string

const (
	Accuracy         Scoring = "accuracy"
	BalancedAccuracy Scoring = "balanced_accuracy"
)

// ParseScoring validates a scoring name. The empty string selects Accuracy.
func ParseScoring(s string) (Scoring, error) {
	switch Scoring(s) {
	case "":
		return Accuracy, nil
	case Accuracy, BalancedAccuracy:
		return Scoring(s), nil
	}
	return "", fmt.Errorf("%w: scoring %q", ErrInvalidHyperparameter, s)
}

// Score compares predicted against true labels.
func (s Scoring) Score(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 {
		return math.NaN()
	}
	if s == BalancedAccuracy {
		hit := map[int]float64{}
		total := map[int]float64{}
		for i, y := range yTrue {
			total[y]++
			if yPred[i] == y {
				hit[y]++
			}
		}
		labels := sortedLabels(yTrue)
		recalls := make([]float64, len(labels))
		for i, y := range labels {
			recalls[i] = hit[y] / total[y]
		}
		return stat.Mean(recalls, nil)
	}
	var ok float64
	for i, y := range yTrue {
		if yPred[i] == y {
			ok++
		}
	}
	return ok / float64(len(yTrue))
}

// Fold holds the sample indices of one train/test split.
type Fold struct {
	Train []int
	Test  []int
}

// StratifiedKFold splits the samples into k folds that preserve the class
// proportions. Samples are ordered by label, then by input position, and dealt
// round-robin into the k test folds, so the split is deterministic and every
// fold is non-empty.
func StratifiedKFold(y []int, k int) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("%w: cv must be at least 2, got %d", ErrInvalidHyperparameter, k)
	}
	if k > len(y) {
		return nil, fmt.Errorf("%w: cv=%d exceeds %d samples", ErrInvalidHyperparameter, k, len(y))
	}

	assign := make([]int, len(y))
	seen := map[int]int{}
	offset := 0
	labels := sortedLabels(y)
	start := make(map[int]int, len(labels))
	for _, l := range labels {
		start[l] = offset
		offset += countLabel(y, l)
	}
	for i, l := range y {
		assign[i] = (start[l] + seen[l]) % k
		seen[l]++
	}

	folds := make([]Fold, k)
	for i, f := range assign {
		for j := range folds {
			if j == f {
				folds[j].Test = append(folds[j].Test, i)
			} else {
				folds[j].Train = append(folds[j].Train, i)
			}
		}
	}
	return folds, nil
}

func sortedLabels(y []int) []int {
	set := map[int]bool{}
	for _, l := range y {
		set[l] = true
	}
	out := make([]int, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

func countLabel(y []int, l int) int {
	n := 0
	for _, v := range y {
		if v == l {
			n++
		}
	}
	return n
}

// CrossValScore fits a fresh model on each fold's training split and scores
// it on the held-out split. Folds run concurrently. A fold whose training
// split is too small for the model scores NaN; any other error aborts.
func CrossValScore(ctx context.Context, newModel func() Classifier, x *mat.Dense, y []int, folds []Fold, scoring Scoring) ([]float64, error) {
	scores := make([]float64, len(folds))
	g, ctx := errgroup.WithContext(ctx)
	for i, f := range folds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := scoreFold(newModel(), x, y, f, scoring)
			if errors.Is(err, ErrTooFewSamples) {
				scores[i] = math.NaN()
				return nil
			}
			if err != nil {
				return fmt.Errorf("fold %d: %w", i, err)
			}
			scores[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

func scoreFold(m Classifier, x *mat.Dense, y []int, f Fold, scoring Scoring) (float64, error) {
	xTrain, yTrain := subset(x, y, f.Train)
	if err := m.Fit(xTrain, yTrain); err != nil {
		return 0, err
	}
	xTest, yTest := subset(x, y, f.Test)
	pred, err := m.Predict(xTest)
	if err != nil {
		return 0, err
	}
	return scoring.Score(yTest, pred), nil
}

func subset(x *mat.Dense, y []int, idx []int) (*mat.Dense, []int) {
	_, c := x.Dims()
	if len(idx) == 0 {
		return &mat.Dense{}, nil
	}
	out := mat.NewDense(len(idx), c, nil)
	ys := make([]int, len(idx))
	for i, j := range idx {
		out.SetRow(i, x.RawRowView(j))
		ys[i] = y[j]
	}
	return out, ys
}
