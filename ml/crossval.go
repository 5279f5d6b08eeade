package ml

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// CVSummary aggregates per-fold accuracies.
type CVSummary struct {
	Scores []float64
	Mean   float64
	Std    float64 // population standard deviation
}

// Interval is the half-width of the approximate 95% interval, 2*Std.
func (s CVSummary) Interval() float64 { return 2 * s.Std }

// Summarize computes mean and population std of scores.
func Summarize(scores []float64) CVSummary {
	if len(scores) == 0 {
		return CVSummary{}
	}
	return CVSummary{
		Scores: scores,
		Mean:   stat.Mean(scores, nil),
		Std:    math.Sqrt(stat.PopVariance(scores, nil)),
	}
}

// StratifiedKFold assigns every sample to one of k test folds so that each
// fold holds roughly the same class proportions. Samples are not shuffled:
// within a class, earlier samples land in lower-numbered folds.
func StratifiedKFold(y []string, k int) ([][]int, error) {
	n := len(y)
	if k < 2 {
		return nil, fmt.Errorf("kfold: need at least 2 folds, got %d", k)
	}
	if k > n {
		return nil, fmt.Errorf("kfold: cannot split %d samples into %d folds", n, k)
	}

	classes, codes := encodeLabels(y)
	perClass := make([]int, len(classes))
	for _, c := range codes {
		perClass[c]++
	}
	largest := 0
	for _, c := range perClass {
		largest = max(largest, c)
	}
	if largest < k {
		return nil, fmt.Errorf("kfold: %d folds exceed the size of every class (largest has %d)", k, largest)
	}

	// Deal the class-sorted labels round-robin to get per-fold class quotas.
	sorted := append([]int(nil), codes...)
	sort.Ints(sorted)
	quota := make([][]int, k)
	for f := range quota {
		quota[f] = make([]int, len(classes))
	}
	for p, c := range sorted {
		quota[p%k][c]++
	}

	folds := make([][]int, k)
	next := make([]int, len(classes))
	filled := make([]int, len(classes))
	for i, c := range codes {
		for filled[c] >= quota[next[c]][c] {
			filled[c] = 0
			next[c]++
		}
		folds[next[c]] = append(folds[next[c]], i)
		filled[c]++
	}
	for f := range folds {
		sort.Ints(folds[f])
	}
	return folds, nil
}

// MinClassCount returns the size of the smallest class in y.
func MinClassCount(y []string) int {
	_, codes := encodeLabels(y)
	counts := map[int]int{}
	for _, c := range codes {
		counts[c]++
	}
	smallest := len(y)
	for _, c := range counts {
		smallest = min(smallest, c)
	}
	return smallest
}

// CrossValScore fits a fresh model from newModel on k-1 folds and scores it
// on the held-out fold, for each of the k stratified folds. At most workers
// folds run concurrently. Scores are returned in fold order.
func CrossValScore(ctx context.Context, newModel func() Classifier, x mat.Matrix, y []string, k, workers int) ([]float64, error) {
	csr := AsCSR(x)
	if r, _ := csr.Dims(); r != len(y) {
		return nil, fmt.Errorf("crossval: %w: %d rows vs %d labels", ErrDimension, r, len(y))
	}
	folds, err := StratifiedKFold(y, k)
	if err != nil {
		return nil, fmt.Errorf("crossval: %w", err)
	}

	scores := make([]float64, k)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for f, test := range folds {
		g.Go(func() error {
			train := complement(len(y), test)
			model := newModel()
			if err := model.Fit(ctx, csr.Subset(train), subsetLabels(y, train)); err != nil {
				return fmt.Errorf("fold %d: %w", f, err)
			}
			score, err := Score(model, csr.Subset(test), subsetLabels(y, test))
			if err != nil {
				return fmt.Errorf("fold %d: %w", f, err)
			}
			scores[f] = score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("crossval: %w", err)
	}
	return scores, nil
}

// complement returns the indices in [0, n) missing from sorted.
func complement(n int, sorted []int) []int {
	out := make([]int, 0, n-len(sorted))
	p := 0
	for i := 0; i < n; i++ {
		if p < len(sorted) && sorted[p] == i {
			p++
			continue
		}
		out = append(out, i)
	}
	return out
}
