// Package ml holds the statistical building blocks of the listing classifier:
// sparse feature matrices, TF-IDF text vectorisation, CART trees, a bagged
// random forest, multinomial logistic regression and cross-validation.
package ml

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotFitted is returned when a model is used before Fit succeeded.
	ErrNotFitted = errors.New("ml: model not fitted")
	// ErrOOBDisabled is returned when an out-of-bag score is requested from a
	// model that was not configured to track it.
	ErrOOBDisabled = errors.New("ml: out-of-bag scoring not enabled")
	// ErrEmptyVocabulary is returned when TF-IDF pruning leaves no terms.
	ErrEmptyVocabulary = errors.New("ml: empty vocabulary after pruning")
	// ErrDimension is returned when a matrix does not have the expected shape.
	ErrDimension = errors.New("ml: dimension mismatch")
)

// Classifier is a supervised model over string labels.
type Classifier interface {
	Fit(ctx context.Context, x mat.Matrix, y []string) error
	Predict(x mat.Matrix) ([]string, error)
	PredictProba(x mat.Matrix) (*mat.Dense, error)
	Classes() []string
}

// OOBScorer is implemented by ensembles that estimate generalisation
// accuracy from out-of-bag samples.
type OOBScorer interface {
	OOBScore() (float64, error)
}

// Score fits nothing; it predicts x with an already fitted classifier and
// returns the accuracy against y.
func Score(c Classifier, x mat.Matrix, y []string) (float64, error) {
	pred, err := c.Predict(x)
	if err != nil {
		return 0, err
	}
	return Accuracy(y, pred)
}

// Accuracy is the fraction of positions where yPred equals yTrue.
func Accuracy(yTrue, yPred []string) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, fmt.Errorf("%w: %d labels vs %d predictions", ErrDimension, len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return 0, errors.New("ml: accuracy of empty label set")
	}
	hits := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(yTrue)), nil
}

// encodeLabels returns the sorted distinct labels and y mapped onto them.
func encodeLabels(y []string) ([]string, []int) {
	seen := make(map[string]struct{}, 16)
	for _, v := range y {
		seen[v] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Strings(classes)

	lookup := make(map[string]int, len(classes))
	for i, c := range classes {
		lookup[c] = i
	}
	codes := make([]int, len(y))
	for i, v := range y {
		codes[i] = lookup[v]
	}
	return classes, codes
}

// argmax returns the first index holding the largest value.
func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func labelsFromProba(proba *mat.Dense, classes []string) []string {
	r, _ := proba.Dims()
	out := make([]string, r)
	for i := 0; i < r; i++ {
		out[i] = classes[argmax(proba.RawRowView(i))]
	}
	return out
}

func subsetLabels(y []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}
