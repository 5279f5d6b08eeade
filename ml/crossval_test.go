package ml

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStratifiedKFoldPreservesProportions(t *testing.T) {
	y := []string{"a", "b", "a", "a", "b", "a", "a", "b", "a", "b"}
	folds, err := StratifiedKFold(y, 2)
	require.NoError(t, err)
	require.Len(t, folds, 2)

	var all []int
	for _, fold := range folds {
		counts := map[string]int{}
		for _, i := range fold {
			counts[y[i]]++
		}
		assert.Equal(t, 3, counts["a"])
		assert.Equal(t, 2, counts["b"])
		all = append(all, fold...)
	}
	sort.Ints(all)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, all)
}

func TestStratifiedKFoldRejectsTooManyFolds(t *testing.T) {
	_, err := StratifiedKFold([]string{"a", "a", "b", "b"}, 3)
	assert.Error(t, err)

	_, err = StratifiedKFold([]string{"a", "b"}, 5)
	assert.Error(t, err)
}

func TestCrossValScoreLogistic(t *testing.T) {
	x, y := indicatorData(10)
	scores, err := CrossValScore(context.Background(), func() Classifier { return NewLogisticRegression() }, x, y, 5, 2)
	require.NoError(t, err)
	require.Len(t, scores, 5)

	summary := Summarize(scores)
	assert.InDelta(t, 1.0, summary.Mean, 1e-9)
	assert.InDelta(t, 0.0, summary.Interval(), 1e-9)
}

func TestSummarizeUsesPopulationStd(t *testing.T) {
	s := Summarize([]float64{0.5, 1.0})
	assert.InDelta(t, 0.75, s.Mean, 1e-12)
	assert.InDelta(t, 0.25, s.Std, 1e-12)
	assert.InDelta(t, 0.5, s.Interval(), 1e-12)
}

func TestMinClassCount(t *testing.T) {
	assert.Equal(t, 1, MinClassCount([]string{"a", "a", "b"}))
}
