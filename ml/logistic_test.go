package ml

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// indicatorData gives each class its own active feature.
func indicatorData(perClass int) (*mat.Dense, []string) {
	labels := []string{"1.0", "2.0", "3.0"}
	x := mat.NewDense(perClass*len(labels), len(labels)+1, nil)
	y := make([]string, 0, perClass*len(labels))
	row := 0
	for c, label := range labels {
		for i := 0; i < perClass; i++ {
			x.Set(row, c, 1)
			x.Set(row, len(labels), 0.1*float64(i%3))
			y = append(y, label)
			row++
		}
	}
	return x, y
}

func TestLogisticRegressionFitsIndicatorClasses(t *testing.T) {
	x, y := indicatorData(10)
	m := NewLogisticRegression()
	require.NoError(t, m.Fit(context.Background(), x, y))

	assert.Equal(t, []string{"1.0", "2.0", "3.0"}, m.Classes())

	pred, err := m.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, y, pred)

	proba, err := m.PredictProba(x)
	require.NoError(t, err)
	r, c := proba.Dims()
	assert.Equal(t, 30, r)
	assert.Equal(t, 3, c)
	for i := 0; i < r; i++ {
		assert.InDelta(t, 1.0, floats.Sum(proba.RawRowView(i)), 1e-9)
	}
}

func TestLogisticRegressionErrors(t *testing.T) {
	m := NewLogisticRegression()
	_, err := m.Predict(mat.NewDense(1, 2, nil))
	assert.ErrorIs(t, err, ErrNotFitted)

	err = m.Fit(context.Background(), mat.NewDense(2, 1, []float64{1, 2}), []string{"a", "a"})
	assert.Error(t, err)

	err = m.Fit(context.Background(), mat.NewDense(2, 1, []float64{1, 2}), []string{"a"})
	assert.ErrorIs(t, err, ErrDimension)
}
