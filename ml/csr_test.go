package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestAsCSRRoundTrip(t *testing.T) {
	dense := mat.NewDense(2, 3, []float64{
		0, 1.5, 0,
		-1, 0, 2,
	})
	csr := AsCSR(dense)

	r, c := csr.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)
	idx, vals := csr.Row(1)
	assert.Equal(t, []int{0, 2}, idx)
	assert.Equal(t, []float64{-1, 2}, vals)
	assert.True(t, mat.Equal(dense, csr))
	assert.Same(t, csr, AsCSR(csr))
}

func TestHStackKeepsBlockOrder(t *testing.T) {
	text := AsCSR(mat.NewDense(2, 2, []float64{0.6, 0.8, 0, 0}))
	structured := mat.NewDense(2, 3, []float64{
		1, 0, 1200,
		0, 1, -1,
	})

	out, err := HStack(text, structured)
	require.NoError(t, err)

	want := mat.NewDense(2, 5, []float64{
		0.6, 0.8, 1, 0, 1200,
		0, 0, 0, 1, -1,
	})
	assert.True(t, mat.Equal(want, out))
}

func TestHStackRejectsRowMismatch(t *testing.T) {
	_, err := HStack(mat.NewDense(2, 1, nil), mat.NewDense(3, 1, nil))
	assert.ErrorIs(t, err, ErrDimension)
}

func TestCSRSubset(t *testing.T) {
	m := AsCSR(mat.NewDense(3, 2, []float64{1, 0, 0, 2, 3, 0}))
	sub := m.Subset([]int{2, 0})

	assert.True(t, mat.Equal(mat.NewDense(2, 2, []float64{3, 0, 1, 0}), sub))
}
