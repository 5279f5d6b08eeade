package ml

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// CSR is a compressed sparse row matrix. It satisfies mat.Matrix so sparse
// text features and dense gonum blocks can be mixed freely.
type CSR struct {
	rows, cols int
	indptr     []int
	indices    []int
	data       []float64
}

var _ mat.Matrix = (*CSR)(nil)

// Dims returns the number of rows and columns.
func (m *CSR) Dims() (r, c int) { return m.rows, m.cols }

// At returns the element at row i, column j.
func (m *CSR) At(i, j int) float64 {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		panic(mat.ErrIndexOutOfRange)
	}
	lo, hi := m.indptr[i], m.indptr[i+1]
	cols := m.indices[lo:hi]
	k := sort.SearchInts(cols, j)
	if k < len(cols) && cols[k] == j {
		return m.data[lo+k]
	}
	return 0
}

// T returns the implicit transpose.
func (m *CSR) T() mat.Matrix { return mat.Transpose{Matrix: m} }

// Row returns the column indices and values stored for row i. The slices
// alias the matrix and must not be modified.
func (m *CSR) Row(i int) ([]int, []float64) {
	lo, hi := m.indptr[i], m.indptr[i+1]
	return m.indices[lo:hi], m.data[lo:hi]
}

// DenseRow writes row i into dst, which must have length Cols.
func (m *CSR) DenseRow(i int, dst []float64) {
	for k := range dst {
		dst[k] = 0
	}
	idx, vals := m.Row(i)
	for k, j := range idx {
		dst[j] = vals[k]
	}
}

// Subset returns a new matrix holding the given rows in order.
func (m *CSR) Subset(rows []int) *CSR {
	b := newCSRBuilder(m.cols, len(rows))
	for _, i := range rows {
		idx, vals := m.Row(i)
		b.appendRow(idx, vals)
	}
	return b.build()
}

// AsCSR converts any gonum matrix into CSR form. A *CSR is returned as is.
func AsCSR(a mat.Matrix) *CSR {
	if c, ok := a.(*CSR); ok {
		return c
	}
	r, c := a.Dims()
	b := newCSRBuilder(c, r)
	idx := make([]int, 0, c)
	vals := make([]float64, 0, c)
	for i := 0; i < r; i++ {
		idx, vals = idx[:0], vals[:0]
		for j := 0; j < c; j++ {
			if v := a.At(i, j); v != 0 {
				idx = append(idx, j)
				vals = append(vals, v)
			}
		}
		b.appendRow(idx, vals)
	}
	return b.build()
}

// HStack concatenates matrices column-wise. All blocks must have the same
// number of rows; column order follows the argument order.
func HStack(blocks ...mat.Matrix) (*CSR, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: nothing to stack", ErrDimension)
	}
	rows, _ := blocks[0].Dims()
	parts := make([]*CSR, len(blocks))
	offsets := make([]int, len(blocks))
	width := 0
	for k, blk := range blocks {
		r, c := blk.Dims()
		if r != rows {
			return nil, fmt.Errorf("%w: block %d has %d rows, want %d", ErrDimension, k, r, rows)
		}
		parts[k] = AsCSR(blk)
		offsets[k] = width
		width += c
	}

	b := newCSRBuilder(width, rows)
	var idx []int
	var vals []float64
	for i := 0; i < rows; i++ {
		idx, vals = idx[:0], vals[:0]
		for k, p := range parts {
			pi, pv := p.Row(i)
			for n, j := range pi {
				idx = append(idx, j+offsets[k])
				vals = append(vals, pv[n])
			}
		}
		b.appendRow(idx, vals)
	}
	return b.build(), nil
}

// denseRows expands a CSR into row slices for the tree learners.
func denseRows(m *CSR) [][]float64 {
	out := make([][]float64, m.rows)
	backing := make([]float64, m.rows*m.cols)
	for i := range out {
		out[i] = backing[i*m.cols : (i+1)*m.cols : (i+1)*m.cols]
		m.DenseRow(i, out[i])
	}
	return out
}

type csrBuilder struct {
	cols    int
	indptr  []int
	indices []int
	data    []float64
}

func newCSRBuilder(cols, rowsHint int) *csrBuilder {
	b := &csrBuilder{cols: cols, indptr: make([]int, 1, rowsHint+1)}
	return b
}

// appendRow copies a row whose column indices are strictly increasing.
func (b *csrBuilder) appendRow(idx []int, vals []float64) {
	b.indices = append(b.indices, idx...)
	b.data = append(b.data, vals...)
	b.indptr = append(b.indptr, len(b.indices))
}

func (b *csrBuilder) build() *CSR {
	return &CSR{
		rows:    len(b.indptr) - 1,
		cols:    b.cols,
		indptr:  b.indptr,
		indices: b.indices,
		data:    b.data,
	}
}
