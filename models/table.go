package models

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// ErrUnknownColumn is returned when a named column is absent from a Table.
var ErrUnknownColumn = errors.New("unknown column")

// Table is the listings frame plus the original row number of every row, so
// exports can reproduce the source index after filtering and splitting.
type Table struct {
	df    dataframe.DataFrame
	index []int
}

// NewTable wraps df, numbering its rows from zero.
func NewTable(df dataframe.DataFrame) *Table {
	index := make([]int, df.Nrow())
	for i := range index {
		index[i] = i
	}
	return &Table{df: df, index: index}
}

// Len is the number of rows.
func (t *Table) Len() int { return t.df.Nrow() }

// Names returns the column names in order.
func (t *Table) Names() []string { return t.df.Names() }

// Index returns a copy of the original row numbers.
func (t *Table) Index() []int {
	out := make([]int, len(t.index))
	copy(out, t.index)
	return out
}

// Has reports whether col exists.
func (t *Table) Has(col string) bool {
	for _, name := range t.df.Names() {
		if name == col {
			return true
		}
	}
	return false
}

func (t *Table) column(col string) (series.Series, error) {
	if !t.Has(col) {
		return series.Series{}, fmt.Errorf("%w: %q", ErrUnknownColumn, col)
	}
	s := t.df.Col(col)
	if s.Err != nil {
		return series.Series{}, fmt.Errorf("column %q: %w", col, s.Err)
	}
	return s, nil
}

// Floats returns col as float64; missing or unparsable entries are NaN.
func (t *Table) Floats(col string) ([]float64, error) {
	s, err := t.column(col)
	if err != nil {
		return nil, err
	}
	vals := s.Float()
	missing := s.IsNaN()
	for i := range vals {
		if missing[i] {
			vals[i] = math.NaN()
		}
	}
	return vals, nil
}

// Missing marks the entries of col that hold no value.
func (t *Table) Missing(col string) ([]bool, error) {
	s, err := t.column(col)
	if err != nil {
		return nil, err
	}
	missing := s.IsNaN()
	if s.Type() == series.Float {
		for i, v := range s.Float() {
			if math.IsNaN(v) {
				missing[i] = true
			}
		}
	}
	return missing, nil
}

// Strings returns col as text. Numeric columns use FormatFloat; missing
// entries are empty strings.
func (t *Table) Strings(col string) ([]string, error) {
	s, err := t.column(col)
	if err != nil {
		return nil, err
	}
	missing, err := t.Missing(col)
	if err != nil {
		return nil, err
	}

	out := make([]string, s.Len())
	if s.Type() == series.Float {
		for i, v := range s.Float() {
			if !missing[i] {
				out[i] = FormatFloat(v)
			}
		}
		return out, nil
	}
	for i, rec := range s.Records() {
		if !missing[i] {
			out[i] = rec
		}
	}
	return out, nil
}

// SetFloats replaces or appends col with vals. NaN entries stay missing.
func (t *Table) SetFloats(col string, vals []float64) error {
	if len(vals) != t.Len() {
		return fmt.Errorf("column %q: %d values for %d rows", col, len(vals), t.Len())
	}
	return t.mutate(series.New(vals, series.Float, col))
}

// SetStrings replaces or appends col with vals. Entries flagged in missing
// (which may be nil) are stored as missing values.
func (t *Table) SetStrings(col string, vals []string, missing []bool) error {
	if len(vals) != t.Len() {
		return fmt.Errorf("column %q: %d values for %d rows", col, len(vals), t.Len())
	}
	elems := make([]string, len(vals))
	copy(elems, vals)
	for i := range missing {
		if missing[i] {
			elems[i] = "NaN"
		}
	}
	return t.mutate(series.New(elems, series.String, col))
}

func (t *Table) mutate(s series.Series) error {
	df := t.df.Mutate(s)
	if df.Err != nil {
		return fmt.Errorf("column %q: %w", s.Name, df.Err)
	}
	t.df = df
	return nil
}

// Subset returns a new Table holding rows in the given order.
func (t *Table) Subset(rows []int) (*Table, error) {
	for _, r := range rows {
		if r < 0 || r >= t.Len() {
			return nil, fmt.Errorf("subset: row %d out of range [0,%d)", r, t.Len())
		}
	}
	index := make([]int, len(rows))
	for i, r := range rows {
		index[i] = t.index[r]
	}
	if len(rows) == 0 {
		return nil, errors.New("subset: no rows selected")
	}
	df := t.df.Subset(rows)
	if df.Err != nil {
		return nil, fmt.Errorf("subset: %w", df.Err)
	}
	return &Table{df: df, index: index}, nil
}

// Filter keeps the rows where keep is true.
func (t *Table) Filter(keep []bool) (*Table, error) {
	if len(keep) != t.Len() {
		return nil, fmt.Errorf("filter: %d flags for %d rows", len(keep), t.Len())
	}
	rows := make([]int, 0, len(keep))
	for i, k := range keep {
		if k {
			rows = append(rows, i)
		}
	}
	return t.Subset(rows)
}
