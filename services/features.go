package services

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"listing-classifier/ml"
	"listing-classifier/models"
)

// ErrSchemaMismatch is returned when a table's indicator columns differ from
// the schema fitted on the training partition.
var ErrSchemaMismatch = errors.New("feature schema mismatch")

// RoomSchema is the ordered set of room-count indicator columns learned from
// the training partition. It is fitted once and reused for every other table;
// a room value unseen during fitting encodes as an all-zero indicator row.
type RoomSchema struct {
	Values  []float64
	Columns []string
}

// FitRoomSchema enumerates the distinct room values of t in ascending order.
// Missing values do not get a column.
func FitRoomSchema(t *models.Table) (*RoomSchema, error) {
	rooms, err := t.Floats(models.ColRooms)
	if err != nil {
		return nil, fmt.Errorf("features: fit room schema: %w", err)
	}

	seen := make(map[float64]struct{})
	for _, v := range rooms {
		if !math.IsNaN(v) {
			seen[v] = struct{}{}
		}
	}
	values := make([]float64, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Float64s(values)

	columns := make([]string, len(values))
	for i, v := range values {
		columns[i] = models.RoomPrefix + models.FormatFloat(v)
	}
	return &RoomSchema{Values: values, Columns: columns}, nil
}

// Encode returns one indicator row per listing and the number of listings
// whose room value is not part of the schema.
func (s *RoomSchema) Encode(t *models.Table) ([][]float64, int, error) {
	rooms, err := t.Floats(models.ColRooms)
	if err != nil {
		return nil, 0, fmt.Errorf("features: encode rooms: %w", err)
	}

	lookup := make(map[float64]int, len(s.Values))
	for i, v := range s.Values {
		lookup[v] = i
	}
	out := make([][]float64, len(rooms))
	unseen := 0
	for i, v := range rooms {
		out[i] = make([]float64, len(s.Values))
		if j, ok := lookup[v]; ok {
			out[i][j] = 1
		} else if !math.IsNaN(v) {
			unseen++
		}
	}
	return out, unseen, nil
}

// Apply adds the schema's indicator columns to t and returns the number of
// rows with an unseen room value.
func (s *RoomSchema) Apply(t *models.Table) (int, error) {
	for _, name := range t.Names() {
		if strings.HasPrefix(name, models.RoomPrefix) && !slices.Contains(s.Columns, name) {
			return 0, fmt.Errorf("%w: table already has foreign indicator %q", ErrSchemaMismatch, name)
		}
	}

	rows, unseen, err := s.Encode(t)
	if err != nil {
		return 0, err
	}
	for j, col := range s.Columns {
		vals := make([]float64, len(rows))
		for i := range rows {
			vals[i] = rows[i][j]
		}
		if err := t.SetFloats(col, vals); err != nil {
			return 0, fmt.Errorf("features: apply room schema: %w", err)
		}
	}
	return unseen, nil
}

// FeatureBuilder assembles model inputs: TF-IDF title columns followed by the
// structured block [rms_* ..., price, sqft].
type FeatureBuilder struct {
	Vectorizer *ml.TfidfVectorizer
	Rooms      *RoomSchema
	Numeric    []string
}

// NewFeatureBuilder returns a builder using price and sqft as numeric columns.
func NewFeatureBuilder(vec *ml.TfidfVectorizer, rooms *RoomSchema) *FeatureBuilder {
	return &FeatureBuilder{
		Vectorizer: vec,
		Rooms:      rooms,
		Numeric:    []string{models.ColPrice, models.ColSqft},
	}
}

// StructuredColumns lists the structured block's column names in order.
func (b *FeatureBuilder) StructuredColumns() []string {
	cols := make([]string, 0, len(b.Rooms.Columns)+len(b.Numeric))
	cols = append(cols, b.Rooms.Columns...)
	return append(cols, b.Numeric...)
}

// FeatureNames lists every column of Combine's output.
func (b *FeatureBuilder) FeatureNames() []string {
	return append(b.Vectorizer.Vocabulary(), b.StructuredColumns()...)
}

// Text transforms the titles of t with the fitted vectorizer.
func (b *FeatureBuilder) Text(t *models.Table) (*ml.CSR, error) {
	titles, err := t.Strings(models.ColTitle)
	if err != nil {
		return nil, fmt.Errorf("features: text: %w", err)
	}
	x, err := b.Vectorizer.Transform(titles)
	if err != nil {
		return nil, fmt.Errorf("features: text: %w", err)
	}
	return x, nil
}

// Structured reads the indicator and numeric columns of t into a dense
// block. The table's rms_ columns must be exactly the schema's, in order.
func (b *FeatureBuilder) Structured(t *models.Table) (*mat.Dense, error) {
	var have []string
	for _, name := range t.Names() {
		if strings.HasPrefix(name, models.RoomPrefix) {
			have = append(have, name)
		}
	}
	if !slices.Equal(have, b.Rooms.Columns) {
		return nil, fmt.Errorf("%w: table has %v, schema has %v", ErrSchemaMismatch, have, b.Rooms.Columns)
	}

	cols := b.StructuredColumns()
	n := t.Len()
	if n == 0 || len(cols) == 0 {
		return nil, fmt.Errorf("features: structured: %w: %dx%d block", ml.ErrDimension, n, len(cols))
	}
	out := mat.NewDense(n, len(cols), nil)
	for j, col := range cols {
		vals, err := t.Floats(col)
		if err != nil {
			return nil, fmt.Errorf("features: structured: %w", err)
		}
		out.SetCol(j, vals)
	}
	return out, nil
}

// Combine stacks the TF-IDF block text (rows aligned with t) with the
// structured block of t.
func (b *FeatureBuilder) Combine(text *ml.CSR, t *models.Table) (*ml.CSR, error) {
	if _, c := text.Dims(); c != len(b.Vectorizer.Vocabulary()) {
		return nil, fmt.Errorf("%w: text block has %d columns, vocabulary has %d",
			ErrSchemaMismatch, c, len(b.Vectorizer.Vocabulary()))
	}
	structured, err := b.Structured(t)
	if err != nil {
		return nil, err
	}
	x, err := ml.HStack(text, structured)
	if err != nil {
		return nil, fmt.Errorf("features: combine: %w", err)
	}
	return x, nil
}
