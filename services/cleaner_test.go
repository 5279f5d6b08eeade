package services

import (
	"io"
	"math"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing-classifier/models"
	"listing-classifier/utils"
)

func newTestLogger() *utils.Logger { return utils.NewLoggerTo(io.Discard) }

// listingTable builds a listings table; price and sqft are derived from the
// row number so every row has a value.
func listingTable(t *testing.T, cats, rooms []float64, titles []string) *models.Table {
	t.Helper()
	n := len(cats)
	require.Len(t, rooms, n)
	require.Len(t, titles, n)

	price := make([]float64, n)
	sqft := make([]float64, n)
	lat := make([]float64, n)
	long := make([]float64, n)
	desc := make([]string, n)
	for i := range cats {
		price[i] = 1000 + float64(i)
		sqft[i] = 400 + float64(i%7)*50
		lat[i] = 40.7
		long[i] = -74.0
		desc[i] = "listing"
	}
	df := dataframe.New(
		series.New(cats, series.Float, models.ColCategory),
		series.New(rooms, series.Float, models.ColRooms),
		series.New(price, series.Float, models.ColPrice),
		series.New(sqft, series.Float, models.ColSqft),
		series.New(lat, series.Float, models.ColLat),
		series.New(long, series.Float, models.ColLong),
		series.New(titles, series.String, models.ColTitle),
		series.New(desc, series.String, models.ColDescription),
	)
	require.NoError(t, df.Err)
	return models.NewTable(df)
}

func TestCoarseLabel(t *testing.T) {
	tests := []struct {
		category float64
		want     string
	}{
		{1.0, "1"},
		{2.99, "1"},
		{3.0, "2"},
		{3.5, "2"},
		{4.0, "3"},
		{10.0, "3"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CoarseLabel(tt.category), "category %v", tt.category)
	}
}

func TestDeriveLabels(t *testing.T) {
	nan := math.NaN()
	tbl := listingTable(t,
		[]float64{2.9, 3.0, 3.99, 4.0, 10, nan},
		[]float64{1, 1, 1, 1, 1, 1},
		[]string{"a", "b", "c", "d", "e", "f"})

	c := NewCleaner(newTestLogger())
	require.NoError(t, c.DeriveLabels(tbl))

	coarse, err := tbl.Strings(models.ColCategory3)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "2", "3", "3", ""}, coarse)

	missing, err := tbl.Missing(models.ColCategory3)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, false, false, false, true}, missing)

	text, err := tbl.Strings(models.ColCategoryText)
	require.NoError(t, err)
	assert.Equal(t, []string{"2.9", "3.0", "3.99", "4.0", "10.0", "nan"}, text)
}

func TestDropMissing(t *testing.T) {
	nan := math.NaN()
	tbl := listingTable(t,
		[]float64{1, nan, 3, nan},
		[]float64{0, 1, 2, 3},
		[]string{"a", "b", "c", "d"})

	out, err := NewCleaner(newTestLogger()).DropMissing(tbl, models.ColCategory)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Len())
	assert.Equal(t, []int{0, 2}, out.Index())
}

func TestImputeIsIdempotent(t *testing.T) {
	nan := math.NaN()
	tbl := listingTable(t,
		[]float64{1, 2, 3},
		[]float64{nan, 2, nan},
		[]string{"a", "b", "c"})
	c := NewCleaner(newTestLogger())

	require.NoError(t, c.Impute(tbl, -1.0, models.ColRooms))
	once, err := tbl.Floats(models.ColRooms)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 2, -1}, once)

	require.NoError(t, c.Impute(tbl, -1.0, models.ColRooms))
	twice, err := tbl.Floats(models.ColRooms)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestImputeStrings(t *testing.T) {
	tbl := listingTable(t,
		[]float64{1, 2},
		[]float64{1, 2},
		[]string{"NaN", "loft"})
	c := NewCleaner(newTestLogger())

	require.NoError(t, c.Impute(tbl, "", models.ColTitle))
	missing, err := tbl.Missing(models.ColTitle)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false}, missing)

	titles, err := tbl.Strings(models.ColTitle)
	require.NoError(t, err)
	assert.Equal(t, []string{"", "loft"}, titles)
}

func TestImputeErrors(t *testing.T) {
	tbl := listingTable(t, []float64{1}, []float64{1}, []string{"a"})
	c := NewCleaner(newTestLogger())

	err := c.Impute(tbl, -1.0, "bathrooms")
	assert.ErrorIs(t, err, models.ErrUnknownColumn)

	err = c.Impute(tbl, true, models.ColRooms)
	assert.Error(t, err)
}

func TestImputeDefaultsSkipsAbsentColumns(t *testing.T) {
	df := dataframe.New(
		series.New([]float64{math.NaN(), 2}, series.Float, models.ColRooms),
		series.New([]string{"NaN", "flat"}, series.String, models.ColTitle),
	)
	require.NoError(t, df.Err)
	tbl := models.NewTable(df)

	require.NoError(t, NewCleaner(newTestLogger()).ImputeDefaults(tbl))
	rooms, err := tbl.Floats(models.ColRooms)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 2}, rooms)
}
