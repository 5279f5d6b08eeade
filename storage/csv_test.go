package storage

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"listing-classifier/models"
)

const sampleCSV = `Category,rooms,price,sqft,lat,long,title,description
1,1,1200,500,40.1,-73.2,Cozy studio,Nice
,2,,700,,,Big loft,
3.5,0.1,900,,40.2,-73.1,NA,Small
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "listings.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))
	return path
}

func TestLoadListingsReadsMissingValues(t *testing.T) {
	tbl, err := LoadListings(writeSample(t), models.RequiredColumns...)
	require.NoError(t, err)
	require.Equal(t, 3, tbl.Len())

	cats, err := tbl.Floats(models.ColCategory)
	require.NoError(t, err)
	assert.Equal(t, 1.0, cats[0])
	assert.True(t, math.IsNaN(cats[1]))
	assert.Equal(t, 3.5, cats[2])

	missing, err := tbl.Missing(models.ColTitle)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, true}, missing)

	titles, err := tbl.Strings(models.ColTitle)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cozy studio", "Big loft", ""}, titles)
}

func TestLoadListingsRequiresColumns(t *testing.T) {
	_, err := LoadListings(writeSample(t), "Category", "bathrooms")
	assert.ErrorIs(t, err, models.ErrUnknownColumn)

	_, err = LoadListings(filepath.Join(t.TempDir(), "absent.csv"))
	assert.Error(t, err)
}

func TestProbabilityWriterRoundTrip(t *testing.T) {
	tbl, err := LoadListings(writeSample(t))
	require.NoError(t, err)
	test, err := tbl.Subset([]int{2, 0})
	require.NoError(t, err)

	proba := mat.NewDense(2, 3, []float64{
		0.2, 0.3, 0.5,
		0.9, 0.1, 0,
	})
	dir := filepath.Join(t.TempDir(), "Outputs")
	w := NewProbabilityWriter(dir)
	path, err := w.Write("rf-titles-3categories", test, proba)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rf-titles-3categories.csv"), path)

	back, err := LoadListings(path)
	require.NoError(t, err)
	assert.Equal(t, 2, back.Len())

	names := back.Names()
	assert.Equal(t, models.ColIndex, names[0])
	assert.Equal(t, []string{"proba_0", "proba_1", "proba_2"}, names[len(names)-3:])

	index, err := back.Floats(models.ColIndex)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 0}, index)

	p2, err := back.Floats("proba_2")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p2[0], 1e-12)
}

func TestProbabilityWriterRejectsRowMismatch(t *testing.T) {
	tbl, err := LoadListings(writeSample(t))
	require.NoError(t, err)

	w := NewProbabilityWriter(t.TempDir())
	_, err = w.Write("m", tbl, mat.NewDense(1, 2, nil))
	assert.Error(t, err)
}

func TestWriteSweep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep", "oob-error-sweep.csv")
	require.NoError(t, WriteSweep(path, []models.SweepPoint{{Trees: 10, OOBError: 0.25}, {Trees: 20, OOBError: 0.2}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "n_estimators,oob_error\n10,0.25\n20,0.2\n", string(data))
}

func TestWriteMaxDFSweep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "max-df-sweep.csv")
	require.NoError(t, WriteMaxDFSweep(path, []models.MaxDFPoint{
		{MaxDF: 0.05, Accuracy: 0.5, OOBError: 0.55},
		{MaxDF: 0.7, Accuracy: 0.75, OOBError: 0.3},
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "max_df,accuracy,oob_error\n0.05,0.5,0.55\n0.7,0.75,0.3\n", string(data))
}
