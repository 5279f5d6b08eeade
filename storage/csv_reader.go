package storage

import (
	"fmt"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"listing-classifier/models"
)

// missingMarkers are the cell values read as missing.
var missingMarkers = []string{"", "NA", "N/A", "NaN", "nan", "null", "NULL", "<nil>"}

var columnTypes = map[string]series.Type{
	models.ColCategory:    series.Float,
	models.ColRooms:       series.Float,
	models.ColPrice:       series.Float,
	models.ColSqft:        series.Float,
	models.ColLat:         series.Float,
	models.ColLong:        series.Float,
	models.ColTitle:       series.String,
	models.ColDescription: series.String,
}

// LoadListings reads a listings CSV and checks that every required column is
// present.
func LoadListings(path string, required ...string) (*models.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %q: %w", path, err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f,
		dataframe.HasHeader(true),
		dataframe.WithTypes(columnTypes),
		dataframe.NaNValues(missingMarkers),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("csv: parse %q: %w", path, df.Err)
	}

	t := models.NewTable(df)
	for _, col := range required {
		if !t.Has(col) {
			return nil, fmt.Errorf("csv: %q: %w: %s", path, models.ErrUnknownColumn, col)
		}
	}
	return t, nil
}
