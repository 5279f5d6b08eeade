package models

import (
	"math"
	"strconv"
	"strings"
)

// Column names of the listings dataset and the columns derived from it.
const (
	ColCategory     = "Category"
	ColCategory3    = "Category_3"
	ColCategoryText = "Category_text"
	ColRooms        = "rooms"
	ColPrice        = "price"
	ColSqft         = "sqft"
	ColLat          = "lat"
	ColLong         = "long"
	ColTitle        = "title"
	ColDescription  = "description"

	// ColPredict holds the logistic-regression baseline predictions.
	ColPredict = "predict"
	// ColPredict2 holds the predictions of the forest evaluated last.
	ColPredict2 = "predict2"
	// ColPredicted holds forest predictions for unlabeled listings.
	ColPredicted = "Predicted"
	// ColIndex is the original row number written by reset-index exports.
	ColIndex = "index"

	RoomPrefix  = "rms_"
	ProbaPrefix = "proba_"
)

var (
	// NumericColumns are filled with -1 when missing.
	NumericColumns = []string{ColLat, ColLong, ColPrice, ColSqft, ColRooms}
	// TextColumns are filled with "" when missing.
	TextColumns = []string{ColTitle, ColDescription}
	// RequiredColumns must be present in the labelled input.
	RequiredColumns = []string{ColCategory, ColRooms, ColPrice, ColSqft, ColLat, ColLong, ColTitle, ColDescription}
)

// FormatFloat renders v the way the dataset tooling writes floats: integral
// values keep a trailing ".0", NaN becomes "nan".
func FormatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// ModelResult is the evaluation of one trained model configuration.
type ModelResult struct {
	Name      string
	Labels    int // number of distinct classes the model was trained on
	Features  string
	TrainRows int
	TestRows  int

	Scored   bool // Accuracy holds a test-partition score
	Accuracy float64

	HasOOB   bool
	OOBScore float64

	HasCV  bool
	CVMean float64
	CVStd  float64

	ProbaPath string
	Err       error
}

// RunReport summarises a full pipeline run.
type RunReport struct {
	RunID       string
	InputPath   string
	LoadedRows  int
	DroppedRows int
	TrainRows   int
	TestRows    int
	Vocabulary  int
	RoomColumns []string
	UnseenRooms int
	Results     []ModelResult
}

// FeatureRank is one entry of a feature-importance ranking.
type FeatureRank struct {
	Rank       int
	Feature    string
	Importance float64
	Std        float64
}

// MaxDFPoint is the test accuracy and out-of-bag error of a forest trained on
// titles vectorized with a given document-frequency ceiling.
type MaxDFPoint struct {
	MaxDF    float64
	Accuracy float64
	OOBError float64
}

// SweepPoint is the out-of-bag error of a forest of a given size.
type SweepPoint struct {
	Trees    int
	OOBError float64
}
