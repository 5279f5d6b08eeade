package services

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"listing-classifier/models"
	"listing-classifier/utils"
)

func TestReportPrint(t *testing.T) {
	var out bytes.Buffer
	svc := NewReportService(newTestLogger(), &out)
	svc.Print(&models.RunReport{
		RunID:       "run-1",
		InputPath:   "listings.csv",
		LoadedRows:  110,
		DroppedRows: 10,
		TrainRows:   80,
		TestRows:    20,
		Vocabulary:  42,
		RoomColumns: []string{"rms_0.0", "rms_1.0"},
		UnseenRooms: 2,
		Results: []models.ModelResult{
			{Name: "logistic-regression-titles-10categories", Labels: 10, Features: "titles", Scored: true, Accuracy: 0.5, HasCV: true, CVMean: 0.45, CVStd: 0.05},
			{Name: "rf-titles-3categories", Labels: 3, Features: "titles", Scored: true, Accuracy: 0.81, HasOOB: true, OOBScore: 0.79},
			{Name: "rf-titles-rms-price-3categories", Features: "titles+rms+price+sqft", Err: errors.New("fit: boom")},
			{Name: "logistic-regression-partial", Features: "titles", Scored: true, Accuracy: 0.67, Err: errors.New("crossval: kfold")},
		},
	})

	s := out.String()
	assert.Contains(t, s, "run-1")
	assert.Contains(t, s, "rms_0.0, rms_1.0")
	assert.Contains(t, s, "Unseen test rooms")
	assert.Contains(t, s, "0.45 (+/- 0.10)")
	assert.Contains(t, s, "0.79")
	assert.Contains(t, s, "fit: boom")
	assert.Contains(t, s, "0.67", "accuracy is shown next to a later failure")
}

func TestReportPrintRun(t *testing.T) {
	var logs, out bytes.Buffer
	svc := NewReportService(utils.NewLoggerTo(&logs), &out)

	svc.PrintRun("missing", nil)
	assert.Empty(t, out.String())
	assert.Contains(t, logs.String(), "No stored results for run missing")

	svc.PrintRun("run-7", []models.ModelResult{
		{Name: "rf-titles-3categories", Labels: 3, Features: "titles", Scored: true, Accuracy: 0.84, HasOOB: true, OOBScore: 0.8},
	})
	s := out.String()
	assert.Contains(t, s, "STORED RUN run-7")
	assert.Contains(t, s, "rf-titles-3categories")
	assert.Contains(t, s, "0.84")
}

func TestReportPrintImportances(t *testing.T) {
	var out bytes.Buffer
	NewReportService(newTestLogger(), &out).PrintImportances([]models.FeatureRank{
		{Rank: 1, Feature: "price", Importance: 0.4, Std: 0.1},
		{Rank: 2, Feature: "studio", Importance: 0.2, Std: 0.05},
	})
	assert.Contains(t, out.String(), "price")
	assert.Contains(t, out.String(), "0.400000")
	assert.Contains(t, out.String(), "studio")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
