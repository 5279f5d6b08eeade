package storage

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing-classifier/models"
)

func TestResultStoreMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS classification_results").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewResultStore(db).Migrate())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultStoreWriteSkipsFailedResults(t *testing.T) {
	tests := []struct {
		name      string
		results   []models.ModelResult
		expectRun bool
	}{
		{
			name: "mixed results insert only successes",
			results: []models.ModelResult{
				{Name: "rf-titles-10categories", Labels: 10, Features: "titles", TrainRows: 80, TestRows: 20, Accuracy: 0.4, HasOOB: true, OOBScore: 0.35},
				{Name: "rf-titles-3categories", Err: errors.New("boom")},
			},
			expectRun: true,
		},
		{
			name:      "only failures insert nothing",
			results:   []models.ModelResult{{Name: "rf", Err: errors.New("boom")}},
			expectRun: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			if tt.expectRun {
				mock.ExpectExec("INSERT INTO classification_results").
					WillReturnResult(sqlmock.NewResult(0, 1))
			}

			report := &models.RunReport{RunID: "6f1c2d3e-0000-4000-8000-000000000001", Results: tt.results}
			require.NoError(t, NewResultStore(db).Write(report))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestResultStoreWriteWrapsErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO classification_results").WillReturnError(errors.New("connection reset"))

	report := &models.RunReport{RunID: "r", Results: []models.ModelResult{{Name: "rf"}}}
	err = NewResultStore(db).Write(report)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: insert results")
}

func TestResultStoreFetchRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"model_name", "labels", "features", "train_rows", "test_rows", "accuracy",
		"oob_score", "cv_mean", "cv_std", "proba_path",
	}).
		AddRow("logistic-regression-titles-10categories", 10, "titles", 80, 20, 0.3, nil, 0.28, 0.05, "").
		AddRow("rf-titles-3categories", 3, "titles", 80, 20, 0.7, 0.68, nil, nil, "/tmp/rf.csv")
	mock.ExpectQuery("SELECT model_name").WithArgs("run-1").WillReturnRows(rows)

	results, err := NewResultStore(db).FetchRun("run-1")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Scored)
	assert.False(t, results[0].HasOOB)
	assert.True(t, results[0].HasCV)
	assert.InDelta(t, 0.28, results[0].CVMean, 1e-12)

	assert.True(t, results[1].HasOOB)
	assert.InDelta(t, 0.68, results[1].OOBScore, 1e-12)
	assert.Equal(t, "/tmp/rf.csv", results[1].ProbaPath)
	assert.NoError(t, mock.ExpectationsWereMet())
}
