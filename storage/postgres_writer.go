package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"listing-classifier/models"
	"listing-classifier/utils"
)

// ResultStore persists model evaluations to PostgreSQL.
type ResultStore struct {
	db *sql.DB
}

// OpenResultStore connects to PostgreSQL, retrying the initial ping, runs the
// schema migration and returns a ready-to-use ResultStore.
func OpenResultStore(ctx context.Context, dsn string, retry *utils.RetryConfig) (*ResultStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	if err := retry.Do(ctx, "postgres: ping", func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, err
	}

	rs := NewResultStore(db)
	if err := rs.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return rs, nil
}

// NewResultStore wraps an existing connection.
func NewResultStore(db *sql.DB) *ResultStore {
	return &ResultStore{db: db}
}

// Migrate creates the results table if needed.
func (rs *ResultStore) Migrate() error {
	_, err := rs.db.Exec(`
		CREATE TABLE IF NOT EXISTS classification_results (
			id          SERIAL PRIMARY KEY,
			run_id      UUID          NOT NULL,
			model_name  VARCHAR(100)  NOT NULL,
			labels      INTEGER       NOT NULL,
			features    VARCHAR(100)  NOT NULL,
			train_rows  INTEGER       NOT NULL,
			test_rows   INTEGER       NOT NULL,
			accuracy    NUMERIC(6,4)  NOT NULL,
			oob_score   NUMERIC(6,4),
			cv_mean     NUMERIC(6,4),
			cv_std      NUMERIC(6,4),
			proba_path  TEXT          NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_results_run   ON classification_results(run_id);
		CREATE INDEX IF NOT EXISTS idx_results_model ON classification_results(model_name);
	`)
	return err
}

const resultColumns = 11

// Write batch-inserts every successful result of the run.
func (rs *ResultStore) Write(report *models.RunReport) error {
	valueStrings := make([]string, 0, len(report.Results))
	valueArgs := make([]interface{}, 0, len(report.Results)*resultColumns)

	for _, r := range report.Results {
		if r.Err != nil {
			continue
		}
		base := len(valueStrings) * resultColumns
		placeholders := make([]string, resultColumns)
		for i := range placeholders {
			placeholders[i] = fmt.Sprintf("$%d", base+i+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")
		valueArgs = append(valueArgs,
			report.RunID, r.Name, r.Labels, r.Features, r.TrainRows, r.TestRows, r.Accuracy,
			sql.NullFloat64{Float64: r.OOBScore, Valid: r.HasOOB},
			sql.NullFloat64{Float64: r.CVMean, Valid: r.HasCV},
			sql.NullFloat64{Float64: r.CVStd, Valid: r.HasCV},
			r.ProbaPath,
		)
	}
	if len(valueStrings) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO classification_results
			(run_id, model_name, labels, features, train_rows, test_rows, accuracy, oob_score, cv_mean, cv_std, proba_path)
		VALUES %s
	`, strings.Join(valueStrings, ","))

	if _, err := rs.db.Exec(query, valueArgs...); err != nil {
		return fmt.Errorf("postgres: insert results: %w", err)
	}
	return nil
}

// FetchRun retrieves the stored results of one run, ordered by insertion.
func (rs *ResultStore) FetchRun(runID string) ([]models.ModelResult, error) {
	rows, err := rs.db.Query(`
		SELECT model_name, labels, features, train_rows, test_rows, accuracy, oob_score, cv_mean, cv_std, proba_path
		FROM classification_results
		WHERE run_id = $1
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch run: %w", err)
	}
	defer rows.Close()

	var results []models.ModelResult
	for rows.Next() {
		var r models.ModelResult
		var oob, cvMean, cvStd sql.NullFloat64
		if err := rows.Scan(
			&r.Name, &r.Labels, &r.Features, &r.TrainRows, &r.TestRows, &r.Accuracy,
			&oob, &cvMean, &cvStd, &r.ProbaPath,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		r.Scored = true
		r.HasOOB, r.OOBScore = oob.Valid, oob.Float64
		r.HasCV, r.CVMean, r.CVStd = cvMean.Valid, cvMean.Float64, cvStd.Float64
		results = append(results, r)
	}
	return results, rows.Err()
}

func (rs *ResultStore) Close() error {
	return rs.db.Close()
}
