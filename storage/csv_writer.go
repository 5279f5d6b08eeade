package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gonum.org/v1/gonum/mat"

	"listing-classifier/models"
)

// ProbabilityWriter writes per-model class-probability reports into a fixed
// output directory. It is safe for concurrent use.
type ProbabilityWriter struct {
	mu  sync.Mutex
	dir string
}

// NewProbabilityWriter returns a writer for dir. The directory is created on
// first write.
func NewProbabilityWriter(dir string) *ProbabilityWriter {
	return &ProbabilityWriter{dir: dir}
}

// Write stores <dir>/<modelName>.csv: an index column with the original row
// numbers, every column of test, then proba_<k> for each class index k.
func (w *ProbabilityWriter) Write(modelName string, test *models.Table, proba *mat.Dense) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rows, classes := proba.Dims()
	if rows != test.Len() {
		return "", fmt.Errorf("csv: %s: %d probability rows for %d test rows", modelName, rows, test.Len())
	}

	extraHeader := make([]string, classes)
	for k := range extraHeader {
		extraHeader[k] = models.ProbaPrefix + strconv.Itoa(k)
	}
	extra := func(i int) []string {
		out := make([]string, classes)
		for k := 0; k < classes; k++ {
			out[k] = strconv.FormatFloat(proba.At(i, k), 'f', -1, 64)
		}
		return out
	}

	path := filepath.Join(w.dir, modelName+".csv")
	if err := writeTable(path, test, true, extraHeader, extra); err != nil {
		return "", err
	}
	return path, nil
}

// WriteTable writes every column of t to path, without an index column.
func WriteTable(path string, t *models.Table) error {
	return writeTable(path, t, false, nil, nil)
}

// WriteSweep writes the out-of-bag error curve to path.
func WriteSweep(path string, points []models.SweepPoint) error {
	f, w, err := create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := w.Write([]string{"n_estimators", "oob_error"}); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for _, p := range points {
		row := []string{strconv.Itoa(p.Trees), strconv.FormatFloat(p.OOBError, 'f', -1, 64)}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// WriteMaxDFSweep writes the accuracy and out-of-bag error per max_df value.
func WriteMaxDFSweep(path string, points []models.MaxDFPoint) error {
	f, w, err := create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := w.Write([]string{"max_df", "accuracy", "oob_error"}); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for _, p := range points {
		row := []string{
			strconv.FormatFloat(p.MaxDF, 'f', -1, 64),
			strconv.FormatFloat(p.Accuracy, 'f', -1, 64),
			strconv.FormatFloat(p.OOBError, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func writeTable(path string, t *models.Table, withIndex bool, extraHeader []string, extra func(int) []string) error {
	names := t.Names()
	columns := make([][]string, len(names))
	for j, name := range names {
		col, err := t.Strings(name)
		if err != nil {
			return fmt.Errorf("csv: %w", err)
		}
		columns[j] = col
	}

	f, w, err := create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := make([]string, 0, len(names)+len(extraHeader)+1)
	if withIndex {
		header = append(header, models.ColIndex)
	}
	header = append(header, names...)
	header = append(header, extraHeader...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}

	index := t.Index()
	for i := 0; i < t.Len(); i++ {
		row := make([]string, 0, len(header))
		if withIndex {
			row = append(row, strconv.Itoa(index[i]))
		}
		for j := range names {
			row = append(row, columns[j][i])
		}
		if extra != nil {
			row = append(row, extra(i)...)
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

// create makes (or truncates) the CSV file at path. Intermediate directories
// are created automatically.
func create(path string) (*os.File, *csv.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("csv: create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}
	return f, csv.NewWriter(f), nil
}
