package services

import (
	"fmt"
	"math"

	"listing-classifier/models"
	"listing-classifier/utils"
)

// Cleaner drops unusable rows, fills missing values and derives the label
// columns the classifiers train on.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// DropMissing returns the rows of t where col has a value.
func (c *Cleaner) DropMissing(t *models.Table, col string) (*models.Table, error) {
	missing, err := t.Missing(col)
	if err != nil {
		return nil, fmt.Errorf("cleaner: drop missing: %w", err)
	}
	keep := make([]bool, len(missing))
	dropped := 0
	for i, m := range missing {
		keep[i] = !m
		if m {
			dropped++
		}
	}

	out, err := t.Filter(keep)
	if err != nil {
		return nil, fmt.Errorf("cleaner: drop missing %q: %w", col, err)
	}
	c.logger.Info("[cleaner] Kept %d → %d listings (dropped %d without %s)",
		t.Len(), out.Len(), dropped, col)
	return out, nil
}

// Impute replaces the missing entries of every named column with value, in
// place. value may be a float64, an int or a string. Columns without missing
// entries are left as they are; an unknown column is an error.
func (c *Cleaner) Impute(t *models.Table, value any, cols ...string) error {
	for _, col := range cols {
		var (
			filled int
			err    error
		)
		switch v := value.(type) {
		case float64:
			filled, err = imputeFloat(t, col, v)
		case int:
			filled, err = imputeFloat(t, col, float64(v))
		case string:
			filled, err = imputeString(t, col, v)
		default:
			return fmt.Errorf("cleaner: impute %q: unsupported fill value %T", col, value)
		}
		if err != nil {
			return fmt.Errorf("cleaner: impute: %w", err)
		}
		if filled > 0 {
			c.logger.Debug("[cleaner] Filled %d missing %s values with %v", filled, col, value)
		}
	}
	return nil
}

// ImputeDefaults fills numeric columns with -1 and text columns with "",
// skipping columns the table does not have.
func (c *Cleaner) ImputeDefaults(t *models.Table) error {
	if err := c.Impute(t, -1.0, present(t, models.NumericColumns)...); err != nil {
		return err
	}
	return c.Impute(t, "", present(t, models.TextColumns)...)
}

// DeriveLabels adds Category_3 and Category_text.
//
// Category_3 collapses the 10-way category with the thresholds <3 → "1",
// <4 → "2", otherwise "3", and stays missing where Category is missing.
// Category_text is the string form of Category for every row, so a missing
// category becomes "nan".
func (c *Cleaner) DeriveLabels(t *models.Table) error {
	cats, err := t.Floats(models.ColCategory)
	if err != nil {
		return fmt.Errorf("cleaner: derive labels: %w", err)
	}

	coarse := make([]string, len(cats))
	missing := make([]bool, len(cats))
	text := make([]string, len(cats))
	for i, v := range cats {
		text[i] = models.FormatFloat(v)
		if math.IsNaN(v) {
			missing[i] = true
			continue
		}
		coarse[i] = CoarseLabel(v)
	}

	if err := t.SetStrings(models.ColCategory3, coarse, missing); err != nil {
		return fmt.Errorf("cleaner: derive labels: %w", err)
	}
	if err := t.SetStrings(models.ColCategoryText, text, nil); err != nil {
		return fmt.Errorf("cleaner: derive labels: %w", err)
	}
	return nil
}

// CoarseLabel maps a 10-way category onto the 3-way scheme.
func CoarseLabel(category float64) string {
	switch {
	case category < 3.0:
		return "1"
	case category < 4.0:
		return "2"
	default:
		return "3"
	}
}

func imputeFloat(t *models.Table, col string, value float64) (int, error) {
	vals, err := t.Floats(col)
	if err != nil {
		return 0, err
	}
	filled := 0
	for i, v := range vals {
		if math.IsNaN(v) {
			vals[i] = value
			filled++
		}
	}
	if filled == 0 {
		return 0, nil
	}
	return filled, t.SetFloats(col, vals)
}

func imputeString(t *models.Table, col string, value string) (int, error) {
	missing, err := t.Missing(col)
	if err != nil {
		return 0, err
	}
	vals, err := t.Strings(col)
	if err != nil {
		return 0, err
	}
	filled := 0
	for i, m := range missing {
		if m {
			vals[i] = value
			filled++
		}
	}
	if filled == 0 {
		return 0, nil
	}
	return filled, t.SetStrings(col, vals, nil)
}

func present(t *models.Table, cols []string) []string {
	out := make([]string, 0, len(cols))
	for _, col := range cols {
		if t.Has(col) {
			out = append(out, col)
		}
	}
	return out
}
