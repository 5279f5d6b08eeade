package storage

import (
	"gonum.org/v1/gonum/mat"

	"listing-classifier/models"
)

// ResultWriter is the interface any result-persistence backend must satisfy.
type ResultWriter interface {
	Write(report *models.RunReport) error
	Close() error
}

// ProbabilityReporter persists the class probabilities of a test partition.
type ProbabilityReporter interface {
	Write(modelName string, test *models.Table, proba *mat.Dense) (string, error)
}
