package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"

	"listing-classifier/ml"
	"listing-classifier/models"
	"listing-classifier/storage"
	"listing-classifier/utils"
)

// Evaluator fits classifiers, scores them on the test partition and prints
// the per-model report lines.
type Evaluator struct {
	logger *utils.Logger
	out    io.Writer
	proba  storage.ProbabilityReporter
}

// NewEvaluator prints to out and hands probability reports to proba, which
// may be nil when probability mode is never requested.
func NewEvaluator(logger *utils.Logger, out io.Writer, proba storage.ProbabilityReporter) *Evaluator {
	return &Evaluator{logger: logger, out: out, proba: proba}
}

// GetResults fits clf on the training data, attaches its test predictions to
// test as predict2, optionally writes class probabilities, and prints the test
// accuracy and out-of-bag score. A classifier without out-of-bag tracking is
// an error.
func (e *Evaluator) GetResults(ctx context.Context, name string, clf ml.Classifier, test *models.Table,
	trainX mat.Matrix, trainY []string, testX mat.Matrix, testY []string, proba bool) (models.ModelResult, error) {

	result := models.ModelResult{Name: name, TrainRows: len(trainY), TestRows: len(testY)}

	e.logger.Info("[evaluator] Fitting %s on %d rows", name, len(trainY))
	if err := clf.Fit(ctx, trainX, trainY); err != nil {
		return result, fmt.Errorf("%s: fit: %w", name, err)
	}
	result.Labels = len(clf.Classes())

	pred, err := clf.Predict(testX)
	if err != nil {
		return result, fmt.Errorf("%s: predict: %w", name, err)
	}
	if err := test.SetStrings(models.ColPredict2, pred, nil); err != nil {
		return result, fmt.Errorf("%s: %w", name, err)
	}

	if proba {
		path, err := e.writeProbabilities(name, clf, test, testX)
		if err != nil {
			return result, err
		}
		result.ProbaPath = path
	}

	if result.Accuracy, err = ml.Accuracy(testY, pred); err != nil {
		return result, fmt.Errorf("%s: score: %w", name, err)
	}
	result.Scored = true
	fmt.Fprintln(e.out, name)
	fmt.Fprintf(e.out, "Prediction accuracy: %0.2f\n", result.Accuracy)

	scorer, ok := clf.(ml.OOBScorer)
	if !ok {
		return result, fmt.Errorf("%s: %w", name, ml.ErrOOBDisabled)
	}
	oob, err := scorer.OOBScore()
	if err != nil {
		return result, fmt.Errorf("%s: oob score: %w", name, err)
	}
	result.HasOOB, result.OOBScore = true, oob
	fmt.Fprintf(e.out, "OOB score: %0.2f\n", oob)
	return result, nil
}

// Baseline fits a fresh model from newModel, attaches its test predictions
// as predict, and reports a k-fold stratified cross-validated accuracy on
// the training partition alongside the test accuracy.
func (e *Evaluator) Baseline(ctx context.Context, name string, newModel func() ml.Classifier, test *models.Table,
	trainX mat.Matrix, trainY []string, testX mat.Matrix, testY []string, folds, workers int) (models.ModelResult, error) {

	result := models.ModelResult{Name: name, TrainRows: len(trainY), TestRows: len(testY)}

	model := newModel()
	if err := model.Fit(ctx, trainX, trainY); err != nil {
		return result, fmt.Errorf("%s: fit: %w", name, err)
	}
	result.Labels = len(model.Classes())

	pred, err := model.Predict(testX)
	if err != nil {
		return result, fmt.Errorf("%s: predict: %w", name, err)
	}
	if err := test.SetStrings(models.ColPredict, pred, nil); err != nil {
		return result, fmt.Errorf("%s: %w", name, err)
	}
	if result.Accuracy, err = ml.Accuracy(testY, pred); err != nil {
		return result, fmt.Errorf("%s: score: %w", name, err)
	}
	result.Scored = true

	if smallest := ml.MinClassCount(trainY); smallest < folds {
		e.logger.Warn("[evaluator] Smallest class of %s has %d members, fewer than %d folds", name, smallest, folds)
	}
	scores, err := ml.CrossValScore(ctx, newModel, trainX, trainY, folds, workers)
	fmt.Fprintln(e.out, "Logistic Regression")
	if err != nil {
		fmt.Fprintf(e.out, "Prediction: %0.2f\n", result.Accuracy)
		return result, fmt.Errorf("%s: %w", name, err)
	}
	cv := ml.Summarize(scores)
	result.HasCV, result.CVMean, result.CVStd = true, cv.Mean, cv.Std

	fmt.Fprintf(e.out, "Accuracy: %0.2f (+/- %0.2f)\n", cv.Mean, cv.Interval())
	fmt.Fprintf(e.out, "Prediction: %0.2f\n", result.Accuracy)
	return result, nil
}

func (e *Evaluator) writeProbabilities(name string, clf ml.Classifier, test *models.Table, testX mat.Matrix) (string, error) {
	if e.proba == nil {
		return "", errors.New(name + ": probability output requested but no writer configured")
	}
	p, err := clf.PredictProba(testX)
	if err != nil {
		return "", fmt.Errorf("%s: predict proba: %w", name, err)
	}
	path, err := e.proba.Write(name, test, p)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	e.logger.Info("[evaluator] Class probabilities for %s saved to %s", name, path)
	return path, nil
}
