package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"listing-classifier/config"
	"listing-classifier/ml"
	"listing-classifier/models"
	"listing-classifier/storage"
	"listing-classifier/utils"
)

const (
	featuresTitles     = "titles"
	featuresStructured = "titles+rms+price+sqft"

	baselineName = "logistic-regression-titles-10categories"
	sweepFile    = "oob-error-sweep.csv"
	maxDFFile    = "max-df-sweep.csv"
)

// DefaultMaxDFGrid is 0.05, 0.10, ... 0.95.
func DefaultMaxDFGrid() []float64 {
	grid := make([]float64, 19)
	for i := range grid {
		grid[i] = float64(i+1) / 20
	}
	return grid
}

// Options is everything a pipeline run depends on.
type Options struct {
	InputPath     string
	UnlabeledPath string
	OutputDir     string

	Trees     int
	Workers   int
	Seed      int64
	SplitSeed int64
	MaxDF     float64
	TestSize  float64
	CVFolds   int

	WriteProba bool
	Progress   bool
}

// OptionsFromConfig maps the environment configuration onto pipeline options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		InputPath:     cfg.InputPath(),
		UnlabeledPath: cfg.UnlabeledPath(),
		OutputDir:     cfg.OutputDir(),
		Trees:         cfg.Trees,
		Workers:       cfg.Workers,
		Seed:          cfg.Seed,
		SplitSeed:     cfg.SplitSeed,
		MaxDF:         cfg.MaxDF,
		TestSize:      cfg.TestSize,
		CVFolds:       cfg.CVFolds,
		WriteProba:    cfg.WriteProba,
	}
}

type forestConfig struct {
	name       string
	labelCol   string
	structured bool
}

var forestConfigs = []forestConfig{
	{name: "rf-titles-10categories", labelCol: models.ColCategoryText},
	{name: "rf-titles-3categories", labelCol: models.ColCategory3},
	{name: "rf-titles-rms-price-10categories", labelCol: models.ColCategoryText, structured: true},
	{name: "rf-titles-rms-price-3categories", labelCol: models.ColCategory3, structured: true},
}

// Prepared holds the split tables and the feature matrices fitted on the
// training partition.
type Prepared struct {
	Train, Test *models.Table
	Builder     *FeatureBuilder

	TrainText, TestText *ml.CSR
	TrainFull, TestFull *ml.CSR

	LoadedRows  int
	DroppedRows int
	UnseenRooms int
}

// Matrices returns the train and test matrices for a feature set.
func (p *Prepared) Matrices(structured bool) (train, test *ml.CSR) {
	if structured {
		return p.TrainFull, p.TestFull
	}
	return p.TrainText, p.TestText
}

// Labels returns the train and test label vectors of col.
func (p *Prepared) Labels(col string) (train, test []string, err error) {
	if train, err = p.Train.Strings(col); err != nil {
		return nil, nil, err
	}
	if test, err = p.Test.Strings(col); err != nil {
		return nil, nil, err
	}
	return train, test, nil
}

type Pipeline struct {
	opts      Options
	logger    *utils.Logger
	out       io.Writer
	cleaner   *Cleaner
	evaluator *Evaluator
	report    *ReportService
	store     storage.ResultWriter
}

// NewPipeline wires the pipeline services. store may be nil.
func NewPipeline(opts Options, logger *utils.Logger, out io.Writer, store storage.ResultWriter) *Pipeline {
	return &Pipeline{
		opts:      opts,
		logger:    logger,
		out:       out,
		cleaner:   NewCleaner(logger),
		evaluator: NewEvaluator(logger, out, storage.NewProbabilityWriter(opts.OutputDir)),
		report:    NewReportService(logger, out),
		store:     store,
	}
}

// Prepare loads the labelled dataset and builds the feature matrices.
func (p *Pipeline) Prepare(ctx context.Context) (*Prepared, error) {
	p.logger.Info("[pipeline] Loading %s", p.opts.InputPath)
	t, err := storage.LoadListings(p.opts.InputPath, models.RequiredColumns...)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.PrepareTable(t)
}

// PrepareTable cleans t, splits it stratified on Category_3 and fits the room
// schema and title vectorizer on the training partition only.
func (p *Pipeline) PrepareTable(t *models.Table) (*Prepared, error) {
	prep := &Prepared{LoadedRows: t.Len()}

	labelled, err := p.cleaner.DropMissing(t, models.ColCategory)
	if err != nil {
		return nil, err
	}
	prep.DroppedRows = t.Len() - labelled.Len()
	if err := p.cleaner.ImputeDefaults(labelled); err != nil {
		return nil, err
	}
	if err := p.cleaner.DeriveLabels(labelled); err != nil {
		return nil, err
	}

	prep.Train, prep.Test, err = StratifiedSplit(labelled, models.ColCategory3, p.opts.TestSize, p.opts.SplitSeed)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	p.logger.Info("[pipeline] Split %d listings into %d train / %d test", labelled.Len(), prep.Train.Len(), prep.Test.Len())

	rooms, err := FitRoomSchema(prep.Train)
	if err != nil {
		return nil, err
	}
	if _, err := rooms.Apply(prep.Train); err != nil {
		return nil, err
	}
	if prep.UnseenRooms, err = rooms.Apply(prep.Test); err != nil {
		return nil, err
	}
	if prep.UnseenRooms > 0 {
		p.logger.Warn("[pipeline] %d test listings have a room count unseen in training; encoded as all-zero", prep.UnseenRooms)
	}

	if err := prep.fitFeatures(rooms, p.opts.MaxDF); err != nil {
		return nil, err
	}
	p.logger.Info("[pipeline] %d title terms, %d room indicators", len(prep.Builder.Vectorizer.Vocabulary()), len(rooms.Columns))
	return prep, nil
}

// fitFeatures fits a title vectorizer with the given document-frequency
// ceiling on the training partition and rebuilds every feature matrix.
func (p *Prepared) fitFeatures(rooms *RoomSchema, maxDF float64) error {
	b := NewFeatureBuilder(ml.NewTfidfVectorizer(maxDF), rooms)
	titles, err := p.Train.Strings(models.ColTitle)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	trainText, err := b.Vectorizer.FitTransform(titles)
	if err != nil {
		return fmt.Errorf("pipeline: titles: %w", err)
	}
	testText, err := b.Text(p.Test)
	if err != nil {
		return err
	}
	trainFull, err := b.Combine(trainText, p.Train)
	if err != nil {
		return err
	}
	testFull, err := b.Combine(testText, p.Test)
	if err != nil {
		return err
	}
	p.Builder = b
	p.TrainText, p.TestText = trainText, testText
	p.TrainFull, p.TestFull = trainFull, testFull
	return nil
}

// Run trains and evaluates the logistic baseline and the four forest
// configurations, prints the summary and stores it when a store is set.
// A failing configuration does not stop the others; all failures are
// returned joined.
func (p *Pipeline) Run(ctx context.Context) (*models.RunReport, error) {
	prep, err := p.Prepare(ctx)
	if err != nil {
		return nil, err
	}
	return p.RunPrepared(ctx, prep)
}

// RunPrepared is Run on already prepared data.
func (p *Pipeline) RunPrepared(ctx context.Context, prep *Prepared) (*models.RunReport, error) {
	report := &models.RunReport{
		RunID:       uuid.NewString(),
		InputPath:   p.opts.InputPath,
		LoadedRows:  prep.LoadedRows,
		DroppedRows: prep.DroppedRows,
		TrainRows:   prep.Train.Len(),
		TestRows:    prep.Test.Len(),
		Vocabulary:  len(prep.Builder.Vectorizer.Vocabulary()),
		RoomColumns: prep.Builder.Rooms.Columns,
		UnseenRooms: prep.UnseenRooms,
	}
	var errs []error
	record := func(res models.ModelResult, err error) {
		if err != nil {
			p.logger.Error("[pipeline] %v", err)
			res.Err = err
			errs = append(errs, err)
		}
		report.Results = append(report.Results, res)
	}

	trainY, testY, err := prep.Labels(models.ColCategoryText)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	newBaseline := func() ml.Classifier { return ml.NewLogisticRegression() }
	res, err := p.evaluator.Baseline(ctx, baselineName, newBaseline, prep.Test,
		prep.TrainText, trainY, prep.TestText, testY, p.opts.CVFolds, p.opts.Workers)
	res.Features = featuresTitles
	record(res, err)

	for _, fc := range forestConfigs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		record(p.evaluateForest(ctx, prep, fc))
	}

	p.report.Print(report)
	if p.store != nil {
		if err := p.store.Write(report); err != nil {
			p.logger.Error("[pipeline] Storing run %s failed: %v", report.RunID, err)
			errs = append(errs, err)
		} else {
			p.logger.Info("[pipeline] Run %s stored", report.RunID)
		}
	}
	return report, errors.Join(errs...)
}

func (p *Pipeline) evaluateForest(ctx context.Context, prep *Prepared, fc forestConfig) (models.ModelResult, error) {
	features := featuresTitles
	if fc.structured {
		features = featuresStructured
	}
	trainY, testY, err := prep.Labels(fc.labelCol)
	if err != nil {
		return models.ModelResult{Name: fc.name, Features: features}, fmt.Errorf("%s: %w", fc.name, err)
	}
	trainX, testX := prep.Matrices(fc.structured)

	rf, done := p.newForest(fc.name, p.opts.Trees)
	defer done()
	res, err := p.evaluator.GetResults(ctx, fc.name, rf, prep.Test, trainX, trainY, testX, testY, p.opts.WriteProba)
	res.Features = features
	return res, err
}

// newForest returns an OOB-scoring forest and a function that finishes its
// progress bar.
func (p *Pipeline) newForest(name string, trees int) (*ml.RandomForest, func()) {
	opts := []ml.ForestOption{
		ml.WithNEstimators(trees),
		ml.WithOOBScore(true),
		ml.WithWorkers(p.opts.Workers),
		ml.WithRandomState(p.opts.Seed),
	}
	if !p.opts.Progress {
		return ml.NewRandomForest(opts...), func() {}
	}

	bar := progressbar.NewOptions(trees,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]"+name+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
	)
	opts = append(opts, ml.WithProgress(func() { _ = bar.Add(1) }))
	return ml.NewRandomForest(opts...), func() { _ = bar.Finish() }
}

// Sweep fits title+structured 3-class forests of step, 2·step, ... maxTrees
// trees and writes their out-of-bag error to the output directory.
func (p *Pipeline) Sweep(ctx context.Context, maxTrees, step int) ([]models.SweepPoint, string, error) {
	if step <= 0 || maxTrees < step {
		return nil, "", fmt.Errorf("pipeline: sweep: need 0 < step <= max trees, got step %d, max %d", step, maxTrees)
	}
	prep, err := p.Prepare(ctx)
	if err != nil {
		return nil, "", err
	}
	trainY, _, err := prep.Labels(models.ColCategory3)
	if err != nil {
		return nil, "", fmt.Errorf("pipeline: sweep: %w", err)
	}

	var points []models.SweepPoint
	for n := step; n <= maxTrees; n += step {
		rf, done := p.newForest(fmt.Sprintf("sweep %d trees", n), n)
		err := rf.Fit(ctx, prep.TrainFull, trainY)
		done()
		if err != nil {
			return points, "", fmt.Errorf("pipeline: sweep %d trees: %w", n, err)
		}
		oob, err := rf.OOBScore()
		if err != nil {
			return points, "", fmt.Errorf("pipeline: sweep %d trees: %w", n, err)
		}
		points = append(points, models.SweepPoint{Trees: n, OOBError: 1 - oob})
		p.logger.Info("[pipeline] %d trees: OOB error %.4f", n, 1-oob)
	}

	path := filepath.Join(p.opts.OutputDir, sweepFile)
	if err := storage.WriteSweep(path, points); err != nil {
		return points, "", err
	}
	return points, path, nil
}

// SweepMaxDF refits the title vectorizer for each document-frequency
// ceiling in values and records the test accuracy and out-of-bag error of
// the title+structured 3-class forest. A ceiling that prunes every term is
// skipped with a warning.
func (p *Pipeline) SweepMaxDF(ctx context.Context, values []float64) ([]models.MaxDFPoint, string, error) {
	if len(values) == 0 {
		return nil, "", errors.New("pipeline: max_df sweep: no values")
	}
	prep, err := p.Prepare(ctx)
	if err != nil {
		return nil, "", err
	}
	_, testY, err := prep.Labels(models.ColCategory3)
	if err != nil {
		return nil, "", fmt.Errorf("pipeline: max_df sweep: %w", err)
	}
	rooms := prep.Builder.Rooms

	var points []models.MaxDFPoint
	for _, maxDF := range values {
		if err := prep.fitFeatures(rooms, maxDF); err != nil {
			if errors.Is(err, ml.ErrEmptyVocabulary) {
				p.logger.Warn("[pipeline] max_df %.2f leaves no title terms, skipped", maxDF)
				continue
			}
			return points, "", fmt.Errorf("pipeline: max_df %.2f: %w", maxDF, err)
		}
		rf, err := p.fitStructuredForest(ctx, prep)
		if err != nil {
			return points, "", fmt.Errorf("pipeline: max_df %.2f: %w", maxDF, err)
		}
		acc, err := ml.Score(rf, prep.TestFull, testY)
		if err != nil {
			return points, "", fmt.Errorf("pipeline: max_df %.2f: %w", maxDF, err)
		}
		oob, err := rf.OOBScore()
		if err != nil {
			return points, "", fmt.Errorf("pipeline: max_df %.2f: %w", maxDF, err)
		}
		points = append(points, models.MaxDFPoint{MaxDF: maxDF, Accuracy: acc, OOBError: 1 - oob})
		p.logger.Info("[pipeline] max_df %.2f: %d terms, accuracy %.4f, OOB error %.4f",
			maxDF, len(prep.Builder.Vectorizer.Vocabulary()), acc, 1-oob)
	}

	path := filepath.Join(p.opts.OutputDir, maxDFFile)
	if err := storage.WriteMaxDFSweep(path, points); err != nil {
		return points, "", err
	}
	return points, path, nil
}

// Importance ranks the title+structured features of the 3-class forest by
// mean decrease in impurity. top <= 0 keeps every feature.
func (p *Pipeline) Importance(ctx context.Context, top int) ([]models.FeatureRank, error) {
	prep, err := p.Prepare(ctx)
	if err != nil {
		return nil, err
	}
	rf, err := p.fitStructuredForest(ctx, prep)
	if err != nil {
		return nil, err
	}
	mean, std, err := rf.FeatureImportances()
	if err != nil {
		return nil, fmt.Errorf("pipeline: importance: %w", err)
	}

	names := prep.Builder.FeatureNames()
	ranks := make([]models.FeatureRank, len(mean))
	for j := range mean {
		ranks[j] = models.FeatureRank{Feature: names[j], Importance: mean[j], Std: std[j]}
	}
	sort.SliceStable(ranks, func(a, b int) bool { return ranks[a].Importance > ranks[b].Importance })
	if top > 0 && top < len(ranks) {
		ranks = ranks[:top]
	}
	for i := range ranks {
		ranks[i].Rank = i + 1
	}
	p.report.PrintImportances(ranks)
	return ranks, nil
}

// PredictUnlabeled trains the title+structured 3-class forest and labels the
// listings of path (the configured unlabeled dataset when empty). The result
// is written next to the input as Predicted_<name>.
func (p *Pipeline) PredictUnlabeled(ctx context.Context, path string) (string, error) {
	if path == "" {
		path = p.opts.UnlabeledPath
	}
	prep, err := p.Prepare(ctx)
	if err != nil {
		return "", err
	}
	rf, err := p.fitStructuredForest(ctx, prep)
	if err != nil {
		return "", err
	}

	t, err := storage.LoadListings(path, models.ColTitle, models.ColRooms, models.ColPrice, models.ColSqft)
	if err != nil {
		return "", err
	}
	if err := p.cleaner.ImputeDefaults(t); err != nil {
		return "", err
	}
	unseen, err := prep.Builder.Rooms.Apply(t)
	if err != nil {
		return "", err
	}
	if unseen > 0 {
		p.logger.Warn("[pipeline] %d unlabeled listings have a room count unseen in training; encoded as all-zero", unseen)
	}
	text, err := prep.Builder.Text(t)
	if err != nil {
		return "", err
	}
	x, err := prep.Builder.Combine(text, t)
	if err != nil {
		return "", err
	}
	pred, err := rf.Predict(x)
	if err != nil {
		return "", fmt.Errorf("pipeline: predict: %w", err)
	}
	if err := t.SetStrings(models.ColPredicted, pred, nil); err != nil {
		return "", fmt.Errorf("pipeline: predict: %w", err)
	}

	out := filepath.Join(filepath.Dir(path), "Predicted_"+filepath.Base(path))
	if err := storage.WriteTable(out, t); err != nil {
		return "", err
	}
	p.logger.Info("[pipeline] Labelled %d listings → %s", t.Len(), out)
	return out, nil
}

func (p *Pipeline) fitStructuredForest(ctx context.Context, prep *Prepared) (*ml.RandomForest, error) {
	trainY, _, err := prep.Labels(models.ColCategory3)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	rf, done := p.newForest("rf-titles-rms-price-3categories", p.opts.Trees)
	defer done()
	if err := rf.Fit(ctx, prep.TrainFull, trainY); err != nil {
		return nil, fmt.Errorf("pipeline: fit: %w", err)
	}
	return rf, nil
}
