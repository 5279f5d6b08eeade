package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"listing-classifier/utils"
)

// RandomForest is a bagged ensemble of CART trees. Tree seeds are drawn in
// order from RandomState before any tree is built, so a fitted forest is the
// same for every Workers value.
type RandomForest struct {
	NEstimators     int
	MaxFeatures     int // 0 means sqrt(n_features)
	MaxDepth        int // 0 means unlimited
	MinSamplesSplit int
	MinSamplesLeaf  int
	Bootstrap       bool
	OOB             bool
	Workers         int
	RandomState     int64

	progress func()

	trees     []*decisionTree
	classes   []string
	nFeatures int
	oobScore  float64
	oobErr    error
}

// ForestOption configures a RandomForest.
type ForestOption func(*RandomForest)

func WithNEstimators(n int) ForestOption      { return func(rf *RandomForest) { rf.NEstimators = n } }
func WithMaxFeatures(n int) ForestOption      { return func(rf *RandomForest) { rf.MaxFeatures = n } }
func WithMaxDepth(n int) ForestOption         { return func(rf *RandomForest) { rf.MaxDepth = n } }
func WithBootstrap(b bool) ForestOption       { return func(rf *RandomForest) { rf.Bootstrap = b } }
func WithOOBScore(b bool) ForestOption        { return func(rf *RandomForest) { rf.OOB = b } }
func WithWorkers(n int) ForestOption          { return func(rf *RandomForest) { rf.Workers = n } }
func WithRandomState(seed int64) ForestOption { return func(rf *RandomForest) { rf.RandomState = seed } }

// WithProgress registers a callback invoked once per finished tree. It may be
// called from several goroutines at once.
func WithProgress(fn func()) ForestOption { return func(rf *RandomForest) { rf.progress = fn } }

// NewRandomForest returns a forest with scikit-learn style defaults.
func NewRandomForest(opts ...ForestOption) *RandomForest {
	rf := &RandomForest{
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Bootstrap:       true,
		Workers:         1,
		RandomState:     time.Now().UnixNano(),
	}
	for _, o := range opts {
		o(rf)
	}
	return rf
}

// Fit grows NEstimators trees on bootstrap samples of x.
func (rf *RandomForest) Fit(ctx context.Context, x mat.Matrix, y []string) error {
	csr := AsCSR(x)
	n, d := csr.Dims()
	if n == 0 || d == 0 {
		return fmt.Errorf("forest: fit: %w: empty feature matrix %dx%d", ErrDimension, n, d)
	}
	if len(y) != n {
		return fmt.Errorf("forest: fit: %w: %d rows vs %d labels", ErrDimension, n, len(y))
	}
	if rf.NEstimators <= 0 {
		return fmt.Errorf("forest: fit: n_estimators must be positive, got %d", rf.NEstimators)
	}
	if rf.OOB && !rf.Bootstrap {
		return errors.New("forest: fit: out-of-bag estimation requires bootstrap sampling")
	}

	classes, codes := encodeLabels(y)
	rows := denseRows(csr)

	maxFeatures := rf.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Sqrt(float64(d)))
	}
	maxFeatures = min(max(maxFeatures, 1), d)

	master := rand.New(rand.NewSource(rf.RandomState))
	seeds := make([]int64, rf.NEstimators)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]*decisionTree, rf.NEstimators)
	var inbag [][]bool
	if rf.OOB {
		inbag = make([][]bool, rf.NEstimators)
	}

	workers := max(rf.Workers, 1)
	pool := utils.NewWorkerPool(workers, 0)
	for i := range trees {
		pool.Submit(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seeds[i]))
			samples := make([]int, n)
			var bag []bool
			if rf.Bootstrap {
				bag = make([]bool, n)
				for j := range samples {
					s := rng.Intn(n)
					samples[j] = s
					bag[s] = true
				}
			} else {
				for j := range samples {
					samples[j] = j
				}
			}

			tree := &decisionTree{
				maxFeatures:     maxFeatures,
				minSamplesSplit: max(rf.MinSamplesSplit, 2),
				minSamplesLeaf:  max(rf.MinSamplesLeaf, 1),
				maxDepth:        rf.MaxDepth,
				nClasses:        len(classes),
			}
			tree.fit(rows, codes, samples, d, rng)

			trees[i] = tree
			if inbag != nil {
				inbag[i] = bag
			}
			if rf.progress != nil {
				rf.progress()
			}
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		return fmt.Errorf("forest: fit: %w", err)
	}

	rf.trees = trees
	rf.classes = classes
	rf.nFeatures = d
	if rf.OOB {
		rf.oobScore, rf.oobErr = oobAccuracy(rows, codes, trees, inbag, len(classes))
	}
	return nil
}

func oobAccuracy(rows [][]float64, y []int, trees []*decisionTree, inbag [][]bool, nClasses int) (float64, error) {
	n := len(rows)
	sums := make([][]float64, n)
	for t, tree := range trees {
		for s := 0; s < n; s++ {
			if inbag[t][s] {
				continue
			}
			if sums[s] == nil {
				sums[s] = make([]float64, nClasses)
			}
			for k, p := range tree.leafValue(rows[s]) {
				sums[s][k] += p
			}
		}
	}

	scored, hits := 0, 0
	for s, acc := range sums {
		if acc == nil {
			continue
		}
		scored++
		if argmax(acc) == y[s] {
			hits++
		}
	}
	if scored == 0 {
		return 0, errors.New("forest: no sample was ever out-of-bag; use more trees")
	}
	return float64(hits) / float64(scored), nil
}

// PredictProba returns an n x len(Classes()) matrix of averaged leaf class
// distributions.
func (rf *RandomForest) PredictProba(x mat.Matrix) (*mat.Dense, error) {
	if rf.trees == nil {
		return nil, fmt.Errorf("forest: predict: %w", ErrNotFitted)
	}
	csr := AsCSR(x)
	n, d := csr.Dims()
	if d != rf.nFeatures {
		return nil, fmt.Errorf("forest: predict: %w: %d features, model has %d", ErrDimension, d, rf.nFeatures)
	}

	if n == 0 {
		return nil, fmt.Errorf("forest: predict: %w: no rows", ErrDimension)
	}

	out := mat.NewDense(n, len(rf.classes), nil)
	row := make([]float64, d)
	inv := 1 / float64(len(rf.trees))
	for i := 0; i < n; i++ {
		csr.DenseRow(i, row)
		dst := out.RawRowView(i)
		for _, tree := range rf.trees {
			for k, p := range tree.leafValue(row) {
				dst[k] += p
			}
		}
		for k := range dst {
			dst[k] *= inv
		}
	}
	return out, nil
}

// Predict returns the most probable class per row.
func (rf *RandomForest) Predict(x mat.Matrix) ([]string, error) {
	if r, _ := x.Dims(); r == 0 {
		return []string{}, nil
	}
	proba, err := rf.PredictProba(x)
	if err != nil {
		return nil, err
	}
	return labelsFromProba(proba, rf.classes), nil
}

// Classes returns the sorted class labels seen during Fit.
func (rf *RandomForest) Classes() []string {
	out := make([]string, len(rf.classes))
	copy(out, rf.classes)
	return out
}

// OOBScore returns the out-of-bag accuracy of the last Fit.
func (rf *RandomForest) OOBScore() (float64, error) {
	if !rf.OOB {
		return 0, ErrOOBDisabled
	}
	if rf.trees == nil {
		return 0, fmt.Errorf("forest: oob score: %w", ErrNotFitted)
	}
	return rf.oobScore, rf.oobErr
}

// FeatureImportances returns the mean decrease in impurity per feature,
// averaged over trees, and its standard deviation across trees.
func (rf *RandomForest) FeatureImportances() (mean, std []float64, err error) {
	if rf.trees == nil {
		return nil, nil, fmt.Errorf("forest: importances: %w", ErrNotFitted)
	}
	mean = make([]float64, rf.nFeatures)
	std = make([]float64, rf.nFeatures)
	col := make([]float64, len(rf.trees))
	for j := 0; j < rf.nFeatures; j++ {
		for t, tree := range rf.trees {
			col[t] = tree.importances[j]
		}
		mean[j] = stat.Mean(col, nil)
		std[j] = math.Sqrt(stat.PopVariance(col, nil))
	}
	return mean, std, nil
}
