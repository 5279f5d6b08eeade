package ml

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// LogisticRegression is a multinomial (softmax) classifier with an L2
// penalty of strength 1/C on the weights. The intercepts are not penalised.
type LogisticRegression struct {
	C       float64
	MaxIter int
	Tol     float64

	classes   []string
	nFeatures int
	weights   *mat.Dense // classes x features
	intercept []float64
}

// NewLogisticRegression returns a model with C=1, 100 LBFGS iterations and a
// gradient tolerance of 1e-4.
func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{C: 1, MaxIter: 100, Tol: 1e-4}
}

// Fit minimises the mean cross-entropy plus the L2 term with LBFGS.
func (m *LogisticRegression) Fit(ctx context.Context, x mat.Matrix, y []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	csr := AsCSR(x)
	n, d := csr.Dims()
	if n == 0 {
		return fmt.Errorf("logistic: fit: %w: no rows", ErrDimension)
	}
	if len(y) != n {
		return fmt.Errorf("logistic: fit: %w: %d rows vs %d labels", ErrDimension, n, len(y))
	}
	if m.C <= 0 {
		return fmt.Errorf("logistic: fit: C must be positive, got %g", m.C)
	}

	classes, codes := encodeLabels(y)
	if len(classes) < 2 {
		return errors.New("logistic: fit: need at least two classes")
	}
	k := len(classes)

	obj := &softmaxObjective{x: csr, y: codes, k: k, d: d, l2: 1 / (m.C * float64(n))}
	problem := optimize.Problem{
		Func: func(p []float64) float64 { return obj.eval(p, nil) },
		Grad: func(grad, p []float64) { obj.eval(p, grad) },
	}
	settings := &optimize.Settings{
		MajorIterations:   m.MaxIter,
		GradientThreshold: m.Tol,
	}

	result, err := optimize.Minimize(problem, make([]float64, k*(d+1)), settings, &optimize.LBFGS{})
	if result == nil {
		return fmt.Errorf("logistic: fit: %w", err)
	}
	for _, v := range result.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("logistic: fit: optimiser diverged: %v", err)
		}
	}

	m.classes = classes
	m.nFeatures = d
	m.weights = mat.NewDense(k, max(d, 1), nil)
	for c := 0; c < k; c++ {
		copy(m.weights.RawRowView(c), result.X[c*d:(c+1)*d])
	}
	m.intercept = append([]float64(nil), result.X[k*d:]...)
	return nil
}

// PredictProba returns softmax class probabilities, one row per sample.
func (m *LogisticRegression) PredictProba(x mat.Matrix) (*mat.Dense, error) {
	if m.weights == nil {
		return nil, fmt.Errorf("logistic: predict: %w", ErrNotFitted)
	}
	csr := AsCSR(x)
	n, d := csr.Dims()
	if d != m.nFeatures {
		return nil, fmt.Errorf("logistic: predict: %w: %d features, model has %d", ErrDimension, d, m.nFeatures)
	}
	if n == 0 {
		return nil, fmt.Errorf("logistic: predict: %w: no rows", ErrDimension)
	}

	k := len(m.classes)
	out := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		z := out.RawRowView(i)
		idx, vals := csr.Row(i)
		for c := 0; c < k; c++ {
			w := m.weights.RawRowView(c)
			s := m.intercept[c]
			for p, j := range idx {
				s += w[j] * vals[p]
			}
			z[c] = s
		}
		softmax(z)
	}
	return out, nil
}

// Predict returns the most probable class per row.
func (m *LogisticRegression) Predict(x mat.Matrix) ([]string, error) {
	if r, _ := x.Dims(); r == 0 {
		return []string{}, nil
	}
	proba, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}
	return labelsFromProba(proba, m.classes), nil
}

// Classes returns the sorted class labels seen during Fit.
func (m *LogisticRegression) Classes() []string {
	out := make([]string, len(m.classes))
	copy(out, m.classes)
	return out
}

// softmaxObjective packs parameters as k*d weights followed by k intercepts.
type softmaxObjective struct {
	x  *CSR
	y  []int
	k  int
	d  int
	l2 float64
}

func (o *softmaxObjective) eval(p, grad []float64) float64 {
	n, _ := o.x.Dims()
	w, b := p[:o.k*o.d], p[o.k*o.d:]
	if grad != nil {
		for i := range grad {
			grad[i] = 0
		}
	}

	z := make([]float64, o.k)
	var loss float64
	for i := 0; i < n; i++ {
		idx, vals := o.x.Row(i)
		for c := 0; c < o.k; c++ {
			s := b[c]
			row := w[c*o.d : (c+1)*o.d]
			for q, j := range idx {
				s += row[j] * vals[q]
			}
			z[c] = s
		}
		lse := floats.LogSumExp(z)
		loss += lse - z[o.y[i]]
		if grad == nil {
			continue
		}
		for c := 0; c < o.k; c++ {
			g := math.Exp(z[c] - lse)
			if c == o.y[i] {
				g--
			}
			g /= float64(n)
			gw := grad[c*o.d : (c+1)*o.d]
			for q, j := range idx {
				gw[j] += g * vals[q]
			}
			grad[o.k*o.d+c] += g
		}
	}
	loss /= float64(n)

	loss += 0.5 * o.l2 * floats.Dot(w, w)
	if grad != nil {
		floats.AddScaled(grad[:o.k*o.d], o.l2, w)
	}
	return loss
}

func softmax(z []float64) {
	lse := floats.LogSumExp(z)
	for i := range z {
		z[i] = math.Exp(z[i] - lse)
	}
}
