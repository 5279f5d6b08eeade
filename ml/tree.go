package ml

import (
	"math"
	"math/rand"
	"sort"
)

// featureThreshold is the smallest gap between two sorted feature values that
// still counts as a distinct split point.
const featureThreshold = 1e-7

type treeNode struct {
	feature   int
	threshold float64
	left      int
	right     int
	value     []float64
}

// decisionTree is a CART classifier using Gini impurity. Trees are grown on
// index lists so bootstrap duplicates act as sample weights.
type decisionTree struct {
	maxFeatures     int
	minSamplesSplit int
	minSamplesLeaf  int
	maxDepth        int
	nClasses        int

	nodes       []treeNode
	importances []float64
}

type valueLabel struct {
	value float64
	label int
}

type split struct {
	feature   int
	threshold float64
	score     float64
	found     bool
}

func (t *decisionTree) fit(x [][]float64, y []int, samples []int, nFeatures int, rng *rand.Rand) {
	t.nodes = t.nodes[:0]
	t.importances = make([]float64, nFeatures)

	features := make([]int, nFeatures)
	for i := range features {
		features[i] = i
	}
	known := make([]bool, nFeatures)

	// constant lists the features already found constant on an ancestor;
	// they stay constant in every descendant.
	type frame struct {
		node     int
		samples  []int
		depth    int
		constant []int
	}
	stack := []frame{{node: t.newNode(), samples: samples}}
	pairs := make([]valueLabel, 0, len(samples))
	total := make([]float64, t.nClasses)
	left := make([]float64, t.nClasses)

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for k := range total {
			total[k] = 0
		}
		for _, s := range f.samples {
			total[y[s]]++
		}
		n := float64(len(f.samples))
		impurity := gini(total, n)

		if impurity <= 0 ||
			len(f.samples) < t.minSamplesSplit ||
			len(f.samples) < 2*t.minSamplesLeaf ||
			(t.maxDepth > 0 && f.depth >= t.maxDepth) {
			t.makeLeaf(f.node, total, n)
			continue
		}

		for _, c := range f.constant {
			known[c] = true
		}
		best, found := t.bestSplit(x, y, f.samples, features, known, len(f.constant), total, left, pairs, rng)
		for _, c := range f.constant {
			known[c] = false
		}
		if !best.found {
			t.makeLeaf(f.node, total, n)
			continue
		}

		var lo, hi []int
		for _, s := range f.samples {
			if x[s][best.feature] <= best.threshold {
				lo = append(lo, s)
			} else {
				hi = append(hi, s)
			}
		}
		t.importances[best.feature] += n*impurity - best.score

		constant := f.constant
		if len(found) > 0 {
			constant = make([]int, 0, len(f.constant)+len(found))
			constant = append(append(constant, f.constant...), found...)
		}

		l, r := t.newNode(), t.newNode()
		t.nodes[f.node].feature = best.feature
		t.nodes[f.node].threshold = best.threshold
		t.nodes[f.node].left = l
		t.nodes[f.node].right = r
		stack = append(stack,
			frame{node: r, samples: hi, depth: f.depth + 1, constant: constant},
			frame{node: l, samples: lo, depth: f.depth + 1, constant: constant},
		)
	}

	var sum float64
	for _, v := range t.importances {
		sum += v
	}
	if sum > 0 {
		for i := range t.importances {
			t.importances[i] /= sum
		}
	}
}

// bestSplit draws features without replacement and returns the split with the
// lowest weighted child impurity, plus the features newly found constant.
// Every draw counts toward maxFeatures, constant features included; drawing
// only continues past the limit while every feature drawn so far was
// constant. Features marked in known are constant at this node and are
// counted without being scanned.
func (t *decisionTree) bestSplit(x [][]float64, y []int, samples, features []int, known []bool, nKnown int,
	total, left []float64, pairs []valueLabel, rng *rand.Rand) (split, []int) {

	best := split{score: math.Inf(1)}
	n := len(samples)
	visited, constants := 0, 0
	unknownLeft := len(features) - nKnown
	var found []int

	for i := 0; i < len(features) && unknownLeft > 0 &&
		(visited < t.maxFeatures || visited <= constants); i++ {
		j := i + rng.Intn(len(features)-i)
		features[i], features[j] = features[j], features[i]
		feat := features[i]
		visited++

		if known[feat] {
			constants++
			continue
		}
		unknownLeft--

		pairs = pairs[:0]
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, s := range samples {
			v := x[s][feat]
			pairs = append(pairs, valueLabel{value: v, label: y[s]})
			if v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
		}
		if maxV <= minV+featureThreshold {
			constants++
			found = append(found, feat)
			continue
		}

		sort.Slice(pairs, func(a, b int) bool { return pairs[a].value < pairs[b].value })
		for k := range left {
			left[k] = 0
		}
		for p := 0; p < n-1; p++ {
			left[pairs[p].label]++
			if pairs[p+1].value <= pairs[p].value+featureThreshold {
				continue
			}
			nl := p + 1
			nr := n - nl
			if nl < t.minSamplesLeaf || nr < t.minSamplesLeaf {
				continue
			}
			score := float64(nl)*gini(left, float64(nl)) + float64(nr)*giniComplement(total, left, float64(nr))
			if score < best.score {
				threshold := (pairs[p].value + pairs[p+1].value) / 2
				if threshold >= pairs[p+1].value {
					threshold = pairs[p].value
				}
				best = split{feature: feat, threshold: threshold, score: score, found: true}
			}
		}
	}
	return best, found
}

func (t *decisionTree) newNode() int {
	t.nodes = append(t.nodes, treeNode{left: -1, right: -1})
	return len(t.nodes) - 1
}

func (t *decisionTree) makeLeaf(node int, counts []float64, n float64) {
	value := make([]float64, len(counts))
	for k, c := range counts {
		value[k] = c / n
	}
	t.nodes[node].value = value
}

// leafValue walks row down the tree and returns the class distribution of
// the leaf it lands in.
func (t *decisionTree) leafValue(row []float64) []float64 {
	i := 0
	for t.nodes[i].left >= 0 {
		nd := &t.nodes[i]
		if row[nd.feature] <= nd.threshold {
			i = nd.left
		} else {
			i = nd.right
		}
	}
	return t.nodes[i].value
}

func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := c / n
		g -= p * p
	}
	return g
}

func giniComplement(total, left []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	g := 1.0
	for k := range total {
		p := (total[k] - left[k]) / n
		g -= p * p
	}
	return g
}
