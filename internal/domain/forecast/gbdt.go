package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

// Objective selects the loss a boosted ensemble minimizes
type Objective string

const (
	ObjectiveLogistic Objective = "binary:logistic"
	ObjectiveSquared  Objective = "reg:squarederror"
)

const (
	minSplitGain   = 1e-12
	minHessian     = 1e-16
	probabilityEps = 1e-6
)

// BoostingParams configures gradient boosting.
type BoostingParams struct {
	NumTrees       int     `json:"num_trees"`
	MaxDepth       int     `json:"max_depth"`
	LearningRate   float64 `json:"learning_rate"`
	Lambda         float64 `json:"lambda"`
	MinChildWeight float64 `json:"min_child_weight"`
}

// DefaultBoostingParams matches the production configuration: 100 trees of
// depth 6 with learning rate 0.1.
func DefaultBoostingParams() BoostingParams {
	return BoostingParams{
		NumTrees:       100,
		MaxDepth:       6,
		LearningRate:   0.1,
		Lambda:         1,
		MinChildWeight: 1,
	}
}

type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
	Leaf      bool    `json:"leaf,omitempty"`
}

type regressionTree struct {
	Nodes []treeNode `json:"nodes"`
}

func (t *regressionTree) predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// GradientBoostedTrees is an additive ensemble of regression trees fitted
// with second-order gradient boosting.
type GradientBoostedTrees struct {
	Objective    Objective        `json:"objective"`
	BaseScore    float64          `json:"base_score"`
	LearningRate float64          `json:"learning_rate"`
	NumFeatures  int              `json:"num_features"`
	Trees        []regressionTree `json:"trees"`
}

// Margin returns the raw additive score for x.
func (m *GradientBoostedTrees) Margin(x []float64) float64 {
	s := m.BaseScore
	for i := range m.Trees {
		s += m.LearningRate * m.Trees[i].predict(x)
	}
	return s
}

// Predict returns a probability for logistic ensembles and the raw score otherwise.
func (m *GradientBoostedTrees) Predict(x []float64) float64 {
	raw := m.Margin(x)
	if m.Objective == ObjectiveLogistic {
		return sigmoid(raw)
	}
	return raw
}

// FitGradientBoostedTrees fits an ensemble to rows X and targets y.
// For the logistic objective y must hold 0/1 labels. ctx is checked before
// every boosting round.
func FitGradientBoostedTrees(ctx context.Context, X [][]float64, y []float64, obj Objective, p BoostingParams) (*GradientBoostedTrees, error) {
	n := len(X)
	if n == 0 {
		return nil, errors.New("gbdt: empty training set")
	}
	if len(y) != n {
		return nil, errors.New("gbdt: rows and targets differ in length")
	}
	if p.NumTrees <= 0 || p.MaxDepth <= 0 || p.LearningRate <= 0 {
		return nil, errors.New("gbdt: invalid boosting parameters")
	}
	nf := len(X[0])
	for _, row := range X {
		if len(row) != nf {
			return nil, errors.New("gbdt: ragged feature matrix")
		}
	}

	model := &GradientBoostedTrees{
		Objective:    obj,
		BaseScore:    initialScore(y, obj),
		LearningRate: p.LearningRate,
		NumFeatures:  nf,
		Trees:        make([]regressionTree, 0, p.NumTrees),
	}

	sorted := make([][]int, nf)
	for f := 0; f < nf; f++ {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return X[idx[a]][f] < X[idx[b]][f] })
		sorted[f] = idx
	}

	margin := make([]float64, n)
	for i := range margin {
		margin[i] = model.BaseScore
	}
	b := &treeBuilder{
		X:      X,
		grad:   make([]float64, n),
		hess:   make([]float64, n),
		goLeft: make([]bool, n),
		params: p,
	}

	for t := 0; t < p.NumTrees; t++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("gbdt: stopped after %d of %d trees: %w", t, p.NumTrees, err)
		}
		computeGradients(obj, y, margin, b.grad, b.hess)
		tree := b.build(sorted)
		for i := range X {
			margin[i] += p.LearningRate * tree.predict(X[i])
		}
		model.Trees = append(model.Trees, tree)
	}
	return model, nil
}

func initialScore(y []float64, obj Objective) float64 {
	var sum float64
	for _, v := range y {
		sum += v
	}
	mean := sum / float64(len(y))
	if obj == ObjectiveLogistic {
		mean = math.Min(math.Max(mean, probabilityEps), 1-probabilityEps)
		return math.Log(mean / (1 - mean))
	}
	return mean
}

func computeGradients(obj Objective, y, margin, grad, hess []float64) {
	for i := range y {
		if obj == ObjectiveLogistic {
			p := sigmoid(margin[i])
			grad[i] = p - y[i]
			hess[i] = math.Max(p*(1-p), minHessian)
			continue
		}
		grad[i] = margin[i] - y[i]
		hess[i] = 1
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

type treeBuilder struct {
	X      [][]float64
	grad   []float64
	hess   []float64
	goLeft []bool
	params BoostingParams
	nodes  []treeNode
}

type splitCandidate struct {
	feature   int
	threshold float64
	gain      float64
	leftCount int
}

func (b *treeBuilder) build(sorted [][]int) regressionTree {
	b.nodes = nil
	b.grow(sorted, 0)
	return regressionTree{Nodes: b.nodes}
}

// grow adds the subtree over the samples in sorted (one ascending index
// list per feature, all holding the same sample set) and returns its root.
func (b *treeBuilder) grow(sorted [][]int, depth int) int {
	members := sorted[0]
	var G, H float64
	for _, i := range members {
		G += b.grad[i]
		H += b.hess[i]
	}

	id := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{Leaf: true, Value: -G / (H + b.params.Lambda)})
	if depth >= b.params.MaxDepth || len(members) < 2 {
		return id
	}

	split, ok := b.bestSplit(sorted, G, H)
	if !ok {
		return id
	}

	for _, i := range members {
		b.goLeft[i] = b.X[i][split.feature] < split.threshold
	}
	left := make([][]int, len(sorted))
	right := make([][]int, len(sorted))
	for f, list := range sorted {
		l := make([]int, 0, split.leftCount)
		r := make([]int, 0, len(list)-split.leftCount)
		for _, i := range list {
			if b.goLeft[i] {
				l = append(l, i)
			} else {
				r = append(r, i)
			}
		}
		left[f], right[f] = l, r
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id] = treeNode{Feature: split.feature, Threshold: split.threshold, Left: l, Right: r}
	return id
}

func (b *treeBuilder) bestSplit(sorted [][]int, G, H float64) (splitCandidate, bool) {
	lambda := b.params.Lambda
	parent := G * G / (H + lambda)
	best := splitCandidate{gain: minSplitGain}
	found := false

	for f, list := range sorted {
		var gl, hl float64
		for k := 0; k < len(list)-1; k++ {
			i := list[k]
			gl += b.grad[i]
			hl += b.hess[i]

			cur, next := b.X[i][f], b.X[list[k+1]][f]
			if cur == next {
				continue
			}
			gr, hr := G-gl, H-hl
			if hl < b.params.MinChildWeight || hr < b.params.MinChildWeight {
				continue
			}
			gain := gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - parent
			if gain > best.gain {
				threshold := cur + (next-cur)/2
				if threshold <= cur {
					threshold = next
				}
				best = splitCandidate{feature: f, threshold: threshold, gain: gain, leftCount: k + 1}
				found = true
			}
		}
	}
	return best, found
}
