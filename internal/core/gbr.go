package core

import (
	"fmt"
	"math"
	"runtime"

	"gbr-server/internal/core/utils"

	"gonum.org/v1/gonum/mat"
)

const (
	leafNode = -1

	// Batches smaller than this are scored on the calling goroutine.
	parallelRowThreshold = 2048
	rowsPerBatch         = 1024
)

// Tree is a fitted regression tree in flattened, pre-order form. Node i is a
// leaf when ChildrenLeft[i] == -1.
type Tree struct {
	ChildrenLeft    []int
	ChildrenRight   []int
	Feature         []int
	Threshold       []float64
	Value           []float64
	MissingGoToLeft []bool
}

func (t *Tree) predict(x []float64) float64 {
	node := 0
	for t.ChildrenLeft[node] != leafNode {
		v := x[t.Feature[node]]
		var left bool
		if math.IsNaN(v) {
			left = t.MissingGoToLeft != nil && t.MissingGoToLeft[node]
		} else {
			left = v <= t.Threshold[node]
		}
		if left {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return t.Value[node]
}

func (t *Tree) validate(nFeatures int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("tree node arrays have mismatched lengths")
	}
	if t.MissingGoToLeft != nil && len(t.MissingGoToLeft) != n {
		return fmt.Errorf("missing_go_to_left has %d entries, expected %d", len(t.MissingGoToLeft), n)
	}
	for i := range n {
		left, right := t.ChildrenLeft[i], t.ChildrenRight[i]
		if left == leafNode {
			if right != leafNode {
				return fmt.Errorf("node %d has a right child but no left child", i)
			}
			continue
		}
		// Pre-order layout: children always follow their parent, which also
		// rules out cycles.
		if left <= i || left >= n || right <= i || right >= n {
			return fmt.Errorf("node %d has child indices (%d, %d) out of range", i, left, right)
		}
		if f := t.Feature[i]; f < 0 || f >= nFeatures {
			return fmt.Errorf("node %d splits on feature %d, expected < %d", i, f, nFeatures)
		}
	}
	return nil
}

// GradientBoosting is the regressor stage: an additive ensemble of
// regression trees on top of a constant initial estimate.
type GradientBoosting struct {
	nFeatures    int
	learningRate float64
	init         float64
	trees        []Tree
	workers      int
}

func NewGradientBoosting(nFeatures int, learningRate, init float64, trees []Tree) (*GradientBoosting, error) {
	if nFeatures <= 0 {
		return nil, fmt.Errorf("n_features must be positive, got %d", nFeatures)
	}
	if len(trees) == 0 {
		return nil, fmt.Errorf("regressor has no trees")
	}
	for i := range trees {
		if err := trees[i].validate(nFeatures); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return &GradientBoosting{
		nFeatures:    nFeatures,
		learningRate: learningRate,
		init:         init,
		trees:        trees,
		workers:      runtime.GOMAXPROCS(0),
	}, nil
}

func (g *GradientBoosting) NFeatures() int {
	return g.nFeatures
}

func (g *GradientBoosting) NEstimators() int {
	return len(g.trees)
}

func (g *GradientBoosting) predictRow(x []float64) float64 {
	sum := 0.0
	for i := range g.trees {
		sum += g.trees[i].predict(x)
	}
	return g.init + g.learningRate*sum
}

type rowRange struct {
	start, end int
}

func (g *GradientBoosting) Predict(features mat.Matrix) ([]float64, error) {
	rows, cols := features.Dims()
	if cols != g.nFeatures {
		return nil, &InferenceError{
			Stage: RegressorStep,
			Err:   fmt.Errorf("X has %d features, but GradientBoostingRegressor is expecting %d features as input", cols, g.nFeatures),
		}
	}

	predictions := make([]float64, rows)

	score := func(r rowRange) (struct{}, error) {
		buf := make([]float64, cols)
		for i := r.start; i < r.end; i++ {
			predictions[i] = g.predictRow(mat.Row(buf, i, features))
		}
		return struct{}{}, nil
	}

	if rows < parallelRowThreshold || g.workers <= 1 {
		score(rowRange{0, rows}) //nolint:errcheck
		return predictions, nil
	}

	var batches []rowRange
	for start := 0; start < rows; start += rowsPerBatch {
		batches = append(batches, rowRange{start, min(start+rowsPerBatch, rows)})
	}
	// Batches write disjoint ranges of predictions.
	utils.RunInPool(score, batches, g.workers)

	return predictions, nil
}
