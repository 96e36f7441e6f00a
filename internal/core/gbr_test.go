package core_test

import (
	"gbr-server/internal/core"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestGradientBoostingPredict(t *testing.T) {
	// depth two tree: x0 <= 0 ? (x1 <= 5 ? 1 : 2) : 3
	tree := core.Tree{
		ChildrenLeft:  []int{1, 2, -1, -1, -1},
		ChildrenRight: []int{4, 3, -1, -1, -1},
		Feature:       []int{0, 1, -2, -2, -2},
		Threshold:     []float64{0, 5, -2, -2, -2},
		Value:         []float64{0, 0, 1, 2, 3},
	}
	gbr, err := core.NewGradientBoosting(2, 0.1, 10, []core.Tree{tree, tree})
	require.NoError(t, err)

	x := mat.NewDense(3, 2, []float64{
		-1, 4,
		0, 6,
		1, 0,
	})
	predictions, err := gbr.Predict(x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{10.2, 10.4, 10.6}, predictions, 1e-9)
}

func TestGradientBoostingMissingValues(t *testing.T) {
	tree := core.Tree{
		ChildrenLeft:    []int{1, -1, -1},
		ChildrenRight:   []int{2, -1, -1},
		Feature:         []int{0, -2, -2},
		Threshold:       []float64{0, -2, -2},
		Value:           []float64{0, -1, 1},
		MissingGoToLeft: []bool{true, false, false},
	}
	gbr, err := core.NewGradientBoosting(1, 1, 0, []core.Tree{tree})
	require.NoError(t, err)

	predictions, err := gbr.Predict(mat.NewDense(1, 1, []float64{math.NaN()}))
	require.NoError(t, err)
	assert.Equal(t, []float64{-1}, predictions)

	tree.MissingGoToLeft = nil
	gbr, err = core.NewGradientBoosting(1, 1, 0, []core.Tree{tree})
	require.NoError(t, err)

	predictions, err = gbr.Predict(mat.NewDense(1, 1, []float64{math.NaN()}))
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, predictions)
}

func TestGradientBoostingFeatureMismatch(t *testing.T) {
	gbr, err := core.NewGradientBoosting(3, 1, 0, []core.Tree{{
		ChildrenLeft: []int{-1}, ChildrenRight: []int{-1}, Feature: []int{-2}, Threshold: []float64{-2}, Value: []float64{1},
	}})
	require.NoError(t, err)

	_, err = gbr.Predict(mat.NewDense(1, 2, nil))
	assert.ErrorContains(t, err, "X has 2 features, but GradientBoostingRegressor is expecting 3 features as input")
}

func TestGradientBoostingLargeBatchMatchesSerial(t *testing.T) {
	tree := core.Tree{
		ChildrenLeft:  []int{1, -1, -1},
		ChildrenRight: []int{2, -1, -1},
		Feature:       []int{0, -2, -2},
		Threshold:     []float64{0.5, -2, -2},
		Value:         []float64{0, 1, 2},
	}
	gbr, err := core.NewGradientBoosting(1, 1, 0, []core.Tree{tree})
	require.NoError(t, err)

	rows := 5000
	data := make([]float64, rows)
	for i := range data {
		data[i] = float64(i % 2)
	}

	predictions, err := gbr.Predict(mat.NewDense(rows, 1, data))
	require.NoError(t, err)
	require.Len(t, predictions, rows)
	for i, p := range predictions {
		assert.Equal(t, float64(i%2)+1, p, "row %d", i)
	}
}
