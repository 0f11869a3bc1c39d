package forecast

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitGradientBoostedTrees_StepFunction(t *testing.T) {
	var X [][]float64
	var y []float64
	for i := 0; i < 40; i++ {
		X = append(X, []float64{float64(i), float64(i % 3)})
		if i < 20 {
			y = append(y, 2)
		} else {
			y = append(y, 10)
		}
	}
	p := DefaultBoostingParams()
	p.NumTrees = 60
	p.MaxDepth = 2

	m, err := FitGradientBoostedTrees(t.Context(), X, y, ObjectiveSquared, p)
	require.NoError(t, err)

	assert.InDelta(t, 6.0, m.BaseScore, 1e-12)
	assert.InDelta(t, 2.0, m.Predict([]float64{3, 0}), 0.1)
	assert.InDelta(t, 10.0, m.Predict([]float64{35, 2}), 0.1)
}

func TestFitGradientBoostedTrees_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	m, err := FitGradientBoostedTrees(ctx, [][]float64{{1}, {2}, {3}}, []float64{1, 2, 3}, ObjectiveSquared, DefaultBoostingParams())
	assert.Nil(t, m)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorContains(t, err, "stopped after 0 of 100 trees")
}

func TestFitGradientBoostedTrees_Logistic(t *testing.T) {
	var X [][]float64
	var y []float64
	for i := 0; i < 50; i++ {
		x := float64(i) / 50
		X = append(X, []float64{x})
		y = append(y, boolFeature(x >= 0.5))
	}

	m, err := FitGradientBoostedTrees(t.Context(), X, y, ObjectiveLogistic, DefaultBoostingParams())
	require.NoError(t, err)

	low := m.Predict([]float64{0.1})
	high := m.Predict([]float64{0.9})
	assert.Less(t, low, 0.1)
	assert.Greater(t, high, 0.9)
	assert.Greater(t, low, 0.0)
	assert.Less(t, high, 1.0)
}

func TestFitGradientBoostedTrees_SingleClass(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}}
	m, err := FitGradientBoostedTrees(t.Context(), X, []float64{1, 1, 1}, ObjectiveLogistic, DefaultBoostingParams())
	require.NoError(t, err)

	assert.Greater(t, m.Predict([]float64{2}), 0.99)
}

func TestFitGradientBoostedTrees_InvalidInput(t *testing.T) {
	p := DefaultBoostingParams()

	tests := []struct {
		name string
		X    [][]float64
		y    []float64
		p    BoostingParams
	}{
		{"empty", nil, nil, p},
		{"length mismatch", [][]float64{{1}, {2}}, []float64{1}, p},
		{"ragged", [][]float64{{1}, {2, 3}}, []float64{1, 0}, p},
		{"no trees", [][]float64{{1}}, []float64{1}, BoostingParams{MaxDepth: 3, LearningRate: 0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FitGradientBoostedTrees(t.Context(), tt.X, tt.y, ObjectiveSquared, tt.p)
			assert.Error(t, err)
		})
	}
}

func TestGradientBoostedTrees_JSONRoundTrip(t *testing.T) {
	X := [][]float64{{1, 5}, {2, 4}, {3, 3}, {4, 2}, {5, 1}, {6, 0}}
	y := []float64{1, 1, 2, 3, 5, 8}
	p := DefaultBoostingParams()
	p.NumTrees = 10
	p.MinChildWeight = 0

	m, err := FitGradientBoostedTrees(t.Context(), X, y, ObjectiveSquared, p)
	require.NoError(t, err)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	var back GradientBoostedTrees
	require.NoError(t, json.Unmarshal(data, &back))

	for _, x := range X {
		assert.Equal(t, m.Predict(x), back.Predict(x))
	}
}
