package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitnessWeighting(t *testing.T) {
	assert.Zero(t, Fitness(1, 1, 0, 0), "precision and recall carry no weight")
	assert.InDelta(t, 0.1, Fitness(0, 0, 1, 0), 1e-12)
	assert.InDelta(t, 0.9, Fitness(0, 0, 0, 1), 1e-12)
	assert.InDelta(t, 0.62, Fitness(0.5, 0.5, 0.8, 0.6), 1e-12)
}

func TestNewReportAggregates(t *testing.T) {
	res := &APResult{
		Precision: []float64{1.0, 0.5},
		Recall:    []float64{0.8, 0.6},
		F1:        []float64{0.889, 0.545},
		AP:        [][]float64{{0.9, 0.5}, {0.7, 0.3}},
		Classes:   []int{0, 2},
	}
	names := []string{"person", "bicycle", "car"}

	r := NewReport(res, names)
	require.Len(t, r.Classes, 2)

	assert.Equal(t, "person", r.Classes[0].Name)
	assert.Equal(t, "car", r.Classes[1].Name)
	assert.InDelta(t, 0.9, r.Classes[0].AP50, 1e-12)
	assert.InDelta(t, 0.7, r.Classes[0].AP, 1e-12, "mean over both threshold columns")
	assert.InDelta(t, 0.5, r.Classes[1].AP, 1e-12)

	assert.InDelta(t, 0.75, r.MeanPrecision, 1e-12)
	assert.InDelta(t, 0.7, r.MeanRecall, 1e-12)
	assert.InDelta(t, 0.8, r.MAP50, 1e-12)
	assert.InDelta(t, 0.6, r.MAP, 1e-12)
	assert.InDelta(t, Fitness(0.75, 0.7, 0.8, 0.6), r.Fitness, 1e-12)
}

func TestNewReportWithoutNames(t *testing.T) {
	res := &APResult{
		Precision: []float64{1.0},
		Recall:    []float64{1.0},
		F1:        []float64{1.0},
		AP:        [][]float64{{1.0}},
		Classes:   []int{5},
	}

	r := NewReport(res, nil)
	require.Len(t, r.Classes, 1)
	assert.Empty(t, r.Classes[0].Name)
	assert.InDelta(t, 1.0, r.Classes[0].AP50, 1e-12)
	assert.InDelta(t, 1.0, r.Classes[0].AP, 1e-12, "single column doubles as the 50:95 mean")
}

func TestNewReportEmpty(t *testing.T) {
	r := NewReport(&APResult{}, nil)
	assert.Empty(t, r.Classes)
	assert.Zero(t, r.Fitness)
}
