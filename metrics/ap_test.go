package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// singleColumn wraps per-detection hit flags into one-threshold tp rows.
func singleColumn(hits ...bool) [][]bool {
	tp := make([][]bool, len(hits))
	for i, h := range hits {
		tp[i] = []bool{h}
	}
	return tp
}

func TestAPPerClassPerfectDetector(t *testing.T) {
	// Two classes, two ground truths each, every detection a hit.
	tp := singleColumn(true, true, true, true)
	conf := []float32{0.9, 0.8, 0.7, 0.6}
	predCls := []int{0, 0, 1, 1}
	targetCls := []int{0, 0, 1, 1}

	res, err := APPerClass(tp, conf, predCls, targetCls, MethodContinuous)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, res.Classes)
	for ci := range res.Classes {
		assert.InDelta(t, 1.0, res.Precision[ci], 1e-12, "precision class %d", ci)
		assert.InDelta(t, 1.0, res.Recall[ci], 1e-12, "recall class %d", ci)
		assert.InDelta(t, 1.0, res.F1[ci], 1e-12, "f1 class %d", ci)
		assert.InDelta(t, 1.0, res.AP[ci][0], 1e-9, "continuous AP class %d", ci)
	}
	assert.InDelta(t, 1.0, res.MeanAP(0), 1e-9)

	// The 101-point grid places its last sample on the zero sentinel, so
	// a flawless curve integrates to 0.995 rather than exactly 1.
	resI, err := APPerClass(tp, conf, predCls, targetCls, MethodInterp)
	require.NoError(t, err)
	assert.InDelta(t, 0.995, resI.AP[0][0], 1e-9)
}

func TestAPPerClassZeroRowsForUnpredictedClass(t *testing.T) {
	// Class 2 exists in the ground truth but is never predicted; class 1
	// is predicted but has no ground truth.
	tp := singleColumn(true, false)
	conf := []float32{0.9, 0.8}
	predCls := []int{0, 1}
	targetCls := []int{0, 2}

	res, err := APPerClass(tp, conf, predCls, targetCls, MethodContinuous)
	require.NoError(t, err)
	require.Equal(t, []int{0, 2}, res.Classes, "only ground-truth classes are reported")

	assert.Greater(t, res.AP[0][0], 0.0, "predicted class keeps its score")
	assert.Zero(t, res.Precision[1])
	assert.Zero(t, res.Recall[1])
	assert.Zero(t, res.F1[1])
	assert.Zero(t, res.AP[1][0])
}

func TestAPPerClassReadsCurvesAtReferenceConfidence(t *testing.T) {
	// Both detections sit above confidence 0.1, so the scalars clamp to
	// the low-confidence end of the curves: one hit, one miss out of two
	// ground truths gives P=R=0.5.
	tp := singleColumn(true, false)
	conf := []float32{0.9, 0.3}
	predCls := []int{0, 0}
	targetCls := []int{0, 0}

	res, err := APPerClass(tp, conf, predCls, targetCls, MethodContinuous)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.Precision[0], 1e-9)
	assert.InDelta(t, 0.5, res.Recall[0], 1e-9)
	assert.InDelta(t, 0.5, res.F1[0], 1e-9)
	assert.InDelta(t, 0.5, res.AP[0][0], 1e-9)

	// A detection below 0.1 puts the reference point inside the curve:
	// recall interpolates between 0.5 at conf 0.9 and 1.0 at conf 0.05.
	res, err = APPerClass(singleColumn(true, true), []float32{0.9, 0.05}, predCls, targetCls, MethodContinuous)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Precision[0], 1e-9)
	assert.InDelta(t, 0.5+0.8/0.85*0.5, res.Recall[0], 1e-6)
}

func TestAPPerClassMultipleThresholdColumns(t *testing.T) {
	// Second column is all misses: its AP must be zero while the first
	// column still scores.
	tp := [][]bool{{true, false}, {true, false}}
	conf := []float32{0.9, 0.8}
	predCls := []int{0, 0}
	targetCls := []int{0, 0}

	res, err := APPerClass(tp, conf, predCls, targetCls, MethodContinuous)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.AP[0][0], 1e-9)
	assert.Zero(t, res.AP[0][1])
	assert.InDelta(t, 1.0, res.MeanAP(0), 1e-9)
	assert.Zero(t, res.MeanAP(1))
	assert.Zero(t, res.MeanAP(5), "out-of-range column reads as zero")
}

func TestAPPerClassNoDetections(t *testing.T) {
	res, err := APPerClass(nil, nil, nil, []int{0, 1}, MethodContinuous)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, res.Classes)
	for ci := range res.Classes {
		assert.Zero(t, res.AP[ci][0])
		assert.Zero(t, res.F1[ci])
	}
}

func TestAPPerClassInputErrors(t *testing.T) {
	_, err := APPerClass(singleColumn(true), []float32{0.9, 0.8}, []int{0}, []int{0}, MethodContinuous)
	assert.Error(t, err, "conf length mismatch")

	_, err = APPerClass([][]bool{{true}, {true, false}}, []float32{0.9, 0.8}, []int{0, 0}, []int{0}, MethodContinuous)
	assert.Error(t, err, "ragged tp rows")

	_, err = APPerClass([][]bool{{}}, []float32{0.9}, []int{0}, []int{0}, MethodContinuous)
	assert.Error(t, err, "empty tp row")
}

func TestComputeAPEnvelope(t *testing.T) {
	// Sawtooth precision: the envelope lifts the dip at recall 0.5 to
	// the later peak 0.6 before integrating.
	recall := []float64{0.2, 0.5, 1.0}
	precision := []float64{1.0, 0.4, 0.6}

	ap, err := ComputeAP(recall, precision, MethodContinuous)
	require.NoError(t, err)
	assert.InDelta(t, 0.68, ap, 1e-9, "0.2*1.0 + 0.3*0.6 + 0.5*0.6")

	// The sampled method linearly interpolates between envelope points,
	// adding the triangle under the 1.0 -> 0.6 descent.
	ap, err = ComputeAP(recall, precision, MethodInterp)
	require.NoError(t, err)
	assert.InDelta(t, 0.737, ap, 1e-9)
}

func TestComputeAPMethodsAgreeOnStepCurve(t *testing.T) {
	// A flat-precision curve has no interpolation triangles, so the two
	// methods differ only by the final sentinel sample.
	recall := []float64{0.25, 0.5, 0.75, 1.0}
	precision := []float64{0.8, 0.8, 0.8, 0.8}

	cont, err := ComputeAP(recall, precision, MethodContinuous)
	require.NoError(t, err)
	interp, err := ComputeAP(recall, precision, MethodInterp)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, cont, 1e-9)
	assert.InDelta(t, cont, interp, 0.01)
}

func TestComputeAPErrors(t *testing.T) {
	_, err := ComputeAP(nil, nil, MethodContinuous)
	assert.Error(t, err, "empty curve")

	_, err = ComputeAP([]float64{0.5}, []float64{1.0, 0.5}, MethodContinuous)
	assert.Error(t, err, "length mismatch")

	_, err = ComputeAP([]float64{0.5}, []float64{1.0}, Method(7))
	assert.Error(t, err, "unknown method")
}
