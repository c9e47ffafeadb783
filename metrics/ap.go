// Package metrics - offline detection evaluation: precision/recall
// curves, average precision, and mAP-style summaries.
package metrics

import (
	"sort"

	"github.com/pkg/errors"
)

// Method selects how average precision integrates the PR curve.
type Method int

const (
	// MethodInterp samples the precision envelope at 101 evenly spaced
	// recall points, the COCO convention.
	MethodInterp Method = iota
	// MethodContinuous integrates the exact area under the stepped
	// envelope, summing over recall change points.
	MethodContinuous
)

// refConfidence is the confidence at which the reported precision and
// recall scalars are read off the curves.
const refConfidence = 0.1

const eps = 1e-16

// APResult holds per-class evaluation outputs. Rows align with Classes;
// classes present in the ground truth but never predicted keep zero
// rows, and classes only ever predicted do not appear at all.
type APResult struct {
	// Precision per class, interpolated at the reference confidence.
	Precision []float64 `json:"precision"`
	// Recall per class, interpolated at the reference confidence.
	Recall []float64 `json:"recall"`
	// AP per class and per IoU threshold column of the tp matrix.
	AP [][]float64 `json:"ap"`
	// F1 per class, the harmonic mean of Precision and Recall.
	F1 []float64 `json:"f1"`
	// Classes is the sorted set of ground-truth class ids.
	Classes []int `json:"classes"`
}

// MeanAP returns mAP for one IoU threshold column, averaged over classes.
func (r *APResult) MeanAP(col int) float64 {
	if len(r.AP) == 0 || col < 0 {
		return 0
	}
	var sum float64
	for _, row := range r.AP {
		if col >= len(row) {
			return 0
		}
		sum += row[col]
	}
	return sum / float64(len(r.AP))
}

// APPerClass evaluates detections against ground truth per class.
//
// Detections are sorted by descending confidence, true/false positives
// accumulate down the ranking, and the resulting recall and precision
// curves yield average precision per tp column. Precision and recall
// scalars are read off the curves at the reference confidence 0.1.
//
// Arguments:
//   - tp: Per detection, one true-positive flag per IoU threshold.
//   - conf: Per-detection confidence, parallel to tp.
//   - predCls: Predicted class id per detection, parallel to tp.
//   - targetCls: Class id of every ground-truth box in the evaluated set.
//   - method: PR-curve integration method.
//
// Returns:
//   - *APResult: Per-class precision, recall, AP, and F1.
//   - error: An error if the detection slices disagree in length.
func APPerClass(tp [][]bool, conf []float32, predCls []int, targetCls []int, method Method) (*APResult, error) {
	n := len(tp)
	if len(conf) != n || len(predCls) != n {
		return nil, errors.Errorf("metrics: %d tp rows, %d confs, %d classes", n, len(conf), len(predCls))
	}
	niou := 1
	if n > 0 {
		niou = len(tp[0])
		for i, row := range tp {
			if len(row) != niou {
				return nil, errors.Errorf("metrics: tp row %d has %d columns, row 0 has %d", i, len(row), niou)
			}
		}
		if niou == 0 {
			return nil, errors.New("metrics: tp rows need at least one column")
		}
	}

	// Rank detections by confidence.
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return conf[order[a]] > conf[order[b]]
	})

	classes := uniqueSorted(targetCls)
	res := &APResult{
		Precision: make([]float64, len(classes)),
		Recall:    make([]float64, len(classes)),
		AP:        make([][]float64, len(classes)),
		F1:        make([]float64, len(classes)),
		Classes:   classes,
	}
	for ci := range classes {
		res.AP[ci] = make([]float64, niou)
	}

	gtCount := make(map[int]int, len(classes))
	for _, c := range targetCls {
		gtCount[c]++
	}

	for ci, c := range classes {
		var idx []int
		for _, i := range order {
			if predCls[i] == c {
				idx = append(idx, i)
			}
		}
		nGT := gtCount[c]
		if len(idx) == 0 || nGT == 0 {
			continue
		}

		// Cumulative TP/FP down the confidence ranking, per column.
		confs := make([]float64, len(idx))
		recall := make([][]float64, len(idx))
		precision := make([][]float64, len(idx))
		tpc := make([]float64, niou)
		fpc := make([]float64, niou)
		for k, i := range idx {
			confs[k] = float64(conf[i])
			recall[k] = make([]float64, niou)
			precision[k] = make([]float64, niou)
			for j := 0; j < niou; j++ {
				if tp[i][j] {
					tpc[j]++
				} else {
					fpc[j]++
				}
				recall[k][j] = tpc[j] / (float64(nGT) + eps)
				precision[k][j] = tpc[j] / (tpc[j] + fpc[j])
			}
		}

		res.Recall[ci] = interpAtConfidence(refConfidence, confs, recall, 0)
		res.Precision[ci] = interpAtConfidence(refConfidence, confs, precision, 0)
		for j := 0; j < niou; j++ {
			ap, err := ComputeAP(column(recall, j), column(precision, j), method)
			if err != nil {
				return nil, err
			}
			res.AP[ci][j] = ap
		}
	}

	for ci := range classes {
		p, r := res.Precision[ci], res.Recall[ci]
		res.F1[ci] = 2 * p * r / (p + r + eps)
	}
	return res, nil
}

// ComputeAP integrates one precision-recall curve.
//
// Sentinels close the curve at both ends, a monotonic envelope removes
// the sawtooth (precision may only fall as recall grows), and the chosen
// method integrates the area.
func ComputeAP(recall, precision []float64, method Method) (float64, error) {
	if len(recall) == 0 || len(recall) != len(precision) {
		return 0, errors.Errorf("metrics: %d recall vs %d precision points", len(recall), len(precision))
	}

	last := recall[len(recall)-1] + 1e-3
	if last > 1 {
		last = 1
	}
	mrec := make([]float64, 0, len(recall)+2)
	mrec = append(mrec, 0)
	mrec = append(mrec, recall...)
	mrec = append(mrec, last)
	mpre := make([]float64, 0, len(precision)+2)
	mpre = append(mpre, 0)
	mpre = append(mpre, precision...)
	mpre = append(mpre, 0)

	// Precision envelope: running maximum from the high-recall end.
	for i := len(mpre) - 2; i >= 0; i-- {
		if mpre[i] < mpre[i+1] {
			mpre[i] = mpre[i+1]
		}
	}

	switch method {
	case MethodInterp:
		// 101-point trapezoidal integration over [0, 1].
		var area float64
		prev := interp(0, mrec, mpre)
		for k := 1; k <= 100; k++ {
			x := float64(k) / 100
			y := interp(x, mrec, mpre)
			area += (prev + y) / 2 * 0.01
			prev = y
		}
		return area, nil
	case MethodContinuous:
		var area float64
		for i := 0; i+1 < len(mrec); i++ {
			if mrec[i+1] != mrec[i] {
				area += (mrec[i+1] - mrec[i]) * mpre[i+1]
			}
		}
		return area, nil
	default:
		return 0, errors.Errorf("metrics: unknown method %d", method)
	}
}

// interp evaluates the piecewise-linear curve (xs, ys) at x with flat
// extrapolation beyond the endpoints. xs must be non-decreasing.
func interp(x float64, xs, ys []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	if x <= xs[0] {
		return ys[0]
	}
	if x >= xs[len(xs)-1] {
		return ys[len(ys)-1]
	}
	j := sort.SearchFloat64s(xs, x)
	if xs[j] == x {
		return ys[j]
	}
	dx := xs[j] - xs[j-1]
	if dx == 0 {
		return ys[j]
	}
	t := (x - xs[j-1]) / dx
	return ys[j-1] + t*(ys[j]-ys[j-1])
}

// interpAtConfidence reads one curve column at the reference confidence.
// Confidences arrive descending; negating both the axis and the query
// point turns that into the ascending axis interp expects.
func interpAtConfidence(at float64, confs []float64, curve [][]float64, col int) float64 {
	xs := make([]float64, len(confs))
	ys := make([]float64, len(confs))
	for k := range confs {
		xs[k] = -confs[k]
		ys[k] = curve[k][col]
	}
	return interp(-at, xs, ys)
}

func column(m [][]float64, j int) []float64 {
	out := make([]float64, len(m))
	for i := range m {
		out[i] = m[i][j]
	}
	return out
}

func uniqueSorted(v []int) []int {
	seen := make(map[int]bool, len(v))
	out := make([]int, 0, len(v))
	for _, c := range v {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Ints(out)
	return out
}
