package boxes

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// Variant selects the overlap formulation. Plain IoU lives in [0, 1];
// the generalized/distance/complete variants subtract penalty terms and
// may go negative for disjoint boxes.
type Variant int

const (
	// Plain is the classic intersection-over-union.
	Plain Variant = iota
	// GIoU adds the normalized convex-hull penalty (arXiv:1902.09630).
	GIoU
	// DIoU adds the normalized center-distance penalty (arXiv:1911.08287).
	DIoU
	// CIoU adds center-distance and aspect-ratio penalties (arXiv:1911.08287).
	CIoU
)

// IoU returns the plain intersection-over-union of two corner-form boxes.
func IoU(a, b Box) float32 {
	return iouKernel(a, b, false, Plain)
}

// IoUOne computes the overlap of one box against a batch.
//
// Arguments:
//   - a: The reference box.
//   - bs: The batch of boxes compared against a.
//   - xywh: Whether the boxes are in center form (converted internally).
//   - v: The overlap variant to compute.
//
// Returns:
//   - []float32: One overlap value per batch entry.
func IoUOne(a Box, bs []Box, xywh bool, v Variant) []float32 {
	out := make([]float32, len(bs))
	for i, b := range bs {
		out[i] = iouKernel(a, b, xywh, v)
	}
	return out
}

// IoUPaired computes elementwise overlaps between two equal-length batches,
// pairing a[i] with b[i]. This is the form the box-regression loss consumes.
func IoUPaired(a, b []Box, xywh bool, v Variant) ([]float32, error) {
	if len(a) != len(b) {
		return nil, errors.Errorf("paired iou: length mismatch %d vs %d", len(a), len(b))
	}
	out := make([]float32, len(a))
	for i := range a {
		out[i] = iouKernel(a[i], b[i], xywh, v)
	}
	return out, nil
}

// Pairwise returns the full NxM plain-IoU matrix between two corner-form
// batches.
//
// Arguments:
//   - a: N corner-form boxes.
//   - b: M corner-form boxes.
//
// Returns:
//   - [][]float32: Row i holds IoU(a[i], b[j]) for every j.
func Pairwise(a, b []Box) [][]float32 {
	areaB := make([]float32, len(b))
	for j := range b {
		areaB[j] = b[j].Area()
	}
	out := make([][]float32, len(a))
	for i := range a {
		row := make([]float32, len(b))
		areaA := a[i].Area()
		for j := range b {
			iw := math32.Min(a[i][2], b[j][2]) - math32.Max(a[i][0], b[j][0])
			ih := math32.Min(a[i][3], b[j][3]) - math32.Max(a[i][1], b[j][1])
			if iw < 0 {
				iw = 0
			}
			if ih < 0 {
				ih = 0
			}
			inter := iw * ih
			row[j] = inter / (areaA + areaB[j] - inter)
		}
		out[i] = row
	}
	return out
}

// WHIoU returns the NxM shape-only IoU matrix between two sets of
// width/height pairs, ignoring position: both boxes are treated as
// anchored at the same corner.
func WHIoU(wh1, wh2 [][2]float32) [][]float32 {
	out := make([][]float32, len(wh1))
	for i := range wh1 {
		row := make([]float32, len(wh2))
		a1 := wh1[i][0] * wh1[i][1]
		for j := range wh2 {
			inter := math32.Min(wh1[i][0], wh2[j][0]) * math32.Min(wh1[i][1], wh2[j][1])
			row[j] = inter / (a1 + wh2[j][0]*wh2[j][1] - inter)
		}
		out[i] = row
	}
	return out
}

// iouKernel evaluates one box pair. The union denominator carries the
// epsilon on the first area so a pair of zero-area boxes yields 0, not NaN.
func iouKernel(a, b Box, xywh bool, v Variant) float32 {
	if xywh {
		a = XYWHToXYXY(a)
		b = XYWHToXYXY(b)
	}

	iw := math32.Min(a[2], b[2]) - math32.Max(a[0], b[0])
	ih := math32.Min(a[3], b[3]) - math32.Max(a[1], b[1])
	if iw < 0 {
		iw = 0
	}
	if ih < 0 {
		ih = 0
	}
	inter := iw * ih

	w1, h1 := a[2]-a[0], a[3]-a[1]
	w2, h2 := b[2]-b[0], b[3]-b[1]
	union := (w1*h1 + Epsilon) + w2*h2 - inter
	iou := inter / union
	if v == Plain {
		return iou
	}

	// Convex (smallest enclosing) box.
	cw := math32.Max(a[2], b[2]) - math32.Min(a[0], b[0])
	ch := math32.Max(a[3], b[3]) - math32.Min(a[1], b[1])
	if v == GIoU {
		cArea := cw*ch + Epsilon
		return iou - (cArea-union)/cArea
	}

	// Squared convex diagonal and squared center distance.
	c2 := cw*cw + ch*ch + Epsilon
	dx := (b[0] + b[2]) - (a[0] + a[2])
	dy := (b[1] + b[3]) - (a[1] + a[3])
	rho2 := dx*dx/4 + dy*dy/4
	if v == DIoU {
		return iou - rho2/c2
	}

	// CIoU aspect term. Alpha is a plain scaling constant here: the
	// reference formulation evaluates it outside gradient flow, so it
	// never participates in backpropagation arithmetic.
	av := math32.Atan(w2/h2) - math32.Atan(w1/h1)
	vv := (4 / (math32.Pi * math32.Pi)) * av * av
	alpha := vv / (1 - iou + vv + Epsilon)
	return iou - (rho2/c2 + vv*alpha)
}
