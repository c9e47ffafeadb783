// Package boxes - axis-aligned box arithmetic shared by target assignment,
// loss computation, suppression, and evaluation.
package boxes

// Box is a box as a flat 4-vector. Corner form is [x1, y1, x2, y2] with
// xy1 top-left and xy2 bottom-right; center form is [cx, cy, w, h]. The
// form in effect is stated by each operation, mirroring how detection
// tensors carry both layouts through the pipeline.
type Box [4]float32

// Epsilon is the additive guard used in every denominator so zero-area
// boxes divide cleanly instead of producing Inf/NaN.
const Epsilon = 1e-16

// XYXYToXYWH converts a corner-form box to center form.
//
// Arguments:
//   - b: The box in [x1, y1, x2, y2] form.
//
// Returns:
//   - Box: The same box as [cx, cy, w, h].
func XYXYToXYWH(b Box) Box {
	return Box{
		(b[0] + b[2]) / 2,
		(b[1] + b[3]) / 2,
		b[2] - b[0],
		b[3] - b[1],
	}
}

// XYWHToXYXY converts a center-form box to corner form. It is the exact
// inverse of XYXYToXYWH to float precision.
//
// Arguments:
//   - b: The box in [cx, cy, w, h] form.
//
// Returns:
//   - Box: The same box as [x1, y1, x2, y2].
func XYWHToXYXY(b Box) Box {
	return Box{
		b[0] - b[2]/2,
		b[1] - b[3]/2,
		b[0] + b[2]/2,
		b[1] + b[3]/2,
	}
}

// XYXYToXYWHAll converts a batch of corner-form boxes in place.
func XYXYToXYWHAll(bs []Box) {
	for i := range bs {
		bs[i] = XYXYToXYWH(bs[i])
	}
}

// XYWHToXYXYAll converts a batch of center-form boxes in place.
func XYWHToXYXYAll(bs []Box) {
	for i := range bs {
		bs[i] = XYWHToXYXY(bs[i])
	}
}

// Width returns the corner-form width.
func (b Box) Width() float32 { return b[2] - b[0] }

// Height returns the corner-form height.
func (b Box) Height() float32 { return b[3] - b[1] }

// Area returns the corner-form area.
func (b Box) Area() float32 { return (b[2] - b[0]) * (b[3] - b[1]) }

// Clip clamps a corner-form box to the [0, w] x [0, h] image bounds in
// place. The caller owns the box for the duration of the call.
func (b *Box) Clip(w, h float32) {
	b[0] = clamp(b[0], 0, w)
	b[1] = clamp(b[1], 0, h)
	b[2] = clamp(b[2], 0, w)
	b[3] = clamp(b[3], 0, h)
}

// ClipAll clamps a batch of corner-form boxes to the image bounds in place.
func ClipAll(bs []Box, w, h float32) {
	for i := range bs {
		bs[i].Clip(w, h)
	}
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
