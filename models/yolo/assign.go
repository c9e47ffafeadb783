package yolo

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolo/boxes"
)

// neighborOffset is the cell-center distance below which a box is also
// assigned to the adjacent cell.
const neighborOffset = 0.5

// cellOffsets enumerates the candidate assignment cells relative to the
// origin cell as (x, y) steps: origin, left, up, right, down. Diagonal
// neighbors are deliberately absent; each target lands in at most the
// origin plus two cardinal neighbors.
var cellOffsets = [5][2]float32{{0, 0}, {1, 0}, {0, 1}, {-1, 0}, {0, -1}}

// TargetIndex locates one positive sample inside a prediction tensor of
// shape (batch, anchors, gridH, gridW, outputs).
type TargetIndex struct {
	Image  int
	Anchor int
	Row    int
	Col    int
}

// ScaleTargets is the assignment result of a single detection scale. The
// slices run parallel: entry n of every field describes the same positive
// sample. A batch without ground truth produces a ScaleTargets with zero
// entries rather than an error.
type ScaleTargets struct {
	// Classes holds the target class id per sample.
	Classes []int
	// Boxes holds the regression target per sample in center form: x and
	// y are offsets from the assigned cell origin in (-0.5, 1.5), w and h
	// are grid-unit sizes.
	Boxes []boxes.Box
	// Indices holds the prediction-tensor coordinates per sample.
	Indices []TargetIndex
	// Anchors holds the matched anchor shape per sample in grid units.
	Anchors []Anchor
	// Absolute holds the full (x, y, w, h) grid-unit target per sample
	// for consumers that need positions rather than cell offsets.
	Absolute []boxes.Box
}

// Len returns the number of positive samples assigned on this scale.
func (s *ScaleTargets) Len() int { return len(s.Classes) }

// candidate is one (target, anchor) pairing in grid units of the current
// scale, produced by the anchor expansion and ratio filter.
type candidate struct {
	image  int
	class  int
	anchor int
	x      float32
	y      float32
	w      float32
	h      float32
}

// BuildTargets assigns ground-truth boxes to anchors and grid cells on
// every output scale.
//
// Per scale the algorithm expands each ground truth to one candidate per
// anchor, converts normalized coordinates to grid-cell units, and drops
// candidates whose width or height ratio to the anchor exceeds
// hyp.AnchorT in either direction. There is no best-anchor fallback: a
// ground truth with no surviving candidate is simply unmatched on that
// scale. Each survivor is then assigned to its origin cell and to the up
// to two cardinal neighbor cells whose boundary its center lies within
// neighborOffset of, tripling positive density at most.
//
// Arguments:
//   - head: Model metadata providing per-scale anchors.
//   - hyp: Hyperparameters; only AnchorT is read.
//   - grids: Per-scale grid extents, aligned with head.Strides.
//   - targets: Ground-truth tensor of shape (n, 6) holding
//     [image, class, x, y, w, h] rows with normalized center-form boxes.
//     Nil or zero rows is valid and yields zero assignments.
//
// Returns:
//   - []ScaleTargets: One entry per scale, in head.Strides order.
//   - error: An error if shapes or metadata are inconsistent.
//
// @example
//
//	st, err := yolo.BuildTargets(head, hyp, head.GridSizes(640, 640), targets)
//	if err != nil {
//	    return err
//	}
//	for scale, t := range st {
//	    fmt.Printf("scale %d: %d positives\n", scale, t.Len())
//	}
func BuildTargets(head *Head, hyp Hyp, grids []GridSize, targets *tensor.Dense) ([]ScaleTargets, error) {
	if err := head.Validate(); err != nil {
		return nil, err
	}
	if len(grids) != head.Scales() {
		return nil, errors.Errorf("assign: %d grids for %d scales", len(grids), head.Scales())
	}
	rows, err := targetRows(targets)
	if err != nil {
		return nil, err
	}

	na := head.AnchorsPerScale()
	out := make([]ScaleTargets, head.Scales())
	for i := range out {
		anchors := head.Anchors[i]
		gw := float32(grids[i].W)
		gh := float32(grids[i].H)
		if len(rows) == 0 {
			continue
		}

		// Anchor expansion and shape-ratio filter, anchor-major so the
		// emission order is stable across runs.
		kept := make([]candidate, 0, na*len(rows))
		for a := 0; a < na; a++ {
			aw := anchors[a].W
			ah := anchors[a].H
			for _, r := range rows {
				w := r[4] * gw
				h := r[5] * gh
				rw := w / aw
				rh := h / ah
				worst := math32.Max(math32.Max(rw, 1/rw), math32.Max(rh, 1/rh))
				if worst >= hyp.AnchorT {
					continue
				}
				kept = append(kept, candidate{
					image: int(r[0]), class: int(r[1]), anchor: a,
					x: r[2] * gw, y: r[3] * gh, w: w, h: h,
				})
			}
		}

		st := &out[i]
		st.Classes = make([]int, 0, 3*len(kept))
		st.Boxes = make([]boxes.Box, 0, 3*len(kept))
		st.Indices = make([]TargetIndex, 0, 3*len(kept))
		st.Anchors = make([]Anchor, 0, 3*len(kept))
		st.Absolute = make([]boxes.Box, 0, 3*len(kept))

		// Direction-major emission: every survivor lands in its origin
		// cell, then each neighbor direction collects the survivors
		// whose center qualifies for it.
		for d := range cellOffsets {
			offX := cellOffsets[d][0] * neighborOffset
			offY := cellOffsets[d][1] * neighborOffset
			for _, c := range kept {
				if d > 0 && !nearCell(d, c.x, c.y, gw, gh) {
					continue
				}
				// A center exactly on the far edge floors one cell past
				// it; clamping first keeps the cell offset consistent.
				gi := clampIndex(int(math32.Floor(c.x-offX)), grids[i].W-1)
				gj := clampIndex(int(math32.Floor(c.y-offY)), grids[i].H-1)
				st.Classes = append(st.Classes, c.class)
				st.Boxes = append(st.Boxes, boxes.Box{c.x - float32(gi), c.y - float32(gj), c.w, c.h})
				st.Indices = append(st.Indices, TargetIndex{Image: c.image, Anchor: c.anchor, Row: gj, Col: gi})
				st.Anchors = append(st.Anchors, anchors[c.anchor])
				st.Absolute = append(st.Absolute, boxes.Box{c.x, c.y, c.w, c.h})
			}
		}
	}
	return out, nil
}

// nearCell reports whether a center at (x, y) additionally belongs to the
// neighbor cell in direction d. The > 1 guards keep borrowed cells inside
// the grid, so no index clamping is needed afterwards.
func nearCell(d int, x, y, gw, gh float32) bool {
	switch d {
	case 1: // left
		return fract(x) < neighborOffset && x > 1
	case 2: // up
		return fract(y) < neighborOffset && y > 1
	case 3: // right
		inv := gw - x
		return fract(inv) < neighborOffset && inv > 1
	case 4: // down
		inv := gh - y
		return fract(inv) < neighborOffset && inv > 1
	}
	return false
}

func fract(v float32) float32 {
	return v - math32.Floor(v)
}

func clampIndex(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}

// targetRows flattens a (n, 6) ground-truth tensor into fixed-size rows.
// A nil tensor is treated as an empty batch.
func targetRows(t *tensor.Dense) ([][6]float32, error) {
	if t == nil {
		return nil, nil
	}
	shape := t.Shape()
	if len(shape) != 2 || shape[1] != 6 {
		return nil, errors.Errorf("assign: targets shape %v, want (n, 6)", shape)
	}
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("assign: targets dtype %v, want float32", t.Dtype())
	}
	n := shape[0]
	if len(data) < n*6 {
		return nil, errors.Errorf("assign: targets backing holds %d values for %d rows", len(data), n)
	}
	rows := make([][6]float32, n)
	for i := 0; i < n; i++ {
		copy(rows[i][:], data[i*6:(i+1)*6])
	}
	return rows, nil
}
