// Package yolo - the anchor-based detection-head core: target assignment,
// loss composition, and raw-output decoding for YOLO-family models.
package yolo

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Anchor is one reference box shape in grid-cell units for its scale
// (pixel anchors divided by the scale stride).
type Anchor struct {
	W float32
	H float32
}

// Head describes a detection head: how many classes it predicts, the
// stride of every output scale, and the anchor set attached to each scale.
//
// The head is the explicit model-metadata collaborator: assignment, loss,
// and decoding all receive it as an argument instead of probing model
// attributes, so there is no ambient train/eval state anywhere in the core.
type Head struct {
	// NumClasses is the number of object classes the head predicts.
	NumClasses int
	// Strides holds the downsampling factor of each output scale,
	// smallest (highest resolution) first.
	Strides []int
	// Anchors holds, per scale, the anchors in grid-cell units.
	Anchors [][]Anchor
}

// headFile is the on-disk head description. Anchors are flat pixel-unit
// [w, h, w, h, ...] rows, one row per scale, matching the layout the
// original model description files use.
type headFile struct {
	NC      int         `yaml:"nc"      json:"nc"`
	Strides []int       `yaml:"strides" json:"strides"`
	Anchors [][]float32 `yaml:"anchors" json:"anchors"`
}

// NewHead builds a Head from pixel-unit anchors.
//
// Arguments:
//   - numClasses: Number of object classes.
//   - strides: Per-scale downsampling factors, ascending.
//   - pixelAnchors: Per scale, a flat [w, h, w, h, ...] anchor row in pixels.
//
// Returns:
//   - *Head: The validated head with anchors converted to grid-cell units.
//   - error: An error if the description is malformed.
func NewHead(numClasses int, strides []int, pixelAnchors [][]float32) (*Head, error) {
	h := &Head{
		NumClasses: numClasses,
		Strides:    strides,
		Anchors:    make([][]Anchor, len(pixelAnchors)),
	}
	for i, row := range pixelAnchors {
		if len(row) == 0 || len(row)%2 != 0 {
			return nil, errors.Errorf("head: anchor row %d has %d values, want an even count", i, len(row))
		}
		if i < len(strides) {
			s := float32(strides[i])
			scale := make([]Anchor, 0, len(row)/2)
			for k := 0; k+1 < len(row); k += 2 {
				scale = append(scale, Anchor{W: row[k] / s, H: row[k+1] / s})
			}
			h.Anchors[i] = scale
		}
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// LoadHead reads a YAML head description from disk.
func LoadHead(path string) (*Head, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "head: read description")
	}
	var f headFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "head: parse description")
	}
	return NewHead(f.NC, f.Strides, f.Anchors)
}

// Scales returns the number of output scales.
func (h *Head) Scales() int { return len(h.Strides) }

// AnchorsPerScale returns the anchor count of every scale.
func (h *Head) AnchorsPerScale() int {
	if len(h.Anchors) == 0 {
		return 0
	}
	return len(h.Anchors[0])
}

// Outputs returns the per-anchor channel count: 4 box + 1 objectness +
// NumClasses class scores.
func (h *Head) Outputs() int { return 5 + h.NumClasses }

// PixelAnchors returns the anchors of one scale converted back to pixels.
func (h *Head) PixelAnchors(scale int) []Anchor {
	s := float32(h.Strides[scale])
	out := make([]Anchor, len(h.Anchors[scale]))
	for i, a := range h.Anchors[scale] {
		out[i] = Anchor{W: a.W * s, H: a.H * s}
	}
	return out
}

// Validate checks internal consistency: at least one scale, ascending
// strides, one anchor row per scale, and a uniform anchor count.
func (h *Head) Validate() error {
	if h.NumClasses < 1 {
		return errors.Errorf("head: NumClasses %d, want >= 1", h.NumClasses)
	}
	if len(h.Strides) == 0 {
		return errors.New("head: no strides")
	}
	if len(h.Anchors) != len(h.Strides) {
		return errors.Errorf("head: %d anchor rows for %d strides", len(h.Anchors), len(h.Strides))
	}
	for i := 1; i < len(h.Strides); i++ {
		if h.Strides[i] <= h.Strides[i-1] {
			return errors.Errorf("head: strides must ascend, got %v", h.Strides)
		}
	}
	na := len(h.Anchors[0])
	if na == 0 {
		return errors.New("head: scale 0 has no anchors")
	}
	for i, row := range h.Anchors {
		if len(row) != na {
			return errors.Errorf("head: scale %d has %d anchors, scale 0 has %d", i, len(row), na)
		}
		for k, a := range row {
			if a.W <= 0 || a.H <= 0 {
				return errors.Errorf("head: anchor %d of scale %d is %vx%v, want positive dims", k, i, a.W, a.H)
			}
		}
	}
	return nil
}

// CheckAnchorOrder verifies the anchor area ordering agrees with the
// stride ordering and reverses the anchor rows when it does not, so the
// smallest anchors always sit on the highest-resolution scale. Returns
// whether a reversal was applied.
func (h *Head) CheckAnchorOrder() bool {
	n := len(h.Anchors)
	if n < 2 {
		return false
	}
	first := meanAnchorArea(h.Anchors[0])
	last := meanAnchorArea(h.Anchors[n-1])
	da := last - first
	ds := h.Strides[n-1] - h.Strides[0]
	if (da < 0) == (ds < 0) {
		return false
	}
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		h.Anchors[i], h.Anchors[j] = h.Anchors[j], h.Anchors[i]
	}
	return true
}

func meanAnchorArea(row []Anchor) float32 {
	var sum float32
	for _, a := range row {
		sum += a.W * a.H
	}
	return sum / float32(len(row))
}

// MakeDivisible rounds x up to the nearest multiple of divisor.
func MakeDivisible(x, divisor int) int {
	if divisor <= 0 {
		return x
	}
	return ((x + divisor - 1) / divisor) * divisor
}

// CheckImageSize returns the nearest valid input size: model inputs must
// be a multiple of the largest stride so every scale divides evenly.
func (h *Head) CheckImageSize(size int) int {
	maxStride := 0
	for _, s := range h.Strides {
		if s > maxStride {
			maxStride = s
		}
	}
	return MakeDivisible(size, maxStride)
}

// GridSize is the spatial extent of one output scale in cells.
type GridSize struct {
	H int
	W int
}

// GridSizes returns the per-scale grid extents for a given input size.
func (h *Head) GridSizes(imgH, imgW int) []GridSize {
	out := make([]GridSize, len(h.Strides))
	for i, s := range h.Strides {
		out[i] = GridSize{H: imgH / s, W: imgW / s}
	}
	return out
}
