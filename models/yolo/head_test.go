package yolo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHead returns the standard small-model head: 80 classes, strides
// 8/16/32, COCO anchors.
func testHead(t *testing.T) *Head {
	t.Helper()
	h, err := NewHead(80, []int{8, 16, 32}, [][]float32{
		{10, 13, 16, 30, 33, 23},
		{30, 61, 62, 45, 59, 119},
		{116, 90, 156, 198, 373, 326},
	})
	require.NoError(t, err)
	return h
}

func TestNewHeadConvertsAnchorsToGridUnits(t *testing.T) {
	h := testHead(t)

	assert.Equal(t, 3, h.Scales())
	assert.Equal(t, 3, h.AnchorsPerScale())
	assert.Equal(t, 85, h.Outputs())
	assert.InDelta(t, 10.0/8.0, h.Anchors[0][0].W, 1e-6)
	assert.InDelta(t, 13.0/8.0, h.Anchors[0][0].H, 1e-6)
	assert.InDelta(t, 373.0/32.0, h.Anchors[2][2].W, 1e-6)

	pix := h.PixelAnchors(2)
	assert.InDelta(t, 373.0, pix[2].W, 1e-4, "pixel anchors round-trip through the stride")
	assert.InDelta(t, 326.0, pix[2].H, 1e-4)
}

func TestHeadValidateRejectsBadDescriptions(t *testing.T) {
	tests := []struct {
		name string
		head Head
	}{
		{"no classes", Head{NumClasses: 0, Strides: []int{8}, Anchors: [][]Anchor{{{1, 1}}}}},
		{"no strides", Head{NumClasses: 1}},
		{"descending strides", Head{NumClasses: 1, Strides: []int{16, 8}, Anchors: [][]Anchor{{{1, 1}}, {{1, 1}}}}},
		{"row count mismatch", Head{NumClasses: 1, Strides: []int{8, 16}, Anchors: [][]Anchor{{{1, 1}}}}},
		{"uneven anchor counts", Head{NumClasses: 1, Strides: []int{8, 16}, Anchors: [][]Anchor{{{1, 1}}, {{1, 1}, {2, 2}}}}},
		{"zero-dim anchor", Head{NumClasses: 1, Strides: []int{8}, Anchors: [][]Anchor{{{0, 1}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.head.Validate())
		})
	}
}

func TestNewHeadRejectsOddAnchorRow(t *testing.T) {
	_, err := NewHead(1, []int{8}, [][]float32{{10, 13, 16}})
	assert.Error(t, err)
}

func TestCheckAnchorOrder(t *testing.T) {
	h := testHead(t)
	require.False(t, h.CheckAnchorOrder(), "correctly ordered anchors stay put")

	// Reverse the rows so the largest anchors sit on the smallest stride.
	h.Anchors[0], h.Anchors[2] = h.Anchors[2], h.Anchors[0]
	require.True(t, h.CheckAnchorOrder())
	assert.InDelta(t, 10.0/8.0, h.Anchors[0][0].W, 1e-6, "reversal restores ascending areas")
}

func TestMakeDivisible(t *testing.T) {
	assert.Equal(t, 640, MakeDivisible(640, 32))
	assert.Equal(t, 672, MakeDivisible(641, 32))
	assert.Equal(t, 32, MakeDivisible(1, 32))
}

func TestCheckImageSize(t *testing.T) {
	h := testHead(t)
	assert.Equal(t, 640, h.CheckImageSize(640))
	assert.Equal(t, 672, h.CheckImageSize(650))
}

func TestGridSizes(t *testing.T) {
	h := testHead(t)
	grids := h.GridSizes(640, 416)
	require.Len(t, grids, 3)
	assert.Equal(t, GridSize{H: 80, W: 52}, grids[0])
	assert.Equal(t, GridSize{H: 20, W: 13}, grids[2])
}

func TestLoadHead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "head.yaml")
	desc := `nc: 80
strides: [8, 16, 32]
anchors:
  - [10, 13, 16, 30, 33, 23]
  - [30, 61, 62, 45, 59, 119]
  - [116, 90, 156, 198, 373, 326]
`
	require.NoError(t, os.WriteFile(path, []byte(desc), 0o644))

	h, err := LoadHead(path)
	require.NoError(t, err)
	assert.Equal(t, 80, h.NumClasses)
	assert.Equal(t, []int{8, 16, 32}, h.Strides)
	assert.InDelta(t, 30.0/16.0, h.Anchors[1][0].W, 1e-6)

	_, err = LoadHead(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadHypKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hyp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("box: 0.1\nanchor_t: 3.5\n"), 0o644))

	h, err := LoadHyp(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, h.Box, 1e-6)
	assert.InDelta(t, 3.5, h.AnchorT, 1e-6)
	assert.InDelta(t, 1.0, h.Obj, 1e-6, "unlisted keys keep defaults")
	assert.InDelta(t, 0.58, h.Cls, 1e-6)
}

func TestHypValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Hyp)
	}{
		{"zero anchor_t", func(h *Hyp) { h.AnchorT = 0 }},
		{"gr above one", func(h *Hyp) { h.GR = 1.5 }},
		{"negative gamma", func(h *Hyp) { h.FLGamma = -1 }},
		{"smoothing at one", func(h *Hyp) { h.LabelSmoothing = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := DefaultHyp()
			tt.mutate(&h)
			assert.Error(t, h.Validate())
		})
	}
	assert.NoError(t, DefaultHyp().Validate())
}
