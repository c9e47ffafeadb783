package boxes

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIoUCorrectness validates the plain IoU against known overlaps.
func TestIoUCorrectness(t *testing.T) {
	tests := []struct {
		name     string
		a        Box
		b        Box
		expected float32
		epsilon  float32
	}{
		{
			name:     "Identical boxes",
			a:        Box{0, 0, 100, 100},
			b:        Box{0, 0, 100, 100},
			expected: 1.0,
			epsilon:  1e-6,
		},
		{
			name:     "No overlap",
			a:        Box{0, 0, 100, 100},
			b:        Box{200, 200, 300, 300},
			expected: 0.0,
			epsilon:  1e-6,
		},
		{
			name:     "Touching edges",
			a:        Box{0, 0, 100, 100},
			b:        Box{100, 0, 200, 100},
			expected: 0.0,
			epsilon:  1e-6,
		},
		{
			name:     "Half overlap",
			a:        Box{0, 0, 100, 100},
			b:        Box{50, 50, 150, 150},
			expected: 1.0 / 7.0, // inter=2500, union=17500
			epsilon:  1e-4,
		},
		{
			name:     "One inside other",
			a:        Box{0, 0, 100, 100},
			b:        Box{25, 25, 75, 75},
			expected: 0.25,
			epsilon:  1e-4,
		},
		{
			name:     "Zero-area boxes",
			a:        Box{10, 10, 10, 10},
			b:        Box{10, 10, 10, 10},
			expected: 0.0, // epsilon guard keeps this finite
			epsilon:  1e-6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IoU(tt.a, tt.b)
			if math.Abs(float64(got-tt.expected)) > float64(tt.epsilon) {
				t.Errorf("IoU = %v, expected %v (±%v)", got, tt.expected, tt.epsilon)
			}

			// IoU is symmetric.
			rev := IoU(tt.b, tt.a)
			if math.Abs(float64(got-rev)) > 1e-6 {
				t.Errorf("IoU not symmetric: %v vs %v", got, rev)
			}

			// Plain IoU stays inside [0, 1] for well-formed boxes.
			if got < 0 || got > 1 {
				t.Errorf("IoU out of range: %v", got)
			}
		})
	}
}

// TestIoUVariants validates the GIoU/DIoU/CIoU penalty terms against
// hand-computed values.
func TestIoUVariants(t *testing.T) {
	a := Box{0, 0, 2, 2}
	b := Box{1, 1, 3, 3}

	// inter=1, union=7, iou=1/7; convex 3x3; c2=18; rho2=2.
	iou := iouKernel(a, b, false, Plain)
	assert.InDelta(t, 1.0/7.0, iou, 1e-5)

	// GIoU = iou - (9-7)/9.
	giou := iouKernel(a, b, false, GIoU)
	assert.InDelta(t, 1.0/7.0-2.0/9.0, giou, 1e-5)

	// DIoU = iou - 2/18.
	diou := iouKernel(a, b, false, DIoU)
	assert.InDelta(t, 1.0/7.0-2.0/18.0, diou, 1e-5)

	// Equal aspect ratios: the CIoU aspect term vanishes, so CIoU == DIoU.
	ciou := iouKernel(a, b, false, CIoU)
	assert.InDelta(t, diou, ciou, 1e-6)
}

// TestCIoUAspectPenalty verifies that differing aspect ratios pull CIoU
// below DIoU, and that equal shapes do not.
func TestCIoUAspectPenalty(t *testing.T) {
	square := Box{0, 0, 10, 10}
	wide := Box{0, 4, 12, 7} // 12x3 box overlapping the square

	diou := iouKernel(square, wide, false, DIoU)
	ciou := iouKernel(square, wide, false, CIoU)
	require.Less(t, ciou, diou, "aspect mismatch must add a positive penalty")
}

// TestVariantsCanGoNegative confirms the documented range difference between
// plain IoU and the penalized variants on disjoint boxes.
func TestVariantsCanGoNegative(t *testing.T) {
	a := Box{0, 0, 10, 10}
	b := Box{100, 100, 110, 110}

	assert.Equal(t, float32(0), IoU(a, b))
	assert.Negative(t, iouKernel(a, b, false, GIoU))
	assert.Negative(t, iouKernel(a, b, false, DIoU))
	assert.Negative(t, iouKernel(a, b, false, CIoU))
}

func TestIoUOneCenterForm(t *testing.T) {
	// The same geometry expressed in both forms must agree.
	aXYXY := Box{10, 10, 30, 30}
	aXYWH := XYXYToXYWH(aXYXY)
	others := []Box{{10, 10, 30, 30}, {20, 20, 40, 40}, {50, 50, 60, 60}}
	othersXYWH := make([]Box, len(others))
	copy(othersXYWH, others)
	XYXYToXYWHAll(othersXYWH)

	corner := IoUOne(aXYXY, others, false, CIoU)
	center := IoUOne(aXYWH, othersXYWH, true, CIoU)
	require.Len(t, center, len(corner))
	for i := range corner {
		assert.InDelta(t, corner[i], center[i], 1e-5)
	}
}

func TestIoUPairedLengthMismatch(t *testing.T) {
	_, err := IoUPaired([]Box{{0, 0, 1, 1}}, []Box{}, false, Plain)
	require.Error(t, err)
}

func TestPairwiseMatrix(t *testing.T) {
	a := []Box{{0, 0, 100, 100}, {50, 50, 150, 150}}
	b := []Box{{0, 0, 100, 100}, {200, 200, 300, 300}, {25, 25, 75, 75}}

	m := Pairwise(a, b)
	require.Len(t, m, 2)
	require.Len(t, m[0], 3)

	assert.InDelta(t, 1.0, m[0][0], 1e-6)
	assert.InDelta(t, 0.0, m[0][1], 1e-6)
	assert.InDelta(t, 0.25, m[0][2], 1e-4)

	// Every entry must match the scalar kernel.
	for i := range a {
		for j := range b {
			assert.InDelta(t, IoU(a[i], b[j]), m[i][j], 1e-6)
		}
	}
}

func TestWHIoU(t *testing.T) {
	wh1 := [][2]float32{{2, 2}, {4, 4}}
	wh2 := [][2]float32{{2, 2}, {4, 4}, {2, 8}}

	m := WHIoU(wh1, wh2)
	require.Len(t, m, 2)

	assert.InDelta(t, 1.0, m[0][0], 1e-6)
	assert.InDelta(t, 0.25, m[0][1], 1e-6) // inter=4, union=16
	assert.InDelta(t, 1.0, m[1][1], 1e-6)
	assert.InDelta(t, 8.0/24.0, m[1][2], 1e-6) // inter=min(4,2)*min(4,8)=8, union=16+16-8=24
}
