package inference

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestFillInputSolidFrame(t *testing.T) {
	img := solidImage(8, 8, color.RGBA{R: 255, A: 255})
	data := make([]float32, 3*8*8)

	ratio, err := FillInput(img, data, 8, 8)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, float64(ratio.Gain), 1e-6)
	assert.Zero(t, ratio.PadX)
	assert.Zero(t, ratio.PadY)

	plane := 8 * 8
	for _, i := range []int{0, 7, 4*8 + 4, plane - 1} {
		assert.InDelta(t, 1.0, float64(data[i]), 1e-6, "red plane at %d", i)
		assert.InDelta(t, 0.0, float64(data[plane+i]), 1e-6, "green plane at %d", i)
		assert.InDelta(t, 0.0, float64(data[2*plane+i]), 1e-6, "blue plane at %d", i)
	}
}

func TestFillInputLetterboxPadding(t *testing.T) {
	img := solidImage(8, 4, color.RGBA{R: 255, A: 255})
	data := make([]float32, 3*8*8)

	ratio, err := FillInput(img, data, 8, 8)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, float64(ratio.Gain), 1e-6)
	assert.Zero(t, ratio.PadX)
	assert.InDelta(t, 2.0, float64(ratio.PadY), 1e-6)

	plane := 8 * 8
	gray := float64(114) / 255

	// Rows 0-1 and 6-7 are padding, rows 2-5 carry the frame.
	assert.InDelta(t, gray, float64(data[0]), 1e-3)
	assert.InDelta(t, gray, float64(data[plane]), 1e-3)
	assert.InDelta(t, gray, float64(data[7*8]), 1e-3)
	assert.InDelta(t, 1.0, float64(data[2*8]), 1e-6)
	assert.InDelta(t, 0.0, float64(data[plane+2*8]), 1e-6)
	assert.InDelta(t, 1.0, float64(data[5*8+7]), 1e-6)
}

func TestFillInputUpscalesSmallFrames(t *testing.T) {
	img := solidImage(4, 4, color.RGBA{G: 255, A: 255})
	data := make([]float32, 3*8*8)

	ratio, err := FillInput(img, data, 8, 8)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, float64(ratio.Gain), 1e-6)

	plane := 8 * 8
	center := 4*8 + 4
	assert.Less(t, float64(data[center]), 0.5, "red should stay low at the center")
	assert.Greater(t, float64(data[plane+center]), 0.5, "green should dominate at the center")
}

func TestFillInputShortBuffer(t *testing.T) {
	img := solidImage(4, 4, color.RGBA{A: 255})
	data := make([]float32, 10)

	_, err := FillInput(img, data, 8, 8)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only holds 10 floats")
}

func BenchmarkFillInput(b *testing.B) {
	img := solidImage(1920, 1080, color.RGBA{R: 90, G: 120, B: 50, A: 255})
	data := make([]float32, 3*640*640)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := FillInput(img, data, 640, 640); err != nil {
			b.Fatal(err)
		}
	}
}
