package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/models"
)

// TestPreprocessYOLO validates the full pipeline for the standard YOLO
// configuration: letterboxed, RGB, CHW, pixels scaled to [0, 1].
func TestPreprocessYOLO(t *testing.T) {
	frame := &images.Image{
		Format: images.FormatJPEG,
		Data:   createTestJPEG(t, 800, 600),
		Width:  800,
		Height: 600,
	}

	preprocessor, err := NewPreprocessor(YOLOConfig(640))
	require.NoError(t, err)

	result, err := preprocessor.Preprocess(frame)
	require.NoError(t, err, "preprocessing should succeed with valid input")
	require.NotNil(t, result)

	assert.Equal(t, []int64{1, 3, 640, 640}, result.Shape, "tensor shape should be NCHW")
	assert.Len(t, result.Data, 3*640*640, "tensor data size should match shape")
	assert.Equal(t, 800, result.OriginalWidth, "original width should be preserved")
	assert.Equal(t, 600, result.OriginalHeight, "original height should be preserved")

	// 800x600 into 640x640 scales by min(640/800, 640/600) = 0.8 and pads
	// 80 pixels above and below.
	assert.True(t, result.Letterboxed)
	assert.InDelta(t, 0.8, result.Ratio.Gain, 1e-6, "gain should be the limiting axis ratio")
	assert.InDelta(t, 0.8, float64(result.ScaleX), 1e-6)
	assert.InDelta(t, 0.8, float64(result.ScaleY), 1e-6)
	assert.InDelta(t, 0.0, result.Ratio.PadX, 1e-6)
	assert.InDelta(t, 80.0, result.Ratio.PadY, 1e-6)

	lo, hi := tensorRange(result.Data)
	assert.GreaterOrEqual(t, lo, float32(0), "normalized pixels should be >= 0")
	assert.LessOrEqual(t, hi, float32(1), "normalized pixels should be <= 1")
}

// TestPreprocessLetterboxPadding checks that the padded rows carry the
// 114-gray fill while the frame content lands in the middle band.
func TestPreprocessLetterboxPadding(t *testing.T) {
	frame := &images.Image{
		Format: images.FormatJPEG,
		Data:   createTestJPEG(t, 1280, 720),
	}

	preprocessor, err := NewPreprocessor(YOLOConfig(640))
	require.NoError(t, err)

	result, err := preprocessor.Preprocess(frame)
	require.NoError(t, err)

	// 1280x720 into 640x640: gain 0.5, content occupies rows 140..499.
	require.InDelta(t, 140.0, result.Ratio.PadY, 1e-6)

	plane := 640 * 640
	for c := 0; c < 3; c++ {
		top := result.Data[c*plane+0*640+320]
		bottom := result.Data[c*plane+639*640+320]
		assert.InDelta(t, 114.0/255.0, float64(top), 0.02,
			"top padding should be 114-gray in channel %d", c)
		assert.InDelta(t, 114.0/255.0, float64(bottom), 0.02,
			"bottom padding should be 114-gray in channel %d", c)
	}

	// The test frame is solid red, so the center of the content band should
	// be strongly red and weakly green/blue.
	center := 320*640 + 320
	assert.Greater(t, result.Data[0*plane+center], float32(0.8), "red channel at center")
	assert.Less(t, result.Data[1*plane+center], float32(0.2), "green channel at center")
	assert.Less(t, result.Data[2*plane+center], float32(0.2), "blue channel at center")
}

// TestPreprocessGrayscale validates single-channel output with independent
// axis scaling.
func TestPreprocessGrayscale(t *testing.T) {
	frame := &images.Image{
		Format: images.FormatJPEG,
		Data:   createTestJPEG(t, 400, 300),
	}

	preprocessor, err := NewPreprocessor(&ModelConfig{
		Name:              "gray",
		InputWidth:        256,
		InputHeight:       256,
		InputChannels:     1,
		NormalizationType: NormalizeZeroToOne,
		ChannelOrder:      ChannelOrderCHW,
		ColorMode:         ColorModeGrayscale,
		KeepAspectRatio:   false,
	})
	require.NoError(t, err)

	result, err := preprocessor.Preprocess(frame)
	require.NoError(t, err, "grayscale preprocessing should succeed")

	assert.Equal(t, []int64{1, 1, 256, 256}, result.Shape, "grayscale tensor should have one channel")
	assert.Len(t, result.Data, 256*256)
	assert.False(t, result.Letterboxed, "stretch resize should not letterbox")
	assert.InDelta(t, 256.0/400.0, float64(result.ScaleX), 1e-4)
	assert.InDelta(t, 256.0/300.0, float64(result.ScaleY), 1e-4)
}

// TestPreprocessBGRSwapsChannels verifies that BGR output is the RGB output
// with the first and third planes exchanged.
func TestPreprocessBGRSwapsChannels(t *testing.T) {
	frame := &images.Image{
		Format: images.FormatPNG,
		Data:   createSolidPNG(t, 64, 64, color.RGBA{R: 200, G: 100, B: 50, A: 255}),
	}

	base := ModelConfig{
		Name:              "order",
		InputWidth:        64,
		InputHeight:       64,
		InputChannels:     3,
		NormalizationType: NormalizeNone,
		ChannelOrder:      ChannelOrderCHW,
		ColorMode:         ColorModeRGB,
		KeepAspectRatio:   true,
	}

	rgbConfig := base
	preprocessorRGB, err := NewPreprocessor(&rgbConfig)
	require.NoError(t, err)
	rgb, err := preprocessorRGB.Preprocess(frame)
	require.NoError(t, err)

	bgrConfig := base
	bgrConfig.ColorMode = ColorModeBGR
	preprocessorBGR, err := NewPreprocessor(&bgrConfig)
	require.NoError(t, err)
	bgr, err := preprocessorBGR.Preprocess(frame)
	require.NoError(t, err)

	plane := 64 * 64
	assert.InDeltaSlice(t, rgb.Data[2*plane:3*plane], bgr.Data[0:plane], 0.5,
		"BGR first plane should match RGB third plane")
	assert.InDeltaSlice(t, rgb.Data[0:plane], bgr.Data[2*plane:3*plane], 0.5,
		"BGR third plane should match RGB first plane")
	assert.InDelta(t, 200.0, float64(rgb.Data[0]), 1.0, "red plane of a solid fixture")
	assert.InDelta(t, 50.0, float64(bgr.Data[0]), 1.0, "blue-first plane of a solid fixture")
}

// TestPreprocessHWCInterleaving checks the interleaved layout against a
// fixture small enough to index by hand. Matching source and target
// dimensions keep the resampler out of the path.
func TestPreprocessHWCInterleaving(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	src.Set(0, 0, color.RGBA{R: 255, A: 255})
	src.Set(1, 0, color.RGBA{G: 255, A: 255})
	src.Set(0, 1, color.RGBA{B: 255, A: 255})
	src.Set(1, 1, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	preprocessor, err := NewPreprocessor(&ModelConfig{
		Name:              "hwc",
		InputWidth:        2,
		InputHeight:       2,
		InputChannels:     3,
		NormalizationType: NormalizeZeroToOne,
		ChannelOrder:      ChannelOrderHWC,
		ColorMode:         ColorModeRGB,
		KeepAspectRatio:   true,
	})
	require.NoError(t, err)

	result, err := preprocessor.Preprocess(&images.Image{
		Format: images.FormatPNG,
		Data:   buf.Bytes(),
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 2, 3}, result.Shape, "HWC shape should trail the channel dim")
	want := []float32{
		1, 0, 0, // top-left red
		0, 1, 0, // top-right green
		0, 0, 1, // bottom-left blue
		1, 1, 1, // bottom-right white
	}
	assert.InDeltaSlice(t, want, result.Data, 1e-6, "pixels should interleave row-major")
}

// TestPreprocessStandardize validates channel-wise mean and std
// normalization on the raw 0-255 values.
func TestPreprocessStandardize(t *testing.T) {
	frame := &images.Image{
		Format: images.FormatPNG,
		Data:   createSolidPNG(t, 8, 8, color.RGBA{R: 100, G: 100, B: 100, A: 255}),
	}

	preprocessor, err := NewPreprocessor(&ModelConfig{
		Name:              "standardize",
		InputWidth:        8,
		InputHeight:       8,
		InputChannels:     3,
		NormalizationType: NormalizeStandardize,
		MeanValues:        []float32{100, 100, 100},
		StdValues:         []float32{50, 50, 50},
		ChannelOrder:      ChannelOrderCHW,
		ColorMode:         ColorModeRGB,
		KeepAspectRatio:   true,
	})
	require.NoError(t, err)

	result, err := preprocessor.Preprocess(frame)
	require.NoError(t, err)

	for i, v := range result.Data {
		assert.InDelta(t, 0.0, float64(v), 0.05, "standardized solid fixture at %d", i)
	}
}

// TestPreprocessIdempotency ensures repeated runs over the same frame
// produce identical tensors.
func TestPreprocessIdempotency(t *testing.T) {
	frame := &images.Image{
		Format: images.FormatJPEG,
		Data:   createTestJPEG(t, 320, 240),
	}

	preprocessor, err := NewPreprocessor(YOLOConfig(320))
	require.NoError(t, err)

	first, err := preprocessor.Preprocess(frame)
	require.NoError(t, err)
	second, err := preprocessor.Preprocess(frame)
	require.NoError(t, err)

	assert.Equal(t, first.Shape, second.Shape)
	assert.Equal(t, first.Ratio, second.Ratio)
	assert.Equal(t, first.Data, second.Data, "identical input should produce identical tensors")
}

// TestNewPreprocessorValidation exercises configuration rejection.
func TestNewPreprocessorValidation(t *testing.T) {
	testCases := []struct {
		name     string
		config   *ModelConfig
		errorMsg string
	}{
		{
			name:     "Nil config",
			config:   nil,
			errorMsg: "config is nil",
		},
		{
			name: "Zero input width",
			config: &ModelConfig{
				InputWidth:    0,
				InputHeight:   640,
				InputChannels: 3,
			},
			errorMsg: "invalid input dimensions",
		},
		{
			name: "Unsupported channel count",
			config: &ModelConfig{
				InputWidth:    640,
				InputHeight:   640,
				InputChannels: 2,
			},
			errorMsg: "invalid channel count",
		},
		{
			name: "Grayscale with three channels",
			config: &ModelConfig{
				InputWidth:    640,
				InputHeight:   640,
				InputChannels: 3,
				ColorMode:     ColorModeGrayscale,
			},
			errorMsg: "grayscale color mode requires 1 channel",
		},
		{
			name: "Standardize without mean and std",
			config: &ModelConfig{
				InputWidth:        640,
				InputHeight:       640,
				InputChannels:     3,
				NormalizationType: NormalizeStandardize,
			},
			errorMsg: "requires 3 mean and std values",
		},
		{
			name: "Zero standard deviation",
			config: &ModelConfig{
				InputWidth:        640,
				InputHeight:       640,
				InputChannels:     3,
				NormalizationType: NormalizeStandardize,
				MeanValues:        []float32{0, 0, 0},
				StdValues:         []float32{1, 0, 1},
			},
			errorMsg: "standard deviation values must be positive",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPreprocessor(tc.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errorMsg)
		})
	}
}

// TestPreprocessInputValidation exercises per-frame input rejection.
func TestPreprocessInputValidation(t *testing.T) {
	preprocessor, err := NewPreprocessor(YOLOConfig(640))
	require.NoError(t, err)

	testCases := []struct {
		name     string
		image    *images.Image
		errorMsg string
	}{
		{
			name:     "Nil image",
			image:    nil,
			errorMsg: "image is nil",
		},
		{
			name: "Empty image data",
			image: &images.Image{
				Format: images.FormatJPEG,
				Data:   []byte{},
			},
			errorMsg: "image data is empty",
		},
		{
			name: "Negative height",
			image: &images.Image{
				Format: images.FormatJPEG,
				Data:   []byte{0xFF, 0xD8, 0xFF},
				Width:  100,
				Height: -50,
			},
			errorMsg: "invalid image dimensions",
		},
		{
			name: "Corrupted data",
			image: &images.Image{
				Format: images.FormatJPEG,
				Data:   []byte{0xDE, 0xAD, 0xBE, 0xEF},
			},
			errorMsg: "image decoding failed",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := preprocessor.Preprocess(tc.image)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errorMsg)
		})
	}
}

// TestConfigPresets pins the preset values downstream code depends on.
func TestConfigPresets(t *testing.T) {
	config := YOLOConfig(640)
	assert.Equal(t, 640, config.InputWidth)
	assert.Equal(t, 640, config.InputHeight)
	assert.Equal(t, 3, config.InputChannels)
	assert.Equal(t, NormalizeZeroToOne, config.NormalizationType)
	assert.Equal(t, ChannelOrderCHW, config.ChannelOrder)
	assert.Equal(t, ColorModeRGB, config.ColorMode)
	assert.True(t, config.KeepAspectRatio, "YOLO preset should letterbox")
	assert.Equal(t, images.GrayFill, config.LetterboxColor)

	spec, ok := models.Lookup(models.VariantYOLOv5s6)
	require.True(t, ok)
	fromSpec := ForSpec(spec)
	assert.Equal(t, "yolov5s6", fromSpec.Name)
	assert.Equal(t, 1280, fromSpec.InputWidth, "spec input size should carry over")
	assert.Equal(t, 1280, fromSpec.InputHeight)
}

// TestBatchPreprocess validates parallel preprocessing and error
// propagation.
func TestBatchPreprocess(t *testing.T) {
	preprocessor, err := NewPreprocessor(YOLOConfig(320))
	require.NoError(t, err)

	frames := []*images.Image{
		{Format: images.FormatJPEG, Data: createTestJPEG(t, 640, 480)},
		{Format: images.FormatJPEG, Data: createTestJPEG(t, 320, 240)},
		{Format: images.FormatJPEG, Data: createTestJPEG(t, 1280, 720)},
	}

	results, err := preprocessor.BatchPreprocess(frames, 2)
	require.NoError(t, err, "batch preprocessing should succeed")
	require.Len(t, results, 3)

	assert.Equal(t, 640, results[0].OriginalWidth, "results should align with input order")
	assert.Equal(t, 320, results[1].OriginalWidth)
	assert.Equal(t, 1280, results[2].OriginalWidth)

	frames[1].Data = []byte{0x00, 0x01}
	_, err = preprocessor.BatchPreprocess(frames, 2)
	require.Error(t, err, "a corrupt frame should fail the batch")
	assert.Contains(t, err.Error(), "image 1")
}

// BenchmarkPreprocessYOLO measures the full-frame preprocessing cost for a
// 1080p input at network size 640.
func BenchmarkPreprocessYOLO(b *testing.B) {
	frame := &images.Image{
		Format: images.FormatJPEG,
		Data:   createTestJPEG(b, 1920, 1080),
	}

	preprocessor, err := NewPreprocessor(YOLOConfig(640))
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := preprocessor.Preprocess(frame); err != nil {
			b.Fatal(err)
		}
	}
}

// createTestJPEG encodes a solid red frame as JPEG bytes.
func createTestJPEG(t testing.TB, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// createSolidPNG encodes a single-color frame as PNG bytes.
func createSolidPNG(t testing.TB, width, height int, fill color.RGBA) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fill)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// tensorRange returns the minimum and maximum values in the tensor.
func tensorRange(data []float32) (float32, float32) {
	lo, hi := data[0], data[0]
	for _, v := range data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
