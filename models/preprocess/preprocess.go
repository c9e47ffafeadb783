// Package preprocess - turns encoded frames into the float32 tensors a
// detector head consumes, and records the geometry needed to map network
// coordinates back onto the source frame.
package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/models"
)

// ModelConfig describes how a model expects its input tensor to be built.
type ModelConfig struct {
	// Name of the model for debugging purposes.
	Name string
	// InputWidth is the expected width of the model input.
	InputWidth int
	// InputHeight is the expected height of the model input.
	InputHeight int
	// InputChannels is the number of channels (1 for grayscale, 3 for RGB).
	InputChannels int
	// NormalizationType defines how to normalize pixel values.
	NormalizationType NormalizationType
	// MeanValues for standardization (if NormalizationType is Standardize).
	MeanValues []float32
	// StdValues for standardization (if NormalizationType is Standardize).
	StdValues []float32
	// ChannelOrder defines the channel ordering (CHW or HWC).
	ChannelOrder ChannelOrder
	// ColorMode defines the color space (RGB, BGR, Grayscale).
	ColorMode ColorMode
	// KeepAspectRatio if true, maintains aspect ratio with letterboxing.
	KeepAspectRatio bool
	// LetterboxColor is the color used for letterbox padding. Nil selects
	// the 114-gray fill detector weights are trained against.
	LetterboxColor color.Color
}

// Validate reports the first configuration problem found.
func (c *ModelConfig) Validate() error {
	if c.InputWidth <= 0 || c.InputHeight <= 0 {
		return fmt.Errorf("invalid input dimensions: %dx%d", c.InputWidth, c.InputHeight)
	}
	if c.InputChannels != 1 && c.InputChannels != 3 {
		return fmt.Errorf("invalid channel count: %d", c.InputChannels)
	}
	if c.ColorMode == ColorModeGrayscale && c.InputChannels != 1 {
		return fmt.Errorf("grayscale color mode requires 1 channel, got %d", c.InputChannels)
	}
	if c.NormalizationType == NormalizeStandardize {
		if len(c.MeanValues) != c.InputChannels || len(c.StdValues) != c.InputChannels {
			return fmt.Errorf("standardize normalization requires %d mean and std values",
				c.InputChannels)
		}
		for _, s := range c.StdValues {
			if s <= 0 {
				return fmt.Errorf("standard deviation values must be positive, got %v", s)
			}
		}
	}
	return nil
}

// NormalizationType defines how pixel values are normalized.
type NormalizationType int

const (
	// NormalizeNone keeps pixel values as 0-255.
	NormalizeNone NormalizationType = iota
	// NormalizeZeroToOne scales pixel values to [0, 1].
	NormalizeZeroToOne
	// NormalizeMinusOneToOne scales pixel values to [-1, 1].
	NormalizeMinusOneToOne
	// NormalizeStandardize applies mean and std normalization.
	NormalizeStandardize
)

// ChannelOrder defines the ordering of image channels.
type ChannelOrder int

const (
	// ChannelOrderCHW is Channel-Height-Width ordering (common for ONNX).
	ChannelOrderCHW ChannelOrder = iota
	// ChannelOrderHWC is Height-Width-Channel ordering.
	ChannelOrderHWC
)

// ColorMode defines the color space of the image.
type ColorMode int

const (
	// ColorModeRGB is standard RGB color mode.
	ColorModeRGB ColorMode = iota
	// ColorModeBGR is BGR color mode (common for OpenCV models).
	ColorModeBGR
	// ColorModeGrayscale is single channel grayscale.
	ColorModeGrayscale
)

// PreprocessingResult carries the tensor plus everything needed to undo the
// resize when predictions come back in network coordinates.
type PreprocessingResult struct {
	// Data is the preprocessed float32 tensor data.
	Data []float32
	// Shape is the tensor shape [batch, channels, height, width] for CHW
	// ordering, or [batch, height, width, channels] for HWC.
	Shape []int64
	// OriginalWidth is the original image width before preprocessing.
	OriginalWidth int
	// OriginalHeight is the original image height before preprocessing.
	OriginalHeight int
	// ScaleX is the horizontal scaling factor applied.
	ScaleX float32
	// ScaleY is the vertical scaling factor applied.
	ScaleY float32
	// Ratio is the letterbox geometry. Hand it to images.ScaleCoords to map
	// detections back onto the source frame. Only meaningful when
	// Letterboxed is true.
	Ratio images.Ratio
	// Letterboxed reports whether aspect-preserving padding was applied.
	Letterboxed bool
}

// Preprocessor converts encoded frames into model input tensors.
type Preprocessor struct {
	config    *ModelConfig
	debugMode bool
}

// NewPreprocessor builds a preprocessor for the given configuration.
//
// Arguments:
// - config: The model-specific preprocessing configuration.
//
// Returns:
// - A configured Preprocessor instance.
// - error if the configuration is invalid.
//
// @example
//
//	config := YOLOConfig(640)
//	preprocessor, err := NewPreprocessor(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
func NewPreprocessor(config *ModelConfig) (*Preprocessor, error) {
	if config == nil {
		return nil, errors.New("config is nil")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid preprocessing config")
	}
	if config.LetterboxColor == nil {
		config.LetterboxColor = images.GrayFill
	}
	return &Preprocessor{config: config}, nil
}

// SetDebugMode enables or disables debug logging.
func (p *Preprocessor) SetDebugMode(enabled bool) {
	p.debugMode = enabled
}

// Preprocess performs all necessary preprocessing steps on the input image.
//
// Arguments:
// - img: The input image to preprocess.
//
// Returns:
// - PreprocessingResult containing the preprocessed tensor and metadata.
// - error if preprocessing fails.
//
// @example
//
//	img := &images.Image{
//	    Format: images.FormatJPEG,
//	    Data:   jpegData,
//	    Width:  1920,
//	    Height: 1080,
//	}
//
//	result, err := preprocessor.Preprocess(img)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	tensor := result.Data
func (p *Preprocessor) Preprocess(img *images.Image) (*PreprocessingResult, error) {
	if err := p.validateInput(img); err != nil {
		return nil, errors.Wrap(err, "input validation failed")
	}

	decoded, err := p.decodeImage(img)
	if err != nil {
		return nil, errors.Wrap(err, "image decoding failed")
	}

	originalWidth := decoded.Bounds().Dx()
	originalHeight := decoded.Bounds().Dy()

	if p.debugMode {
		fmt.Printf("[DEBUG] %s: decoded %dx%d %s frame\n",
			p.config.Name, originalWidth, originalHeight, img.Format)
	}

	resized, result, err := p.resizeImage(decoded)
	if err != nil {
		return nil, errors.Wrap(err, "resize failed")
	}
	result.OriginalWidth = originalWidth
	result.OriginalHeight = originalHeight

	result.Data = p.imageToTensor(resized)
	p.normalize(result.Data)

	if p.config.ChannelOrder == ChannelOrderCHW {
		result.Shape = []int64{1, int64(p.config.InputChannels),
			int64(p.config.InputHeight), int64(p.config.InputWidth)}
	} else {
		result.Shape = []int64{1, int64(p.config.InputHeight),
			int64(p.config.InputWidth), int64(p.config.InputChannels)}
	}

	if p.debugMode {
		fmt.Printf("[DEBUG] %s: tensor shape %v, gain %.4f, pad (%.1f, %.1f)\n",
			p.config.Name, result.Shape, result.Ratio.Gain, result.Ratio.PadX, result.Ratio.PadY)
	}

	return result, nil
}

// validateInput validates the input image structure.
func (p *Preprocessor) validateInput(img *images.Image) error {
	if img == nil {
		return errors.New("image is nil")
	}
	if len(img.Data) == 0 {
		return errors.New("image data is empty")
	}
	if img.Width < 0 || img.Height < 0 {
		return fmt.Errorf("invalid image dimensions: %dx%d", img.Width, img.Height)
	}
	return nil
}

// decodeImage decodes the raw bytes, sniffing the format when the caller
// did not record one.
func (p *Preprocessor) decodeImage(img *images.Image) (image.Image, error) {
	format := img.Format
	if format == images.FormatUnknown {
		format = images.DetectFormat(img.Data)
	}
	return images.DecodeToImage(img.Data, format)
}

// resizeImage resizes the image to the model's input dimensions, either by
// letterboxing or by stretching both axes independently.
func (p *Preprocessor) resizeImage(img image.Image) (image.Image, *PreprocessingResult, error) {
	bounds := img.Bounds()
	srcWidth := bounds.Dx()
	srcHeight := bounds.Dy()

	if !p.config.KeepAspectRatio {
		resized := resize.Resize(uint(p.config.InputWidth), uint(p.config.InputHeight),
			img, resize.Lanczos3)
		return resized, &PreprocessingResult{
			ScaleX: float32(p.config.InputWidth) / float32(srcWidth),
			ScaleY: float32(p.config.InputHeight) / float32(srcHeight),
		}, nil
	}

	boxed, ratio, err := images.Letterbox(img, p.config.InputWidth, p.config.InputHeight,
		p.config.LetterboxColor, true)
	if err != nil {
		return nil, nil, err
	}
	return boxed, &PreprocessingResult{
		ScaleX:      ratio.Gain,
		ScaleY:      ratio.Gain,
		Ratio:       ratio,
		Letterboxed: true,
	}, nil
}

// imageToTensor converts an image to a float32 tensor in the configured
// channel order and color mode.
func (p *Preprocessor) imageToTensor(img image.Image) []float32 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	tensor := make([]float32, width*height*p.config.InputChannels)

	idx := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			r8 := float32(r >> 8)
			g8 := float32(g >> 8)
			b8 := float32(b >> 8)

			if p.config.InputChannels == 1 {
				gray := 0.299*r8 + 0.587*g8 + 0.114*b8
				tensor[y*width+x] = gray
				continue
			}

			var ch0, ch1, ch2 float32
			if p.config.ColorMode == ColorModeBGR {
				ch0, ch1, ch2 = b8, g8, r8
			} else {
				ch0, ch1, ch2 = r8, g8, b8
			}

			if p.config.ChannelOrder == ChannelOrderCHW {
				tensor[0*height*width+y*width+x] = ch0
				tensor[1*height*width+y*width+x] = ch1
				tensor[2*height*width+y*width+x] = ch2
			} else {
				tensor[idx] = ch0
				tensor[idx+1] = ch1
				tensor[idx+2] = ch2
				idx += 3
			}
		}
	}

	return tensor
}

// normalize applies the configured normalization to the tensor in place.
func (p *Preprocessor) normalize(tensor []float32) {
	switch p.config.NormalizationType {
	case NormalizeZeroToOne:
		for i := range tensor {
			tensor[i] /= 255.0
		}
	case NormalizeMinusOneToOne:
		for i := range tensor {
			tensor[i] = (tensor[i] / 127.5) - 1.0
		}
	case NormalizeStandardize:
		// Mean and std lengths were checked at construction.
		pixelsPerChannel := len(tensor) / p.config.InputChannels
		for c := 0; c < p.config.InputChannels; c++ {
			mean := p.config.MeanValues[c]
			std := p.config.StdValues[c]

			if p.config.ChannelOrder == ChannelOrderCHW {
				offset := c * pixelsPerChannel
				for i := 0; i < pixelsPerChannel; i++ {
					tensor[offset+i] = (tensor[offset+i] - mean) / std
				}
			} else {
				for i := c; i < len(tensor); i += p.config.InputChannels {
					tensor[i] = (tensor[i] - mean) / std
				}
			}
		}
	}
}

// YOLOConfig returns the standard configuration for single-stage YOLO
// detectors: aspect-preserving 114-gray letterbox, RGB, CHW, pixels
// scaled to [0, 1].
//
// Arguments:
// - inputSize: The square network input size (typically 416, 640, or 1280).
//
// Returns:
// - A configured ModelConfig.
//
// @example
//
//	config := YOLOConfig(640)
//	preprocessor, err := NewPreprocessor(config)
func YOLOConfig(inputSize int) *ModelConfig {
	return &ModelConfig{
		Name:              "yolo",
		InputWidth:        inputSize,
		InputHeight:       inputSize,
		InputChannels:     3,
		NormalizationType: NormalizeZeroToOne,
		ChannelOrder:      ChannelOrderCHW,
		ColorMode:         ColorModeRGB,
		KeepAspectRatio:   true,
		LetterboxColor:    images.GrayFill,
	}
}

// ForSpec builds the preprocessing configuration matching a registered
// model variant, so the preprocessor and the detection head agree on the
// network input size.
//
// Arguments:
// - spec: The model specification from the variant registry.
//
// Returns:
// - A configured ModelConfig.
//
// @example
//
//	spec, _ := models.Lookup(models.VariantYOLOv5s)
//	preprocessor, err := NewPreprocessor(ForSpec(spec))
func ForSpec(spec models.Spec) *ModelConfig {
	config := YOLOConfig(spec.InputSize)
	config.Name = string(spec.Variant)
	return config
}

// BatchPreprocess processes multiple images in parallel.
//
// Arguments:
// - frames: Slice of images to preprocess.
// - maxConcurrency: Maximum number of images to process concurrently.
//
// Returns:
// - Slice of preprocessing results, index-aligned with the input.
// - error if any preprocessing fails.
//
// @example
//
//	frames := []*images.Image{img1, img2, img3}
//	results, err := preprocessor.BatchPreprocess(frames, 4)
//	if err != nil {
//	    log.Fatal(err)
//	}
func (p *Preprocessor) BatchPreprocess(frames []*images.Image, maxConcurrency int) ([]*PreprocessingResult, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	results := make([]*PreprocessingResult, len(frames))
	errs := make([]error, len(frames))

	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	for i, img := range frames {
		wg.Add(1)
		go func(idx int, frame *images.Image) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := p.Preprocess(frame)
			if err != nil {
				errs[idx] = errors.Wrapf(err, "failed to preprocess image %d", idx)
			} else {
				results[idx] = result
			}
		}(i, img)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}
