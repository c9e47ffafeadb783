package images

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/cshum/vipsgen/vips"
	"gocv.io/x/gocv"
)

// ResizeJPEG resizes a JPEG []byte to the given width and height, returning a gocv.Mat.
//
// Arguments:
//   - jpegBytes: The JPEG []byte to resize.
//   - width: The width to resize the image to.
//   - height: The height to resize the image to.
//
// Returns:
//   - gocv.Mat: The resized image.
//   - error: An error if the image fails to resize.
func ResizeJPEG(jpegBytes []byte, width, height int) (gocv.Mat, error) {
	// Load the image from buffer.
	img, err := vips.NewImageFromBuffer(jpegBytes, &vips.LoadOptions{
		Access: vips.AccessSequential,
	})
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to load image: %w", err)
	}
	defer img.Close()

	// Resize the image in-place.
	err = img.ThumbnailImage(width, &vips.ThumbnailImageOptions{
		Height: height,
		FailOn: vips.FailOnError,
	})
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to resize image: %w", err)
	}

	// Export to JPEG buffer.
	resized, err := img.JpegsaveBuffer(&vips.JpegsaveBufferOptions{})
	if err != nil || len(resized) == 0 {
		return gocv.NewMat(), fmt.Errorf("failed to encode resized image")
	}

	// Decode into gocv.Mat so we can use it with OpenCV.
	mat, err := gocv.IMDecode(resized, gocv.IMReadColor)
	if err != nil || mat.Empty() {
		return gocv.NewMat(), fmt.Errorf("failed to decode resized image")
	}

	return mat, nil
}

// ResizeJPEGToImage resizes a JPEG []byte to the given width and height,
// returning a Go-native image.Image.
func ResizeJPEGToImage(jpegBytes []byte, width, height int) (image.Image, error) {
	resizedBytes, err := vipsThumbnail(jpegBytes, width, height, FormatJPEG)
	if err != nil {
		return nil, err
	}
	imgDecoded, err := jpeg.Decode(bytes.NewReader(resizedBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode resized JPEG: %w", err)
	}
	return imgDecoded, nil
}

// ResizeWebPToImage resizes a WebP []byte to the given width and height,
// returning a Go-native image.Image.
func ResizeWebPToImage(b []byte, width, height int) (image.Image, error) {
	resizedBytes, err := vipsThumbnail(b, width, height, FormatWebP)
	if err != nil {
		return nil, err
	}
	imgDecoded, err := webp.Decode(bytes.NewReader(resizedBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode resized WebP: %w", err)
	}
	return imgDecoded, nil
}

// ResizePNGToImage resizes a PNG []byte to the given width and height,
// returning a Go-native image.Image.
func ResizePNGToImage(b []byte, width, height int) (image.Image, error) {
	resizedBytes, err := vipsThumbnail(b, width, height, FormatPNG)
	if err != nil {
		return nil, err
	}
	imgDecoded, err := png.Decode(bytes.NewReader(resizedBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode resized PNG: %w", err)
	}
	return imgDecoded, nil
}

// vipsThumbnail loads encoded bytes, bounds them to width x height, and
// re-encodes in the same container.
func vipsThumbnail(b []byte, width, height int, format ImageFormat) ([]byte, error) {
	img, err := vips.NewImageFromBuffer(b, &vips.LoadOptions{
		Access: vips.AccessSequential,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	defer img.Close()

	err = img.ThumbnailImage(width, &vips.ThumbnailImageOptions{
		Height: height,
		FailOn: vips.FailOnError,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resize image: %w", err)
	}

	var resized []byte
	switch format {
	case FormatWebP:
		resized, err = img.WebpsaveBuffer(&vips.WebpsaveBufferOptions{})
	case FormatPNG:
		resized, err = img.PngsaveBuffer(&vips.PngsaveBufferOptions{})
	default:
		resized, err = img.JpegsaveBuffer(&vips.JpegsaveBufferOptions{})
	}
	if err != nil || len(resized) == 0 {
		return nil, fmt.Errorf("failed to encode resized image")
	}
	return resized, nil
}

// DecodeToImage decodes encoded bytes into an image.Image, sniffing the
// container when format is FormatUnknown.
func DecodeToImage(b []byte, format ImageFormat) (image.Image, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	if format == FormatUnknown {
		format = DetectFormat(b)
	}
	switch format {
	case FormatJPEG:
		return jpeg.Decode(bytes.NewReader(b))
	case FormatPNG:
		return png.Decode(bytes.NewReader(b))
	case FormatWebP:
		return webp.Decode(bytes.NewReader(b))
	default:
		img, _, err := image.Decode(bytes.NewReader(b))
		return img, err
	}
}

// DecodeBounds reads just the container header and reports the pixel
// dimensions without decoding the frame.
func DecodeBounds(b []byte, format ImageFormat) (width, height int, err error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("empty image data")
	}
	if format == FormatUnknown {
		format = DetectFormat(b)
	}
	var cfg image.Config
	switch format {
	case FormatJPEG:
		cfg, err = jpeg.DecodeConfig(bytes.NewReader(b))
	case FormatPNG:
		cfg, err = png.DecodeConfig(bytes.NewReader(b))
	case FormatWebP:
		cfg, err = webp.DecodeConfig(bytes.NewReader(b))
	default:
		cfg, _, err = image.DecodeConfig(bytes.NewReader(b))
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// ResizeImageToImage provides a unified interface to resize images of different formats
// to image.Image, suitable for ONNX runtime inference.
func ResizeImageToImage(imageBytes []byte, width, height int, format ImageFormat) (image.Image, error) {
	if len(imageBytes) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: width=%d, height=%d", width, height)
	}

	switch format {
	case FormatJPEG:
		return ResizeJPEGToImage(imageBytes, width, height)
	case FormatWebP:
		return ResizeWebPToImage(imageBytes, width, height)
	case FormatPNG:
		return ResizePNGToImage(imageBytes, width, height)
	default:
		return nil, fmt.Errorf("unsupported image format: %s", format)
	}
}
