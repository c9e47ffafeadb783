package images

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/chewxy/math32"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-yolo/boxes"
)

// GrayFill is the canonical letterbox padding color.
var GrayFill = color.RGBA{114, 114, 114, 255}

// Ratio records the geometry of one letterbox operation: the uniform
// gain from source to network pixels and the float padding applied to
// each side.
type Ratio struct {
	Gain float32 `json:"gain"`
	PadX float32 `json:"pad_x"`
	PadY float32 `json:"pad_y"`
}

// ComputeRatio derives the geometry used to letterbox a srcW x srcH
// frame into dstW x dstH. With scaleUp false the gain clamps at 1 so
// small frames are padded rather than inflated. Padding derives from
// the rounded resize target so the recorded geometry matches the
// pixels actually placed.
func ComputeRatio(srcW, srcH, dstW, dstH int, scaleUp bool) Ratio {
	gain := math32.Min(float32(dstW)/float32(srcW), float32(dstH)/float32(srcH))
	if !scaleUp && gain > 1 {
		gain = 1
	}
	newW := int(math32.Round(float32(srcW) * gain))
	newH := int(math32.Round(float32(srcH) * gain))
	return Ratio{
		Gain: gain,
		PadX: float32(dstW-newW) / 2,
		PadY: float32(dstH-newH) / 2,
	}
}

// Letterbox resizes img to fit dstW x dstH preserving aspect ratio and
// fills the remainder with the given color.
//
// Arguments:
//   - img: The source frame.
//   - dstW: Target width in pixels.
//   - dstH: Target height in pixels.
//   - fill: Padding color; nil selects GrayFill.
//   - scaleUp: Whether frames smaller than the target may be inflated.
//
// Returns:
//   - image.Image: The letterboxed frame, exactly dstW x dstH.
//   - Ratio: The geometry needed to map detections back to the source.
//   - error: An error if either shape is empty.
func Letterbox(img image.Image, dstW, dstH int, fill color.Color, scaleUp bool) (image.Image, Ratio, error) {
	if img == nil {
		return nil, Ratio{}, errors.New("images: nil source image")
	}
	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return nil, Ratio{}, errors.Errorf("images: empty shape %dx%d -> %dx%d", srcW, srcH, dstW, dstH)
	}
	if fill == nil {
		fill = GrayFill
	}

	r := ComputeRatio(srcW, srcH, dstW, dstH, scaleUp)
	newW := int(math32.Round(float32(srcW) * r.Gain))
	newH := int(math32.Round(float32(srcH) * r.Gain))
	resized := img
	if newW != srcW || newH != srcH {
		resized = resize.Resize(uint(newW), uint(newH), img, resize.Lanczos3)
	}

	// Uneven padding leans on the right/bottom edge.
	left := int(math32.Round(r.PadX - 0.1))
	top := int(math32.Round(r.PadY - 0.1))

	out := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.Draw(out, out.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)
	draw.Draw(out, image.Rect(left, top, left+newW, top+newH), resized, resized.Bounds().Min, draw.Over)
	return out, r, nil
}

// ToCHW flattens an RGB frame into planar channel-major float32 data
// scaled to [0, 1], the layout single-stage detector inputs expect.
func ToCHW(img image.Image) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	data := make([]float32, 3*plane)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			data[i] = float32(r>>8) / 255.0
			data[plane+i] = float32(g>>8) / 255.0
			data[2*plane+i] = float32(bl>>8) / 255.0
			i++
		}
	}
	return data
}

// ScaleCoords maps corner-form boxes from the netW x netH letterboxed
// frame back onto the srcW x srcH source in place, clipping to the
// source bounds. A nil ratio recomputes the geometry from the two
// shapes, which assumes centered padding and an uncapped gain.
func ScaleCoords(netW, netH int, bxs []boxes.Box, srcW, srcH int, ratio *Ratio) error {
	if netW <= 0 || netH <= 0 || srcW <= 0 || srcH <= 0 {
		return errors.Errorf("images: empty shape %dx%d -> %dx%d", netW, netH, srcW, srcH)
	}
	var gain, padX, padY float32
	if ratio == nil {
		gain = math32.Min(float32(netH)/float32(srcH), float32(netW)/float32(srcW))
		padX = (float32(netW) - float32(srcW)*gain) / 2
		padY = (float32(netH) - float32(srcH)*gain) / 2
	} else {
		gain, padX, padY = ratio.Gain, ratio.PadX, ratio.PadY
	}
	if gain <= 0 {
		return errors.Errorf("images: non-positive gain %v", gain)
	}
	for i := range bxs {
		bxs[i][0] = (bxs[i][0] - padX) / gain
		bxs[i][1] = (bxs[i][1] - padY) / gain
		bxs[i][2] = (bxs[i][2] - padX) / gain
		bxs[i][3] = (bxs[i][3] - padY) / gain
		bxs[i].Clip(float32(srcW), float32(srcH))
	}
	return nil
}
