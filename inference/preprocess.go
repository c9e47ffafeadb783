package inference

import (
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-yolo/images"
)

// PrepareInput prepares the input for the ONNX model before inference is
// called, typically right before the session runs. The frame is letterboxed
// onto the network canvas so its aspect ratio survives, then written into
// the tensor as normalized CHW planes.
//
// Arguments:
//   - img: The image to prepare.
//   - dst: The destination tensor to populate.
//   - netW: The network input width.
//   - netH: The network input height.
//
// Returns:
//   - images.Ratio: The letterbox mapping for scaling boxes back to the frame.
//   - error: An error if the input preparation fails.
func PrepareInput(img image.Image, dst *ort.Tensor[float32], netW, netH int) (images.Ratio, error) {
	return FillInput(img, dst.GetData(), netW, netH)
}

// FillInput is PrepareInput over a raw float32 slice, split out so the fill
// logic can run without a live onnxruntime tensor.
//
// Arguments:
//   - img: The image to prepare.
//   - data: The destination slice, at least 3*netW*netH long.
//   - netW: The network input width.
//   - netH: The network input height.
//
// Returns:
//   - images.Ratio: The letterbox mapping for scaling boxes back to the frame.
//   - error: An error if the input preparation fails.
func FillInput(img image.Image, data []float32, netW, netH int) (images.Ratio, error) {
	channelSize := netW * netH
	if len(data) < channelSize*3 {
		return images.Ratio{}, fmt.Errorf("destination tensor only holds %d floats, needs "+
			"%d (make sure it's the right shape)", len(data), channelSize*3)
	}

	boxed, ratio, err := images.Letterbox(img, netW, netH, images.GrayFill, true)
	if err != nil {
		return images.Ratio{}, err
	}

	red := data[0:channelSize]
	green := data[channelSize : channelSize*2]
	blue := data[channelSize*2 : channelSize*3]

	i := 0
	for y := 0; y < netH; y++ {
		for x := 0; x < netW; x++ {
			r, g, b, _ := boxed.At(x, y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}

	return ratio, nil
}
