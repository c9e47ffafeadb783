package yolo

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Decode turns raw per-scale training outputs into a flat candidate
// tensor of shape (batch, cells, 5+classes) ready for suppression. Box
// centers apply the bounded offset transform and land in input pixels via
// the scale stride; sizes use the squared transform against pixel
// anchors; objectness and class scores pass through a sigmoid.
//
// Cells concatenate in scale order, each scale flattened anchor-major
// then row-major, so the output is deterministic for a given head.
func Decode(head *Head, preds []*tensor.Dense) (*tensor.Dense, error) {
	if err := head.Validate(); err != nil {
		return nil, err
	}
	if len(preds) != head.Scales() {
		return nil, errors.Errorf("decode: %d prediction scales for %d strides", len(preds), head.Scales())
	}

	na := head.AnchorsPerScale()
	no := head.Outputs()
	batch := 0
	total := 0
	grids := make([]GridSize, len(preds))
	for i, p := range preds {
		_, bs, gh, gw, err := predView(head, p)
		if err != nil {
			return nil, errors.Wrapf(err, "decode: scale %d", i)
		}
		if i == 0 {
			batch = bs
		} else if bs != batch {
			return nil, errors.Errorf("decode: scale %d batch %d, scale 0 batch %d", i, bs, batch)
		}
		grids[i] = GridSize{H: gh, W: gw}
		total += na * gh * gw
	}

	out := make([]float32, batch*total*no)
	offset := 0
	for i, p := range preds {
		data, _, gh, gw, _ := predView(head, p)
		stride := float32(head.Strides[i])
		pix := head.PixelAnchors(i)
		for b := 0; b < batch; b++ {
			for a := 0; a < na; a++ {
				for gj := 0; gj < gh; gj++ {
					for gi := 0; gi < gw; gi++ {
						src := (((b*na+a)*gh+gj)*gw + gi) * no
						k := (a*gh+gj)*gw + gi
						dst := (b*total + offset + k) * no
						sx := sigmoid(data[src])
						sy := sigmoid(data[src+1])
						sw := sigmoid(data[src+2]) * 2
						sh := sigmoid(data[src+3]) * 2
						out[dst] = (sx*2 - 0.5 + float32(gi)) * stride
						out[dst+1] = (sy*2 - 0.5 + float32(gj)) * stride
						out[dst+2] = sw * sw * pix[a].W
						out[dst+3] = sh * sh * pix[a].H
						for c := 4; c < no; c++ {
							out[dst+c] = sigmoid(data[src+c])
						}
					}
				}
			}
		}
		offset += na * gh * gw
	}
	return tensor.New(tensor.WithShape(batch, total, no), tensor.WithBacking(out)), nil
}
