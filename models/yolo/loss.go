package yolo

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolo/boxes"
)

// Breakdown is the per-component loss report. Values are the per-sample
// averages before batch-size scaling, so they are directly comparable
// across batch sizes.
type Breakdown struct {
	Box   float32 `json:"box"`
	Obj   float32 `json:"obj"`
	Cls   float32 `json:"cls"`
	Total float32 `json:"total"`
}

// objBalance weights the objectness term per scale: high-resolution
// scales see far more negative cells, so they are weighted up.
func objBalance(scales int) ([]float32, error) {
	switch scales {
	case 3:
		return []float32{4.0, 1.0, 0.4}, nil
	case 4:
		return []float32{4.0, 1.0, 0.4, 0.1}, nil
	default:
		return nil, errors.Errorf("loss: no objectness balance for %d scales, want 3 or 4", scales)
	}
}

// ComputeLoss scores raw multi-scale predictions against ground truth.
//
// Positive samples come from BuildTargets. Per scale, matched cells are
// decoded with the bounded transforms (center = sigmoid*2 - 0.5, size =
// (sigmoid*2)^2 * anchor) and scored with CIoU; the box loss is the mean
// CIoU complement. The objectness target of a matched cell is not binary:
// it blends 1.0 with the clamped CIoU value via hyp.GR, so box quality
// feeds the confidence signal. The CIoU value enters that target as a
// constant, mirroring the reference formulation where it is detached from
// gradient flow. Classification uses per-class binary cross-entropy and
// is skipped entirely for single-class heads.
//
// Arguments:
//   - head: Model metadata; anchor layout must match the predictions.
//   - hyp: Loss weights, criteria options, and assignment threshold.
//   - preds: Per-scale tensors of shape (batch, anchors, gridH, gridW,
//     5+classes), raw logits throughout.
//   - targets: Ground-truth tensor of shape (n, 6); see BuildTargets.
//
// Returns:
//   - float32: Total loss scaled by batch size.
//   - Breakdown: Unscaled box/obj/cls components and their sum.
//   - error: An error if tensor layouts disagree with the head.
func ComputeLoss(head *Head, hyp Hyp, preds []*tensor.Dense, targets *tensor.Dense) (float32, Breakdown, error) {
	if err := hyp.Validate(); err != nil {
		return 0, Breakdown{}, err
	}
	scales := head.Scales()
	if len(preds) != scales {
		return 0, Breakdown{}, errors.Errorf("loss: %d prediction scales for %d strides", len(preds), scales)
	}
	balance, err := objBalance(scales)
	if err != nil {
		return 0, Breakdown{}, err
	}

	// Grid extents come from the prediction shapes alone.
	grids := make([]GridSize, scales)
	batch := 0
	for i, p := range preds {
		_, bs, gh, gw, err := predView(head, p)
		if err != nil {
			return 0, Breakdown{}, errors.Wrapf(err, "loss: scale %d", i)
		}
		if i == 0 {
			batch = bs
		} else if bs != batch {
			return 0, Breakdown{}, errors.Errorf("loss: scale %d batch %d, scale 0 batch %d", i, bs, batch)
		}
		grids[i] = GridSize{H: gh, W: gw}
	}

	assigned, err := BuildTargets(head, hyp, grids, targets)
	if err != nil {
		return 0, Breakdown{}, err
	}

	bceCls := NewBCEWithLogits(hyp.ClsPW)
	bceObj := NewBCEWithLogits(hyp.ObjPW)
	var clsCrit Criterion = bceCls
	var objCrit Criterion = bceObj
	if hyp.FLGamma > 0 {
		clsCrit = NewFocalLoss(bceCls, hyp.FLGamma, hyp.FLAlpha)
		objCrit = NewFocalLoss(bceObj, hyp.FLGamma, hyp.FLAlpha)
	}
	cp, cn := SmoothBCE(hyp.LabelSmoothing)

	na := head.AnchorsPerScale()
	nc := head.NumClasses
	no := head.Outputs()
	var lbox, lobj, lcls float32
	for i, p := range preds {
		data, _, gh, gw, _ := predView(head, p)
		cells := batch * na * gh * gw
		tobj := make([]float32, cells)

		st := &assigned[i]
		nb := st.Len()
		if nb > 0 {
			flats := make([]int, nb)
			pred := make([]boxes.Box, nb)
			for n, ix := range st.Indices {
				flat := ((ix.Image*na+ix.Anchor)*gh+ix.Row)*gw + ix.Col
				flats[n] = flat
				base := flat * no
				px := sigmoid(data[base])*2 - 0.5
				py := sigmoid(data[base+1])*2 - 0.5
				sw := sigmoid(data[base+2]) * 2
				sh := sigmoid(data[base+3]) * 2
				pred[n] = boxes.Box{px, py, sw * sw * st.Anchors[n].W, sh * sh * st.Anchors[n].H}
			}

			ciou, err := boxes.IoUPaired(pred, st.Boxes, true, boxes.CIoU)
			if err != nil {
				return 0, Breakdown{}, errors.Wrapf(err, "loss: scale %d", i)
			}
			var boxSum float32
			for n, v := range ciou {
				boxSum += 1 - v
				q := v
				if q < 0 {
					q = 0
				}
				// Duplicate cell assignments resolve last-write-wins.
				tobj[flats[n]] = (1 - hyp.GR) + hyp.GR*q
			}
			lbox += boxSum / float32(nb)

			if nc > 1 {
				clsLogits := make([]float32, 0, nb*nc)
				clsTargets := make([]float32, 0, nb*nc)
				for n, flat := range flats {
					base := flat*no + 5
					clsLogits = append(clsLogits, data[base:base+nc]...)
					for c := 0; c < nc; c++ {
						if c == st.Classes[n] {
							clsTargets = append(clsTargets, cp)
						} else {
							clsTargets = append(clsTargets, cn)
						}
					}
				}
				l, err := clsCrit.Loss(clsLogits, clsTargets)
				if err != nil {
					return 0, Breakdown{}, errors.Wrapf(err, "loss: scale %d cls", i)
				}
				lcls += l
			}
		}

		// Objectness runs over every cell of the scale, matched or not.
		objLogits := make([]float32, cells)
		for cell := 0; cell < cells; cell++ {
			objLogits[cell] = data[cell*no+4]
		}
		l, err := objCrit.Loss(objLogits, tobj)
		if err != nil {
			return 0, Breakdown{}, errors.Wrapf(err, "loss: scale %d obj", i)
		}
		lobj += l * balance[i]
	}

	// Normalize by output count so 3- and 4-scale heads train alike.
	s := 3.0 / float32(scales)
	lbox *= hyp.Box * s
	objScale := float32(1.0)
	if scales == 4 {
		objScale = 1.4
	}
	lobj *= hyp.Obj * s * objScale
	lcls *= hyp.Cls * s

	total := lbox + lobj + lcls
	bd := Breakdown{Box: lbox, Obj: lobj, Cls: lcls, Total: total}
	return total * float32(batch), bd, nil
}

// predView validates one scale's prediction tensor against the head and
// returns its float32 backing plus batch and grid extents.
func predView(head *Head, p *tensor.Dense) ([]float32, int, int, int, error) {
	if p == nil {
		return nil, 0, 0, 0, errors.New("nil prediction tensor")
	}
	shape := p.Shape()
	if len(shape) != 5 {
		return nil, 0, 0, 0, errors.Errorf("prediction shape %v, want (batch, anchors, gridH, gridW, outputs)", shape)
	}
	bs, na, gh, gw, no := shape[0], shape[1], shape[2], shape[3], shape[4]
	if bs < 1 || gh < 1 || gw < 1 {
		return nil, 0, 0, 0, errors.Errorf("prediction shape %v has empty dims", shape)
	}
	if na != head.AnchorsPerScale() {
		return nil, 0, 0, 0, errors.Errorf("prediction has %d anchors, head has %d", na, head.AnchorsPerScale())
	}
	if no != head.Outputs() {
		return nil, 0, 0, 0, errors.Errorf("prediction has %d outputs, head wants %d", no, head.Outputs())
	}
	data, ok := p.Data().([]float32)
	if !ok {
		return nil, 0, 0, 0, errors.Errorf("prediction dtype %v, want float32", p.Dtype())
	}
	if len(data) < bs*na*gh*gw*no {
		return nil, 0, 0, 0, errors.Errorf("prediction backing holds %d values for shape %v", len(data), shape)
	}
	return data, bs, gh, gw, nil
}
