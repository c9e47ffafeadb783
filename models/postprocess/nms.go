package postprocess

import (
	"sort"
	"time"

	"github.com/bmharper/flatbush-go"
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolo/boxes"
)

// candidate is one thresholded (box, class) pairing during suppression.
// The offset box shifts all four corners by class id times Config.MaxWH
// so a single greedy pass never suppresses across classes.
type candidate struct {
	box    boxes.Box
	offset boxes.Box
	score  float32
	class  int
}

// NonMaxSuppression reduces raw candidate rows to final per-image boxes.
//
// Candidates are rows whose objectness exceeds the confidence threshold;
// their class scores are scaled by objectness, and with more than one
// class every (box, class) pairing above the threshold becomes its own
// candidate. Survivors of the greedy pass are capped at MaxDetections.
// With Merge set, each survivor is refined to the score-weighted average
// of every candidate overlapping it beyond the IoU threshold; a merge
// that cannot complete is recorded in the result and the image keeps its
// unmerged boxes.
//
// The wall-clock budget is cooperative: it is checked after each image,
// and expiry returns the finished images with TruncatedAt marking the
// first one skipped.
//
// Arguments:
//   - pred: Decoded predictions of shape (batch, rows, 5+classes), boxes
//     in center form, scores in [0, 1].
//   - cfg: Suppression settings; see Config.
//
// Returns:
//   - *BatchResult: Per-image results plus truncation and merge notes.
//   - error: An error if the prediction tensor is malformed.
//
// @example
//
//	res, err := postprocess.NonMaxSuppression(decoded, postprocess.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	for _, det := range res.Images[0] {
//	    fmt.Printf("class %d at %v (%.2f)\n", det.Class, det.Box, det.Score)
//	}
func NonMaxSuppression(pred *tensor.Dense, cfg Config) (*BatchResult, error) {
	cfg = cfg.withDefaults()
	if pred == nil {
		return nil, errors.New("nms: nil prediction tensor")
	}
	shape := pred.Shape()
	if len(shape) != 3 {
		return nil, errors.Errorf("nms: prediction shape %v, want (batch, rows, outputs)", shape)
	}
	bs, rows, no := shape[0], shape[1], shape[2]
	if no < 6 {
		return nil, errors.Errorf("nms: %d outputs per row, want at least 6", no)
	}
	data, ok := pred.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("nms: prediction dtype %v, want float32", pred.Dtype())
	}
	if len(data) < bs*rows*no {
		return nil, errors.Errorf("nms: prediction backing holds %d values for shape %v", len(data), shape)
	}

	nc := no - 5
	multiLabel := nc > 1
	var allow map[int]bool
	if len(cfg.Classes) > 0 {
		allow = make(map[int]bool, len(cfg.Classes))
		for _, c := range cfg.Classes {
			allow[c] = true
		}
	}

	res := &BatchResult{Images: make([][]Result, bs), TruncatedAt: -1}
	start := time.Now()
	for xi := 0; xi < bs; xi++ {
		cands := gatherCandidates(data[xi*rows*no:(xi+1)*rows*no], rows, no, nc, multiLabel, allow, cfg)
		if len(cands) > 0 {
			keep := greedySuppress(cands, cfg)
			if cfg.Merge && len(cands) > 1 && len(cands) < cfg.MaxCandidates {
				merged, reason := mergeKept(cands, keep, cfg)
				if reason != "" {
					res.MergeFallbacks = append(res.MergeFallbacks, MergeFallback{Image: xi, Reason: reason})
					res.Images[xi] = plainResults(cands, keep)
				} else {
					res.Images[xi] = merged
				}
			} else {
				res.Images[xi] = plainResults(cands, keep)
			}
		}
		if cfg.TimeLimit > 0 && time.Since(start) > cfg.TimeLimit {
			if xi+1 < bs {
				res.TruncatedAt = xi + 1
			}
			break
		}
	}
	return res, nil
}

// gatherCandidates thresholds one image's rows into suppression
// candidates with corner-form and class-offset boxes.
func gatherCandidates(img []float32, rows, no, nc int, multiLabel bool, allow map[int]bool, cfg Config) []candidate {
	cands := make([]candidate, 0, 64)
	for r := 0; r < rows; r++ {
		base := r * no
		obj := img[base+4]
		if !(obj > cfg.ConfThreshold) {
			continue
		}
		corner := boxes.XYWHToXYXY(boxes.Box{img[base], img[base+1], img[base+2], img[base+3]})
		if multiLabel {
			for c := 0; c < nc; c++ {
				conf := obj * img[base+5+c]
				if conf > cfg.ConfThreshold && (allow == nil || allow[c]) {
					cands = append(cands, newCandidate(corner, conf, c, cfg))
				}
			}
		} else {
			conf := obj * img[base+5]
			if conf > cfg.ConfThreshold && (allow == nil || allow[0]) {
				cands = append(cands, newCandidate(corner, conf, 0, cfg))
			}
		}
	}
	return cands
}

func newCandidate(corner boxes.Box, score float32, class int, cfg Config) candidate {
	off := float32(0)
	if !cfg.Agnostic {
		off = float32(class) * cfg.MaxWH
	}
	return candidate{
		box:    corner,
		offset: boxes.Box{corner[0] + off, corner[1] + off, corner[2] + off, corner[3] + off},
		score:  score,
		class:  class,
	}
}

// greedySuppress returns indices of surviving candidates, best score
// first, suppressing any candidate overlapping a survivor beyond the IoU
// threshold.
func greedySuppress(cands []candidate, cfg Config) []int {
	order := make([]int, len(cands))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return cands[order[a]].score > cands[order[b]].score
	})

	suppressed := make([]bool, len(cands))
	keep := make([]int, 0, len(cands))
	for pi, i := range order {
		if suppressed[i] {
			continue
		}
		keep = append(keep, i)
		if len(keep) >= cfg.MaxDetections {
			break
		}
		for _, j := range order[pi+1:] {
			if suppressed[j] {
				continue
			}
			if boxes.IoU(cands[i].offset, cands[j].offset) > cfg.IoUThreshold {
				suppressed[j] = true
			}
		}
	}
	return keep
}

// mergeKept refines each kept box to the score-weighted average of all
// candidates overlapping it. The overlap scan runs through a spatial
// index over the class-offset boxes, so only same-class neighbors can
// contribute. A non-empty reason reports an abandoned merge; the caller
// falls back to the unmerged boxes.
func mergeKept(cands []candidate, keep []int, cfg Config) ([]Result, string) {
	fb := flatbush.NewFlatbush[float32]()
	fb.Reserve(len(cands))
	for _, c := range cands {
		fb.Add(c.offset[0], c.offset[1], c.offset[2], c.offset[3])
	}
	fb.Finish()

	out := make([]Result, 0, len(keep))
	for _, k := range keep {
		kc := cands[k]
		var wsum float32
		var acc [4]float32
		overlaps := 0
		for _, j := range fb.Search(kc.offset[0], kc.offset[1], kc.offset[2], kc.offset[3]) {
			if boxes.IoU(kc.offset, cands[j].offset) <= cfg.IoUThreshold {
				continue
			}
			w := cands[j].score
			wsum += w
			for d := 0; d < 4; d++ {
				acc[d] += w * cands[j].box[d]
			}
			overlaps++
		}
		if wsum <= 0 || math32.IsNaN(wsum) || math32.IsInf(wsum, 0) {
			return nil, "degenerate merge weights: zero-area or non-finite candidate"
		}
		if cfg.RequireRedundant && overlaps <= 1 {
			continue
		}
		out = append(out, Result{
			Box:   boxes.Box{acc[0] / wsum, acc[1] / wsum, acc[2] / wsum, acc[3] / wsum},
			Score: kc.score,
			Class: kc.class,
		})
	}
	return out, ""
}

func plainResults(cands []candidate, keep []int) []Result {
	out := make([]Result, 0, len(keep))
	for _, k := range keep {
		out = append(out, Result{Box: cands[k].box, Score: cands[k].score, Class: cands[k].class})
	}
	return out
}
