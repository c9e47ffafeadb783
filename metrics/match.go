package metrics

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-yolo/boxes"
	"github.com/nvr-ai/go-yolo/models/postprocess"
)

// GroundTruth is one labeled box for evaluation, corner form.
type GroundTruth struct {
	Box   boxes.Box `json:"box"`
	Class int       `json:"class"`
}

// COCOIoUThresholds returns the ten standard thresholds 0.50:0.05:0.95.
func COCOIoUThresholds() []float64 {
	out := make([]float64, 10)
	for i := range out {
		out[i] = 0.5 + 0.05*float64(i)
	}
	return out
}

// MatchDetections builds the true-positive matrix APPerClass consumes.
//
// Per IoU threshold, detections claim ground-truth boxes greedily in
// descending confidence order: a detection is a true positive when its
// best-overlapping unclaimed ground truth of the same class reaches the
// threshold, and that ground truth then backs no further detection.
// Rows align with the detections slice, not the confidence ranking.
func MatchDetections(dets []postprocess.Result, truths []GroundTruth, thresholds []float64) ([][]bool, error) {
	if len(thresholds) == 0 {
		return nil, errors.New("metrics: no IoU thresholds")
	}
	order := make([]int, len(dets))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return dets[order[a]].Score > dets[order[b]].Score
	})

	tp := make([][]bool, len(dets))
	for i := range tp {
		tp[i] = make([]bool, len(thresholds))
	}
	for ti, thr := range thresholds {
		claimed := make([]bool, len(truths))
		for _, i := range order {
			best := -1
			bestIoU := 0.0
			for g, gt := range truths {
				if claimed[g] || gt.Class != dets[i].Class {
					continue
				}
				iou := float64(boxes.IoU(dets[i].Box, gt.Box))
				if iou > bestIoU {
					bestIoU, best = iou, g
				}
			}
			if best >= 0 && bestIoU >= thr {
				tp[i][ti] = true
				claimed[best] = true
			}
		}
	}
	return tp, nil
}
