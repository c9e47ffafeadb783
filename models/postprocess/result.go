package postprocess

import "github.com/nvr-ai/go-yolo/boxes"

// Result represents a single detection surviving suppression.
type Result struct {
	// The bounding box in corner form, input-image pixels.
	Box boxes.Box `json:"box"`
	// The confidence score: objectness times class score.
	Score float32 `json:"score"`
	// The predicted class index.
	Class int `json:"class"`
}

// MergeFallback records an image whose merge refinement was abandoned.
// The image keeps its plain suppression output.
type MergeFallback struct {
	Image  int    `json:"image"`
	Reason string `json:"reason"`
}

// BatchResult is the outcome of one suppression pass over a batch.
type BatchResult struct {
	// Images holds one result slice per input image; nil marks an image
	// with no surviving boxes.
	Images [][]Result `json:"images"`
	// TruncatedAt is the index of the first image skipped because the
	// time budget expired, or -1 when every image was processed.
	TruncatedAt int `json:"truncated_at"`
	// MergeFallbacks lists images whose merge pass could not complete.
	MergeFallbacks []MergeFallback `json:"merge_fallbacks,omitempty"`
}

// Truncated reports whether the time budget cut the batch short.
func (r *BatchResult) Truncated() bool { return r.TruncatedAt >= 0 }

// Count returns the total detections across the batch.
func (r *BatchResult) Count() int {
	n := 0
	for _, d := range r.Images {
		n += len(d)
	}
	return n
}
