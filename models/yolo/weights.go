package yolo

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ClassWeights derives inverse-frequency class weights from a
// ground-truth tensor, for samplers that want to favor rare classes.
// Empty bins count as one occurrence so every class keeps a finite
// weight, and the result is normalized to sum to 1.
func ClassWeights(targets *tensor.Dense, nc int) ([]float32, error) {
	if nc < 1 {
		return nil, errors.Errorf("weights: nc %d, want >= 1", nc)
	}
	rows, err := targetRows(targets)
	if err != nil {
		return nil, err
	}
	counts := make([]float32, nc)
	for i, r := range rows {
		c := int(r[1])
		if c < 0 || c >= nc {
			return nil, errors.Errorf("weights: row %d has class %d, want [0, %d)", i, c, nc)
		}
		counts[c]++
	}
	var sum float32
	for i := range counts {
		if counts[i] == 0 {
			counts[i] = 1
		}
		counts[i] = 1 / counts[i]
		sum += counts[i]
	}
	for i := range counts {
		counts[i] /= sum
	}
	return counts, nil
}

// ImageWeights scores every image in the batch by the summed class
// weights of its labels, the sampling signal used to revisit images
// holding rare classes more often.
func ImageWeights(targets *tensor.Dense, numImages, nc int, classWeights []float32) ([]float32, error) {
	if numImages < 1 {
		return nil, errors.Errorf("weights: numImages %d, want >= 1", numImages)
	}
	if len(classWeights) != nc {
		return nil, errors.Errorf("weights: %d class weights for %d classes", len(classWeights), nc)
	}
	rows, err := targetRows(targets)
	if err != nil {
		return nil, err
	}
	out := make([]float32, numImages)
	for i, r := range rows {
		img := int(r[0])
		c := int(r[1])
		if img < 0 || img >= numImages {
			return nil, errors.Errorf("weights: row %d has image %d, want [0, %d)", i, img, numImages)
		}
		if c < 0 || c >= nc {
			return nil, errors.Errorf("weights: row %d has class %d, want [0, %d)", i, c, nc)
		}
		out[img] += classWeights[c]
	}
	return out, nil
}
