package onnx

import (
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-yolo/models"
)

// Config describes one OpenCV-DNN detector.
type Config struct {
	// ModelPath is an ONNX export with the decode layer included, so
	// forward output rows arrive as (x, y, w, h, objectness, classes...).
	ModelPath string `json:"modelPath" yaml:"modelPath"`
	// InputSize is the square letterbox edge in pixels. Zero means 640.
	InputSize int `json:"inputSize" yaml:"inputSize"`
	// Family is the label namespace class indices resolve against.
	// Empty means the zero-based 80-class namespace.
	Family models.ModelFamily `json:"family" yaml:"family"`
	// ConfThreshold drops candidates whose objectness times class score
	// does not exceed it. Zero means 0.25.
	ConfThreshold float32 `json:"confThreshold" yaml:"confThreshold"`
	// IoUThreshold is the overlap above which a lower-scored box is
	// suppressed. Zero means 0.45.
	IoUThreshold float32 `json:"iouThreshold" yaml:"iouThreshold"`
	// RelevantClasses are the label names IsRelevantClass reports true
	// for. Empty treats every class as relevant.
	RelevantClasses []string `json:"relevantClasses,omitempty" yaml:"relevantClasses,omitempty"`
	// Backend selects the DNN compute backend.
	Backend gocv.NetBackendType `json:"backend" yaml:"backend"`
	// Target selects the DNN compute device.
	Target gocv.NetTargetType `json:"target" yaml:"target"`
}

// DefaultConfig returns settings for interactive detection on CPU.
func DefaultConfig() Config {
	return Config{
		InputSize:     640,
		Family:        models.ModelFamilyYOLO,
		ConfThreshold: 0.25,
		IoUThreshold:  0.45,
	}
}
