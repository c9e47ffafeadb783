// Package providers - ONNX Runtime session tuning and shape profiling.
package providers

import (
	"fmt"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ShapeProfile defines min, max, and optimal input shapes for dynamic models.
//
// Profiles give the runtime a usable range for memory planning and let the
// shape optimizer report how much traffic stays inside the tuned window.
type ShapeProfile struct {
	// InputName is the name of the input tensor.
	InputName string `json:"inputName" yaml:"inputName"`

	// MinShape defines the minimum dimensions [batch, channels, height, width].
	MinShape []int64 `json:"minShape" yaml:"minShape"`

	// MaxShape defines the maximum dimensions [batch, channels, height, width].
	MaxShape []int64 `json:"maxShape" yaml:"maxShape"`

	// OptimalShape defines the most common dimensions for optimization.
	OptimalShape []int64 `json:"optimalShape" yaml:"optimalShape"`
}

// OptimizationConfig contains the ONNX Runtime session tuning knobs.
//
// Every field maps onto a call on ort.SessionOptions; there are no
// write-only settings.
type OptimizationConfig struct {
	// GraphOptimizationLevel controls the level of graph optimization.
	GraphOptimizationLevel ort.GraphOptimizationLevel `json:"graphOptimizationLevel" yaml:"graphOptimizationLevel"`

	// Sequential runs operators one at a time instead of in parallel.
	// Lower jitter, lower throughput.
	Sequential bool `json:"sequential" yaml:"sequential"`

	// IntraOpNumThreads sets threads for parallelizing individual ops.
	// Zero keeps the runtime default.
	IntraOpNumThreads int `json:"intraOpNumThreads" yaml:"intraOpNumThreads"`

	// InterOpNumThreads sets threads for running independent ops
	// concurrently. Zero keeps the runtime default.
	InterOpNumThreads int `json:"interOpNumThreads" yaml:"interOpNumThreads"`

	// ShapeProfiles defines input shape ranges for dynamic models.
	ShapeProfiles []ShapeProfile `json:"shapeProfiles,omitempty" yaml:"shapeProfiles,omitempty"`
}

// DefaultOptimizationConfig returns session tuning suited to most hosts:
// extended graph optimization, parallel execution, and thread pools sized
// from the machine's core count.
func DefaultOptimizationConfig() OptimizationConfig {
	numCPU := runtime.NumCPU()

	return OptimizationConfig{
		GraphOptimizationLevel: ort.GraphOptimizationLevelEnableExtended,
		IntraOpNumThreads:      max(1, numCPU/2),
		InterOpNumThreads:      max(1, numCPU/4),
		ShapeProfiles: []ShapeProfile{
			{
				InputName:    "images",
				MinShape:     []int64{1, 3, 320, 320},
				MaxShape:     []int64{1, 3, 1024, 1024},
				OptimalShape: []int64{1, 3, 640, 640},
			},
		},
	}
}

// OptimizedSessionOptions builds ort.SessionOptions from the tuning config.
// The execution provider is appended separately via ExecutionProvider.Apply.
// The caller owns the returned options and must Destroy them.
func OptimizedSessionOptions(config OptimizationConfig) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}

	if err := options.SetGraphOptimizationLevel(config.GraphOptimizationLevel); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("failed to set graph optimization level: %w", err)
	}

	mode := ort.ExecutionModeParallel
	if config.Sequential {
		mode = ort.ExecutionModeSequential
	}
	if err := options.SetExecutionMode(mode); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("failed to set execution mode: %w", err)
	}

	if err := options.SetIntraOpNumThreads(config.IntraOpNumThreads); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(config.InterOpNumThreads); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("failed to set inter-op threads: %w", err)
	}

	return options, nil
}

// DynamicShapeOptimizer tracks the input shapes a session actually sees.
//
// Observations feed benchmark reports: how many unique shapes showed up,
// how expensive each one was, and how much of the traffic stayed inside
// the tuned profile window.
type DynamicShapeOptimizer struct {
	shapeProfiles    []ShapeProfile
	observedShapes   map[string][]ShapeObservation
	mu               sync.RWMutex
	optimizationHits int64
	totalInferences  int64
}

// ShapeObservation records aggregate timing for one observed input shape.
type ShapeObservation struct {
	Shape     []int64 `json:"shape" yaml:"shape"`
	Count     int64   `json:"count" yaml:"count"`
	AvgTimeMs float64 `json:"avgTimeMs" yaml:"avgTimeMs"`
}

// InputShapeStats summarizes all observations for a single input tensor.
type InputShapeStats struct {
	UniqueShapes    int     `json:"uniqueShapes" yaml:"uniqueShapes"`
	TotalInferences int64   `json:"totalInferences" yaml:"totalInferences"`
	FastestMs       float64 `json:"fastestMs" yaml:"fastestMs"`
	SlowestMs       float64 `json:"slowestMs" yaml:"slowestMs"`
}

// OptimizerStats reports how well observed traffic matched the shape profiles.
type OptimizerStats struct {
	TotalInferences  int64                      `json:"totalInferences" yaml:"totalInferences"`
	OptimizationHits int64                      `json:"optimizationHits" yaml:"optimizationHits"`
	HitRate          float64                    `json:"hitRate" yaml:"hitRate"`
	Inputs           map[string]InputShapeStats `json:"inputs" yaml:"inputs"`
}

// NewDynamicShapeOptimizer creates a shape optimizer seeded with the given
// profiles.
func NewDynamicShapeOptimizer(profiles []ShapeProfile) *DynamicShapeOptimizer {
	return &DynamicShapeOptimizer{
		shapeProfiles:  profiles,
		observedShapes: make(map[string][]ShapeObservation),
	}
}

// ObserveShape records one inference against an input shape.
//
// Arguments:
//   - inputName: Name of the input tensor
//   - shape: Observed shape dimensions
//   - inferenceTimeMs: Time taken for inference with this shape
func (dso *DynamicShapeOptimizer) ObserveShape(inputName string, shape []int64, inferenceTimeMs float64) {
	dso.mu.Lock()
	defer dso.mu.Unlock()

	dso.totalInferences++

	observations := dso.observedShapes[inputName]
	found := false
	for i, obs := range observations {
		if shapeEqual(obs.Shape, shape) {
			observations[i].Count++
			observations[i].AvgTimeMs += (inferenceTimeMs - observations[i].AvgTimeMs) / float64(observations[i].Count)
			found = true
			break
		}
	}
	if !found {
		observations = append(observations, ShapeObservation{
			Shape:     append([]int64(nil), shape...),
			Count:     1,
			AvgTimeMs: inferenceTimeMs,
		})
	}
	dso.observedShapes[inputName] = observations

	for _, profile := range dso.shapeProfiles {
		if profile.InputName == inputName && shapeWithinBounds(shape, profile.MinShape, profile.MaxShape) {
			dso.optimizationHits++
			break
		}
	}
}

// Stats returns a snapshot of the observed shape traffic.
func (dso *DynamicShapeOptimizer) Stats() OptimizerStats {
	dso.mu.RLock()
	defer dso.mu.RUnlock()

	stats := OptimizerStats{
		TotalInferences:  dso.totalInferences,
		OptimizationHits: dso.optimizationHits,
		Inputs:           make(map[string]InputShapeStats, len(dso.observedShapes)),
	}
	if dso.totalInferences > 0 {
		stats.HitRate = float64(dso.optimizationHits) / float64(dso.totalInferences)
	}

	for inputName, observations := range dso.observedShapes {
		input := InputShapeStats{UniqueShapes: len(observations)}
		for i, obs := range observations {
			input.TotalInferences += obs.Count
			if i == 0 || obs.AvgTimeMs < input.FastestMs {
				input.FastestMs = obs.AvgTimeMs
			}
			if obs.AvgTimeMs > input.SlowestMs {
				input.SlowestMs = obs.AvgTimeMs
			}
		}
		stats.Inputs[inputName] = input
	}

	return stats
}

// shapeEqual compares two shape slices for equality.
func shapeEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}

// shapeWithinBounds checks if a shape falls within the specified bounds.
func shapeWithinBounds(shape, minShape, maxShape []int64) bool {
	if len(shape) != len(minShape) || len(shape) != len(maxShape) {
		return false
	}

	for i, dim := range shape {
		if dim < minShape[i] || dim > maxShape[i] {
			return false
		}
	}

	return true
}
