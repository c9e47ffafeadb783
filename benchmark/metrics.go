// Package benchmark - timed sweeps of detector configurations over an
// image corpus, with optional accuracy scoring against ground truth.
package benchmark

import (
	"sort"
	"time"

	"github.com/nvr-ai/go-yolo/inference/providers"
)

// PerformanceMetrics captures the outcome of one scenario run.
type PerformanceMetrics struct {
	Scenario  Scenario  `json:"scenario" yaml:"scenario"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	// Iterations counts attempted frames, including failed ones.
	Iterations        int           `json:"iterations" yaml:"iterations"`
	TotalDuration     time.Duration `json:"total_duration" yaml:"total_duration"`
	DecodeDuration    time.Duration `json:"decode_duration" yaml:"decode_duration"`
	InferenceDuration time.Duration `json:"inference_duration" yaml:"inference_duration"`
	FramesPerSecond   float64       `json:"frames_per_second" yaml:"frames_per_second"`

	Latency LatencyMetrics `json:"latency" yaml:"latency"`
	Memory  MemoryMetrics  `json:"memory" yaml:"memory"`
	CPU     CPUMetrics     `json:"cpu" yaml:"cpu"`

	DetectionCount int `json:"detection_count" yaml:"detection_count"`
	// SceneDensity is the mean density score of all successful frames,
	// a proxy for how crowded the benchmark footage is.
	SceneDensity float64 `json:"scene_density" yaml:"scene_density"`
	ErrorRate    float64 `json:"error_rate" yaml:"error_rate"`

	ShapeStats *providers.OptimizerStats `json:"shape_stats,omitempty" yaml:"shape_stats,omitempty"`
	Accuracy   *AccuracyMetrics          `json:"accuracy,omitempty" yaml:"accuracy,omitempty"`
}

// LatencyMetrics summarizes per-inference wall time in milliseconds.
type LatencyMetrics struct {
	AverageMs float64 `json:"average_ms" yaml:"average_ms"`
	MinMs     float64 `json:"min_ms" yaml:"min_ms"`
	MaxMs     float64 `json:"max_ms" yaml:"max_ms"`
	P50Ms     float64 `json:"p50_ms" yaml:"p50_ms"`
	P95Ms     float64 `json:"p95_ms" yaml:"p95_ms"`
	P99Ms     float64 `json:"p99_ms" yaml:"p99_ms"`
}

// MemoryMetrics captures heap statistics around a scenario run. The
// TotalAllocBytes and NumGC fields are deltas over the run; the rest are
// end-of-run readings.
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes" yaml:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes" yaml:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes" yaml:"sys_bytes"`
	NumGC           uint32 `json:"num_gc" yaml:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes" yaml:"heap_alloc_bytes"`
	HeapSysBytes    uint64 `json:"heap_sys_bytes" yaml:"heap_sys_bytes"`
}

// CPUMetrics captures scheduler-level readings at the end of a run.
type CPUMetrics struct {
	NumCPU     int `json:"num_cpu" yaml:"num_cpu"`
	Goroutines int `json:"goroutines" yaml:"goroutines"`
}

// AccuracyMetrics scores a scenario's detections against ground truth.
type AccuracyMetrics struct {
	MAP50           float64 `json:"map_50" yaml:"map_50"`
	MAP             float64 `json:"map_50_95" yaml:"map_50_95"`
	MeanPrecision   float64 `json:"mean_precision" yaml:"mean_precision"`
	MeanRecall      float64 `json:"mean_recall" yaml:"mean_recall"`
	Fitness         float64 `json:"fitness" yaml:"fitness"`
	EvaluatedImages int     `json:"evaluated_images" yaml:"evaluated_images"`
	GroundTruths    int     `json:"ground_truths" yaml:"ground_truths"`
}

// latencyStats reduces a sample series to summary statistics.
func latencyStats(samples []float64) LatencyMetrics {
	if len(samples) == 0 {
		return LatencyMetrics{}
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return LatencyMetrics{
		AverageMs: sum / float64(len(sorted)),
		MinMs:     sorted[0],
		MaxMs:     sorted[len(sorted)-1],
		P50Ms:     percentile(sorted, 0.50),
		P95Ms:     percentile(sorted, 0.95),
		P99Ms:     percentile(sorted, 0.99),
	}
}

// percentile linearly interpolates the q-quantile of an ascending
// series. q must be in [0, 1].
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}
