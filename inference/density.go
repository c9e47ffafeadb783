// Package inference - scene density analysis over detection results.
package inference

import (
	"image"
	"math"
	"sort"
	"sync"

	"github.com/nvr-ai/go-yolo/boxes"
	"github.com/nvr-ai/go-yolo/models/postprocess"
)

// DensityEstimator is an interface for estimating object density in frames.
//
// Implementations analyze the spatial distribution and characteristics of
// detected objects to determine scene complexity and density.
type DensityEstimator interface {
	EstimateDensity(detections []postprocess.Result) (int, error)
	GetDensityMetrics(detections []postprocess.Result) (*DensityMetrics, error)
}

// DensityMetrics provides detailed analysis of object density and
// distribution: spatial spread, size statistics, and clustering.
type DensityMetrics struct {
	// TotalObjects is the total number of detected objects.
	TotalObjects int `json:"totalObjects"`

	// SmallObjects is the count of objects below the small object threshold.
	SmallObjects int `json:"smallObjects"`

	// LargeObjects is the count of objects above the large object threshold.
	LargeObjects int `json:"largeObjects"`

	// AverageObjectSize is the mean bounding box area of all objects.
	AverageObjectSize float64 `json:"averageObjectSize"`

	// ObjectSizeVariance measures the spread in object sizes.
	ObjectSizeVariance float64 `json:"objectSizeVariance"`

	// SpatialDensity measures objects per 1000 pixels of frame area.
	SpatialDensity float64 `json:"spatialDensity"`

	// ClusteringCoefficient measures how clustered objects are (0-1 scale).
	ClusteringCoefficient float64 `json:"clusteringCoefficient"`

	// OverlapRatio is the fraction of objects that overlap with others.
	OverlapRatio float64 `json:"overlapRatio"`

	// CenterOfMass is the mean center point of all detections.
	CenterOfMass image.Point `json:"centerOfMass"`

	// BoundingRegion contains all detections.
	BoundingRegion image.Rectangle `json:"boundingRegion"`

	// ConfidenceDistribution provides statistics on detection confidence.
	ConfidenceDistribution ConfidenceStats `json:"confidenceDistribution"`
}

// ConfidenceStats provides statistical analysis of detection confidence scores.
type ConfidenceStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"stdDev"`
}

// DensityEstimationConfig contains parameters for density estimation.
type DensityEstimationConfig struct {
	// MinBoxArea defines the minimum area for an object to be considered
	// significant; smaller boxes count as small objects.
	MinBoxArea int `json:"minBoxArea" yaml:"minBoxArea"`

	// LargeObjectThreshold defines the area above which objects are large.
	LargeObjectThreshold int `json:"largeObjectThreshold" yaml:"largeObjectThreshold"`

	// ClusteringRadius defines the center distance below which a pair of
	// objects counts as clustered.
	ClusteringRadius float64 `json:"clusteringRadius" yaml:"clusteringRadius"`

	// OverlapThreshold defines the IoU threshold for overlap detection.
	OverlapThreshold float64 `json:"overlapThreshold" yaml:"overlapThreshold"`

	// FrameArea is the total frame area for spatial density calculations.
	FrameArea int `json:"frameArea" yaml:"frameArea"`

	// EnableAdvancedMetrics toggles the quadratic clustering and overlap
	// passes.
	EnableAdvancedMetrics bool `json:"enableAdvancedMetrics" yaml:"enableAdvancedMetrics"`

	// WeightedByConfidence weights the object count by detection score.
	WeightedByConfidence bool `json:"weightedByConfidence" yaml:"weightedByConfidence"`
}

// DefaultDensityEstimationConfig returns a default configuration tuned for
// a 640x640 network canvas.
func DefaultDensityEstimationConfig() DensityEstimationConfig {
	return DensityEstimationConfig{
		MinBoxArea:            500,
		LargeObjectThreshold:  5000,
		ClusteringRadius:      100.0,
		OverlapThreshold:      0.3,
		FrameArea:             640 * 640,
		EnableAdvancedMetrics: true,
		WeightedByConfidence:  true,
	}
}

// DefaultDensityEstimator provides multi-factor object density analysis.
//
// The estimator combines object count, size distribution, clustering, and
// confidence patterns into metrics suitable for scene complexity
// assessment and benchmark reporting.
type DefaultDensityEstimator struct {
	config DensityEstimationConfig
	mu     sync.RWMutex
}

// NewDensityEstimator creates a new density estimator.
//
// Arguments:
//   - config: Configuration parameters for density estimation.
//
// Returns:
//   - *DefaultDensityEstimator: The initialized density estimator.
func NewDensityEstimator(config DensityEstimationConfig) *DefaultDensityEstimator {
	return &DefaultDensityEstimator{
		config: config,
	}
}

// EstimateDensity folds the density metrics into a single score.
//
// The score combines object count, small-object pressure, clustering, and
// overlap, so crowded scenes with many small boxes rank above sparse
// scenes with a few large ones.
//
// Arguments:
//   - detections: The list of object detections to analyze.
//
// Returns:
//   - int: Density score (typically 0-20+).
//   - error: An error if density estimation fails.
func (e *DefaultDensityEstimator) EstimateDensity(detections []postprocess.Result) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(detections) == 0 {
		return 0, nil
	}

	metrics := e.calculateDensityMetrics(detections)

	var score float64
	if e.config.WeightedByConfidence {
		for _, detection := range detections {
			score += float64(detection.Score)
		}
	} else {
		score = float64(len(detections))
	}

	// Small objects make scenes harder; clustering and overlap compound it.
	score += float64(metrics.SmallObjects) * 1.5
	score += metrics.ClusteringCoefficient * 2.0
	score += metrics.OverlapRatio * 3.0
	score += metrics.SpatialDensity * 0.1

	return int(math.Round(score)), nil
}

// GetDensityMetrics provides comprehensive density analysis.
//
// Arguments:
//   - detections: The list of object detections to analyze.
//
// Returns:
//   - *DensityMetrics: Comprehensive density analysis results.
//   - error: An error if analysis fails.
func (e *DefaultDensityEstimator) GetDensityMetrics(
	detections []postprocess.Result,
) (*DensityMetrics, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.calculateDensityMetrics(detections), nil
}

// calculateDensityMetrics performs the core density calculations.
func (e *DefaultDensityEstimator) calculateDensityMetrics(
	detections []postprocess.Result,
) *DensityMetrics {
	metrics := &DensityMetrics{
		TotalObjects: len(detections),
	}

	if len(detections) == 0 {
		return metrics
	}

	e.calculateObjectSizeMetrics(detections, metrics)
	e.calculateConfidenceMetrics(detections, metrics)
	e.calculateSpatialMetrics(detections, metrics)

	if e.config.EnableAdvancedMetrics {
		e.calculateClusteringMetrics(detections, metrics)
		e.calculateOverlapMetrics(detections, metrics)
	}

	return metrics
}

// calculateObjectSizeMetrics analyzes the object size distribution.
func (e *DefaultDensityEstimator) calculateObjectSizeMetrics(
	detections []postprocess.Result,
	metrics *DensityMetrics,
) {
	var totalArea, sumSquaredDiff float64
	areas := make([]float64, len(detections))

	for i, detection := range detections {
		area := float64(detection.Box.Area())
		areas[i] = area
		totalArea += area

		if area < float64(e.config.MinBoxArea) {
			metrics.SmallObjects++
		}
		if area > float64(e.config.LargeObjectThreshold) {
			metrics.LargeObjects++
		}
	}

	metrics.AverageObjectSize = totalArea / float64(len(detections))

	for _, area := range areas {
		diff := area - metrics.AverageObjectSize
		sumSquaredDiff += diff * diff
	}
	metrics.ObjectSizeVariance = sumSquaredDiff / float64(len(detections))
}

// calculateConfidenceMetrics analyzes the confidence distribution.
func (e *DefaultDensityEstimator) calculateConfidenceMetrics(
	detections []postprocess.Result,
	metrics *DensityMetrics,
) {
	confidences := make([]float64, len(detections))
	var sum float64

	for i, detection := range detections {
		confidences[i] = float64(detection.Score)
		sum += float64(detection.Score)
	}

	sort.Float64s(confidences)

	stats := &metrics.ConfidenceDistribution
	stats.Mean = sum / float64(len(detections))
	stats.Min = confidences[0]
	stats.Max = confidences[len(confidences)-1]

	if len(confidences)%2 == 0 {
		stats.Median = (confidences[len(confidences)/2-1] + confidences[len(confidences)/2]) / 2
	} else {
		stats.Median = confidences[len(confidences)/2]
	}

	var sumSquaredDiff float64
	for _, conf := range confidences {
		diff := conf - stats.Mean
		sumSquaredDiff += diff * diff
	}
	stats.StdDev = math.Sqrt(sumSquaredDiff / float64(len(confidences)))
}

// calculateSpatialMetrics analyzes the spatial distribution of objects.
func (e *DefaultDensityEstimator) calculateSpatialMetrics(
	detections []postprocess.Result,
	metrics *DensityMetrics,
) {
	var sumX, sumY float32
	minX, minY := float32(math.MaxFloat32), float32(math.MaxFloat32)
	maxX, maxY := float32(-math.MaxFloat32), float32(-math.MaxFloat32)

	for _, detection := range detections {
		sumX += (detection.Box[0] + detection.Box[2]) / 2
		sumY += (detection.Box[1] + detection.Box[3]) / 2

		minX = min(minX, detection.Box[0])
		minY = min(minY, detection.Box[1])
		maxX = max(maxX, detection.Box[2])
		maxY = max(maxY, detection.Box[3])
	}

	n := float32(len(detections))
	metrics.CenterOfMass = image.Point{X: int(sumX / n), Y: int(sumY / n)}
	metrics.BoundingRegion = image.Rect(int(minX), int(minY), int(maxX), int(maxY))

	if e.config.FrameArea > 0 {
		metrics.SpatialDensity = float64(len(detections)) / float64(e.config.FrameArea) * 1000.0
	}
}

// calculateClusteringMetrics measures how clustered objects are in space.
func (e *DefaultDensityEstimator) calculateClusteringMetrics(
	detections []postprocess.Result,
	metrics *DensityMetrics,
) {
	if len(detections) < 2 {
		return
	}

	totalPairs := 0
	clusteredPairs := 0

	for i := 0; i < len(detections); i++ {
		cxi := float64(detections[i].Box[0]+detections[i].Box[2]) / 2
		cyi := float64(detections[i].Box[1]+detections[i].Box[3]) / 2

		for j := i + 1; j < len(detections); j++ {
			cxj := float64(detections[j].Box[0]+detections[j].Box[2]) / 2
			cyj := float64(detections[j].Box[1]+detections[j].Box[3]) / 2

			distance := math.Hypot(cxi-cxj, cyi-cyj)

			totalPairs++
			if distance <= e.config.ClusteringRadius {
				clusteredPairs++
			}
		}
	}

	if totalPairs > 0 {
		metrics.ClusteringCoefficient = float64(clusteredPairs) / float64(totalPairs)
	}
}

// calculateOverlapMetrics measures the fraction of overlapping objects.
func (e *DefaultDensityEstimator) calculateOverlapMetrics(
	detections []postprocess.Result,
	metrics *DensityMetrics,
) {
	if len(detections) < 2 {
		return
	}

	overlapping := 0
	for i := 0; i < len(detections); i++ {
		for j := i + 1; j < len(detections); j++ {
			if boxes.IoU(detections[i].Box, detections[j].Box) >= float32(e.config.OverlapThreshold) {
				overlapping++
				break
			}
		}
	}

	metrics.OverlapRatio = float64(overlapping) / float64(len(detections))
}

// GetConfig returns the current density estimation configuration.
func (e *DefaultDensityEstimator) GetConfig() DensityEstimationConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config
}

// UpdateConfig replaces the density estimation configuration.
func (e *DefaultDensityEstimator) UpdateConfig(config DensityEstimationConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config = config
}

// StandardDensityEstimator provides basic object counting for density
// estimation, ignoring spatial structure entirely.
type StandardDensityEstimator struct {
	MinBoxArea int
}

// EstimateDensity counts objects meeting the minimum size requirement.
//
// Arguments:
//   - detections: The detections to analyze.
//
// Returns:
//   - int: Count of objects meeting the minimum size requirement.
//   - error: An error if estimation fails.
func (s *StandardDensityEstimator) EstimateDensity(detections []postprocess.Result) (int, error) {
	count := 0
	for _, d := range detections {
		if float64(d.Box.Area()) >= float64(s.MinBoxArea) {
			count++
		}
	}
	return count, nil
}

// GetDensityMetrics provides basic metrics for the standard estimator.
//
// Arguments:
//   - detections: The detections to analyze.
//
// Returns:
//   - *DensityMetrics: Basic density metrics.
//   - error: An error if analysis fails.
func (s *StandardDensityEstimator) GetDensityMetrics(
	detections []postprocess.Result,
) (*DensityMetrics, error) {
	metrics := &DensityMetrics{
		TotalObjects: len(detections),
	}

	validObjects := 0
	var totalArea float64

	for _, detection := range detections {
		area := float64(detection.Box.Area())
		if area >= float64(s.MinBoxArea) {
			validObjects++
			totalArea += area
		}
	}

	if validObjects > 0 {
		metrics.AverageObjectSize = totalArea / float64(validObjects)
	}

	return metrics, nil
}
