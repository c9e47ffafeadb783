// Package engines - scenario-to-engine adapters for the benchmark suite.
package engines

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-yolo/benchmark"
	"github.com/nvr-ai/go-yolo/boxes"
	"github.com/nvr-ai/go-yolo/inference"
	"github.com/nvr-ai/go-yolo/inference/providers"
	"github.com/nvr-ai/go-yolo/models"
	"github.com/nvr-ai/go-yolo/models/postprocess"
	"github.com/nvr-ai/go-yolo/onnx"
)

// ForScenario returns a factory that dispatches each scenario to its
// engine: onnxruntime scenarios build an inference.Detector on the given
// provider, opencv-dnn scenarios build an onnx.Detector behind a
// GoCVEngine adapter.
func ForScenario(provider providers.Config) benchmark.EngineFactory {
	return func(scenario benchmark.Scenario) (inference.Engine, error) {
		switch scenario.Engine {
		case inference.EngineOpenCVDNN:
			config := onnx.Config{
				ModelPath:     scenario.ModelPath,
				Family:        models.ModelFamilyYOLO,
				ConfThreshold: scenario.Postprocess.ConfThreshold,
				IoUThreshold:  scenario.Postprocess.IoUThreshold,
			}
			if spec, ok := models.Lookup(scenario.Variant); ok {
				config.InputSize = spec.InputSize
			}
			return NewGoCVEngine(config)
		case inference.EngineONNXRuntime, "":
			builder := inference.NewEngineBuilder().
				WithProvider(provider).
				WithModel(scenario.ModelPath, scenario.Variant).
				WithPostprocess(scenario.Postprocess)
			if scenario.RawHead {
				builder = builder.WithRawHead()
			}
			return builder.Build()
		default:
			return nil, errors.Errorf("engines: unknown engine type %q", scenario.Engine)
		}
	}
}

// GoCVEngine adapts the OpenCV DNN detector to the engine interface so
// the suite can time both runtimes through one code path.
type GoCVEngine struct {
	detector *onnx.Detector
}

// NewGoCVEngine builds the adapter around a freshly initialized
// detector.
func NewGoCVEngine(config onnx.Config) (*GoCVEngine, error) {
	detector, err := onnx.NewDetector(config)
	if err != nil {
		return nil, err
	}
	return &GoCVEngine{detector: detector}, nil
}

// Predict converts the frame to a Mat, runs the detector, and maps its
// detections back to postprocess results.
func (e *GoCVEngine) Predict(ctx context.Context, img image.Image) ([]postprocess.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, errors.Wrap(err, "engines: converting frame to mat")
	}
	defer mat.Close()

	detections, err := e.detector.Detect(mat)
	if err != nil {
		return nil, err
	}

	results := make([]postprocess.Result, len(detections))
	for i, d := range detections {
		results[i] = postprocess.Result{
			Box: boxes.Box{
				float32(d.Box.Min.X),
				float32(d.Box.Min.Y),
				float32(d.Box.Max.X),
				float32(d.Box.Max.Y),
			},
			Score: d.Score,
			Class: d.ClassID,
		}
	}
	return results, nil
}

// Close releases the underlying network.
func (e *GoCVEngine) Close() error {
	return e.detector.Close()
}
