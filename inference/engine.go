// Package inference - Inference engine interface and implementations.
package inference

import (
	"context"
	"image"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-yolo/inference/providers"
	"github.com/nvr-ai/go-yolo/models"
	"github.com/nvr-ai/go-yolo/models/postprocess"
)

// Engine defines the interface for detection engines.
type Engine interface {
	Predict(ctx context.Context, img image.Image) ([]postprocess.Result, error)
	Close() error
}

// EngineBuilder assembles a detector step by step with a fluent API. The
// first error stops the chain; Build reports it.
type EngineBuilder struct {
	config      Config
	hasProvider bool
	hasModel    bool
	err         error
}

// NewEngineBuilder creates a new engine builder.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{}
}

// WithProvider sets the execution provider and session tuning.
//
// Arguments:
//   - config: The provider configuration to use for the engine.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithProvider(config providers.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if _, err := config.Provider(); err != nil {
		b.err = err
		return b
	}
	b.config.Provider = config
	b.hasProvider = true
	return b
}

// WithModel sets the model file and its head geometry.
//
// Arguments:
//   - path: The path to the ONNX model file.
//   - variant: The registered head geometry the weights assume.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithModel(path string, variant models.Variant) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if path == "" {
		b.err = errors.New("model path is required")
		return b
	}
	if _, ok := models.Lookup(variant); !ok {
		b.err = errors.Errorf("unknown model variant %q", variant)
		return b
	}
	b.config.ModelPath = path
	b.config.Variant = variant
	b.hasModel = true
	return b
}

// WithRawHead marks the model as a raw multi-scale export whose grid and
// anchor transform runs on this side of the graph.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithRawHead() *EngineBuilder {
	b.config.RawHead = true
	return b
}

// WithClasses overrides the class count of the trained weights.
//
// Arguments:
//   - numClasses: The class count, e.g. 80 for COCO weights.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithClasses(numClasses int) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if numClasses < 1 {
		b.err = errors.Errorf("class count must be positive, got %d", numClasses)
		return b
	}
	b.config.NumClasses = numClasses
	return b
}

// WithPostprocess sets the suppression configuration.
//
// Arguments:
//   - config: The suppression configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithPostprocess(config postprocess.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.config.Postprocess = config
	return b
}

// HasError checks if the engine builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// Build builds the engine.
//
// Returns:
//   - Engine: The engine.
//   - error: The error if any.
func (b *EngineBuilder) Build() (Engine, error) {
	if b.HasError() {
		return nil, b.err
	}
	if !b.hasProvider {
		return nil, errors.New("provider not configured")
	}
	if !b.hasModel {
		return nil, errors.New("model not configured")
	}
	return NewDetector(b.config)
}

// MustBuild builds the engine and panics if there is an error.
//
// Returns:
//   - Engine: The engine.
func (b *EngineBuilder) MustBuild() Engine {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}
