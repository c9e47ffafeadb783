// Package providers - ONNX Runtime session lifecycle.
package providers

import (
	"fmt"
	"os"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"
)

// Session owns a native ONNX Runtime session together with the preallocated
// input and output tensors it is bound to.
type Session struct {
	Session *ort.AdvancedSession
	Inputs  []*ort.Tensor[float32]
	Outputs []*ort.Tensor[float32]
}

// Run executes one inference over the bound tensors.
func (s *Session) Run() error {
	return s.Session.Run()
}

// Close releases the native session and every bound tensor.
func (s *Session) Close() error {
	for _, input := range s.Inputs {
		input.Destroy()
	}
	s.Inputs = nil

	for _, output := range s.Outputs {
		output.Destroy()
	}
	s.Outputs = nil

	if s.Session != nil {
		if err := s.Session.Destroy(); err != nil {
			return fmt.Errorf("error destroying ORT session: %w", err)
		}
		s.Session = nil
	}

	return nil
}

// NewSessionArgs describes the model file and tensor layout for a session.
type NewSessionArgs struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string
	// InputNames are the model's input node names. Defaults to ["images"].
	InputNames []string
	// OutputNames are the model's output node names. Defaults to ["output0"].
	OutputNames []string
	// InputShapes allocates one float32 tensor per input node, in the
	// [batch, channels, height, width] layout, e.g. {1, 3, 640, 640}.
	InputShapes [][]int64
	// OutputShapes allocates one float32 tensor per output node.
	OutputShapes [][]int64
	// Optimization tunes threading and graph rewrites for the session.
	Optimization OptimizationConfig
}

// NewSession creates an ONNX Runtime session with preallocated tensors.
//
// Order of operations:
//  1. Library path check: ensures the native runtime is accessible.
//  2. Environment setup: loads the native library once per process.
//  3. Tensor allocation: fixed-shape float32 buffers for inputs and outputs.
//  4. Session options: threading, graph optimization, execution provider.
//  5. Session creation: loads the model and binds the tensors for
//     zero-copy data exchange.
//
// The returned Session owns the tensors; Close releases everything.
//
// Arguments:
//   - provider: The execution provider to register with the session.
//   - args: The model path and tensor layout for the session.
//
// Returns:
//   - *Session: Wrapped native session plus its bound tensors.
//   - error: An error if any stage of session creation fails.
func NewSession(provider ExecutionProvider, args NewSessionArgs) (*Session, error) {
	// Check that the shared library exists before trying to load it.
	libPath, err := GetSharedLibPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(libPath); err != nil {
		return nil, fmt.Errorf("onnxruntime library not found at %s: %w", libPath, err)
	}

	ort.SetEnvironmentLogLevel(ort.LoggingLevelWarning)
	// Point ONNX Runtime at the exact shared library path (overrides default search).
	ort.SetSharedLibraryPath(libPath)

	// Required once per process; later sessions reuse the same environment.
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("error initializing ORT environment: %w", err)
		}
	}

	inputs, err := newTensors(args.InputShapes)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensors: %w", err)
	}
	outputs, err := newTensors(args.OutputShapes)
	if err != nil {
		destroyTensors(inputs)
		return nil, fmt.Errorf("error creating output tensors: %w", err)
	}

	// The session copies the options during creation, so they are destroyed
	// on the way out regardless of the outcome.
	options, err := OptimizedSessionOptions(args.Optimization)
	if err != nil {
		destroyTensors(inputs)
		destroyTensors(outputs)
		return nil, err
	}
	defer options.Destroy()

	// Execution providers let ONNX Runtime leverage specialized hardware or
	// optimized libraries (CoreML on Apple GPUs, OpenVINO on Intel, CUDA on
	// NVIDIA). Each provider knows how to register itself.
	if err := provider.Apply(options); err != nil {
		destroyTensors(inputs)
		destroyTensors(outputs)
		return nil, fmt.Errorf("error enabling %s provider: %w", provider.Backend(), err)
	}

	inputNames := args.InputNames
	if len(inputNames) == 0 {
		inputNames = []string{"images"}
	}
	outputNames := args.OutputNames
	if len(outputNames) == 0 {
		outputNames = []string{"output0"}
	}

	session, err := ort.NewAdvancedSession(
		args.ModelPath,
		inputNames,
		outputNames,
		arbitraryTensors(inputs),
		arbitraryTensors(outputs),
		options,
	)
	if err != nil {
		destroyTensors(inputs)
		destroyTensors(outputs)
		return nil, fmt.Errorf("error creating ORT session: %w", err)
	}

	return &Session{
		Session: session,
		Inputs:  inputs,
		Outputs: outputs,
	}, nil
}

// newTensors allocates one empty float32 tensor per shape.
func newTensors(shapes [][]int64) ([]*ort.Tensor[float32], error) {
	tensors := make([]*ort.Tensor[float32], 0, len(shapes))
	for _, shape := range shapes {
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(shape...))
		if err != nil {
			destroyTensors(tensors)
			return nil, err
		}
		tensors = append(tensors, t)
	}
	return tensors, nil
}

func destroyTensors(tensors []*ort.Tensor[float32]) {
	for _, t := range tensors {
		t.Destroy()
	}
}

func arbitraryTensors(tensors []*ort.Tensor[float32]) []ort.ArbitraryTensor {
	out := make([]ort.ArbitraryTensor, len(tensors))
	for i, t := range tensors {
		out[i] = t
	}
	return out
}

// SessionMetrics aggregates Run timings for a profiled session.
type SessionMetrics struct {
	InferenceCount int64   `json:"inferenceCount" yaml:"inferenceCount"`
	TotalTimeMs    float64 `json:"totalTimeMs" yaml:"totalTimeMs"`
	AverageTimeMs  float64 `json:"averageTimeMs" yaml:"averageTimeMs"`
	ThroughputFPS  float64 `json:"throughputFps" yaml:"throughputFps"`
}

// ProfiledSession wraps a Session and times every Run call.
//
// The wrapper tracks inference latency for optimization and debugging
// without touching the underlying session or its tensors.
type ProfiledSession struct {
	*Session
	mu             sync.RWMutex
	inferenceCount int64
	totalTimeMs    float64
}

// NewProfiledSession wraps an existing session with timing instrumentation.
func NewProfiledSession(session *Session) *ProfiledSession {
	return &ProfiledSession{Session: session}
}

// Run executes one inference and records its wall-clock duration.
func (ps *ProfiledSession) Run() error {
	start := time.Now()
	err := ps.Session.Run()
	duration := float64(time.Since(start).Nanoseconds()) / 1e6

	ps.mu.Lock()
	ps.inferenceCount++
	ps.totalTimeMs += duration
	ps.mu.Unlock()

	return err
}

// Metrics returns a snapshot of the recorded timings.
func (ps *ProfiledSession) Metrics() SessionMetrics {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	metrics := SessionMetrics{
		InferenceCount: ps.inferenceCount,
		TotalTimeMs:    ps.totalTimeMs,
	}
	if ps.inferenceCount > 0 {
		metrics.AverageTimeMs = ps.totalTimeMs / float64(ps.inferenceCount)
		metrics.ThroughputFPS = 1000.0 / metrics.AverageTimeMs
	}
	return metrics
}

// ResetMetrics clears the recorded timings.
func (ps *ProfiledSession) ResetMetrics() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.inferenceCount = 0
	ps.totalTimeMs = 0
}
