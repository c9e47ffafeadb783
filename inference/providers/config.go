// Package providers - Enhanced configuration for optimized ONNX inference.
package providers

import (
	"fmt"
)

// Config selects an execution provider and its tuning knobs. Only the
// options block matching Backend is consulted, so a single struct can ride
// through YAML or JSON scenario files untouched.
type Config struct {
	// Backend specifies the execution provider to register.
	Backend ProviderBackend `json:"backend" yaml:"backend"`

	// CPU contains the CPU provider options.
	CPU CPUOptions `json:"cpu,omitempty" yaml:"cpu,omitempty"`

	// CoreML contains the CoreML provider options.
	CoreML CoreMLOptions `json:"coreml,omitempty" yaml:"coreml,omitempty"`

	// CUDA contains the CUDA provider options.
	CUDA CUDAOptions `json:"cuda,omitempty" yaml:"cuda,omitempty"`

	// OpenVINO contains the OpenVINO provider options.
	OpenVINO OpenVINOOptions `json:"openvino,omitempty" yaml:"openvino,omitempty"`

	// DNNL contains the DNNL provider options.
	DNNL DNNLProviderOptions `json:"dnnl,omitempty" yaml:"dnnl,omitempty"`

	// Optimization tunes the session independent of the chosen backend.
	Optimization OptimizationConfig `json:"optimization" yaml:"optimization"`

	// WarmupIterations defines how many inference runs to perform during
	// initialization so the first measured frame does not pay lazy-init
	// costs.
	WarmupIterations int `json:"warmupIterations" yaml:"warmupIterations"`

	// EnableProfiling activates per-run timing collection on the session.
	EnableProfiling bool `json:"enableProfiling" yaml:"enableProfiling"`
}

// Provider instantiates the execution provider selected by the config.
//
// Returns:
//   - ExecutionProvider: The provider ready to Apply to session options.
//   - error: An error if the backend is not registered.
func (c Config) Provider() (ExecutionProvider, error) {
	switch c.Backend {
	case CPUProviderBackend, "":
		return NewCPUProvider(c.CPU), nil
	case CoreMLProviderBackend:
		return NewCoreMLProvider(c.CoreML), nil
	case CUDAProviderBackend:
		return NewCUDAProvider(c.CUDA), nil
	case OpenVINOProviderBackend:
		return NewOpenVINOProvider(c.OpenVINO), nil
	case DNNLProviderBackend:
		return NewDNNLProvider(c.DNNL), nil
	default:
		return nil, fmt.Errorf("no matching provider backend registered: %s", c.Backend)
	}
}

// DefaultConfig returns a production-ready configuration with sensible
// defaults: the always-available CPU provider plus platform-tuned session
// optimization.
//
// Returns:
//   - Config: Production-ready configuration.
//
// @example
//
//	config := providers.DefaultConfig()
//	provider, err := config.Provider()
func DefaultConfig() Config {
	return Config{
		Backend:          CPUProviderBackend,
		CPU:              CPUOptions{UseArena: true},
		Optimization:     DefaultOptimizationConfig(),
		WarmupIterations: 3,
	}
}

// LowLatencyConfig returns a configuration optimized for minimal inference
// latency: sequential execution with single-threaded ops for predictable
// timing, and extra warmup for consistent first-frame numbers.
//
// Returns:
//   - Config: Low-latency optimized configuration.
func LowLatencyConfig() Config {
	config := DefaultConfig()
	config.WarmupIterations = 15
	config.Optimization.Sequential = true
	config.Optimization.IntraOpNumThreads = 1
	config.Optimization.InterOpNumThreads = 1
	return config
}

// HighThroughputConfig returns a configuration optimized for maximum
// throughput: parallel execution across all available cores.
//
// Returns:
//   - Config: Throughput-optimized configuration.
func HighThroughputConfig() Config {
	config := DefaultConfig()
	config.WarmupIterations = 10
	config.Optimization.IntraOpNumThreads = 0
	config.Optimization.InterOpNumThreads = 0
	return config
}
