// Package providers - execution-provider selection and session options for
// the ONNX Runtime detector path.
package providers

import (
	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend represents different ONNX Runtime execution providers.
type ProviderBackend string

const (
	// CPUProviderBackend uses CPU for inference.
	CPUProviderBackend ProviderBackend = "cpu"

	// CUDAProviderBackend uses NVIDIA CUDA for GPU acceleration.
	CUDAProviderBackend ProviderBackend = "cuda"

	// TensorRTProviderBackend uses NVIDIA TensorRT for optimized inference.
	TensorRTProviderBackend ProviderBackend = "tensorrt"

	// DNNLProviderBackend uses Intel DNNL (oneDNN) for CPU optimization.
	DNNLProviderBackend ProviderBackend = "dnnl"

	// CoreMLProviderBackend uses Apple CoreML for macOS/iOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"

	// OpenVINOProviderBackend uses Intel OpenVINO for inference optimization.
	OpenVINOProviderBackend ProviderBackend = "openvino"
)

// Backends lists every backend the session layer understands.
var Backends = []ProviderBackend{
	CPUProviderBackend,
	CUDAProviderBackend,
	TensorRTProviderBackend,
	DNNLProviderBackend,
	CoreMLProviderBackend,
	OpenVINOProviderBackend,
}

// ProviderOptions is a marker interface for provider-specific config.
type ProviderOptions interface {
	isProviderOptions()
}

// ExecutionProvider represents the contract that all execution providers
// must implement. Apply registers the provider with a session's options,
// so each provider carries its own ONNX Runtime wiring.
type ExecutionProvider interface {
	Backend() ProviderBackend
	Options() ProviderOptions
	Apply(options *ort.SessionOptions) error
}
