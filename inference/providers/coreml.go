// Package providers - Apple CoreML execution provider.
package providers

import (
	ort "github.com/yalue/onnxruntime_go"
)

// CoreML provider flag bits, mirroring coreml_provider_factory.h.
const (
	coreMLFlagUseCPUOnly            uint32 = 0x001
	coreMLFlagEnableOnSubgraph      uint32 = 0x002
	coreMLFlagOnlyEnableDeviceANE   uint32 = 0x004
	coreMLFlagOnlyStaticInputShapes uint32 = 0x008
	coreMLFlagCreateMLProgram       uint32 = 0x010
)

// CoreMLProvider implements the ExecutionProvider interface.
type CoreMLProvider struct {
	options CoreMLOptions
}

// CoreMLOptions contains arguments for the CoreML provider.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
type CoreMLOptions struct {
	// MLProgram: Create an MLProgram format model. Requires Core ML 5 or later
	// (iOS 15+ or macOS 12+).
	// NeuralNetwork: Create a NeuralNetwork format model. Requires Core ML 3 or
	// later (iOS 13+ or macOS 10.15+).
	// Default: NeuralNetwork
	ModelFormat string `json:"modelFormat"              yaml:"modelFormat"`
	// CPUOnly: Limit CoreML to running on CPU only.
	// CPUAndNeuralEngine: Enable CoreML EP for Apple devices with a compatible
	// Apple Neural Engine (ANE).
	// CPUAndGPU: Enable CoreML EP for Apple devices with a compatible GPU.
	// ALL: Enable CoreML EP for all compatible Apple devices.
	// Default: ALL
	MLComputeUnits string `json:"mlComputeUnits"           yaml:"mlComputeUnits"`
	// Only allow the CoreML EP to take nodes with inputs that have static
	// shapes. By default the CoreML EP will also allow inputs with dynamic
	// shapes, however performance may be negatively impacted by inputs with
	// dynamic shapes.
	// 0: Allow the CoreML EP to take nodes with inputs that have dynamic shapes.
	// 1: Only allow the CoreML EP to take nodes with inputs that have static shapes.
	// Default: 0
	RequireStaticInputShapes int `json:"requireStaticInputShapes" yaml:"requireStaticInputShapes"`
	// Enable CoreML EP to run on a subgraph in the body of a control flow
	// operator (i.e. a Loop, Scan or If operator).
	// 0: Disable CoreML EP to run on a subgraph in the body of a control flow operator.
	// 1: Enable CoreML EP to run on a subgraph in the body of a control flow operator.
	// Default: 0
	EnableOnSubgraphs int `json:"enableOnSubgraphs"        yaml:"enableOnSubgraphs"`
}

// isProviderOptions is a marker function to ensure the options are valid.
func (CoreMLOptions) isProviderOptions() {}

// Backend returns the backend of the CoreML provider.
func (p *CoreMLProvider) Backend() ProviderBackend {
	return CoreMLProviderBackend
}

// Options returns the options of the CoreML provider.
func (p *CoreMLProvider) Options() ProviderOptions {
	return p.options
}

// Flags folds the options into the provider-factory bitmask the runtime
// bindings accept.
func (o CoreMLOptions) Flags() uint32 {
	var flags uint32
	if o.ModelFormat == "MLProgram" {
		flags |= coreMLFlagCreateMLProgram
	}
	switch o.MLComputeUnits {
	case "CPUOnly":
		flags |= coreMLFlagUseCPUOnly
	case "CPUAndNeuralEngine":
		flags |= coreMLFlagOnlyEnableDeviceANE
	}
	if o.RequireStaticInputShapes != 0 {
		flags |= coreMLFlagOnlyStaticInputShapes
	}
	if o.EnableOnSubgraphs != 0 {
		flags |= coreMLFlagEnableOnSubgraph
	}
	return flags
}

// Apply registers the CoreML execution provider.
func (p *CoreMLProvider) Apply(options *ort.SessionOptions) error {
	return options.AppendExecutionProviderCoreML(p.options.Flags())
}

// NewCoreMLProvider creates a new CoreML provider.
func NewCoreMLProvider(options CoreMLOptions) *CoreMLProvider {
	return &CoreMLProvider{
		options: options,
	}
}
