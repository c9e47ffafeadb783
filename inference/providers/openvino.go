// Package providers - Intel OpenVINO execution provider.
package providers

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// OpenVINOProvider implements the ExecutionProvider interface.
type OpenVINOProvider struct {
	options OpenVINOOptions
}

// OpenVINOOptions contains arguments for the OpenVINO provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
type OpenVINOOptions struct {
	DeviceID string `json:"deviceID"             yaml:"deviceID"`
	// Overrides the accelerator hardware type with these values at runtime.
	// If this option is not explicitly set, default hardware specified during
	// build is used.
	DeviceType string `json:"deviceType"           yaml:"deviceType"`
	// Supported precisions for HW {CPU:FP32, GPU:[FP32, FP16, ACCURACY],
	// NPU:FP16}. Default precision for HW for optimized performance
	// {CPU:FP32, GPU:FP16, NPU:FP16}. To execute the model with its default
	// input precision, select the ACCURACY precision type.
	Precision Precision `json:"precision"            yaml:"precision"`
	// Overrides the accelerator default value of number of threads with this
	// value at runtime. If this option is not explicitly set, default value
	// of 8 during build time will be used for inference.
	NumOfThreads int `json:"numOfThreads"         yaml:"numOfThreads"`
	// Overrides the accelerator default streams with this value at runtime.
	// If this option is not explicitly set, default value of 1, performance
	// for latency is used during build time will be used for inference.
	NumStreams int `json:"numStreams"           yaml:"numStreams"`
	// This option enables rewriting dynamic shaped models to static shape at
	// runtime and execute.
	DisableDynamicShapes bool `json:"disableDynamicShapes" yaml:"disableDynamicShapes"`
	// This option configures which models should be allocated to the best
	// resource.
	ModelPriority int `json:"modelPriority"        yaml:"modelPriority"`
}

// isProviderOptions is a marker function to ensure the options are valid.
func (OpenVINOOptions) isProviderOptions() {}

// Backend returns the backend of the OpenVINO provider.
func (p *OpenVINOProvider) Backend() ProviderBackend {
	return OpenVINOProviderBackend
}

// Options returns the options of the OpenVINO provider.
func (p *OpenVINOProvider) Options() ProviderOptions {
	return p.options
}

// Apply registers the OpenVINO execution provider.
func (p *OpenVINOProvider) Apply(options *ort.SessionOptions) error {
	o := p.options
	settings := map[string]string{}
	if o.DeviceID != "" {
		settings["device_id"] = o.DeviceID
	}
	if o.DeviceType != "" {
		settings["device_type"] = o.DeviceType
	}
	if o.Precision != "" {
		settings["precision"] = string(o.Precision)
	}
	if o.NumOfThreads > 0 {
		settings["num_of_threads"] = fmt.Sprintf("%d", o.NumOfThreads)
	}
	if o.NumStreams > 0 {
		settings["num_streams"] = fmt.Sprintf("%d", o.NumStreams)
	}
	if o.DisableDynamicShapes {
		settings["disable_dynamic_shapes"] = "true"
	}
	if o.ModelPriority > 0 {
		settings["model_priority"] = fmt.Sprintf("%d", o.ModelPriority)
	}

	return options.AppendExecutionProviderOpenVINO(settings)
}

// NewOpenVINOProvider creates a new OpenVINO provider.
func NewOpenVINOProvider(args OpenVINOOptions) *OpenVINOProvider {
	return &OpenVINOProvider{options: args}
}
