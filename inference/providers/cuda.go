// Package providers - NVIDIA CUDA execution provider.
package providers

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// CUDAProvider implements the ExecutionProvider interface.
type CUDAProvider struct {
	options CUDAOptions
}

// CUDAOptions contains arguments for the CUDA provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// The device ID.
	DeviceID int `json:"deviceID"                 yaml:"deviceID"`
	// Whether to do copies in the default stream or use separate streams. The
	// recommended setting is true. If false, there are race conditions and
	// possibly better performance.
	DoCopyInDefaultStream bool `json:"doCopyInDefaultStream"    yaml:"doCopyInDefaultStream"`
	// The size limit of the device memory arena in bytes. This size limit is
	// only for the execution provider's arena. The total device memory usage
	// may be higher. Zero leaves the runtime default in place.
	GPUMemLimit int64 `json:"gpuMemLimit"              yaml:"gpuMemLimit"`
	// The strategy for extending the device memory arena:
	// kNextPowerOfTwo: subsequent extensions extend by larger amounts
	// (multiplied by powers of two).
	// kSameAsRequested: extend by the requested amount.
	ArenaExtendStrategy string `json:"arenaExtendStrategy"      yaml:"arenaExtendStrategy"`
	// The type of search done for cuDNN convolution algorithms:
	// EXHAUSTIVE: expensive exhaustive benchmarking using
	// cudnnFindConvolutionForwardAlgorithmEx.
	// HEURISTIC: lightweight heuristic based search using
	// cudnnGetConvolutionForwardAlgorithm_v7.
	// DEFAULT: default algorithm using
	// CUDNN_CONVOLUTION_FWD_ALGO_IMPLICIT_PRECOMP_GEMM.
	CudnnConvAlgoSearch string `json:"cudnnConvAlgoSearch"      yaml:"cudnnConvAlgoSearch"`
	// Check tuning performance for convolution heavy models for details on
	// what this flag does.
	CudnnConvUseMaxWorkspace bool `json:"cudnnConvUseMaxWorkspace" yaml:"cudnnConvUseMaxWorkspace"`
	// Capture the CUDA graph on the first run and replay it afterwards.
	EnableCudaGraph bool `json:"enableCudaGraph"          yaml:"enableCudaGraph"`
	// TF32 is a math mode available on NVIDIA GPUs since Ampere. It allows
	// certain float32 matrix multiplications and convolutions to run much
	// faster on tensor cores with TensorFloat-32 reduced precision.
	UseTF32 bool `json:"useTF32"                  yaml:"useTF32"`
	// If this option is enabled, the execution provider prefers NHWC
	// operators over NCHW. Necessary layout transformations will be applied
	// to the model automatically.
	PreferNHWC bool `json:"preferNHWC"               yaml:"preferNHWC"`
}

// ToNativeProviderOptions converts the options into the runtime's CUDA
// provider options. The caller owns the returned handle and must Destroy it.
func (o *CUDAOptions) ToNativeProviderOptions() (*ort.CUDAProviderOptions, error) {
	opts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return nil, err
	}

	settings := map[string]string{
		"device_id":                    fmt.Sprintf("%d", o.DeviceID),
		"do_copy_in_default_stream":    boolFlag(o.DoCopyInDefaultStream),
		"cudnn_conv_use_max_workspace": boolFlag(o.CudnnConvUseMaxWorkspace),
		"enable_cuda_graph":            boolFlag(o.EnableCudaGraph),
		"use_tf32":                     boolFlag(o.UseTF32),
		"prefer_nhwc":                  boolFlag(o.PreferNHWC),
	}
	if o.GPUMemLimit > 0 {
		settings["gpu_mem_limit"] = fmt.Sprintf("%d", o.GPUMemLimit)
	}
	if o.ArenaExtendStrategy != "" {
		settings["arena_extend_strategy"] = o.ArenaExtendStrategy
	}
	if o.CudnnConvAlgoSearch != "" {
		settings["cudnn_conv_algo_search"] = o.CudnnConvAlgoSearch
	}

	if err := opts.Update(settings); err != nil {
		opts.Destroy()
		return nil, err
	}
	return opts, nil
}

// boolFlag renders a bool the way the provider option parser expects.
func boolFlag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// isProviderOptions is a marker function to ensure the options are valid.
func (CUDAOptions) isProviderOptions() {}

// Backend returns the backend of the CUDA provider.
func (p *CUDAProvider) Backend() ProviderBackend {
	return CUDAProviderBackend
}

// Options returns the options of the CUDA provider.
func (p *CUDAProvider) Options() ProviderOptions {
	return p.options
}

// Apply registers the CUDA execution provider.
func (p *CUDAProvider) Apply(options *ort.SessionOptions) error {
	cuda, err := p.options.ToNativeProviderOptions()
	if err != nil {
		return fmt.Errorf("error converting CUDA options: %w", err)
	}
	defer cuda.Destroy()

	return options.AppendExecutionProviderCUDA(cuda)
}

// NewCUDAProvider creates a new CUDA provider.
func NewCUDAProvider(args CUDAOptions) *CUDAProvider {
	return &CUDAProvider{
		options: args,
	}
}
