// Package inference - Inference engine interface and implementations
package inference

// EngineType identifies which runtime executes the model graph. Execution
// providers (CUDA, CoreML, OpenVINO) are selected separately via
// providers.Config; the engine type picks the host runtime itself.
type EngineType string

const (
	// EngineONNXRuntime runs models through the onnxruntime shared library.
	EngineONNXRuntime EngineType = "onnxruntime"
	// EngineOpenCVDNN runs models through OpenCV's DNN module.
	EngineOpenCVDNN EngineType = "opencv-dnn"
)

// Engines is a list of all supported engines
var Engines = []EngineType{EngineONNXRuntime, EngineOpenCVDNN}
