package providers

// Precision represents the numeric precision a provider executes at.
type Precision string

// Precision constants are the supported precisions for inference.
const (
	// PrecisionAccuracy keeps the model's own input precision.
	PrecisionAccuracy Precision = "ACCURACY"
	PrecisionINT8     Precision = "INT8"
	PrecisionFP8      Precision = "FP8"
	PrecisionFP16     Precision = "FP16"
	PrecisionFP32     Precision = "FP32"
)
