// Package providers - shared library discovery.
package providers

import (
	"fmt"
	"os"
	"runtime"
)

// SharedLibPathEnv overrides the bundled onnxruntime library location.
const SharedLibPathEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// GetSharedLibPath returns the path to the onnxruntime shared library for
// the current platform. The ONNXRUNTIME_SHARED_LIBRARY_PATH environment
// variable takes precedence over the bundled third_party copies.
func GetSharedLibPath() (string, error) {
	if path := os.Getenv(SharedLibPathEnv); path != "" {
		return path, nil
	}
	switch runtime.GOOS {
	case "windows":
		if runtime.GOARCH == "amd64" {
			return "../third_party/onnxruntime.dll", nil
		}
	case "darwin":
		if runtime.GOARCH == "arm64" || runtime.GOARCH == "amd64" {
			return "./third_party/libonnxruntime.1.23.0.dylib", nil
		}
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "../third_party/onnxruntime_arm64.so", nil
		}
		return "../third_party/onnxruntime.so", nil
	}
	return "", fmt.Errorf("no onnxruntime shared library bundled for %s/%s; set %s",
		runtime.GOOS, runtime.GOARCH, SharedLibPathEnv)
}
