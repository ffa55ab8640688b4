// Package providers - Runtime library discovery and environment setup.
package providers

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// SharedLibraryEnv overrides the platform default runtime library path.
const SharedLibraryEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

var envMu sync.Mutex

// SharedLibPath returns the path to the runtime shared library for the current platform.
//
// Arguments:
//   - override: An explicit path. Empty falls back to SharedLibraryEnv, then the platform default.
//
// Returns:
//   - string: The path to the shared library.
//   - error: If the platform has no known default.
func SharedLibPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if p := os.Getenv(SharedLibraryEnv); p != "" {
		return p, nil
	}
	return defaultLibPath(runtime.GOOS, runtime.GOARCH)
}

func defaultLibPath(goos, goarch string) (string, error) {
	switch goos {
	case "windows":
		if goarch == "amd64" {
			return "./third_party/onnxruntime.dll", nil
		}
	case "darwin":
		return "./third_party/libonnxruntime.dylib", nil
	case "linux":
		if goarch == "arm64" {
			return "./third_party/onnxruntime_arm64.so", nil
		}
		return "./third_party/onnxruntime.so", nil
	}
	return "", fmt.Errorf("no onnxruntime library known for %s/%s", goos, goarch)
}

// InitializeEnvironment loads the runtime library once per process.
// Subsequent calls are no-ops while the environment stays initialized.
func InitializeEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("error initializing ORT environment: %w", err)
	}
	return nil
}

// DestroyEnvironment releases the runtime environment if it was initialized.
func DestroyEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}
