// Package providers - Execution provider selection for the accelerator runtime.
package providers

import (
	"fmt"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend represents an ONNX Runtime execution provider.
type ProviderBackend string

const (
	// CPUProviderBackend runs every node on the host CPU.
	CPUProviderBackend ProviderBackend = "cpu"
)

// Backends lists every backend that can be selected.
var Backends = []ProviderBackend{
	CPUProviderBackend,
	CUDAProviderBackend,
	OpenVINOProviderBackend,
	CoreMLProviderBackend,
}

// ParseBackend resolves a backend name, case-insensitively.
//
// Arguments:
//   - name: The backend name, e.g. "cuda".
//
// Returns:
//   - ProviderBackend: The matching backend.
//   - error: If no backend matches.
func ParseBackend(name string) (ProviderBackend, error) {
	for _, b := range Backends {
		if strings.EqualFold(string(b), strings.TrimSpace(name)) {
			return b, nil
		}
	}
	return "", fmt.Errorf("no matching provider backend registered: %q", name)
}

// Config selects the execution provider and threading for a runtime session.
type Config struct {
	// Backend specifies the backend to use.
	Backend ProviderBackend `json:"backend" yaml:"backend"`

	// DeviceID selects the accelerator when more than one is present.
	DeviceID int `json:"device_id" yaml:"device_id"`

	// IntraOpThreads parallelizes execution inside a node. 0 uses the runtime default.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`

	// InterOpThreads parallelizes independent nodes. 0 uses the runtime default.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`

	// CUDA holds options for the CUDA backend.
	CUDA CUDAOptions `json:"cuda" yaml:"cuda"`

	// OpenVINO holds options for the OpenVINO backend.
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino"`

	// CoreML holds options for the CoreML backend.
	CoreML CoreMLOptions `json:"coreml" yaml:"coreml"`
}

// DefaultConfig returns a CPU configuration with runtime-chosen threading.
func DefaultConfig() Config {
	return Config{
		Backend:  CPUProviderBackend,
		OpenVINO: OpenVINOOptions{DeviceType: "CPU", Precision: "FP32"},
	}
}

// SessionOptions builds native session options for the configured backend.
//
// **The caller owns the returned options and must Destroy them.**
//
// Returns:
//   - *ort.SessionOptions: Options with the execution provider appended.
//   - error: If the options cannot be created or the provider is unavailable.
func (c Config) SessionOptions() (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating ORT session options: %w", err)
	}

	if err := c.apply(options); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

func (c Config) apply(options *ort.SessionOptions) error {
	if err := options.SetIntraOpNumThreads(c.IntraOpThreads); err != nil {
		return fmt.Errorf("error setting intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(c.InterOpThreads); err != nil {
		return fmt.Errorf("error setting inter-op threads: %w", err)
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return fmt.Errorf("error setting graph optimization level: %w", err)
	}

	switch c.Backend {
	case CPUProviderBackend, "":
		// CPU provider is always available, no explicit configuration needed.
		return nil
	case CUDAProviderBackend:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return fmt.Errorf("error creating CUDA options: %w", err)
		}
		defer cuda.Destroy()
		if err := cuda.Update(c.CUDA.providerOptions(c.DeviceID)); err != nil {
			return fmt.Errorf("error converting CUDA options: %w", err)
		}
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return fmt.Errorf("error enabling CUDA: %w", err)
		}
	case OpenVINOProviderBackend:
		if err := options.AppendExecutionProviderOpenVINO(c.OpenVINO.providerOptions(c.DeviceID)); err != nil {
			return fmt.Errorf("error enabling OpenVINO: %w", err)
		}
	case CoreMLProviderBackend:
		if err := options.AppendExecutionProviderCoreML(c.CoreML.flags()); err != nil {
			return fmt.Errorf("error enabling CoreML: %w", err)
		}
	default:
		return fmt.Errorf("unsupported execution provider: %s", c.Backend)
	}
	return nil
}
