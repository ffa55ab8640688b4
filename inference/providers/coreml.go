// Package providers - CoreML execution provider.
package providers

const (
	// CoreMLProviderBackend uses Apple CoreML for macOS/iOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
)

// CoreML flag bits, from coreml_provider_factory.h.
const (
	coreMLFlagUseCPUOnly          uint32 = 0x001
	coreMLFlagOnlyEnableDeviceANE uint32 = 0x004
	coreMLFlagStaticInputShapes   uint32 = 0x008
)

// CoreMLOptions contains arguments for the CoreML provider.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
type CoreMLOptions struct {
	// Limit CoreML to running on CPU only.
	CPUOnly bool `json:"cpuOnly" yaml:"cpuOnly"`
	// Only use devices with an Apple Neural Engine.
	NeuralEngineOnly bool `json:"neuralEngineOnly" yaml:"neuralEngineOnly"`
	// Only allow nodes with static input shapes onto CoreML.
	RequireStaticInputShapes bool `json:"requireStaticInputShapes" yaml:"requireStaticInputShapes"`
}

func (o CoreMLOptions) flags() uint32 {
	var f uint32
	if o.CPUOnly {
		f |= coreMLFlagUseCPUOnly
	}
	if o.NeuralEngineOnly {
		f |= coreMLFlagOnlyEnableDeviceANE
	}
	if o.RequireStaticInputShapes {
		f |= coreMLFlagStaticInputShapes
	}
	return f
}
