// Package graph inspects a compiled model and partitions its entry points
// into subgraphs by the device that executes them.
package graph

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ErrSubgraphCount is returned when a model does not hold exactly one
// accelerator subgraph.
var ErrSubgraphCount = errors.New("model must contain exactly one accelerator subgraph")

// Device identifies where a subgraph executes.
type Device string

const (
	DeviceCPU         Device = "CPU"
	DeviceAccelerator Device = "ACCELERATOR"
)

// Subgraph is a partition of the model bound to a single device.
type Subgraph struct {
	Name    string
	Device  Device
	Inputs  []ort.InputOutputInfo
	Outputs []ort.InputOutputInfo
}

// InputNames returns the names of the subgraph inputs, in model order.
func (s Subgraph) InputNames() []string {
	return names(s.Inputs)
}

// OutputNames returns the names of the subgraph outputs, in model order.
func (s Subgraph) OutputNames() []string {
	return names(s.Outputs)
}

// Graph describes a deserialized model file.
type Graph struct {
	Path    string
	Name    string
	Inputs  []ort.InputOutputInfo
	Outputs []ort.InputOutputInfo
}

// Deserialize reads the input and output signature of the model at path.
// The runtime environment must already be initialized.
func Deserialize(path string) (*Graph, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading model %s", path)
	}

	g := &Graph{
		Path:    path,
		Name:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Inputs:  inputs,
		Outputs: outputs,
	}

	if meta, err := ort.GetModelMetadata(path); err == nil {
		if name, err := meta.GetGraphName(); err == nil && name != "" {
			g.Name = name
		}
		meta.Destroy()
	}

	return g, nil
}

// Subgraphs partitions the model by device. Every image input starts its own
// accelerator subgraph producing the model outputs; the remaining inputs are
// grouped into a single CPU subgraph.
func (g *Graph) Subgraphs() []Subgraph {
	var (
		subgraphs []Subgraph
		host      []ort.InputOutputInfo
	)

	for _, in := range g.Inputs {
		if !IsImageInput(in) {
			host = append(host, in)
			continue
		}
		subgraphs = append(subgraphs, Subgraph{
			Name:    fmt.Sprintf("%s/%s", g.Name, in.Name),
			Device:  DeviceAccelerator,
			Inputs:  []ort.InputOutputInfo{in},
			Outputs: g.Outputs,
		})
	}

	if len(host) > 0 {
		subgraphs = append(subgraphs, Subgraph{
			Name:   g.Name + "/host",
			Device: DeviceCPU,
			Inputs: host,
		})
	}
	return subgraphs
}

// AcceleratorSubgraphs returns only the subgraphs bound to the accelerator.
func (g *Graph) AcceleratorSubgraphs() []Subgraph {
	var out []Subgraph
	for _, s := range g.Subgraphs() {
		if s.Device == DeviceAccelerator {
			out = append(out, s)
		}
	}
	return out
}

// RequireSingleAccelerator returns the only accelerator subgraph, or
// ErrSubgraphCount when there are none or several.
func (g *Graph) RequireSingleAccelerator() (Subgraph, error) {
	subgraphs := g.AcceleratorSubgraphs()
	if len(subgraphs) != 1 {
		return Subgraph{}, errors.Wrapf(ErrSubgraphCount, "%s has %d", g.Path, len(subgraphs))
	}
	return subgraphs[0], nil
}

// IsImageInput reports whether the input is a rank-4 float or uint8 tensor.
func IsImageInput(info ort.InputOutputInfo) bool {
	if info.OrtValueType != ort.ONNXTypeTensor || len(info.Dimensions) != 4 {
		return false
	}
	switch info.DataType {
	case ort.TensorElementDataTypeFloat, ort.TensorElementDataTypeUint8:
		return true
	}
	return false
}

func names(infos []ort.InputOutputInfo) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.Name
	}
	return out
}
