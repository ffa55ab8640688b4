// Package runner - Runtime session bound to one accelerator subgraph.
package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/nvr-ai/go-firewatch/inference/graph"
	"github.com/nvr-ai/go-firewatch/inference/providers"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ErrClosed is returned by Execute after Close.
var ErrClosed = errors.New("runner closed")

// Layout is the memory order of the image input.
type Layout int

const (
	// NCHW stores planes of channels: [batch, channel, height, width].
	NCHW Layout = iota
	// NHWC interleaves channels per pixel: [batch, height, width, channel].
	NHWC
)

func (l Layout) String() string {
	if l == NHWC {
		return "NHWC"
	}
	return "NCHW"
}

// Output is one decoded output tensor. Data is owned by the runner and is
// only valid until the next Execute.
type Output struct {
	Name  string
	Shape []int64
	Data  []float32
}

// Config controls how the session is built.
type Config struct {
	Provider providers.Config
	// FallbackWidth and FallbackHeight size the input when the model leaves
	// spatial dimensions dynamic.
	FallbackWidth  int
	FallbackHeight int
}

// Runner executes one accelerator subgraph. Outputs are preallocated when
// their shapes are static; otherwise the runtime allocates them on each run.
type Runner struct {
	mu       sync.Mutex
	session  *ort.AdvancedSession
	dynamic  *ort.DynamicAdvancedSession
	input    *ort.Tensor[float32]
	outputs  []*ort.Tensor[float32]
	names    []string
	layout   Layout
	width    int
	height   int
	channels int
	closed   bool
}

// New creates a session for the subgraph of the model at path.
//
// Arguments:
//   - path: The model file.
//   - sub: The accelerator subgraph to execute.
//   - cfg: Provider and sizing options.
//
// Returns:
//   - *Runner: The runner, owning its session and tensors.
//   - error: If the input layout is unsupported or the session fails.
func New(path string, sub graph.Subgraph, cfg Config) (*Runner, error) {
	if len(sub.Inputs) != 1 {
		return nil, fmt.Errorf("subgraph %s must have a single input, has %d", sub.Name, len(sub.Inputs))
	}
	if len(sub.Outputs) == 0 {
		return nil, fmt.Errorf("subgraph %s has no outputs", sub.Name)
	}

	in := sub.Inputs[0]
	if in.DataType != ort.TensorElementDataTypeFloat {
		return nil, fmt.Errorf("input %q has element type %v, only float32 is supported", in.Name, in.DataType)
	}
	layout, shape, err := ResolveInputShape(in.Dimensions, cfg.FallbackWidth, cfg.FallbackHeight)
	if err != nil {
		return nil, fmt.Errorf("input %q: %w", in.Name, err)
	}

	r := &Runner{layout: layout, names: sub.OutputNames()}
	if layout == NHWC {
		r.height, r.width, r.channels = int(shape[1]), int(shape[2]), int(shape[3])
	} else {
		r.channels, r.height, r.width = int(shape[1]), int(shape[2]), int(shape[3])
	}

	r.input, err = ort.NewEmptyTensor[float32](shape)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	options, err := cfg.Provider.SessionOptions()
	if err != nil {
		r.destroyTensors()
		return nil, err
	}
	defer options.Destroy()

	if HasDynamicOutputs(sub.Outputs) {
		r.dynamic, err = ort.NewDynamicAdvancedSession(path, sub.InputNames(), r.names, options)
		if err != nil {
			r.destroyTensors()
			return nil, fmt.Errorf("error creating ORT session: %w", err)
		}
		return r, nil
	}

	outputs := make([]ort.ArbitraryTensor, 0, len(sub.Outputs))
	for _, out := range sub.Outputs {
		shape, _ := staticOutputShape(out.Dimensions)
		t, err := ort.NewEmptyTensor[float32](shape)
		if err != nil {
			r.destroyTensors()
			return nil, fmt.Errorf("error creating output tensor %q: %w", out.Name, err)
		}
		r.outputs = append(r.outputs, t)
		outputs = append(outputs, t)
	}

	r.session, err = ort.NewAdvancedSession(
		path,
		sub.InputNames(),
		r.names,
		[]ort.ArbitraryTensor{r.input},
		outputs,
		options,
	)
	if err != nil {
		r.destroyTensors()
		return nil, fmt.Errorf("error creating ORT session: %w", err)
	}
	return r, nil
}

// InputSize returns the model input width and height in pixels.
func (r *Runner) InputSize() (int, int) {
	return r.width, r.height
}

// Layout returns the memory order of the input tensor.
func (r *Runner) Layout() Layout {
	return r.layout
}

// Input returns the input buffer to fill before Execute.
func (r *Runner) Input() []float32 {
	return r.input.GetData()
}

// Execute runs the session once on the current input buffer.
func (r *Runner) Execute(ctx context.Context) ([]Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if r.dynamic != nil {
		if err := r.runDynamic(); err != nil {
			return nil, errors.Wrap(err, "running session")
		}
	} else if err := r.session.Run(); err != nil {
		return nil, errors.Wrap(err, "running session")
	}

	results := make([]Output, len(r.outputs))
	for i, t := range r.outputs {
		results[i] = Output{Name: r.names[i], Shape: t.GetShape(), Data: t.GetData()}
	}
	return results, nil
}

// Close destroys the session and its tensors. It is safe to call more than once.
func (r *Runner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	switch {
	case r.session != nil:
		err = r.session.Destroy()
	case r.dynamic != nil:
		err = r.dynamic.Destroy()
	}
	r.destroyTensors()
	return err
}

// runDynamic replaces the outputs of the previous run with tensors the
// runtime allocates for the resolved input size.
func (r *Runner) runDynamic() error {
	r.destroyOutputs()

	values := make([]ort.Value, len(r.names))
	if err := r.dynamic.Run([]ort.Value{r.input}, values); err != nil {
		destroyValues(values)
		return err
	}
	for i, v := range values {
		t, ok := v.(*ort.Tensor[float32])
		if !ok {
			destroyValues(values[i:])
			return fmt.Errorf("output %q is not a float32 tensor", r.names[i])
		}
		r.outputs = append(r.outputs, t)
	}
	return nil
}

func (r *Runner) destroyTensors() {
	if r.input != nil {
		r.input.Destroy()
	}
	r.destroyOutputs()
}

func (r *Runner) destroyOutputs() {
	for _, t := range r.outputs {
		t.Destroy()
	}
	r.outputs = nil
}

func destroyValues(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			v.Destroy()
		}
	}
}

// ResolveInputShape determines the layout of a rank-4 image input and fills
// in dynamic dimensions. The batch is pinned to 1.
func ResolveInputShape(dims ort.Shape, fallbackW, fallbackH int) (Layout, ort.Shape, error) {
	if len(dims) != 4 {
		return NCHW, nil, fmt.Errorf("expected a rank-4 image input, got %v", dims)
	}

	var layout Layout
	switch {
	case dims[1] == 1 || dims[1] == 3:
		layout = NCHW
	case dims[3] == 1 || dims[3] == 3:
		layout = NHWC
	default:
		return NCHW, nil, fmt.Errorf("cannot find a channel axis in %v", dims)
	}

	shape := ort.NewShape(dims...)
	shape[0] = 1
	hAxis, wAxis := 2, 3
	if layout == NHWC {
		hAxis, wAxis = 1, 2
	}
	if shape[hAxis] <= 0 {
		shape[hAxis] = int64(fallbackH)
	}
	if shape[wAxis] <= 0 {
		shape[wAxis] = int64(fallbackW)
	}
	if shape[hAxis] <= 0 || shape[wAxis] <= 0 {
		return layout, nil, fmt.Errorf("input %v has dynamic spatial dimensions and no fallback size", dims)
	}
	return layout, shape, nil
}

// HasDynamicOutputs reports whether any output leaves a dimension other than
// the batch unresolved, so it cannot be preallocated.
func HasDynamicOutputs(outputs []ort.InputOutputInfo) bool {
	for _, out := range outputs {
		if _, ok := staticOutputShape(out.Dimensions); !ok {
			return true
		}
	}
	return false
}

// staticOutputShape pins a dynamic batch to 1. It fails when any other
// dimension is dynamic.
func staticOutputShape(dims ort.Shape) (ort.Shape, bool) {
	shape := ort.NewShape(dims...)
	for i, d := range shape {
		if d > 0 {
			continue
		}
		if i != 0 {
			return nil, false
		}
		shape[i] = 1
	}
	return shape, true
}
