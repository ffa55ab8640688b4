// Package yolov4 - postprocess YOLOv4 model outputs.
package yolov4

import (
	"fmt"
	"sort"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-firewatch/images"
	"github.com/nvr-ai/go-firewatch/models/postprocess"
	"gorgonia.org/tensor"
)

// Tensor is one raw output head of the network.
type Tensor struct {
	Name  string
	Shape []int64
	Data  []float32
}

// PostProcess decodes every output head, drops low scoring candidates and
// applies Non-Maximum Suppression.
//
// Arguments:
//   - outputs: The raw output heads, in any order.
//
// Returns:
//   - Detections in model input pixels, highest score first.
//   - error: If an output does not match the anchor/class layout.
func (m *YOLOv4) PostProcess(outputs []Tensor) ([]postprocess.Result, error) {
	candidates, err := m.Decode(outputs)
	if err != nil {
		return nil, err
	}
	return postprocess.ApplyNMS(candidates, m.options.NMS), nil
}

// head is an output normalised to [H, W, A*(5+C)].
type head struct {
	name string
	grid [2]int // rows, cols
	data []float32
}

// Decode converts raw heads into scored boxes above the confidence threshold.
//
// Heads are matched to anchors by grid size: the finest grid takes the
// smallest anchors. Each head may be laid out as [1,H,W,A*(5+C)],
// [1,H,W,A,5+C], [1,A,H,W,5+C] or [1,A*(5+C),H,W].
func (m *YOLOv4) Decode(outputs []Tensor) ([]postprocess.Result, error) {
	if len(outputs) == 0 {
		return nil, fmt.Errorf("no output tensors to decode")
	}
	if len(m.options.Anchors)%len(outputs) != 0 {
		return nil, fmt.Errorf("%d anchors cannot be split across %d outputs", len(m.options.Anchors), len(outputs))
	}
	perScale := len(m.options.Anchors) / len(outputs)
	channels := perScale * (5 + m.options.NumClasses)

	heads := make([]head, 0, len(outputs))
	for _, out := range outputs {
		h, err := toHead(out, channels)
		if err != nil {
			return nil, err
		}
		heads = append(heads, h)
	}
	sort.SliceStable(heads, func(i, j int) bool {
		return heads[i].grid[0]*heads[i].grid[1] > heads[j].grid[0]*heads[j].grid[1]
	})

	var results []postprocess.Result
	for s, h := range heads {
		anchors := m.options.Anchors[s*perScale : (s+1)*perScale]
		results = m.decodeHead(results, h, anchors)
	}
	return postprocess.FilterByScore(results, m.options.ConfidenceThreshold), nil
}

func (m *YOLOv4) decodeHead(results []postprocess.Result, h head, anchors []Anchor) []postprocess.Result {
	rows, cols := h.grid[0], h.grid[1]
	attrs := 5 + m.options.NumClasses
	inW := float32(m.options.InputWidth)
	inH := float32(m.options.InputHeight)
	threshold := m.options.ConfidenceThreshold

	for gy := 0; gy < rows; gy++ {
		for gx := 0; gx < cols; gx++ {
			for a, anchor := range anchors {
				off := ((gy*cols+gx)*len(anchors) + a) * attrs
				p := h.data[off : off+attrs]

				objectness := sigmoid(p[4])
				if objectness < threshold {
					continue
				}

				class, best := 0, float32(0)
				for c := 0; c < m.options.NumClasses; c++ {
					if s := sigmoid(p[5+c]); s > best {
						class, best = c, s
					}
				}
				score := objectness * best

				cx := (sigmoid(p[0]) + float32(gx)) / float32(cols) * inW
				cy := (sigmoid(p[1]) + float32(gy)) / float32(rows) * inH
				w := math32.Exp(p[2]) * anchor.W
				hh := math32.Exp(p[3]) * anchor.H

				results = append(results, postprocess.Result{
					Box: images.Rect{
						X1: int(cx - w/2),
						Y1: int(cy - hh/2),
						X2: int(cx + w/2),
						Y2: int(cy + hh/2),
					},
					Score: score,
					Class: class,
				})
			}
		}
	}
	return results
}

// toHead validates the shape of a raw output and lays it out as [H, W, C].
func toHead(out Tensor, channels int) (head, error) {
	dims := make([]int, len(out.Shape))
	volume := 1
	for i, d := range out.Shape {
		if d <= 0 {
			return head{}, fmt.Errorf("output %q has unresolved dimension %v", out.Name, out.Shape)
		}
		dims[i] = int(d)
		volume *= int(d)
	}
	if volume != len(out.Data) {
		return head{}, fmt.Errorf("output %q holds %d values, shape %v needs %d", out.Name, len(out.Data), out.Shape, volume)
	}
	if len(dims) < 4 || dims[0] != 1 {
		return head{}, fmt.Errorf("output %q must be a single-batch 4D or 5D tensor, got %v", out.Name, out.Shape)
	}

	backing := make([]float32, len(out.Data))
	copy(backing, out.Data)
	t := tensor.New(tensor.WithShape(dims...), tensor.WithBacking(backing))

	// [1,H,W,A,5+C] wins when a 5-D shape matches both anchor layouts.
	var rows, cols int
	switch {
	case len(dims) == 5 && dims[3]*dims[4] == channels:
		rows, cols = dims[1], dims[2]
		if err := t.Reshape(rows, cols, channels); err != nil {
			return head{}, fmt.Errorf("reshaping output %q: %w", out.Name, err)
		}
	case len(dims) == 5 && dims[1]*dims[4] == channels:
		rows, cols = dims[2], dims[3]
		if err := t.Reshape(dims[1], rows, cols, dims[4]); err != nil {
			return head{}, fmt.Errorf("reshaping output %q: %w", out.Name, err)
		}
		if err := t.T(1, 2, 0, 3); err != nil {
			return head{}, fmt.Errorf("transposing output %q: %w", out.Name, err)
		}
		if err := t.Transpose(); err != nil {
			return head{}, fmt.Errorf("transposing output %q: %w", out.Name, err)
		}
		if err := t.Reshape(rows, cols, channels); err != nil {
			return head{}, fmt.Errorf("reshaping output %q: %w", out.Name, err)
		}
	case len(dims) == 4 && dims[3] == channels:
		rows, cols = dims[1], dims[2]
		if err := t.Reshape(rows, cols, channels); err != nil {
			return head{}, fmt.Errorf("reshaping output %q: %w", out.Name, err)
		}
	case len(dims) == 4 && dims[1] == channels:
		rows, cols = dims[2], dims[3]
		if err := t.Reshape(channels, rows, cols); err != nil {
			return head{}, fmt.Errorf("reshaping output %q: %w", out.Name, err)
		}
		if err := t.T(1, 2, 0); err != nil {
			return head{}, fmt.Errorf("transposing output %q: %w", out.Name, err)
		}
		if err := t.Transpose(); err != nil {
			return head{}, fmt.Errorf("transposing output %q: %w", out.Name, err)
		}
	default:
		return head{}, fmt.Errorf("output %q shape %v does not carry %d channels", out.Name, out.Shape, channels)
	}

	data, ok := t.Data().([]float32)
	if !ok {
		return head{}, fmt.Errorf("output %q is not float32", out.Name)
	}
	return head{name: out.Name, grid: [2]int{rows, cols}, data: data}, nil
}

func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}
