// Package yolov4 - YOLOv4 anchor decoding.
package yolov4

import (
	"fmt"

	"github.com/nvr-ai/go-firewatch/models/postprocess"
)

// Anchor is a predefined box shape in model input pixels.
type Anchor struct {
	W, H float32
}

// ParseAnchors turns a flat width,height list into anchor pairs.
//
// Arguments:
//   - flat: Alternating widths and heights, e.g. [12,16, 19,36, ...].
//
// Returns:
//   - []Anchor: One anchor per pair.
//   - error: If the list is empty or has an odd length.
func ParseAnchors(flat []float64) ([]Anchor, error) {
	if len(flat) == 0 || len(flat)%2 != 0 {
		return nil, fmt.Errorf("anchor list must hold width,height pairs, got %d values", len(flat))
	}
	anchors := make([]Anchor, 0, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		anchors = append(anchors, Anchor{W: float32(flat[i]), H: float32(flat[i+1])})
	}
	return anchors, nil
}

// NewModelArgs is the arguments for creating a new YOLOv4 decoder.
type NewModelArgs struct {
	// InputWidth and InputHeight are the model input dimensions in pixels.
	InputWidth  int `json:"input_width" yaml:"input_width"`
	InputHeight int `json:"input_height" yaml:"input_height"`
	// NumClasses is the number of class scores per anchor.
	NumClasses int `json:"num_classes" yaml:"num_classes"`
	// Anchors, smallest first. They are split evenly across the output scales.
	Anchors []Anchor `json:"anchors" yaml:"anchors"`
	// ConfidenceThreshold drops candidates whose objectness*class score is lower.
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold"`
	// NMS configures suppression of overlapping candidates.
	NMS postprocess.NMSConfig `json:"nms" yaml:"nms"`
}

// YOLOv4 is the instance of the YOLOv4 decoder.
type YOLOv4 struct {
	options NewModelArgs
}

// Options returns the options for the YOLOv4 model.
func (m *YOLOv4) Options() NewModelArgs {
	return m.options
}

// NewModel creates a new model.
//
// Arguments:
//   - args: The arguments for creating a new model.
//
// Returns:
//   - The model.
func NewModel(args NewModelArgs) (*YOLOv4, error) {
	if args.InputWidth <= 0 || args.InputHeight <= 0 {
		return nil, fmt.Errorf("NewModel requires a positive input size, got %dx%d", args.InputWidth, args.InputHeight)
	}

	if args.NumClasses <= 0 {
		return nil, fmt.Errorf("NewModel requires at least one class")
	}

	if len(args.Anchors) == 0 {
		return nil, fmt.Errorf("NewModel requires anchors to be set")
	}

	return &YOLOv4{options: args}, nil
}
