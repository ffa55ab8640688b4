// Package detector - Fire detectors that turn an RGB frame into scored boxes.
package detector

import (
	"context"
	"image"

	"github.com/nvr-ai/go-firewatch/images"
	"github.com/pkg/errors"
)

var (
	// ErrNotStarted is returned by Process before Start.
	ErrNotStarted = errors.New("detector not started")
	// ErrStopped is returned by Start and Process after Stop.
	ErrStopped = errors.New("detector stopped")
)

// Detections holds parallel slices, one entry per detected object.
type Detections struct {
	// Boxes in frame pixels.
	Boxes []images.Rect
	// Scores in [0, 1].
	Scores []float32
	// Classes index into the detector's class names.
	Classes []int
}

// Len returns the number of detections.
func (d Detections) Len() int {
	return len(d.Boxes)
}

// Detector finds objects in RGB frames.
type Detector interface {
	// Start prepares the detector for Process calls.
	Start() error
	// Process runs detection on one RGB frame. An empty result is valid.
	Process(ctx context.Context, img image.Image) (Detections, error)
	// Stop releases every runtime resource. It is idempotent.
	Stop() error
}

// DefaultClassNames is the class list of the fire model.
var DefaultClassNames = []string{"fire"}

// DefaultAnchors are the YOLOv4 anchors of the fire model, as width,height
// pairs for three scales, smallest first.
var DefaultAnchors = []float64{12, 16, 19, 36, 40, 28, 36, 75, 76, 55, 72, 146, 142, 110, 192, 243, 459, 401}
