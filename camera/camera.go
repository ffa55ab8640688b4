// Package camera - Frame sources backed by gocv video capture.
package camera

import (
	"fmt"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrNotOpened is returned when a capture device or file cannot be opened.
var ErrNotOpened = errors.New("video source not opened")

// Source yields BGR frames.
type Source interface {
	// Read fills frame with the next image. It returns false when no frame
	// could be read.
	Read(frame *gocv.Mat) bool
	// Close releases the device.
	Close() error
}

// Capture is a Source over a gocv.VideoCapture.
type Capture struct {
	vc   *gocv.VideoCapture
	name string
}

// Open opens the capture device at index and requests a width x height
// resolution. The device may pick a different resolution.
//
// Arguments:
//   - index: The capture device index.
//   - width: The requested frame width.
//   - height: The requested frame height.
//
// Returns:
//   - *Capture: The opened device.
//   - error: ErrNotOpened, wrapped with the index, if the device fails.
func Open(index, width, height int) (*Capture, error) {
	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, errors.Wrapf(ErrNotOpened, "camera %d: %v", index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.Wrapf(ErrNotOpened, "camera %d", index)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(height))

	return &Capture{vc: vc, name: fmt.Sprintf("camera %d", index)}, nil
}

// OpenFile opens a video file as a frame source.
func OpenFile(path string) (*Capture, error) {
	vc, err := gocv.OpenVideoCapture(path)
	if err != nil {
		return nil, errors.Wrapf(ErrNotOpened, "video %s: %v", path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.Wrapf(ErrNotOpened, "video %s", path)
	}
	return &Capture{vc: vc, name: path}, nil
}

// Read implements Source.
func (c *Capture) Read(frame *gocv.Mat) bool {
	return c.vc.Read(frame)
}

// Size returns the negotiated frame size.
func (c *Capture) Size() (int, int) {
	return int(c.vc.Get(gocv.VideoCaptureFrameWidth)), int(c.vc.Get(gocv.VideoCaptureFrameHeight))
}

// String returns the device or file name.
func (c *Capture) String() string {
	return c.name
}

// Close implements Source.
func (c *Capture) Close() error {
	return c.vc.Close()
}
