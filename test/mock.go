// Package test holds deterministic frame sources and displays for tests.
package test

import (
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"
)

// MockFrameGenerator creates deterministic BGR test frames.
//
// @example
// gen := NewMockFrameGenerator(640, 480)
// frame := gen.GenerateStaticFrame()
// defer frame.Close()
type MockFrameGenerator struct {
	width  int
	height int
}

// NewMockFrameGenerator creates a new frame generator with specified dimensions.
//
// Arguments:
// - width: Frame width in pixels.
// - height: Frame height in pixels.
//
// Returns:
// - A configured MockFrameGenerator instance.
func NewMockFrameGenerator(width, height int) *MockFrameGenerator {
	return &MockFrameGenerator{width: width, height: height}
}

// GenerateStaticFrame creates a mid-gray BGR frame.
func (g *MockFrameGenerator) GenerateStaticFrame() gocv.Mat {
	frame := gocv.NewMatWithSize(g.height, g.width, gocv.MatTypeCV8UC3)
	frame.SetTo(gocv.NewScalar(128, 128, 128, 0))
	return frame
}

// GenerateFireFrame creates a gray frame with an orange square at (x, y).
func (g *MockFrameGenerator) GenerateFireFrame(x, y, size int) gocv.Mat {
	frame := g.GenerateStaticFrame()
	rect := image.Rect(x, y, x+size, y+size)
	gocv.Rectangle(&frame, rect, color.RGBA{R: 255, G: 120, B: 0}, -1)
	return frame
}

// MockSource replays a frame a fixed number of times, then fails.
type MockSource struct {
	mu     sync.Mutex
	frame  gocv.Mat
	limit  int
	reads  int
	closed int
	// OnClose runs on every Close, e.g. to record release order.
	OnClose func()
}

// NewMockSource returns a source yielding a copy of frame limit times. A
// negative limit never fails. The source takes ownership of frame.
func NewMockSource(frame gocv.Mat, limit int) *MockSource {
	return &MockSource{frame: frame, limit: limit}
}

// Read implements camera.Source.
func (s *MockSource) Read(dst *gocv.Mat) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limit >= 0 && s.reads >= s.limit {
		return false
	}
	s.reads++
	s.frame.CopyTo(dst)
	return true
}

// Close implements camera.Source.
func (s *MockSource) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	if s.OnClose != nil {
		s.OnClose()
	}
	return s.frame.Close()
}

// Size returns the dimensions of the replayed frame.
func (s *MockSource) Size() (int, int) {
	return s.frame.Cols(), s.frame.Rows()
}

// Reads returns the number of successful reads.
func (s *MockSource) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Closed returns the number of Close calls.
func (s *MockSource) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// MockDisplay records shown frames and replays key presses.
type MockDisplay struct {
	mu     sync.Mutex
	keys   []int
	shown  int
	waits  int
	closed int
	last   gocv.Mat
	// OnClose runs on every Close, e.g. to record release order.
	OnClose func()
}

// NewMockDisplay returns a display answering WaitKey with keys in order,
// then -1.
func NewMockDisplay(keys ...int) *MockDisplay {
	return &MockDisplay{keys: keys, last: gocv.NewMat()}
}

// Show implements display.Display.
func (d *MockDisplay) Show(frame gocv.Mat) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shown++
	frame.CopyTo(&d.last)
}

// WaitKey implements display.Display.
func (d *MockDisplay) WaitKey(int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.waits
	d.waits++
	if i < len(d.keys) {
		return d.keys[i]
	}
	return -1
}

// Close implements display.Display.
func (d *MockDisplay) Close() error {
	d.mu.Lock()
	d.closed++
	d.mu.Unlock()
	if d.OnClose != nil {
		d.OnClose()
	}
	return nil
}

// Shown returns the number of frames shown.
func (d *MockDisplay) Shown() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shown
}

// Closed returns the number of Close calls.
func (d *MockDisplay) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Last returns a copy of the most recently shown frame. The caller owns it.
func (d *MockDisplay) Last() gocv.Mat {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last.Clone()
}
