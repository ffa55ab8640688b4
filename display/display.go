// Package display - Output windows for annotated frames.
package display

import (
	"gocv.io/x/gocv"
)

// Title is the window title.
const Title = "Fire Detection"

// QuitKey ends the frame loop when pressed.
const QuitKey = 'q'

// Display shows frames and reports key presses.
type Display interface {
	// Show presents a frame.
	Show(frame gocv.Mat)
	// WaitKey waits up to delay milliseconds for a key and returns its code,
	// or -1 when none was pressed.
	WaitKey(delay int) int
	// Close destroys the window.
	Close() error
}

// IsQuit reports whether key is the quit key.
func IsQuit(key int) bool {
	return key >= 0 && key&0xFF == QuitKey
}

// Window is a Display backed by a HighGUI window.
type Window struct {
	win *gocv.Window
}

// Open creates a window with the given title.
func Open(title string) *Window {
	return &Window{win: gocv.NewWindow(title)}
}

// Show implements Display.
func (w *Window) Show(frame gocv.Mat) {
	w.win.IMShow(frame)
}

// WaitKey implements Display.
func (w *Window) WaitKey(delay int) int {
	return w.win.WaitKey(delay)
}

// Close implements Display.
func (w *Window) Close() error {
	return w.win.Close()
}

// Headless is a Display that drops frames and never reports a key.
type Headless struct{}

// Show implements Display.
func (Headless) Show(gocv.Mat) {}

// WaitKey implements Display.
func (Headless) WaitKey(int) int { return -1 }

// Close implements Display.
func (Headless) Close() error { return nil }
