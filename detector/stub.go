package detector

import (
	"context"
	"image"
	"sync"
)

// Stub is a Detector returning a fixed sequence of results. After the
// sequence is exhausted it returns empty Detections.
type Stub struct {
	// Results are returned by successive Process calls.
	Results []Detections
	// StartErr, ProcessErr and StopErr are returned by the matching calls.
	StartErr   error
	ProcessErr error
	StopErr    error

	mu           sync.Mutex
	startCalls   int
	processCalls int
	stopCalls    int
	frames       []image.Rectangle
}

// Start implements Detector.
func (s *Stub) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startCalls++
	return s.StartErr
}

// Process implements Detector.
func (s *Stub) Process(_ context.Context, img image.Image) (Detections, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.processCalls
	s.processCalls++
	s.frames = append(s.frames, img.Bounds())
	if s.ProcessErr != nil {
		return Detections{}, s.ProcessErr
	}
	if i < len(s.Results) {
		return s.Results[i], nil
	}
	return Detections{}, nil
}

// Stop implements Detector.
func (s *Stub) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCalls++
	return s.StopErr
}

// Calls returns how many times Start, Process and Stop were called.
func (s *Stub) Calls() (start, process, stop int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startCalls, s.processCalls, s.stopCalls
}

// Frames returns the bounds of every frame passed to Process.
func (s *Stub) Frames() []image.Rectangle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]image.Rectangle(nil), s.frames...)
}
