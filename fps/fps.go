// Package fps counts frames between a start and a stop timestamp.
package fps

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Counter tracks the number of frames seen between Start and the most recent
// Stop. It is not safe for concurrent use.
type Counter struct {
	clock  clock.Clock
	start  time.Time
	end    time.Time
	frames int
}

// New returns a counter reading time from clk. A nil clk uses the wall clock.
func New(clk clock.Clock) *Counter {
	if clk == nil {
		clk = clock.New()
	}
	return &Counter{clock: clk}
}

// Start resets the frame count and records the start timestamp.
func (c *Counter) Start() *Counter {
	c.start = c.clock.Now()
	c.end = c.start
	c.frames = 0
	return c
}

// Update counts one frame.
func (c *Counter) Update() {
	c.frames++
}

// Stop records the end timestamp. It may be called repeatedly to take a
// running measurement.
func (c *Counter) Stop() {
	c.end = c.clock.Now()
}

// Frames returns the number of frames counted since Start.
func (c *Counter) Frames() int {
	return c.frames
}

// Elapsed returns the time between Start and the last Stop.
func (c *Counter) Elapsed() time.Duration {
	if c.end.Before(c.start) {
		return 0
	}
	return c.end.Sub(c.start)
}

// FPS returns frames per second over the elapsed interval, or 0 when no time
// has elapsed.
func (c *Counter) FPS() float64 {
	elapsed := c.Elapsed().Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(c.frames) / elapsed
}
