package detector

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/nvr-ai/go-firewatch/images"
	"github.com/nvr-ai/go-firewatch/inference/runner"
	"github.com/nvr-ai/go-firewatch/profiler"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	w, h     int
	layout   runner.Layout
	input    []float32
	outputs  []runner.Output
	execErr  error
	executed int
	closed   int
}

func newFakeRunner(w, h int, outputs ...runner.Output) *fakeRunner {
	return &fakeRunner{w: w, h: h, layout: runner.NHWC, input: make([]float32, w*h*3), outputs: outputs}
}

func (f *fakeRunner) InputSize() (int, int) { return f.w, f.h }
func (f *fakeRunner) Layout() runner.Layout { return f.layout }
func (f *fakeRunner) Input() []float32 { return f.input }
func (f *fakeRunner) Close() error { f.closed++; return nil }
func (f *fakeRunner) Execute(ctx context.Context) ([]runner.Output, error) {
	f.executed++
	return f.outputs, f.execErr
}

// fireHead is a 2x2 grid, 3 anchors, 1 class, with one confident candidate
// at row 1, col 0 on anchor 1.
func fireHead() runner.Output {
	const attrs = 6
	data := make([]float32, 2*2*3*attrs)
	for i := range data {
		data[i] = -20
	}
	off := ((1*2+0)*3 + 1) * attrs
	data[off+0], data[off+1], data[off+2], data[off+3] = 0, 0, 0, 0
	data[off+4], data[off+5] = 10, 10
	return runner.Output{Name: "head", Shape: []int64{1, 2, 2, 18}, Data: data}
}

func testConfig() Config {
	return Config{
		ClassNames:   []string{"fire"},
		Anchors:      []float64{10, 10, 20, 40, 30, 30},
		DetThreshold: 0.55,
		NMSThreshold: 0.35,
	}
}

func uniform(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestAccelerator_Process(t *testing.T) {
	r := newFakeRunner(64, 64, fireHead())
	mock := clock.NewMock()
	prof := profiler.New(profiler.Options{Clock: mock})

	a, err := NewWithRunner(r, testConfig(), WithProfiler(prof))
	require.NoError(t, err)
	require.NoError(t, a.Start())

	dets, err := a.Process(context.Background(), uniform(128, 128, color.NRGBA{255, 255, 255, 255}))
	require.NoError(t, err)
	require.Equal(t, 1, dets.Len())

	// Model box (6,28)-(26,68) at scale 0.5, clamped to the 128px frame.
	assert.Equal(t, images.Rect{X1: 12, Y1: 56, X2: 52, Y2: 128}, dets.Boxes[0])
	assert.Equal(t, 0, dets.Classes[0])
	assert.InDelta(t, 1.0, dets.Scores[0], 0.001)

	assert.Equal(t, 1, r.executed)
	assert.InDelta(t, 1.0, r.input[0], 1e-6)

	var names []string
	for _, s := range prof.Stages() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{profiler.StagePreprocess, profiler.StageInference, profiler.StageDecode}, names)
}

func TestAccelerator_NoDetections(t *testing.T) {
	head := fireHead()
	for i := range head.Data {
		head.Data[i] = -20
	}
	a, err := NewWithRunner(newFakeRunner(64, 64, head), testConfig())
	require.NoError(t, err)
	require.NoError(t, a.Start())

	dets, err := a.Process(context.Background(), uniform(64, 48, color.NRGBA{A: 255}))
	require.NoError(t, err)
	assert.Zero(t, dets.Len())
}

func TestAccelerator_Lifecycle(t *testing.T) {
	r := newFakeRunner(64, 64, fireHead())
	a, err := NewWithRunner(r, testConfig())
	require.NoError(t, err)

	_, err = a.Process(context.Background(), uniform(8, 8, color.NRGBA{A: 255}))
	assert.True(t, errors.Is(err, ErrNotStarted))

	require.NoError(t, a.Start())
	require.NoError(t, a.Stop())
	require.NoError(t, a.Stop())
	assert.Equal(t, 1, r.closed)

	_, err = a.Process(context.Background(), uniform(8, 8, color.NRGBA{A: 255}))
	assert.True(t, errors.Is(err, ErrStopped))
	assert.True(t, errors.Is(a.Start(), ErrStopped))
}

func TestAccelerator_ExecuteError(t *testing.T) {
	r := newFakeRunner(64, 64)
	r.execErr = errors.New("device lost")
	a, err := NewWithRunner(r, testConfig())
	require.NoError(t, err)
	require.NoError(t, a.Start())

	_, err = a.Process(context.Background(), uniform(8, 8, color.NRGBA{A: 255}))
	assert.ErrorContains(t, err, "device lost")
}

func TestNewWithRunner_Validation(t *testing.T) {
	cfg := testConfig()
	cfg.Anchors = []float64{1, 2, 3}
	_, err := NewWithRunner(newFakeRunner(64, 64), cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.ClassNames = nil
	_, err = NewWithRunner(newFakeRunner(64, 64), cfg)
	assert.Error(t, err)
}

func TestStub(t *testing.T) {
	s := &Stub{Results: []Detections{{
		Boxes:   []images.Rect{images.FromTLBR(100, 100, 200, 200)},
		Scores:  []float32{0.9},
		Classes: []int{0},
	}}}

	require.NoError(t, s.Start())
	first, err := s.Process(context.Background(), uniform(4, 4, color.NRGBA{}))
	require.NoError(t, err)
	second, err := s.Process(context.Background(), uniform(2, 2, color.NRGBA{}))
	require.NoError(t, err)
	require.NoError(t, s.Stop())

	assert.Equal(t, 1, first.Len())
	assert.Zero(t, second.Len())

	start, process, stop := s.Calls()
	assert.Equal(t, [3]int{1, 2, 1}, [3]int{start, process, stop})
	assert.Equal(t, []image.Rectangle{image.Rect(0, 0, 4, 4), image.Rect(0, 0, 2, 2)}, s.Frames())
}
