// Package pipeline runs the per-frame loop: read, detect, annotate, show.
package pipeline

import (
	"context"

	"github.com/nvr-ai/go-firewatch/camera"
	"github.com/nvr-ai/go-firewatch/detector"
	"github.com/nvr-ai/go-firewatch/display"
	"github.com/nvr-ai/go-firewatch/fps"
	"github.com/nvr-ai/go-firewatch/images"
	"github.com/nvr-ai/go-firewatch/profiler"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// ErrFrameRead is returned when the source fails to deliver a frame.
var ErrFrameRead = errors.New("failed to read frame")

// KeyDelay is how long each iteration polls for a key, in milliseconds.
const KeyDelay = 1

// Options wires a Pipeline.
type Options struct {
	Source     camera.Source
	Detector   detector.Detector
	Display    display.Display
	ClassNames []string
	Counter    *fps.Counter
	Profiler   *profiler.Profiler
	Logger     *zap.SugaredLogger
}

// Pipeline owns the frame buffers of the loop. It does not own the source,
// detector or display.
type Pipeline struct {
	source   camera.Source
	detector detector.Detector
	display  display.Display
	names    []string
	counter  *fps.Counter
	profiler *profiler.Profiler
	logger   *zap.SugaredLogger

	frame gocv.Mat
	rgb   gocv.Mat
	count int
}

// New allocates the frame buffers. Call Close to release them.
func New(opts Options) *Pipeline {
	if opts.Counter == nil {
		opts.Counter = fps.New(nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Pipeline{
		source:   opts.Source,
		detector: opts.Detector,
		display:  opts.Display,
		names:    opts.ClassNames,
		counter:  opts.Counter,
		profiler: opts.Profiler,
		logger:   opts.Logger,
		frame:    gocv.NewMat(),
		rgb:      gocv.NewMat(),
	}
}

// Counter returns the FPS counter of the loop.
func (p *Pipeline) Counter() *fps.Counter {
	return p.counter
}

// Frames returns the number of frames processed.
func (p *Pipeline) Frames() int {
	return p.count
}

// Run loops until the quit key is pressed or ctx is done, both of which
// return nil. A failed read returns ErrFrameRead.
func (p *Pipeline) Run(ctx context.Context) error {
	p.counter.Start()
	defer p.counter.Stop()

	for {
		if ctx.Err() != nil {
			p.logger.Infow("stopping on signal", "frames", p.count)
			return nil
		}

		quit, err := p.Step(ctx)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		}
		if quit {
			p.logger.Infow("quit key pressed", "frames", p.count)
			return nil
		}
	}
}

// Step reads, processes and shows one frame, then polls the display for a
// key. It reports whether the quit key was pressed.
func (p *Pipeline) Step(ctx context.Context) (bool, error) {
	done := p.profiler.StartOperation(profiler.StageRead)
	ok := p.source.Read(&p.frame)
	done()
	if !ok || p.frame.Empty() {
		return false, errors.Wrapf(ErrFrameRead, "after %d frames", p.count)
	}

	if err := p.ProcessFrame(ctx, &p.frame); err != nil {
		return false, err
	}
	p.count++

	done = p.profiler.StartOperation(profiler.StageDisplay)
	p.display.Show(p.frame)
	key := p.display.WaitKey(KeyDelay)
	done()

	return display.IsQuit(key), nil
}

// ProcessFrame detects fire in a BGR frame and draws the results and the
// FPS overlay onto it in place.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame *gocv.Mat) error {
	done := p.profiler.StartOperation(profiler.StageConvert)
	gocv.CvtColor(*frame, &p.rgb, gocv.ColorBGRToRGB)
	img, err := images.FromRGBMat(p.rgb)
	done()
	if err != nil {
		return err
	}

	dets, err := p.detector.Process(ctx, img)
	if err != nil {
		return errors.Wrap(err, "detecting")
	}
	if dets.Len() > 0 {
		p.logger.Debugw("detections", "frame", p.count, "count", dets.Len(), "scores", dets.Scores)
	}

	done = p.profiler.StartOperation(profiler.StageAnnotate)
	Annotate(frame, dets, p.names)
	p.counter.Update()
	p.counter.Stop()
	DrawFPS(frame, p.counter.FPS())
	done()
	return nil
}

// Close releases the frame buffers.
func (p *Pipeline) Close() error {
	return multierr.Combine(p.frame.Close(), p.rgb.Close())
}
