// Package app wires the fire detector, camera and window together and owns
// their lifetimes.
package app

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/nvr-ai/go-firewatch/camera"
	"github.com/nvr-ai/go-firewatch/config"
	"github.com/nvr-ai/go-firewatch/detector"
	"github.com/nvr-ai/go-firewatch/display"
	"github.com/nvr-ai/go-firewatch/fps"
	"github.com/nvr-ai/go-firewatch/pipeline"
	"github.com/nvr-ai/go-firewatch/profiler"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Factories build the resources of a run.
type Factories struct {
	NewDetector func(cfg config.Config, prof *profiler.Profiler) (detector.Detector, error)
	OpenCamera  func(cfg config.Config) (camera.Source, error)
	OpenDisplay func(cfg config.Config) (display.Display, error)
}

// DefaultFactories builds the accelerator detector, a gocv capture and a
// HighGUI window, or a headless display when configured.
func DefaultFactories(logger *zap.SugaredLogger) Factories {
	return Factories{
		NewDetector: func(cfg config.Config, prof *profiler.Profiler) (detector.Detector, error) {
			det, err := detector.NewAccelerator(DetectorConfig(cfg),
				detector.WithLogger(logger.Named("detector")),
				detector.WithProfiler(prof),
			)
			if err != nil {
				return nil, err
			}
			return det, nil
		},
		OpenCamera: func(cfg config.Config) (camera.Source, error) {
			if cfg.Frames != "" {
				dir, err := camera.OpenDirectory(cfg.Frames)
				if err != nil {
					return nil, err
				}
				logger.Infow("replaying frames", "dir", dir.String(), "count", dir.Len())
				return dir, nil
			}

			var (
				cam *camera.Capture
				err error
			)
			if cfg.Video != "" {
				cam, err = camera.OpenFile(cfg.Video)
			} else {
				cam, err = camera.Open(cfg.Input, cfg.Width, cfg.Height)
			}
			if err != nil {
				return nil, err
			}
			logger.Infow("camera opened", "source", cam.String())
			return cam, nil
		},
		OpenDisplay: func(cfg config.Config) (display.Display, error) {
			if cfg.Headless {
				return display.Headless{}, nil
			}
			return display.Open(display.Title), nil
		},
	}
}

// DetectorConfig maps settings onto the accelerator configuration.
func DetectorConfig(cfg config.Config) detector.Config {
	return detector.Config{
		ModelPath:      cfg.Model,
		LibraryPath:    cfg.Library,
		Provider:       cfg.ProviderConfig(),
		ClassNames:     cfg.Classes,
		Anchors:        cfg.Anchors,
		DetThreshold:   float32(cfg.DetThreshold),
		NMSThreshold:   float32(cfg.NMSThreshold),
		FallbackWidth:  416,
		FallbackHeight: 416,
	}
}

// App is one run of the fire detector.
type App struct {
	cfg       config.Config
	factories Factories
	logger    *zap.SugaredLogger
	clock     clock.Clock
	lifecycle *pipeline.Lifecycle
	profiler  *profiler.Profiler
	counter   *fps.Counter
}

// Option configures an App.
type Option func(*App)

// WithClock sets the time source of the FPS counter and the profiler.
func WithClock(clk clock.Clock) Option {
	return func(a *App) { a.clock = clk }
}

// New creates an App.
func New(cfg config.Config, factories Factories, logger *zap.SugaredLogger, opts ...Option) *App {
	a := &App{
		cfg:       cfg,
		factories: factories,
		logger:    logger,
		clock:     clock.New(),
		lifecycle: pipeline.NewLifecycle(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.profiler = profiler.New(profiler.Options{Clock: a.clock})
	a.counter = fps.New(a.clock)
	return a
}

// State returns the lifecycle state.
func (a *App) State() pipeline.State {
	return a.lifecycle.State()
}

// Lifecycle returns the lifecycle tracker.
func (a *App) Lifecycle() *pipeline.Lifecycle {
	return a.lifecycle
}

// Counter returns the FPS counter of the frame loop.
func (a *App) Counter() *fps.Counter {
	return a.counter
}

// resources are released in field order: detector, camera, display.
type resources struct {
	detector detector.Detector
	camera   camera.Source
	display  display.Display
	pipeline *pipeline.Pipeline
}

func (r *resources) release() error {
	var err error
	if r.detector != nil {
		err = multierr.Append(err, errors.Wrap(r.detector.Stop(), "stopping detector"))
	}
	if r.camera != nil {
		err = multierr.Append(err, errors.Wrap(r.camera.Close(), "releasing camera"))
	}
	if r.display != nil {
		err = multierr.Append(err, errors.Wrap(r.display.Close(), "closing display"))
	}
	if r.pipeline != nil {
		err = multierr.Append(err, r.pipeline.Close())
	}
	return err
}

// Run builds the detector, opens the camera and window, and runs the frame
// loop until the quit key, ctx cancellation or an error. Every resource
// acquired is released before Run returns, including when it panics.
func (a *App) Run(ctx context.Context) (err error) {
	a.cfg.Log(a.logger)

	var res resources
	defer func() {
		if a.lifecycle.State() == pipeline.Running {
			a.transition(pipeline.ShuttingDown)
		}
		err = multierr.Append(err, res.release())
		a.transition(pipeline.Terminated)
	}()

	if err := a.setup(&res); err != nil {
		return err
	}

	a.transition(pipeline.Running)
	res.pipeline = pipeline.New(pipeline.Options{
		Source:     res.camera,
		Detector:   res.detector,
		Display:    res.display,
		ClassNames: a.cfg.Classes,
		Counter:    a.counter,
		Profiler:   a.profiler,
		Logger:     a.logger.Named("pipeline"),
	})

	err = res.pipeline.Run(ctx)
	a.logSummary()
	return err
}

func (a *App) setup(res *resources) error {
	det, err := a.factories.NewDetector(a.cfg, a.profiler)
	if err != nil {
		return errors.Wrap(err, "creating detector")
	}
	res.detector = det
	if err := det.Start(); err != nil {
		return errors.Wrap(err, "starting detector")
	}

	a.logger.Infow("starting camera input", "input", a.cfg.Input, "video", a.cfg.Video, "frames", a.cfg.Frames)
	cam, err := a.factories.OpenCamera(a.cfg)
	if err != nil {
		return errors.Wrap(err, "opening camera")
	}
	res.camera = cam
	if sized, ok := cam.(interface{ Size() (int, int) }); ok {
		w, h := sized.Size()
		a.logger.Infow("camera size", "width", w, "height", h)
	}

	disp, err := a.factories.OpenDisplay(a.cfg)
	if err != nil {
		return errors.Wrap(err, "opening display")
	}
	res.display = disp
	return nil
}

func (a *App) transition(to pipeline.State) {
	from := a.lifecycle.State()
	if err := a.lifecycle.Transition(to); err != nil {
		a.logger.Warnw("lifecycle", "error", err)
		return
	}
	a.logger.Debugw("lifecycle", "from", from, "to", to)
}

func (a *App) logSummary() {
	a.logger.Infow("elapsed time", "seconds", fmt.Sprintf("%.2f", a.counter.Elapsed().Seconds()))
	a.logger.Infow("elapsed FPS", "fps", fmt.Sprintf("%.2f", a.counter.FPS()), "frames", a.counter.Frames())
	a.profiler.LogSummary(a.logger.Named("profiler"))
}
