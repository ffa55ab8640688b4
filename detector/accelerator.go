package detector

import (
	"context"
	"image"
	"sync"

	"github.com/nvr-ai/go-firewatch/inference/graph"
	"github.com/nvr-ai/go-firewatch/inference/providers"
	"github.com/nvr-ai/go-firewatch/inference/runner"
	"github.com/nvr-ai/go-firewatch/models/postprocess"
	"github.com/nvr-ai/go-firewatch/models/yolov4"
	"github.com/nvr-ai/go-firewatch/profiler"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Runner executes the model on a preallocated input buffer.
type Runner interface {
	InputSize() (width, height int)
	Layout() runner.Layout
	Input() []float32
	Execute(ctx context.Context) ([]runner.Output, error)
	Close() error
}

// Config describes the model and decoding parameters of an Accelerator.
type Config struct {
	// ModelPath is the compiled model file.
	ModelPath string
	// LibraryPath overrides the runtime shared library location.
	LibraryPath string
	// Provider selects the execution provider.
	Provider providers.Config
	// ClassNames indexes the model's classes.
	ClassNames []string
	// Anchors as flat width,height pairs, smallest first.
	Anchors []float64
	// DetThreshold drops candidates scoring lower.
	DetThreshold float32
	// NMSThreshold is the IoU above which overlapping boxes are suppressed.
	NMSThreshold float32
	// FallbackWidth and FallbackHeight size models with dynamic inputs.
	FallbackWidth  int
	FallbackHeight int
}

// Option configures an Accelerator.
type Option func(*Accelerator)

// WithLogger sets the logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(a *Accelerator) { a.logger = logger }
}

// WithProfiler records stage timings into p.
func WithProfiler(p *profiler.Profiler) Option {
	return func(a *Accelerator) { a.profiler = p }
}

type lifecycle int

const (
	idle lifecycle = iota
	started
	stopped
)

// Accelerator runs a YOLOv4 model through a runtime session.
type Accelerator struct {
	mu       sync.Mutex
	runner   Runner
	model    *yolov4.YOLOv4
	state    lifecycle
	ownsEnv  bool
	logger   *zap.SugaredLogger
	profiler *profiler.Profiler
}

// NewAccelerator loads the runtime, checks that the model holds exactly one
// accelerator subgraph and opens a session on it.
//
// Returns graph.ErrSubgraphCount, wrapped, when the model is incompatible.
func NewAccelerator(cfg Config, opts ...Option) (*Accelerator, error) {
	libPath, err := providers.SharedLibPath(cfg.LibraryPath)
	if err != nil {
		return nil, err
	}
	if err := providers.InitializeEnvironment(libPath); err != nil {
		return nil, err
	}

	a, err := newAccelerator(cfg, opts...)
	if err != nil {
		return nil, multierr.Append(err, providers.DestroyEnvironment())
	}
	a.ownsEnv = true
	return a, nil
}

func newAccelerator(cfg Config, opts ...Option) (*Accelerator, error) {
	g, err := graph.Deserialize(cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	sub, err := g.RequireSingleAccelerator()
	if err != nil {
		return nil, err
	}

	r, err := runner.New(cfg.ModelPath, sub, runner.Config{
		Provider:       cfg.Provider,
		FallbackWidth:  cfg.FallbackWidth,
		FallbackHeight: cfg.FallbackHeight,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "creating runner for %s", sub.Name)
	}

	a, err := NewWithRunner(r, cfg, opts...)
	if err != nil {
		return nil, multierr.Append(err, r.Close())
	}
	a.logger.Infow("accelerator ready",
		"model", g.Name,
		"subgraph", sub.Name,
		"provider", cfg.Provider.Backend,
		"layout", r.Layout(),
	)
	return a, nil
}

// NewWithRunner builds an Accelerator over an existing runner. The
// Accelerator takes ownership of r.
func NewWithRunner(r Runner, cfg Config, opts ...Option) (*Accelerator, error) {
	anchors, err := yolov4.ParseAnchors(cfg.Anchors)
	if err != nil {
		return nil, err
	}
	if len(cfg.ClassNames) == 0 {
		return nil, errors.New("at least one class name is required")
	}

	w, h := r.InputSize()
	model, err := yolov4.NewModel(yolov4.NewModelArgs{
		InputWidth:          w,
		InputHeight:         h,
		NumClasses:          len(cfg.ClassNames),
		Anchors:             anchors,
		ConfidenceThreshold: cfg.DetThreshold,
		NMS: postprocess.NMSConfig{
			IoUThreshold: cfg.NMSThreshold,
			ClassAware:   true,
		},
	})
	if err != nil {
		return nil, err
	}

	a := &Accelerator{
		runner: r,
		model:  model,
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Start implements Detector.
func (a *Accelerator) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == stopped {
		return ErrStopped
	}
	a.state = started
	return nil
}

// Process implements Detector.
func (a *Accelerator) Process(ctx context.Context, img image.Image) (Detections, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case idle:
		return Detections{}, ErrNotStarted
	case stopped:
		return Detections{}, ErrStopped
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return Detections{}, errors.New("empty frame")
	}

	inW, inH := a.runner.InputSize()
	lb := NewLetterbox(bounds.Dx(), bounds.Dy(), inW, inH)

	done := a.profiler.StartOperation(profiler.StagePreprocess)
	err := FillTensor(a.runner.Input(), lb.Apply(img, inW, inH), a.runner.Layout())
	done()
	if err != nil {
		return Detections{}, err
	}

	done = a.profiler.StartOperation(profiler.StageInference)
	outputs, err := a.runner.Execute(ctx)
	done()
	if err != nil {
		return Detections{}, errors.Wrap(err, "executing model")
	}

	done = a.profiler.StartOperation(profiler.StageDecode)
	defer done()

	tensors := make([]yolov4.Tensor, len(outputs))
	for i, out := range outputs {
		tensors[i] = yolov4.Tensor{Name: out.Name, Shape: out.Shape, Data: out.Data}
	}
	results, err := a.model.PostProcess(tensors)
	if err != nil {
		return Detections{}, errors.Wrap(err, "decoding outputs")
	}

	var dets Detections
	for _, r := range results {
		box := lb.Unmap(r.Box)
		if box.Empty() {
			continue
		}
		dets.Boxes = append(dets.Boxes, box)
		dets.Scores = append(dets.Scores, r.Score)
		dets.Classes = append(dets.Classes, r.Class)
	}
	a.profiler.RecordMetric("detections", float64(dets.Len()))
	return dets, nil
}

// Stop implements Detector. The runner, and the runtime environment when the
// Accelerator loaded it, are released on the first call only.
func (a *Accelerator) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == stopped {
		return nil
	}
	a.state = stopped

	err := a.runner.Close()
	if a.ownsEnv {
		err = multierr.Append(err, providers.DestroyEnvironment())
	}
	a.logger.Debugw("accelerator stopped", "error", err)
	return err
}
