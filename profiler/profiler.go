// Package profiler records per-stage timings and sampled metrics for the
// frame loop and reports them through the logger.
package profiler

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Stage names used by the frame loop.
const (
	StageRead       = "read"
	StageConvert    = "convert"
	StagePreprocess = "preprocess"
	StageInference  = "inference"
	StageDecode     = "decode"
	StageAnnotate   = "annotate"
	StageDisplay    = "display"
)

// DefaultMaxSamples bounds the sliding window kept per stage.
const DefaultMaxSamples = 600

// Options configures the profiler.
type Options struct {
	// Clock is the time source. Defaults to the wall clock.
	Clock clock.Clock
	// MaxSamples bounds the window each stage and metric keeps (default: 600).
	MaxSamples int
}

// Profiler tracks operation durations and custom metrics. It is safe for
// concurrent use.
type Profiler struct {
	clock      clock.Clock
	maxSamples int

	mu        sync.Mutex
	startTime time.Time
	stages    map[string]*timeTracker
	metrics   map[string]*metricTracker
	order     []string
}

// StageStats is a snapshot of one stage's timings over the sample window.
type StageStats struct {
	Name  string
	Count int64
	Avg   time.Duration
	Min   time.Duration
	Max   time.Duration
}

// MetricStats is a snapshot of one metric over the sample window.
type MetricStats struct {
	Name    string
	Avg     float64
	Min     float64
	Max     float64
	Samples int
}

type timeTracker struct {
	durations []time.Duration
	total     time.Duration
	min       time.Duration
	max       time.Duration
	count     int64
}

type metricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
}

// New creates a profiler.
//
// Arguments:
//   - opts: Configuration options for the profiler.
//
// Returns:
//   - A profiler whose uptime starts now.
func New(opts Options) *Profiler {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = DefaultMaxSamples
	}
	return &Profiler{
		clock:      opts.Clock,
		maxSamples: opts.MaxSamples,
		startTime:  opts.Clock.Now(),
		stages:     make(map[string]*timeTracker),
		metrics:    make(map[string]*metricTracker),
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//
// Returns:
//   - A function to call when the operation completes.
func (p *Profiler) StartOperation(name string) func() {
	if p == nil {
		return func() {}
	}
	start := p.clock.Now()
	return func() {
		p.RecordDuration(name, p.clock.Since(start))
	}
}

// RecordDuration adds one sample to the named stage.
func (p *Profiler) RecordDuration(name string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.stages[name]
	if !ok {
		t = &timeTracker{min: d, max: d}
		p.stages[name] = t
		p.order = append(p.order, name)
	}

	t.durations = append(t.durations, d)
	t.total += d
	if len(t.durations) > p.maxSamples {
		t.total -= t.durations[0]
		t.durations = t.durations[1:]
	}
	t.count++
	if d < t.min {
		t.min = d
	}
	if d > t.max {
		t.max = d
	}
}

// RecordMetric records a custom metric value.
func (p *Profiler) RecordMetric(name string, value float64) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.metrics[name]
	if !ok {
		m = &metricTracker{min: value, max: value}
		p.metrics[name] = m
	}

	m.values = append(m.values, value)
	m.sum += value
	if len(m.values) > p.maxSamples {
		m.sum -= m.values[0]
		m.values = m.values[1:]
	}
	if value < m.min {
		m.min = value
	}
	if value > m.max {
		m.max = value
	}
}

// Stages returns stage statistics in the order stages were first recorded.
func (p *Profiler) Stages() []StageStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]StageStats, 0, len(p.order))
	for _, name := range p.order {
		t := p.stages[name]
		out = append(out, StageStats{
			Name:  name,
			Count: t.count,
			Avg:   t.total / time.Duration(len(t.durations)),
			Min:   t.min,
			Max:   t.max,
		})
	}
	return out
}

// Metrics returns metric statistics sorted by name.
func (p *Profiler) Metrics() []MetricStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]MetricStats, 0, len(p.metrics))
	for name, m := range p.metrics {
		out = append(out, MetricStats{
			Name:    name,
			Avg:     m.sum / float64(len(m.values)),
			Min:     m.min,
			Max:     m.max,
			Samples: len(m.values),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Uptime returns the time since the profiler was created.
func (p *Profiler) Uptime() time.Duration {
	return p.clock.Since(p.startTime)
}

// LogSummary writes the stage timings, metrics and memory usage to logger.
func (p *Profiler) LogSummary(logger *zap.SugaredLogger) {
	if p == nil {
		return
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	logger.Infow("runtime",
		"uptime", p.Uptime().Truncate(time.Millisecond),
		"goroutines", runtime.NumGoroutine(),
		"heap_alloc", formatBytes(mem.HeapAlloc),
		"sys", formatBytes(mem.Sys),
		"gc_cycles", mem.NumGC,
	)

	for _, s := range p.Stages() {
		logger.Infow("stage timing",
			"stage", s.Name,
			"avg", s.Avg.Truncate(time.Microsecond),
			"min", s.Min.Truncate(time.Microsecond),
			"max", s.Max.Truncate(time.Microsecond),
			"count", s.Count,
		)
	}

	for _, m := range p.Metrics() {
		logger.Infow("metric",
			"name", m.Name,
			"avg", fmt.Sprintf("%.2f", m.Avg),
			"min", m.Min,
			"max", m.Max,
			"samples", m.Samples,
		)
	}
}

// formatBytes formats byte counts in human-readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
