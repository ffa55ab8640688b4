// Package config loads the fire detector settings from flags, environment
// and an optional config file.
package config

import (
	"strings"

	"github.com/nvr-ai/go-firewatch/detector"
	"github.com/nvr-ai/go-firewatch/inference/providers"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// EnvPrefix prefixes every environment variable, e.g. FIREWATCH_INPUT.
const EnvPrefix = "FIREWATCH"

// ErrInvalidConfig is returned when a setting is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds every setting. It is fixed after startup.
type Config struct {
	// Input is the capture device index.
	Input int `mapstructure:"input"`

	// Video replaces the capture device with a video file when set.
	Video string `mapstructure:"video"`

	// Frames replays numbered image files from a directory when set.
	Frames string `mapstructure:"frames"`

	// Width and Height are the requested capture resolution.
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`

	// DetThreshold is the detection score threshold.
	DetThreshold float64 `mapstructure:"detthreshold"`

	// NMSThreshold is the IoU threshold of Non-Maximum Suppression.
	NMSThreshold float64 `mapstructure:"nmsthreshold"`

	Model    string    `mapstructure:"model"`
	Classes  []string  `mapstructure:"classes"`
	Anchors  []float64 `mapstructure:"anchors"`
	Library  string    `mapstructure:"library"`
	Provider string    `mapstructure:"provider"`
	DeviceID int       `mapstructure:"device_id"`
	Threads  int       `mapstructure:"threads"`

	// Headless runs without a window.
	Headless bool `mapstructure:"headless"`

	LogLevel string `mapstructure:"log_level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Input:        0,
		Width:        640,
		Height:       480,
		DetThreshold: 0.55,
		NMSThreshold: 0.35,
		Model:        "models/fire_yolov4.onnx",
		Classes:      append([]string(nil), detector.DefaultClassNames...),
		Anchors:      append([]float64(nil), detector.DefaultAnchors...),
		Provider:     string(providers.CPUProviderBackend),
		LogLevel:     "info",
	}
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("input", d.Input)
	v.SetDefault("video", d.Video)
	v.SetDefault("frames", d.Frames)
	v.SetDefault("width", d.Width)
	v.SetDefault("height", d.Height)
	v.SetDefault("detthreshold", d.DetThreshold)
	v.SetDefault("nmsthreshold", d.NMSThreshold)
	v.SetDefault("model", d.Model)
	v.SetDefault("classes", d.Classes)
	v.SetDefault("anchors", d.Anchors)
	v.SetDefault("library", d.Library)
	v.SetDefault("provider", d.Provider)
	v.SetDefault("device_id", d.DeviceID)
	v.SetDefault("threads", d.Threads)
	v.SetDefault("headless", d.Headless)
	v.SetDefault("log_level", d.LogLevel)
}

// RegisterFlags adds the command line flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.IntP("input", "i", d.Input, "input camera identifier")
	fs.Float64P("detthreshold", "d", d.DetThreshold, "fire detector score threshold")
	fs.Float64P("nmsthreshold", "n", d.NMSThreshold, "fire detector NMS threshold")
	fs.String("model", d.Model, "path to the compiled fire model")
	fs.String("video", d.Video, "read frames from a video file instead of a camera")
	fs.String("frames", d.Frames, "replay frame-<n> image files from a directory instead of a camera")
	fs.Int("width", d.Width, "requested capture width")
	fs.Int("height", d.Height, "requested capture height")
	fs.String("provider", d.Provider, "execution provider: cpu, cuda, openvino or coreml")
	fs.Int("device-id", d.DeviceID, "accelerator device index")
	fs.Int("threads", d.Threads, "runtime intra-op threads, 0 for the runtime default")
	fs.String("library", d.Library, "path to the onnxruntime shared library")
	fs.Bool("headless", d.Headless, "run without a display window")
	fs.String("log-level", d.LogLevel, "log level: debug, info, warn or error")
	fs.String("config", "", "optional config file (yaml, toml or json)")
}

// Bind wires defaults, environment variables and the flags in fs into v.
// Precedence, lowest first: defaults, config file, environment, flags.
func Bind(v *viper.Viper, fs *pflag.FlagSet) error {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = multierr.Append(bindErr, errors.Wrapf(err, "binding flag %s", f.Name))
		}
	})
	if bindErr != nil {
		return bindErr
	}

	if fs.Lookup("config") == nil {
		return nil
	}
	path, err := fs.GetString("config")
	if err != nil {
		return errors.Wrap(err, "reading config flag")
	}
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "reading config file %s", path)
	}
	return nil
}

// Load unmarshals and validates the settings held by v.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks every setting is in range.
func (c Config) Validate() error {
	switch {
	case c.Input < 0:
		return errors.Wrapf(ErrInvalidConfig, "input must be >= 0, got %d", c.Input)
	case c.DetThreshold < 0 || c.DetThreshold > 1:
		return errors.Wrapf(ErrInvalidConfig, "detthreshold must be in [0,1], got %v", c.DetThreshold)
	case c.NMSThreshold < 0 || c.NMSThreshold > 1:
		return errors.Wrapf(ErrInvalidConfig, "nmsthreshold must be in [0,1], got %v", c.NMSThreshold)
	case c.Width <= 0 || c.Height <= 0:
		return errors.Wrapf(ErrInvalidConfig, "capture size must be positive, got %dx%d", c.Width, c.Height)
	case strings.TrimSpace(c.Model) == "":
		return errors.Wrap(ErrInvalidConfig, "model path is required")
	case len(c.Classes) == 0:
		return errors.Wrap(ErrInvalidConfig, "at least one class name is required")
	case len(c.Anchors) == 0 || len(c.Anchors)%2 != 0:
		return errors.Wrapf(ErrInvalidConfig, "anchors must be width,height pairs, got %d values", len(c.Anchors))
	case c.Video != "" && c.Frames != "":
		return errors.Wrap(ErrInvalidConfig, "video and frames are mutually exclusive")
	case c.DeviceID < 0 || c.Threads < 0:
		return errors.Wrap(ErrInvalidConfig, "device-id and threads must be >= 0")
	}
	if _, err := providers.ParseBackend(c.Provider); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	return nil
}

// ProviderConfig returns the execution provider settings.
func (c Config) ProviderConfig() providers.Config {
	p := providers.DefaultConfig()
	if b, err := providers.ParseBackend(c.Provider); err == nil {
		p.Backend = b
	}
	p.DeviceID = c.DeviceID
	p.IntraOpThreads = c.Threads
	return p
}

// Log writes the resolved settings at info level.
func (c Config) Log(logger *zap.SugaredLogger) {
	source := "camera"
	switch {
	case c.Video != "":
		source = "video"
	case c.Frames != "":
		source = "frames"
	}
	logger.Infow("configuration",
		"source", source,
		"input", c.Input,
		"video", c.Video,
		"frames", c.Frames,
		"resolution", [2]int{c.Width, c.Height},
		"detthreshold", c.DetThreshold,
		"nmsthreshold", c.NMSThreshold,
		"model", c.Model,
		"classes", c.Classes,
		"provider", c.Provider,
		"headless", c.Headless,
	)
}
