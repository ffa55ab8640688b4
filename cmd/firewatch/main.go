package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvr-ai/go-firewatch/app"
	"github.com/nvr-ai/go-firewatch/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "firewatch",
		Short: "Detect fire in a live camera feed",
		Long: `firewatch reads frames from a camera, runs a YOLOv4 fire model through
ONNX Runtime and shows the annotated video with an FPS overlay.

Press q in the window to quit.

Examples:
  firewatch                          # camera 0, default thresholds
  firewatch -i 1 -d 0.6 -n 0.4       # camera 1, custom thresholds
  firewatch --provider cuda          # run the model on CUDA
  FIREWATCH_HEADLESS=true firewatch  # no window`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Bind(v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}

			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sugar := logger.Sugar()
			return app.New(cfg, app.DefaultFactories(sugar), sugar).Run(ctx)
		},
	}

	config.RegisterFlags(cmd.Flags())
	return cmd
}

// newLogger builds a human-readable console logger.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")

	return zap.New(
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(os.Stdout),
			lvl,
		),
	), nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(1)
	}
}
