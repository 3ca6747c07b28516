// Package cmd holds the freshcheck command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/freshcheck/internal/config"
	"github.com/example/freshcheck/internal/logging"
)

// Version is the application version.
const Version = "0.1.0"

var (
	// cfg starts from the environment; flags override individual fields.
	cfg = config.Load()
	// logger is built once the flags are parsed.
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "freshcheck",
	Short:         "Capture or pick a photo and classify it as fresh or rotten",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.NewLogger(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&cfg.ClassifierURL, "classifier-url", cfg.ClassifierURL, "base URL of the classifier endpoint")
	flags.StringSliceVar(&cfg.FreshLabels, "fresh-labels", cfg.FreshLabels, "labels rendered as fresh")
	flags.StringVar(&cfg.CameraDevice, "camera-device", cfg.CameraDevice, "camera used when no facing-specific device is set")
	flags.StringVar(&cfg.CameraDeviceUser, "camera-device-user", cfg.CameraDeviceUser, "camera that faces the user")
	flags.StringVar(&cfg.CameraDeviceEnvironment, "camera-device-environment", cfg.CameraDeviceEnvironment, "camera that faces away from the user")
}
