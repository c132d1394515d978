package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/frigate-notifier/internal/config"
	"github.com/oshokin/frigate-notifier/internal/service/notifier"
	"github.com/oshokin/frigate-notifier/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// httpAddress overrides the HTTP API listen address.
	httpAddress string
	// statusAddress overrides the gRPC health listen address.
	statusAddress string
	// logLevel overrides the configured log level.
	logLevel string

	// rootCmd represents the base command for running the notifier daemon.
	rootCmd = &cobra.Command{
		Use:   "frigate-notifier",
		Short: "Turn Frigate detection events into Home Assistant push notifications.",
		Long: `Subscribes to Frigate events over MQTT or NATS and sends phone notifications
through the Home Assistant notify service.

A snapshot notification is sent while an object is tracked and a clip
notification with actions once the event ends. Events from cameras with a zone
rule only notify inside the required zone. Tapping the snooze action silences
notifications for a while, but only as long as the alarm panel is disarmed.

The gRPC health service reports SERVING while events are being consumed.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &notifier.Options{
				ConfigPath:    configPath,
				HTTPAddress:   httpAddress,
				StatusAddress: statusAddress,
				LogLevel:      logLevel,
			}

			return notifier.Run(ctx, options)
		},
	}
)

// Execute runs the frigate-notifier CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVar(&httpAddress, "http-address", "", "HTTP API listen address (overrides config)")
	rootCmd.Flags().StringVar(&statusAddress, "status-address", "", "gRPC health listen address (overrides config)")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "log level: debug, info, warn, error")
}
