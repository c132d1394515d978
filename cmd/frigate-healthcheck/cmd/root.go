package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/frigate-notifier/internal/config"
	"github.com/oshokin/frigate-notifier/internal/service/checker"
	"github.com/oshokin/frigate-notifier/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// service is the health service name to probe.
	service string
	// watch keeps probing instead of exiting after one check.
	watch bool
	// interval is the delay between probes in watch mode.
	interval time.Duration
	// timeout bounds each probe.
	timeout time.Duration

	// rootCmd represents the base command for probing notifier health.
	rootCmd = &cobra.Command{
		Use:   "frigate-healthcheck [status-address]",
		Short: "Probe the frigate-notifier health service.",
		Long: `Checks the gRPC health service of a running frigate-notifier.

Exits with status 0 when the notifier reports SERVING and 1 otherwise, which
makes it usable as a container HEALTHCHECK. The address can be provided as an
argument or loaded from the configuration file.

With --watch the probe repeats at a fixed interval and only logs the result.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use status address argument if provided, otherwise rely on config.
			var statusAddress string
			if len(args) > 0 {
				statusAddress = args[0]
			}

			checkerOptions := &checker.Options{
				ConfigPath:    configPath,
				StatusAddress: statusAddress,
				Service:       service,
				Watch:         watch,
				Interval:      interval,
				Timeout:       timeout,
			}

			return checker.Run(ctx, checkerOptions)
		},
	}
)

// Execute runs the frigate-healthcheck CLI and exits with non-zero status on error.
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
	rootCmd.Flags().StringVarP(&service, "service", "s", checker.DefaultService, "health service name, empty for the whole server")
	rootCmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep probing at a fixed interval")
	rootCmd.Flags().DurationVarP(&interval, "interval", "i", checker.DefaultInterval, "interval between probes in watch mode")
	rootCmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "per-probe timeout (defaults to the configured timeout)")
}
