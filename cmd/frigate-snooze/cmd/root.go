package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/frigate-notifier/internal/config"
	client "github.com/oshokin/frigate-notifier/internal/service/client"
	"github.com/oshokin/frigate-notifier/internal/version"
)

var (
	// cfgPath stores the configuration file path.
	cfgPath string
	// duration overrides the configured snooze length.
	duration time.Duration

	// rootCmd represents the base command for managing the snooze.
	rootCmd = &cobra.Command{
		Use:   "frigate-snooze",
		Short: "Show or change the camera notification snooze.",
		Long: `Reads or changes the snooze used by frigate-notifier.

Without a subcommand the current snooze and alarm state are printed.
The snooze only suppresses notifications while the alarm panel is disarmed.
Changes are recorded with the local username and hostname.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(client.OperationStatus)
		},
	}

	// onCmd starts a snooze.
	onCmd = &cobra.Command{
		Use:   "on",
		Short: "Snooze camera notifications.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(client.OperationSnooze)
		},
	}

	// offCmd ends the snooze.
	offCmd = &cobra.Command{
		Use:   "off",
		Short: "End the snooze and resume notifications.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(client.OperationClear)
		},
	}
)

// run executes op with graceful shutdown handling.
func run(op client.Operation) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return client.Run(ctx, &client.Options{
		ConfigPath: cfgPath,
		Operation:  op,
		Duration:   duration,
	})
}

// Execute runs the frigate-snooze CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(onCmd, offCmd)

	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&cfgPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	onCmd.Flags().DurationVarP(&duration, "duration", "d", 0, "snooze length (defaults to the configured duration)")
}
