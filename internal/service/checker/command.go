package checker

import (
	"context"
	"errors"
	"fmt"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/frigate-notifier/internal/api/grpc/health"
	"github.com/oshokin/frigate-notifier/internal/config"
	"github.com/oshokin/frigate-notifier/internal/logger"
	"github.com/oshokin/frigate-notifier/internal/service/common"
)

// Options controls the checker behavior and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// StatusAddress provides an optional health service address override.
	StatusAddress string
	// Service is the health service name to check; empty checks the whole server.
	Service string
	// Watch keeps polling at Interval instead of checking once.
	Watch bool
	// Interval defines the delay between checks in watch mode.
	Interval time.Duration
	// Timeout specifies the per-RPC timeout duration.
	Timeout time.Duration
}

const (
	// DefaultInterval defines the polling interval of watch mode.
	DefaultInterval = 5 * time.Second
	// DefaultService is the service name probed by default.
	DefaultService = health.ServiceName
)

// ErrNotServing is returned when the notifier reports anything but SERVING.
var ErrNotServing = errors.New("notifier is not serving")

// Run checks the notifier's health once, or repeatedly in watch mode.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "frigate-healthcheck")

	address, timeout, err := resolveTarget(opts)
	if err != nil {
		return err
	}

	// Establish gRPC connection with timeout from configuration.
	client, err := common.Dial(ctx, address, common.WithCallTimeout(timeout))
	if err != nil {
		return fmt.Errorf("dial health service: %w", err)
	}

	// Ensure connection cleanup on function exit.
	defer func() {
		_ = client.Close()
	}()

	if !opts.Watch {
		return checkOnce(ctx, client, opts.Service)
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	logger.InfoKV(ctx, "Watching notifier health", "status_address", address, "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err = checkOnce(ctx, client, opts.Service); err != nil {
			logger.ErrorKV(ctx, "Health check failed", "error", err)
		}

		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting")

			return nil
		case <-ticker.C:
		}
	}
}

// resolveTarget picks the address and timeout from flags or config.
// The config file is only read when no address override is given.
func resolveTarget(opts *Options) (string, time.Duration, error) {
	address, timeout := opts.StatusAddress, opts.Timeout

	if address == "" {
		cfg, err := config.Load(opts.ConfigPath)
		if err != nil {
			return "", 0, fmt.Errorf("load configuration: %w", err)
		}

		address = cfg.StatusAddress

		if timeout <= 0 {
			timeout = cfg.Timeout
		}
	}

	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}

	return address, timeout, nil
}

// checkOnce asks for the serving status and logs it.
func checkOnce(ctx context.Context, client *common.HealthClient, service string) error {
	status, err := client.Check(ctx, service)
	if err != nil {
		return err
	}

	name := service
	if name == "" {
		name = "<server>"
	}

	logger.Infof(ctx, "Health of %s: %s", name, status)

	if status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", ErrNotServing, status)
	}

	return nil
}
