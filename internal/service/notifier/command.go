package notifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/oshokin/frigate-notifier/internal/api/grpc/health"
	"github.com/oshokin/frigate-notifier/internal/api/rest"
	"github.com/oshokin/frigate-notifier/internal/config"
	"github.com/oshokin/frigate-notifier/internal/homeassistant"
	"github.com/oshokin/frigate-notifier/internal/logger"
	"github.com/oshokin/frigate-notifier/internal/transport"
)

// Options controls the notifier process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// HTTPAddress overrides the HTTP API listen address from the config.
	HTTPAddress string
	// StatusAddress overrides the gRPC health listen address from the config.
	StatusAddress string
	// LogLevel overrides the log level from the config.
	LogLevel string
}

// deliveryBuffer is the capacity of the channel between the bus and the event loop.
const deliveryBuffer = 256

// errInvalidLogLevel is returned for a log level zap does not know.
var errInvalidLogLevel = errors.New("invalid log level")

// Run connects everything and blocks until ctx is cancelled or a component fails.
//
//nolint:funlen // Wiring reads best top to bottom.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "frigate-notifier")

	// Load configuration first to get every other setting.
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if err = applyOverrides(settings, opts); err != nil {
		return err
	}

	if err = applyLogLevel(settings.LogLevel); err != nil {
		return err
	}

	svc, err := newService(ctx, settings)
	if err != nil {
		return fmt.Errorf("initialise service: %w", err)
	}

	subscriber, err := transport.New(&settings.Transport, settings.Timeout)
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}

	var listener *homeassistant.Listener

	if settings.HomeAssistant.ListenActions {
		listener, err = homeassistant.NewListener(settings.HomeAssistant.URL, settings.HomeAssistant.Token)
		if err != nil {
			return fmt.Errorf("create websocket listener: %w", err)
		}
	}

	// Any component failing stops the others.
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var wg sync.WaitGroup

	healthServer := health.NewServer()

	wg.Go(func() {
		if serveErr := healthServer.Serve(ctx, settings.StatusAddress); serveErr != nil {
			cancel(serveErr)
		}
	})

	if settings.HTTPAddress != "" {
		api := rest.NewServer(ctx, settings.HTTPAddress, svc.gate, svc.store, rest.WithToken(settings.HTTPToken))

		wg.Go(func() {
			if serveErr := api.Run(ctx); serveErr != nil {
				cancel(serveErr)
			}
		})
	}

	if listener != nil {
		wg.Go(func() {
			listenErr := listener.Listen(ctx, homeassistant.EventNotificationAction, svc.handleNotificationAction)
			if listenErr != nil {
				cancel(fmt.Errorf("listen for notification actions: %w", listenErr))
			}
		})
	}

	deliveries := make(chan transport.Delivery, deliveryBuffer)

	if err = subscriber.Subscribe(ctx, transport.Decode(settings.Transport.Kind, deliveries)); err != nil {
		cancel(err)
		wg.Wait()

		return fmt.Errorf("subscribe to events: %w", err)
	}

	healthServer.SetServing(true)

	logger.InfoKV(ctx, "Notifier started",
		"transport", settings.Transport.Kind,
		"http_address", settings.HTTPAddress,
		"status_address", settings.StatusAddress,
		"snooze_store", settings.SnoozeStore.Kind,
	)

	svc.consume(ctx, deliveries)

	healthServer.SetServing(false)

	if closeErr := subscriber.Close(); closeErr != nil {
		logger.WarnKV(ctx, "Failed to close transport", "error", closeErr)
	}

	wg.Wait()

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}

	logger.Info(ctx, "Notifier stopped")

	return nil
}

// applyOverrides replaces config values with command line values when set.
func applyOverrides(settings *config.Config, opts *Options) error {
	var err error

	if opts.HTTPAddress != "" {
		if settings.HTTPAddress, err = resolveListenAddress(opts.HTTPAddress); err != nil {
			return err
		}
	}

	if opts.StatusAddress != "" {
		if settings.StatusAddress, err = resolveListenAddress(opts.StatusAddress); err != nil {
			return err
		}
	}

	if opts.LogLevel != "" {
		settings.LogLevel = opts.LogLevel
	}

	return nil
}

// applyLogLevel sets the global log level; empty keeps the current one.
func applyLogLevel(value string) error {
	if value == "" {
		return nil
	}

	level, ok := logger.ParseLogLevel(value)
	if !ok {
		return fmt.Errorf("%w: %q", errInvalidLogLevel, value)
	}

	logger.SetLevel(level)

	return nil
}

// resolveListenAddress validates a host:port listen address.
func resolveListenAddress(address string) (string, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		return "", fmt.Errorf("invalid listen address %q: %w", address, err)
	}

	return address, nil
}
