package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/oshokin/frigate-notifier/internal/config"
	"github.com/oshokin/frigate-notifier/internal/logger"
	"github.com/oshokin/frigate-notifier/internal/version"
)

// SourceNATS names deliveries received over NATS.
const SourceNATS = "nats"

// NATSSubscriber subscribes to a NATS subject.
type NATSSubscriber struct {
	// cfg holds server settings.
	cfg config.NATS
	// timeout bounds the initial connect.
	timeout time.Duration
	// conn is set by Subscribe.
	conn *nats.Conn
}

// NewNATSSubscriber creates an unconnected subscriber.
func NewNATSSubscriber(cfg *config.NATS, timeout time.Duration) *NATSSubscriber {
	return &NATSSubscriber{
		cfg:     *cfg,
		timeout: timeout,
	}
}

// Subscribe connects to the server and subscribes to the configured subject.
func (s *NATSSubscriber) Subscribe(ctx context.Context, handler Handler) error {
	ctx = logger.WithName(ctx, "nats")

	conn, err := nats.Connect(s.cfg.URL, s.options(ctx)...)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", s.cfg.URL, err)
	}

	_, err = conn.Subscribe(s.cfg.Subject, func(msg *nats.Msg) {
		handler(ctx, msg.Data)
	})
	if err != nil {
		conn.Close()

		return fmt.Errorf("subscribe to %s: %w", s.cfg.Subject, err)
	}

	s.conn = conn

	logger.InfoKV(ctx, "Subscribed", "url", conn.ConnectedUrlRedacted(), "subject", s.cfg.Subject)

	return nil
}

// Close drains the subscription and closes the connection.
func (s *NATSSubscriber) Close() error {
	if s.conn == nil {
		return nil
	}

	if err := s.conn.Drain(); err != nil {
		s.conn.Close()

		return fmt.Errorf("drain nats connection: %w", err)
	}

	return nil
}

func (s *NATSSubscriber) options(ctx context.Context) []nats.Option {
	opts := []nats.Option{
		nats.Name(version.UserAgent("frigate-notifier")),
		nats.Timeout(s.timeout),
		nats.ReconnectWait(s.cfg.ReconnectWait),
		nats.MaxReconnects(s.cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WarnKV(ctx, "Disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logger.InfoKV(ctx, "Reconnected", "url", conn.ConnectedUrlRedacted())
		}),
	}

	if s.cfg.Token != "" {
		opts = append(opts, nats.Token(s.cfg.Token))
	}

	return opts
}
