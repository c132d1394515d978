package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/frigate-notifier/internal/config"
	"github.com/oshokin/frigate-notifier/internal/domain/frigate"
	"github.com/oshokin/frigate-notifier/internal/logger"
)

// Handler receives the raw payload of one bus message.
type Handler func(ctx context.Context, payload []byte)

// Subscriber delivers bus messages to a handler until closed.
type Subscriber interface {
	// Subscribe connects and starts calling handler for each message.
	Subscribe(ctx context.Context, handler Handler) error
	// Close stops delivery and releases the connection.
	Close() error
}

// Delivery is one decoded Frigate message.
type Delivery struct {
	// ID identifies the delivery in logs.
	ID string
	// Source names the transport the message came from.
	Source string
	// Message is the validated payload.
	Message *frigate.Message
}

// ErrUnknownKind is returned by New for an unsupported transport kind.
var ErrUnknownKind = errors.New("unknown transport kind")

// New builds the subscriber selected by cfg.Kind.
func New(cfg *config.Transport, timeout time.Duration) (Subscriber, error) {
	switch cfg.Kind {
	case config.TransportMQTT:
		return NewMQTTSubscriber(&cfg.MQTT, timeout), nil
	case config.TransportNATS:
		return NewNATSSubscriber(&cfg.NATS, timeout), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

// Decode returns a handler that parses payloads and pushes them onto out.
// Malformed payloads are logged and dropped. The send blocks until the
// consumer takes the delivery or ctx is done.
func Decode(source string, out chan<- Delivery) Handler {
	return func(ctx context.Context, payload []byte) {
		delivery := Delivery{
			ID:     uuid.NewString(),
			Source: source,
		}

		msg, err := frigate.ParseMessage(payload)
		if err != nil {
			logger.WarnKV(ctx, "Dropping malformed event",
				"delivery_id", delivery.ID, "source", source, "size", len(payload), "error", err)

			return
		}

		delivery.Message = msg

		select {
		case out <- delivery:
		case <-ctx.Done():
			logger.WarnKV(ctx, "Dropping event on shutdown",
				"delivery_id", delivery.ID, "event_id", msg.After.ID)
		}
	}
}
