package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/oshokin/frigate-notifier/internal/config"
	"github.com/oshokin/frigate-notifier/internal/logger"
)

// SourceMQTT names deliveries received over MQTT.
const SourceMQTT = "mqtt"

// mqttQoS is the subscription QoS; Frigate publishes events at most once.
const mqttQoS = 0

// disconnectQuiesce is how long Close waits for in-flight work, in milliseconds.
const disconnectQuiesce = 250

// subackFailure is the SUBACK return code for a refused subscription.
const subackFailure = 0x80

var (
	// errMQTTTimeout is returned when the broker does not answer in time.
	errMQTTTimeout = errors.New("mqtt operation timed out")
	// errSubscriptionRefused is returned when the broker refuses the topic.
	errSubscriptionRefused = errors.New("subscription refused by broker")
)

// MQTTSubscriber subscribes to a broker topic with automatic reconnects.
type MQTTSubscriber struct {
	// cfg holds broker settings.
	cfg config.MQTT
	// timeout bounds connect and subscribe calls.
	timeout time.Duration
	// client is set by Subscribe.
	client mqtt.Client
}

// NewMQTTSubscriber creates an unconnected subscriber.
func NewMQTTSubscriber(cfg *config.MQTT, timeout time.Duration) *MQTTSubscriber {
	return &MQTTSubscriber{
		cfg:     *cfg,
		timeout: timeout,
	}
}

// Subscribe connects to the broker and waits until the topic is subscribed.
// The topic is subscribed again after every reconnect.
func (s *MQTTSubscriber) Subscribe(ctx context.Context, handler Handler) error {
	ctx = logger.WithName(ctx, "mqtt")

	subscribed := make(chan error, 1)

	var once sync.Once

	s.client = mqtt.NewClient(s.clientOptions(ctx, handler, func(err error) {
		once.Do(func() { subscribed <- err })
	}))

	if err := wait(s.client.Connect(), s.timeout); err != nil {
		return fmt.Errorf("connect to %s: %w", s.cfg.Broker, err)
	}

	select {
	case err := <-subscribed:
		if err != nil {
			s.client.Disconnect(disconnectQuiesce)

			return fmt.Errorf("subscribe to %s: %w", s.cfg.Topic, err)
		}

		return nil
	case <-ctx.Done():
		s.client.Disconnect(disconnectQuiesce)

		return ctx.Err()
	}
}

// Close disconnects from the broker.
func (s *MQTTSubscriber) Close() error {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(disconnectQuiesce)
	}

	return nil
}

// clientOptions builds the paho options. onSubscribed receives the result of
// every subscribe attempt made after a (re)connect.
func (s *MQTTSubscriber) clientOptions(
	ctx context.Context,
	handler Handler,
	onSubscribed func(error),
) *mqtt.ClientOptions {
	onMessage := func(_ mqtt.Client, msg mqtt.Message) {
		handler(ctx, msg.Payload())
	}

	return mqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetUsername(s.cfg.Username).
		SetPassword(s.cfg.Password).
		SetConnectTimeout(s.timeout).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetOnConnectHandler(func(client mqtt.Client) {
			err := s.subscribe(client, onMessage)
			onSubscribed(err)

			if err != nil {
				logger.ErrorKV(ctx, "Subscribe failed", "topic", s.cfg.Topic, "error", err)

				return
			}

			logger.InfoKV(ctx, "Subscribed", "broker", s.cfg.Broker, "topic", s.cfg.Topic)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.WarnKV(ctx, "Connection lost, reconnecting", "error", err)
		})
}

// subscribe subscribes to the topic and checks the granted QoS.
func (s *MQTTSubscriber) subscribe(client mqtt.Client, onMessage mqtt.MessageHandler) error {
	token := client.Subscribe(s.cfg.Topic, mqttQoS, onMessage)
	if err := wait(token, s.timeout); err != nil {
		return err
	}

	if sub, ok := token.(*mqtt.SubscribeToken); ok {
		if code, found := sub.Result()[s.cfg.Topic]; found && code == subackFailure {
			return errSubscriptionRefused
		}
	}

	return nil
}

func wait(token mqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return errMQTTTimeout
	}

	return token.Error()
}
