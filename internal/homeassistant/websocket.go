package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/oshokin/frigate-notifier/internal/logger"
)

// Websocket message types used by the subscription handshake.
const (
	messageAuthRequired = "auth_required"
	messageAuth         = "auth"
	messageAuthOK       = "auth_ok"
	messageAuthInvalid  = "auth_invalid"
	messageSubscribe    = "subscribe_events"
	messageResult       = "result"
	messageEvent        = "event"

	// subscriptionID is the id of the only command the listener sends.
	subscriptionID = 1

	// EventNotificationAction is fired when a mobile app notification button is tapped.
	EventNotificationAction = "mobile_app_notification_action"

	handshakeTimeout  = 10 * time.Second
	reconnectMaxDelay = time.Minute
)

var (
	// ErrAuthInvalid is returned when Home Assistant rejects the access token.
	ErrAuthInvalid = errors.New("websocket authentication rejected")
	// errUnexpectedMessage is returned when the handshake sees an unexpected message.
	errUnexpectedMessage = errors.New("unexpected websocket message")
	// errSubscribeFailed is returned when subscribe_events is not acknowledged.
	errSubscribeFailed = errors.New("subscribe_events failed")
)

// Event is a Home Assistant bus event delivered over the websocket.
type Event struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	TimeFired time.Time       `json:"time_fired"`
}

// ActionData is the payload of a mobile_app_notification_action event.
type ActionData struct {
	Action   string `json:"action"`
	Tag      string `json:"tag,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
}

// wsMessage is the envelope of every websocket message.
type wsMessage struct {
	ID          int    `json:"id,omitempty"`
	Type        string `json:"type"`
	AccessToken string `json:"access_token,omitempty"`
	EventType   string `json:"event_type,omitempty"`
	Success     *bool  `json:"success,omitempty"`
	Message     string `json:"message,omitempty"`
	Event       *Event `json:"event,omitempty"`
}

// EventHandler receives events from a subscription.
type EventHandler func(ctx context.Context, event *Event)

// Listener keeps an event subscription open over the websocket API.
type Listener struct {
	// url is the websocket endpoint, e.g. ws://ha.local:8123/api/websocket.
	url string
	// token is the long-lived access token.
	token string
	// dialer opens websocket connections.
	dialer *websocket.Dialer
}

// NewListener creates a listener for the Home Assistant instance at baseURL.
func NewListener(baseURL, token string) (*Listener, error) {
	endpoint, err := websocketURL(baseURL)
	if err != nil {
		return nil, err
	}

	return &Listener{
		url:   endpoint,
		token: token,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
	}, nil
}

// Listen subscribes to eventType and calls handler for every event until ctx
// is cancelled. Dropped connections are re-established with exponential
// backoff. A rejected token stops the listener.
func (l *Listener) Listen(ctx context.Context, eventType string, handler EventHandler) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = reconnectMaxDelay
	policy.MaxElapsedTime = 0

	operation := func() error {
		err := l.session(ctx, eventType, handler, policy.Reset)

		switch {
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case errors.Is(err, ErrAuthInvalid):
			return backoff.Permanent(err)
		default:
			return err
		}
	}

	notify := func(err error, delay time.Duration) {
		logger.WarnKV(ctx, "Home Assistant websocket disconnected", "error", err, "retry_in", delay.String())
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}

	return err
}

// session runs one connection: handshake, subscribe, then read events.
// onSubscribed is called once the subscription is acknowledged.
func (l *Listener) session(ctx context.Context, eventType string, handler EventHandler, onSubscribed func()) error {
	conn, resp, err := l.dialer.DialContext(ctx, l.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		return fmt.Errorf("dial websocket: %w", err)
	}

	// Unblock ReadJSON when the context is cancelled.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})

	defer func() {
		stop()

		_ = conn.Close()
	}()

	if err = l.handshake(conn, eventType); err != nil {
		return err
	}

	onSubscribed()
	logger.InfoKV(ctx, "Subscribed to Home Assistant events", "event_type", eventType)

	for {
		var msg wsMessage
		if err = conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read websocket: %w", err)
		}

		if msg.Type != messageEvent || msg.ID != subscriptionID || msg.Event == nil {
			continue
		}

		handler(ctx, msg.Event)
	}
}

// handshake authenticates and subscribes to eventType.
func (l *Listener) handshake(conn *websocket.Conn, eventType string) error {
	var msg wsMessage

	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("read auth_required: %w", err)
	}

	if msg.Type != messageAuthRequired {
		return fmt.Errorf("%w: %q", errUnexpectedMessage, msg.Type)
	}

	if err := conn.WriteJSON(wsMessage{Type: messageAuth, AccessToken: l.token}); err != nil {
		return fmt.Errorf("write auth: %w", err)
	}

	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("read auth result: %w", err)
	}

	switch msg.Type {
	case messageAuthOK:
	case messageAuthInvalid:
		return fmt.Errorf("%w: %s", ErrAuthInvalid, msg.Message)
	default:
		return fmt.Errorf("%w: %q", errUnexpectedMessage, msg.Type)
	}

	subscribe := wsMessage{ID: subscriptionID, Type: messageSubscribe, EventType: eventType}
	if err := conn.WriteJSON(subscribe); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}

	msg = wsMessage{}
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("read subscribe result: %w", err)
	}

	if msg.Type != messageResult || msg.Success == nil || !*msg.Success {
		return fmt.Errorf("%w: %s", errSubscribeFailed, msg.Message)
	}

	return nil
}

// Action decodes the action identifier of a notification action event.
func (e *Event) Action() (string, error) {
	var data ActionData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return "", fmt.Errorf("decode action data: %w", err)
	}

	return data.Action, nil
}

// websocketURL converts an http(s) base URL into the websocket endpoint.
func websocketURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", errBaseURLRequired
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/api/websocket"

	return u.String(), nil
}
