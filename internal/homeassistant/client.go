package homeassistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dghubble/sling"

	"github.com/oshokin/frigate-notifier/internal/domain/alarm"
	"github.com/oshokin/frigate-notifier/internal/domain/notification"
	"github.com/oshokin/frigate-notifier/internal/version"
)

var (
	// ErrEntityNotFound is returned when Home Assistant has no such entity.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrUnexpectedStatus is returned for any other non-2xx response.
	ErrUnexpectedStatus = errors.New("unexpected status code")
	// errBaseURLRequired is returned when the client is created without a URL.
	errBaseURLRequired = errors.New("base url must be provided")
)

// State is an entity state as returned by GET /api/states/{entity_id}.
type State struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
}

// Timestamp returns the "timestamp" attribute of an input_datetime entity.
func (s *State) Timestamp() (time.Time, bool) {
	if s == nil {
		return time.Time{}, false
	}

	raw, ok := s.Attributes["timestamp"].(float64)
	if !ok {
		return time.Time{}, false
	}

	return time.Unix(int64(raw), 0), true
}

// Client calls the Home Assistant REST API.
type Client struct {
	// api is the preconfigured request builder (base URL, auth, user agent).
	api *sling.Sling
	// httpClient sends media checks, which must not read the response body.
	httpClient *http.Client
	// token is the long-lived access token.
	token string
	// userAgent identifies the notifier in requests.
	userAgent string
}

// Option configures client behaviour.
type Option func(*clientOptions)

// clientOptions collects values set by Option functions.
type clientOptions struct {
	httpClient *http.Client
	userAgent  string
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *clientOptions) {
		if httpClient != nil {
			o.httpClient = httpClient
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		if timeout > 0 {
			o.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewClient creates a client for the Home Assistant instance at baseURL.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errBaseURLRequired
	}

	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	options := &clientOptions{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		userAgent:  version.UserAgent("frigate-notifier"),
	}

	for _, opt := range opts {
		opt(options)
	}

	api := sling.New().
		Client(options.httpClient).
		Base(strings.TrimRight(baseURL, "/")+"/").
		Set("Authorization", "Bearer "+token).
		Set("User-Agent", options.userAgent)

	return &Client{
		api:        api,
		httpClient: options.httpClient,
		token:      token,
		userAgent:  options.userAgent,
	}, nil
}

// GetState returns the current state of an entity.
func (c *Client) GetState(ctx context.Context, entityID string) (*State, error) {
	var state State

	if err := c.do(ctx, c.api.New().Get("api/states/"+url.PathEscape(entityID)), &state); err != nil {
		return nil, fmt.Errorf("get state of %s: %w", entityID, err)
	}

	return &state, nil
}

// ArmState reads an alarm_control_panel entity.
func (c *Client) ArmState(ctx context.Context, entityID string) (alarm.ArmState, error) {
	state, err := c.GetState(ctx, entityID)
	if err != nil {
		return alarm.StateUnknown, err
	}

	return alarm.ParseArmState(state.State), nil
}

// AlarmPanel binds an alarm_control_panel entity to the client.
type AlarmPanel struct {
	client   *Client
	entityID string
}

// AlarmPanel returns a reader for the given alarm_control_panel entity.
func (c *Client) AlarmPanel(entityID string) *AlarmPanel {
	return &AlarmPanel{client: c, entityID: entityID}
}

// ArmState reads the panel's current mode.
func (p *AlarmPanel) ArmState(ctx context.Context) (alarm.ArmState, error) {
	return p.client.ArmState(ctx, p.entityID)
}

// CallService calls domain.service with the given service data.
func (c *Client) CallService(ctx context.Context, domain, service string, data any) error {
	path := "api/services/" + url.PathEscape(domain) + "/" + url.PathEscape(service)

	if err := c.do(ctx, c.api.New().Post(path).BodyJSON(data), nil); err != nil {
		return fmt.Errorf("call service %s.%s: %w", domain, service, err)
	}

	return nil
}

// Notify sends a notification through notify.{service}.
func (c *Client) Notify(ctx context.Context, service string, n *notification.Notification) error {
	return c.CallService(ctx, "notify", service, n)
}

// SetDateTime sets an input_datetime entity. The zero time clears it to the epoch.
func (c *Client) SetDateTime(ctx context.Context, entityID string, t time.Time) error {
	var timestamp int64
	if !t.IsZero() {
		timestamp = t.Unix()
	}

	data := map[string]any{
		"entity_id": entityID,
		"timestamp": timestamp,
	}

	return c.CallService(ctx, "input_datetime", "set_datetime", data)
}

// MediaAvailable requests an absolute media URL and reports whether it answered 200.
// Only the status line is read; the body is closed unread so a ready clip is
// not downloaded.
func (c *Client) MediaAvailable(ctx context.Context, mediaURL string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, http.NoBody)
	if err != nil {
		return false, fmt.Errorf("build media request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("request media: %w", err)
	}

	if err = resp.Body.Close(); err != nil {
		return false, fmt.Errorf("close media response: %w", err)
	}

	return resp.StatusCode == http.StatusOK, nil
}

// do sends the request built by s and decodes a JSON success body into successV.
func (c *Client) do(ctx context.Context, s *sling.Sling, successV any) error {
	req, err := s.Request()
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.api.Do(req.WithContext(ctx), successV, nil)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrEntityNotFound
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	default:
		return nil
	}
}
