package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the notifier binaries.
type Config struct {
	// LogLevel is the minimum level written by the logger.
	LogLevel string `yaml:"log_level"`
	// HomeAssistant describes the Home Assistant instance used for delivery and state.
	HomeAssistant HomeAssistant `yaml:"home_assistant"`
	// Transport selects and configures the event bus carrying Frigate events.
	Transport Transport `yaml:"transport"`
	// Notifications tunes notification formatting and clip handling.
	Notifications Notifications `yaml:"notifications"`
	// ZoneRules lists cameras that only notify for objects inside a zone.
	ZoneRules []ZoneRule `yaml:"zone_rules"`
	// SnoozeStore selects where the snooze-until timestamp is persisted.
	SnoozeStore SnoozeStore `yaml:"snooze_store"`
	// HTTPAddress is the listen address of the action webhook and status API.
	// Empty disables the HTTP API. Without HTTPToken anyone who reaches this
	// address can snooze notifications, so keep it on loopback or set a token.
	HTTPAddress string `yaml:"http_address"`
	// HTTPToken, when set, is required as a bearer token on /api requests.
	HTTPToken string `yaml:"http_token"`
	// StatusAddress is the listen address of the gRPC health service.
	StatusAddress string `yaml:"status_address"`
	// Timeout is the duration for network operations and RPC calls.
	Timeout time.Duration `yaml:"timeout"`
}

// HomeAssistant holds connection settings for the Home Assistant API.
type HomeAssistant struct {
	// URL is the base URL the notifier uses to reach Home Assistant.
	URL string `yaml:"url"`
	// Token is a long-lived access token.
	Token string `yaml:"token"`
	// ExternalURL is the base URL phones use to fetch media. Defaults to URL.
	ExternalURL string `yaml:"external_url"`
	// NotifyService is the notify service name, e.g. "all_phones".
	NotifyService string `yaml:"notify_service"`
	// AlarmEntity is the alarm_control_panel entity consulted by the snooze gate.
	AlarmEntity string `yaml:"alarm_entity"`
	// SnoozeEntity is the input_datetime entity used by the home_assistant snooze store.
	SnoozeEntity string `yaml:"snooze_entity"`
	// ListenActions subscribes to mobile app notification actions over websocket.
	ListenActions bool `yaml:"listen_actions"`
}

// Transport selects the event bus.
type Transport struct {
	// Kind is either TransportMQTT or TransportNATS.
	Kind string `yaml:"kind"`
	// MQTT configures the MQTT subscriber.
	MQTT MQTT `yaml:"mqtt"`
	// NATS configures the NATS subscriber.
	NATS NATS `yaml:"nats"`
}

// MQTT holds MQTT broker settings.
type MQTT struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// NATS holds NATS server settings.
type NATS struct {
	URL           string        `yaml:"url"`
	Subject       string        `yaml:"subject"`
	Token         string        `yaml:"token"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	MaxReconnects int           `yaml:"max_reconnects"`
}

// Notifications tunes notification formatting and clip handling.
type Notifications struct {
	// CameraPrefixLength is the number of leading characters stripped from
	// camera names in titles ("frigate_driveway" -> "Driveway").
	CameraPrefixLength int `yaml:"camera_prefix_length"`
	// SnoozeAction is the action identifier that activates the snooze.
	SnoozeAction string `yaml:"snooze_action"`
	// SnoozeDuration is how long notifications stay suppressed after snoozing.
	SnoozeDuration time.Duration `yaml:"snooze_duration"`
	// ClipMinDelay is the minimum time after event start before the clip is checked.
	ClipMinDelay time.Duration `yaml:"clip_min_delay"`
	// ClipPollInterval is the fixed delay between clip availability checks.
	ClipPollInterval time.Duration `yaml:"clip_poll_interval"`
	// ClipPollAttempts is the total number of clip availability checks.
	ClipPollAttempts int `yaml:"clip_poll_attempts"`
}

// ZoneRule requires events from Camera to have entered RequiredZone.
type ZoneRule struct {
	Camera       string `yaml:"camera"`
	RequiredZone string `yaml:"required_zone"`
}

// SnoozeStore selects the snooze-until persistence backend.
type SnoozeStore struct {
	// Kind is either SnoozeStoreFile or SnoozeStoreHomeAssistant.
	Kind string `yaml:"kind"`
	// Path is the JSON file used by the file store.
	Path string `yaml:"path"`
}

const (
	// DefaultConfigFilename is the default filename for notifier settings.
	DefaultConfigFilename = "frigate-notifier.yaml"

	// DefaultSnoozeFilename is the default filename for the snooze state JSON.
	DefaultSnoozeFilename = "frigate-notifier-snooze.json"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 10 * time.Second

	// DefaultFilePermissions is the default file permission for config and state files.
	DefaultFilePermissions = 0o600

	// DefaultStatusAddress is where the gRPC health service listens by default.
	DefaultStatusAddress = "127.0.0.1:50061"

	// TransportMQTT subscribes to Frigate's MQTT topic directly.
	TransportMQTT = "mqtt"
	// TransportNATS subscribes through NATS (including its MQTT gateway).
	TransportNATS = "nats"

	// SnoozeStoreFile keeps the snooze timestamp in a local JSON file.
	SnoozeStoreFile = "file"
	// SnoozeStoreHomeAssistant keeps the snooze timestamp in an input_datetime entity.
	SnoozeStoreHomeAssistant = "home_assistant"

	// Defaults for notification behaviour.
	DefaultNotifyService      = "all_phones"
	DefaultAlarmEntity        = "alarm_control_panel.home"
	DefaultSnoozeEntity       = "input_datetime.camera_snooze_until"
	DefaultCameraPrefixLength = 8
	DefaultSnoozeAction       = "SNOOZE_CAMERAS"
	DefaultSnoozeDuration     = 10 * time.Minute
	DefaultClipMinDelay       = 13 * time.Second
	DefaultClipPollInterval   = 5 * time.Second
	DefaultClipPollAttempts   = 3
	DefaultMQTTTopic          = "frigate/events"
	DefaultMQTTClientID       = "frigate-notifier"
	DefaultNATSSubject        = "frigate.events"
	DefaultNATSReconnectWait  = 2 * time.Second
	DefaultNATSMaxReconnects  = -1
	DefaultZoneRuleCamera     = "frigate_driveway"
	DefaultZoneRuleZone       = "driveway"

	// Environment variables that override secrets from the YAML file.
	EnvHomeAssistantToken = "HA_TOKEN"
	EnvMQTTPassword       = "MQTT_PASSWORD"
	EnvNATSToken          = "NATS_TOKEN"
	EnvHTTPToken          = "HTTP_TOKEN"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errHomeAssistantURLRequired is returned when the Home Assistant URL is missing.
	errHomeAssistantURLRequired = errors.New("home assistant url must be provided")
	// errHomeAssistantTokenRequired is returned when the access token is missing.
	errHomeAssistantTokenRequired = errors.New("home assistant token must be provided")
	// errUnknownTransport is returned for an unsupported transport kind.
	errUnknownTransport = errors.New("unknown transport kind")
	// errUnknownSnoozeStore is returned for an unsupported snooze store kind.
	errUnknownSnoozeStore = errors.New("unknown snooze store kind")
	// errInvalidZoneRule is returned when a zone rule misses its camera or zone.
	errInvalidZoneRule = errors.New("zone rule needs camera and required_zone")
)

// Load reads configuration from the provided path, applies secrets from the
// environment and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	// A missing .env is the normal case.
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))

	applyEnv(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes Config to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions, the file holds an access token.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and fills in defaults.
//
//nolint:cyclop,funlen // A flat list of defaults is easier to read than helpers.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	ha := &settings.HomeAssistant
	if ha.URL == "" {
		return errHomeAssistantURLRequired
	}

	if _, err := url.ParseRequestURI(ha.URL); err != nil {
		return fmt.Errorf("invalid home assistant url: %w", err)
	}

	if ha.Token == "" {
		return errHomeAssistantTokenRequired
	}

	ha.URL = strings.TrimRight(ha.URL, "/")

	if ha.ExternalURL == "" {
		ha.ExternalURL = ha.URL
	}

	if _, err := url.ParseRequestURI(ha.ExternalURL); err != nil {
		return fmt.Errorf("invalid external url: %w", err)
	}

	ha.ExternalURL = strings.TrimRight(ha.ExternalURL, "/")

	if ha.NotifyService == "" {
		ha.NotifyService = DefaultNotifyService
	}

	if ha.AlarmEntity == "" {
		ha.AlarmEntity = DefaultAlarmEntity
	}

	if ha.SnoozeEntity == "" {
		ha.SnoozeEntity = DefaultSnoozeEntity
	}

	if err := validateTransport(&settings.Transport); err != nil {
		return err
	}

	applyNotificationDefaults(&settings.Notifications)

	// A nil list means "not configured"; an explicit empty list disables filtering.
	if settings.ZoneRules == nil {
		settings.ZoneRules = []ZoneRule{{Camera: DefaultZoneRuleCamera, RequiredZone: DefaultZoneRuleZone}}
	}

	for i, rule := range settings.ZoneRules {
		if rule.Camera == "" || rule.RequiredZone == "" {
			return fmt.Errorf("zone rule %d: %w", i, errInvalidZoneRule)
		}
	}

	switch settings.SnoozeStore.Kind {
	case "":
		settings.SnoozeStore.Kind = SnoozeStoreFile
	case SnoozeStoreFile, SnoozeStoreHomeAssistant:
	default:
		return fmt.Errorf("%w: %q", errUnknownSnoozeStore, settings.SnoozeStore.Kind)
	}

	if settings.SnoozeStore.Path == "" {
		settings.SnoozeStore.Path = DefaultSnoozeFilename
	}

	if settings.StatusAddress == "" {
		settings.StatusAddress = DefaultStatusAddress
	}

	if _, err := net.ResolveTCPAddr("tcp", settings.StatusAddress); err != nil {
		return fmt.Errorf("invalid status address: %w", err)
	}

	if settings.HTTPAddress != "" {
		if _, err := net.ResolveTCPAddr("tcp", settings.HTTPAddress); err != nil {
			return fmt.Errorf("invalid http address: %w", err)
		}
	}

	// Set default timeout if not specified
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	return nil
}

// validateTransport checks the transport section and fills in defaults.
func validateTransport(transport *Transport) error {
	switch transport.Kind {
	case "", TransportMQTT:
		transport.Kind = TransportMQTT

		if transport.MQTT.Broker == "" {
			transport.MQTT.Broker = "tcp://127.0.0.1:1883"
		}

		if transport.MQTT.Topic == "" {
			transport.MQTT.Topic = DefaultMQTTTopic
		}

		if transport.MQTT.ClientID == "" {
			transport.MQTT.ClientID = DefaultMQTTClientID
		}

		if _, err := url.ParseRequestURI(transport.MQTT.Broker); err != nil {
			return fmt.Errorf("invalid mqtt broker: %w", err)
		}
	case TransportNATS:
		if transport.NATS.URL == "" {
			transport.NATS.URL = "nats://127.0.0.1:4222"
		}

		if transport.NATS.Subject == "" {
			transport.NATS.Subject = DefaultNATSSubject
		}

		if transport.NATS.ReconnectWait <= 0 {
			transport.NATS.ReconnectWait = DefaultNATSReconnectWait
		}

		if transport.NATS.MaxReconnects == 0 {
			transport.NATS.MaxReconnects = DefaultNATSMaxReconnects
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownTransport, transport.Kind)
	}

	return nil
}

// applyNotificationDefaults fills unset notification settings.
func applyNotificationDefaults(n *Notifications) {
	if n.CameraPrefixLength < 0 {
		n.CameraPrefixLength = 0
	}

	if n.CameraPrefixLength == 0 {
		n.CameraPrefixLength = DefaultCameraPrefixLength
	}

	if n.SnoozeAction == "" {
		n.SnoozeAction = DefaultSnoozeAction
	}

	if n.SnoozeDuration <= 0 {
		n.SnoozeDuration = DefaultSnoozeDuration
	}

	if n.ClipMinDelay <= 0 {
		n.ClipMinDelay = DefaultClipMinDelay
	}

	if n.ClipPollInterval <= 0 {
		n.ClipPollInterval = DefaultClipPollInterval
	}

	if n.ClipPollAttempts <= 0 {
		n.ClipPollAttempts = DefaultClipPollAttempts
	}
}

// applyEnv overrides secrets with values from the environment.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvHomeAssistantToken); v != "" {
		cfg.HomeAssistant.Token = v
	}

	if v := os.Getenv(EnvMQTTPassword); v != "" {
		cfg.Transport.MQTT.Password = v
	}

	if v := os.Getenv(EnvNATSToken); v != "" {
		cfg.Transport.NATS.Token = v
	}

	if v := os.Getenv(EnvHTTPToken); v != "" {
		cfg.HTTPToken = v
	}
}
