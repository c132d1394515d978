package notifier

import (
	"context"
	"fmt"

	"github.com/oshokin/frigate-notifier/internal/config"
	domain "github.com/oshokin/frigate-notifier/internal/domain/alarm"
	"github.com/oshokin/frigate-notifier/internal/homeassistant"
	"github.com/oshokin/frigate-notifier/internal/logger"
	"github.com/oshokin/frigate-notifier/internal/repository/events"
	repo "github.com/oshokin/frigate-notifier/internal/repository/state"
	"github.com/oshokin/frigate-notifier/internal/service/correlator"
	"github.com/oshokin/frigate-notifier/internal/service/dispatcher"
	"github.com/oshokin/frigate-notifier/internal/service/poller"
	"github.com/oshokin/frigate-notifier/internal/service/snooze"
	"github.com/oshokin/frigate-notifier/internal/transport"
)

// Actor recorded when the snooze comes from a tapped notification button.
const (
	actionActorHostname = "home-assistant"
	actionActorUsername = "mobile_app"
)

// service holds the long-lived components of the daemon.
// It is unexported to keep the command decoupled from the wiring.
type service struct {
	// store holds in-flight event records.
	store *events.MemoryStore
	// gate answers snooze questions and handles snooze actions.
	gate *snooze.Gate
	// correlator turns Frigate messages into notifications.
	correlator *correlator.Correlator
}

// newService builds the component graph from validated settings.
func newService(ctx context.Context, settings *config.Config) (*service, error) {
	ha := &settings.HomeAssistant

	client, err := homeassistant.NewClient(ha.URL, ha.Token, homeassistant.WithTimeout(settings.Timeout))
	if err != nil {
		return nil, fmt.Errorf("create home assistant client: %w", err)
	}

	snoozeRepo := newSnoozeRepository(settings, client)

	n := &settings.Notifications

	gate := snooze.NewGate(snoozeRepo, client.AlarmPanel(ha.AlarmEntity), snooze.Options{
		Action:   n.SnoozeAction,
		Duration: n.SnoozeDuration,
	})

	store := events.NewMemoryStore()

	notifications := dispatcher.New(client, gate, store, dispatcher.Options{
		ExternalURL:        ha.ExternalURL,
		NotifyService:      ha.NotifyService,
		CameraPrefixLength: n.CameraPrefixLength,
		SnoozeAction:       n.SnoozeAction,
		SnoozeDuration:     n.SnoozeDuration,
	})

	rules := make([]correlator.ZoneRule, 0, len(settings.ZoneRules))
	for _, rule := range settings.ZoneRules {
		rules = append(rules, correlator.ZoneRule{Camera: rule.Camera, RequiredZone: rule.RequiredZone})
	}

	logger.DebugKV(ctx, "Components ready",
		"notify_service", ha.NotifyService, "alarm_entity", ha.AlarmEntity, "zone_rules", len(rules))

	return &service{
		store: store,
		gate:  gate,
		correlator: correlator.New(
			store,
			notifications,
			client,
			poller.New(n.ClipPollInterval, n.ClipPollAttempts),
			correlator.Options{
				ExternalURL:  ha.ExternalURL,
				ZoneRules:    rules,
				ClipMinDelay: n.ClipMinDelay,
			},
		),
	}, nil
}

// newSnoozeRepository picks the configured snooze store.
func newSnoozeRepository(settings *config.Config, client *homeassistant.Client) repo.Repository {
	if settings.SnoozeStore.Kind == config.SnoozeStoreHomeAssistant {
		return repo.NewEntityRepository(client, settings.HomeAssistant.SnoozeEntity)
	}

	return repo.NewFileRepository(settings.SnoozeStore.Path)
}

// consume handles deliveries one at a time until ctx is cancelled.
func (s *service) consume(ctx context.Context, deliveries <-chan transport.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case delivery := <-deliveries:
			s.handle(ctx, delivery)
		}
	}
}

// handle runs one delivery through the correlator and logs failures.
func (s *service) handle(ctx context.Context, delivery transport.Delivery) {
	ctx = logger.WithKV(ctx, "delivery_id", delivery.ID, "source", delivery.Source)

	if err := s.correlator.Handle(ctx, delivery.Message); err != nil {
		logger.ErrorKV(ctx, "Failed to handle event", "event_id", delivery.Message.After.ID, "error", err)
	}
}

// handleNotificationAction feeds tapped notification buttons to the snooze gate.
func (s *service) handleNotificationAction(ctx context.Context, event *homeassistant.Event) {
	action, err := event.Action()
	if err != nil {
		logger.WarnKV(ctx, "Malformed notification action", "error", err)

		return
	}

	actor := &domain.Actor{
		Hostname: actionActorHostname,
		Username: actionActorUsername,
	}

	if _, err = s.gate.HandleAction(ctx, action, actor); err != nil {
		logger.ErrorKV(ctx, "Failed to handle notification action", "action", action, "error", err)
	}
}
