package correlator

import (
	"context"
	"fmt"
	"time"

	"github.com/oshokin/frigate-notifier/internal/domain/frigate"
	"github.com/oshokin/frigate-notifier/internal/logger"
	"github.com/oshokin/frigate-notifier/internal/repository/events"
	"github.com/oshokin/frigate-notifier/internal/service/dispatcher"
	"github.com/oshokin/frigate-notifier/internal/service/poller"
)

// Notifier sends the two notification shapes.
type Notifier interface {
	SendSnapshot(ctx context.Context, event *frigate.Event) (bool, error)
	SendClip(ctx context.Context, event *frigate.Event) (bool, error)
}

// MediaChecker reports whether a media URL can be fetched.
type MediaChecker interface {
	MediaAvailable(ctx context.Context, mediaURL string) (bool, error)
}

// Poller repeats a check a bounded number of times.
type Poller interface {
	Poll(ctx context.Context, check poller.Check) bool
}

// ZoneRule requires events of Camera to enter RequiredZone before they notify.
type ZoneRule struct {
	Camera       string
	RequiredZone string
}

// Options configures the correlator.
type Options struct {
	// ExternalURL is the base URL of the media proxy.
	ExternalURL string
	// ZoneRules lists camera/zone restrictions.
	ZoneRules []ZoneRule
	// ClipMinDelay is how long after the event start the clip is expected to exist.
	ClipMinDelay time.Duration
	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
}

// Correlator tracks in-flight events and triggers notifications.
type Correlator struct {
	// store holds one record per in-flight event.
	store events.Store
	// notifier sends snapshot and clip notifications.
	notifier Notifier
	// media checks clip availability.
	media MediaChecker
	// poller retries the clip check.
	poller Poller
	// opts holds zone rules and timings.
	opts Options
}

// New creates a correlator.
func New(store events.Store, notifier Notifier, media MediaChecker, clipPoller Poller, opts Options) *Correlator {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Correlator{
		store:    store,
		notifier: notifier,
		media:    media,
		poller:   clipPoller,
		opts:     opts,
	}
}

// Handle routes msg to the handler of its phase.
func (c *Correlator) Handle(ctx context.Context, msg *frigate.Message) error {
	event := &msg.After

	ctx = logger.WithKV(ctx, "event_id", event.ID, "camera", event.Camera, "type", msg.Type)

	switch msg.Type {
	case frigate.EventNew:
		c.HandleNew(ctx, event)

		return nil
	case frigate.EventUpdate:
		return c.HandleUpdate(ctx, event)
	case frigate.EventEnd:
		return c.HandleEnd(ctx, event)
	default:
		return fmt.Errorf("%w: %q", frigate.ErrUnknownEventType, msg.Type)
	}
}

// HandleNew starts tracking the event. A repeated id starts over.
func (c *Correlator) HandleNew(ctx context.Context, event *frigate.Event) {
	c.store.Put(events.Record{
		ID:        event.ID,
		Camera:    event.Camera,
		CreatedAt: c.opts.Now(),
	})

	logger.DebugKV(ctx, "Tracking new event", "label", event.Label)
}

// HandleUpdate sends a snapshot for a tracked event that has one.
func (c *Correlator) HandleUpdate(ctx context.Context, event *frigate.Event) error {
	if _, ok := c.store.Get(event.ID); !ok {
		logger.WarnKV(ctx, "Out of order update for untracked event")

		return nil
	}

	if c.Excluded(event) {
		logger.DebugKV(ctx, "Update outside required zone", "entered_zones", event.EnteredZones)

		return nil
	}

	if !event.HasSnapshot {
		return nil
	}

	if _, err := c.notifier.SendSnapshot(ctx, event); err != nil {
		return fmt.Errorf("event %s: %w", event.ID, err)
	}

	return nil
}

// HandleEnd stops tracking the event and sends the clip once it can be fetched.
func (c *Correlator) HandleEnd(ctx context.Context, event *frigate.Event) error {
	if !c.store.Delete(event.ID) {
		logger.WarnKV(ctx, "Out of order end for untracked event")

		return nil
	}

	if pending := c.store.Len(); pending > 0 {
		logger.WarnKV(ctx, "Events still pending after end", "pending", pending)
	}

	if c.Excluded(event) {
		logger.DebugKV(ctx, "End outside required zone", "entered_zones", event.EnteredZones)

		return nil
	}

	if !event.HasClip {
		return nil
	}

	if err := c.waitForClip(ctx, event); err != nil {
		return fmt.Errorf("event %s: wait for clip: %w", event.ID, err)
	}

	clipURL := dispatcher.MediaURL(c.opts.ExternalURL, event.ID, dispatcher.ClipFile)

	available := c.poller.Poll(ctx, func(ctx context.Context) (bool, error) {
		return c.media.MediaAvailable(ctx, clipURL)
	})
	if !available {
		logger.WarnKV(ctx, "Clip availability never confirmed, sending anyway", "clip_url", clipURL)
	}

	if _, err := c.notifier.SendClip(ctx, event); err != nil {
		return fmt.Errorf("event %s: %w", event.ID, err)
	}

	return nil
}

// Excluded reports whether a zone rule filters the event out.
func (c *Correlator) Excluded(event *frigate.Event) bool {
	for _, rule := range c.opts.ZoneRules {
		if rule.Camera == event.Camera && !event.InZone(rule.RequiredZone) {
			return true
		}
	}

	return false
}

// waitForClip sleeps until ClipMinDelay after the event start.
// The wait never exceeds ClipMinDelay.
func (c *Correlator) waitForClip(ctx context.Context, event *frigate.Event) error {
	wait := min(event.Started().Add(c.opts.ClipMinDelay).Sub(c.opts.Now()), c.opts.ClipMinDelay)
	if wait <= 0 {
		return nil
	}

	logger.DebugKV(ctx, "Waiting for clip", "wait", wait)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
