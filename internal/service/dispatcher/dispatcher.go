package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/frigate-notifier/internal/domain/frigate"
	"github.com/oshokin/frigate-notifier/internal/domain/notification"
	"github.com/oshokin/frigate-notifier/internal/logger"
	"github.com/oshokin/frigate-notifier/internal/repository/events"
)

// Sender delivers a notification through a notify service.
type Sender interface {
	Notify(ctx context.Context, service string, n *notification.Notification) error
}

// SnoozeChecker reports whether notifications are currently snoozed.
type SnoozeChecker interface {
	IsSnoozed(ctx context.Context) (bool, error)
}

// Options configures formatting and delivery.
type Options struct {
	// ExternalURL is the base URL phones use to fetch media.
	ExternalURL string
	// NotifyService is the notify service name, e.g. "all_phones".
	NotifyService string
	// CameraPrefixLength is stripped from camera names in titles.
	CameraPrefixLength int
	// SnoozeAction is the identifier of the snooze button.
	SnoozeAction string
	// SnoozeDuration is shown on the snooze button.
	SnoozeDuration time.Duration
	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
}

// Button titles of the clip notification.
const (
	titleViewClip     = "View Clip"
	titleViewSnapshot = "View Snapshot"
)

// Dispatcher sends snapshot and clip notifications.
type Dispatcher struct {
	// sender delivers notifications.
	sender Sender
	// snooze suppresses notifications while snoozed.
	snooze SnoozeChecker
	// store holds the per-event snapshot counters.
	store events.Store
	// opts holds formatting settings.
	opts Options
}

// New creates a dispatcher.
func New(sender Sender, snooze SnoozeChecker, store events.Store, opts Options) *Dispatcher {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Dispatcher{
		sender: sender,
		snooze: snooze,
		store:  store,
		opts:   opts,
	}
}

// SnapshotNotification builds the snapshot notification for event.
// imagesSent is the number of snapshots already delivered for the event.
func (d *Dispatcher) SnapshotNotification(event *frigate.Event, imagesSent int) *notification.Notification {
	n := &notification.Notification{
		Title: Title(event, d.opts.CameraPrefixLength, d.opts.Now()),
		Data: notification.Data{
			Tag:   event.ID,
			Image: MediaURL(d.opts.ExternalURL, event.ID, SnapshotFile),
		},
	}

	if imagesSent > 0 {
		n.LowPriority()
	}

	return n
}

// ClipNotification builds the clip notification for event.
func (d *Dispatcher) ClipNotification(event *frigate.Event) *notification.Notification {
	var (
		imageURL = MediaURL(d.opts.ExternalURL, event.ID, SnapshotFile)
		videoURL = MediaURL(d.opts.ExternalURL, event.ID, ClipFile)
	)

	n := &notification.Notification{
		Title: Title(event, d.opts.CameraPrefixLength, d.opts.Now()),
		Data: notification.Data{
			Tag:   event.ID,
			Image: imageURL,
			Video: videoURL,
			Actions: []notification.Action{
				{Action: notification.ActionURI, Title: titleViewClip, URI: videoURL},
				{Action: notification.ActionURI, Title: titleViewSnapshot, URI: imageURL},
				{Action: d.opts.SnoozeAction, Title: snoozeTitle(d.opts.SnoozeDuration)},
			},
		},
	}

	n.LowPriority()

	return n
}

// SendSnapshot sends a snapshot notification and increments the event's
// snapshot counter. It reports whether a notification was sent.
func (d *Dispatcher) SendSnapshot(ctx context.Context, event *frigate.Event) (bool, error) {
	if d.snoozed(ctx) {
		return false, nil
	}

	record, ok := d.store.Get(event.ID)
	if !ok {
		logger.WarnKV(ctx, "Sending snapshot for untracked event", "event_id", event.ID)
	}

	n := d.SnapshotNotification(event, record.ImagesSent)

	if err := d.sender.Notify(ctx, d.opts.NotifyService, n); err != nil {
		return false, fmt.Errorf("send snapshot notification: %w", err)
	}

	sent, err := d.store.IncrementImages(event.ID)
	if err != nil && !errors.Is(err, events.ErrNotFound) {
		return true, fmt.Errorf("count snapshot: %w", err)
	}

	logger.InfoKV(ctx, "Snapshot notification sent",
		"event_id", event.ID, "images_sent", sent, "low_priority", n.IsLowPriority())

	return true, nil
}

// SendClip sends the clip notification. It reports whether a notification was sent.
func (d *Dispatcher) SendClip(ctx context.Context, event *frigate.Event) (bool, error) {
	if d.snoozed(ctx) {
		return false, nil
	}

	if err := d.sender.Notify(ctx, d.opts.NotifyService, d.ClipNotification(event)); err != nil {
		return false, fmt.Errorf("send clip notification: %w", err)
	}

	logger.InfoKV(ctx, "Clip notification sent", "event_id", event.ID)

	return true, nil
}

// snoozed asks the snooze gate; a failing gate lets notifications through.
func (d *Dispatcher) snoozed(ctx context.Context) bool {
	snoozed, err := d.snooze.IsSnoozed(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Snooze check failed, notifying anyway", "error", err)

		return false
	}

	if snoozed {
		logger.InfoKV(ctx, "Notification suppressed by snooze")
	}

	return snoozed
}
