package correlator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/frigate-notifier/internal/domain/frigate"
	"github.com/oshokin/frigate-notifier/internal/domain/notification"
	"github.com/oshokin/frigate-notifier/internal/repository/events"
	"github.com/oshokin/frigate-notifier/internal/service/dispatcher"
	"github.com/oshokin/frigate-notifier/internal/service/poller"
)

const (
	testExternalURL = "https://ha.example.com"
	testEventID     = "1"
	testClipURL     = testExternalURL + "/api/frigate/notifications/1/clip.mp4"
	testClipDelay   = 13 * time.Second
)

var errTestSend = errors.New("notify failed")

// recordingSender collects notifications.
type recordingSender struct {
	mu   sync.Mutex
	sent []*notification.Notification
	err  error
}

func (r *recordingSender) Notify(_ context.Context, _ string, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}

	r.sent = append(r.sent, n)

	return nil
}

func (r *recordingSender) notifications() []*notification.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*notification.Notification(nil), r.sent...)
}

// fakeMedia answers from a list and records when it was asked.
type fakeMedia struct {
	mu      sync.Mutex
	answers []bool
	calls   []time.Time
	urls    []string
}

func (f *fakeMedia) MediaAvailable(_ context.Context, mediaURL string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, time.Now())
	f.urls = append(f.urls, mediaURL)

	if len(f.answers) == 0 {
		return false, nil
	}

	answer := f.answers[0]
	f.answers = f.answers[1:]

	return answer, nil
}

type notSnoozed struct{}

func (notSnoozed) IsSnoozed(context.Context) (bool, error) { return false, nil }

type harness struct {
	correlator *Correlator
	store      *events.MemoryStore
	sender     *recordingSender
	media      *fakeMedia
}

func newHarness(answers ...bool) *harness {
	h := &harness{
		store:  events.NewMemoryStore(),
		sender: new(recordingSender),
		media:  &fakeMedia{answers: answers},
	}

	d := dispatcher.New(h.sender, notSnoozed{}, h.store, dispatcher.Options{
		ExternalURL:        testExternalURL,
		NotifyService:      "all_phones",
		CameraPrefixLength: 8,
		SnoozeAction:       "SNOOZE_CAMERAS",
		SnoozeDuration:     10 * time.Minute,
	})

	h.correlator = New(h.store, d, h.media, poller.New(5*time.Second, 3), Options{
		ExternalURL:  testExternalURL,
		ZoneRules:    []ZoneRule{{Camera: "frigate_driveway", RequiredZone: "driveway"}},
		ClipMinDelay: testClipDelay,
	})

	return h
}

func message(kind frigate.EventType, start time.Time, mutate func(e *frigate.Event)) *frigate.Message {
	msg := &frigate.Message{
		Type: kind,
		After: frigate.Event{
			ID:           testEventID,
			Camera:       "frigate_driveway",
			Label:        "person",
			EnteredZones: []string{"driveway"},
			StartTime:    float64(start.Unix()),
		},
	}

	if mutate != nil {
		mutate(&msg.After)
	}

	return msg
}

func withSnapshot(e *frigate.Event) { e.HasSnapshot = true }

func withClip(e *frigate.Event) { e.HasClip = true }

// TestCorrelator_EndToEnd walks new, two updates and end for one event.
func TestCorrelator_EndToEnd(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			ctx   = context.Background()
			h     = newHarness(true)
			start = time.Now()
		)

		require.NoError(t, h.correlator.Handle(ctx, message(frigate.EventNew, start, nil)))

		rec, ok := h.store.Get(testEventID)
		require.True(t, ok)
		require.Zero(t, rec.ImagesSent)

		require.NoError(t, h.correlator.Handle(ctx, message(frigate.EventUpdate, start, withSnapshot)))

		rec, _ = h.store.Get(testEventID)
		require.Equal(t, 1, rec.ImagesSent)

		require.NoError(t, h.correlator.Handle(ctx, message(frigate.EventUpdate, start, withSnapshot)))

		rec, _ = h.store.Get(testEventID)
		require.Equal(t, 2, rec.ImagesSent)

		require.NoError(t, h.correlator.Handle(ctx, message(frigate.EventEnd, start, withClip)))

		_, ok = h.store.Get(testEventID)
		require.False(t, ok)
		require.Zero(t, h.store.Len())

		sent := h.sender.notifications()
		require.Len(t, sent, 3)
		require.False(t, sent[0].IsLowPriority())
		require.True(t, sent[1].IsLowPriority())

		clip := sent[2]
		require.Equal(t, testClipURL, clip.Data.Video)
		require.True(t, clip.IsLowPriority())
		require.Len(t, clip.Data.Actions, 3)
		require.Equal(t, "View Clip", clip.Data.Actions[0].Title)
		require.Equal(t, "View Snapshot", clip.Data.Actions[1].Title)
		require.Equal(t, "SNOOZE_CAMERAS", clip.Data.Actions[2].Action)

		require.Equal(t, []string{testClipURL}, h.media.urls)
	})
}

// TestCorrelator_UntrackedIsNoop ignores update and end without a prior new.
func TestCorrelator_UntrackedIsNoop(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			ctx   = context.Background()
			h     = newHarness(true)
			start = time.Now()
		)

		require.NoError(t, h.correlator.Handle(ctx, message(frigate.EventUpdate, start, withSnapshot)))
		require.NoError(t, h.correlator.Handle(ctx, message(frigate.EventEnd, start, withClip)))

		require.Zero(t, h.store.Len())
		require.Empty(t, h.sender.notifications())
		require.Empty(t, h.media.calls)
		require.Zero(t, time.Since(start))
	})
}

// TestCorrelator_ZoneExcluded drops driveway events outside the driveway zone.
func TestCorrelator_ZoneExcluded(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			ctx     = context.Background()
			h       = newHarness(true)
			start   = time.Now()
			outside = func(e *frigate.Event) {
				e.EnteredZones = []string{"street"}
				e.HasSnapshot = true
				e.HasClip = true
			}
		)

		require.NoError(t, h.correlator.Handle(ctx, message(frigate.EventNew, start, nil)))
		require.NoError(t, h.correlator.Handle(ctx, message(frigate.EventUpdate, start, outside)))
		require.NoError(t, h.correlator.Handle(ctx, message(frigate.EventEnd, start, outside)))

		require.Empty(t, h.sender.notifications())
		require.Empty(t, h.media.calls)
		require.Zero(t, h.store.Len())
	})
}

// TestCorrelator_OtherCamerasIgnoreZoneRule notifies cameras without a rule.
func TestCorrelator_OtherCamerasIgnoreZoneRule(t *testing.T) {
	t.Parallel()

	h := newHarness()
	event := &frigate.Event{ID: testEventID, Camera: "frigate_backyard", HasSnapshot: true}

	require.False(t, h.correlator.Excluded(event))
	require.True(t, h.correlator.Excluded(&frigate.Event{Camera: "frigate_driveway"}))
	require.False(t, h.correlator.Excluded(&frigate.Event{Camera: "frigate_driveway", EnteredZones: []string{"driveway"}}))
}

// TestCorrelator_ClipCheckWaitsForMinimumDelay never checks the clip before start+13s.
func TestCorrelator_ClipCheckWaitsForMinimumDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		startedAt time.Duration
		wantWait  time.Duration
	}{
		{name: "just started", startedAt: 0, wantWait: 13 * time.Second},
		{name: "started five seconds ago", startedAt: -5 * time.Second, wantWait: 8 * time.Second},
		{name: "started long ago", startedAt: -time.Minute, wantWait: 0},
		{name: "start in the future is capped", startedAt: time.Hour, wantWait: 13 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			synctest.Test(t, func(t *testing.T) {
				var (
					ctx   = context.Background()
					h     = newHarness(true)
					now   = time.Now()
					start = now.Add(tt.startedAt)
				)

				require.NoError(t, h.correlator.Handle(ctx, message(frigate.EventNew, start, nil)))
				require.NoError(t, h.correlator.Handle(ctx, message(frigate.EventEnd, start, withClip)))

				require.Len(t, h.media.calls, 1)
				require.Equal(t, tt.wantWait, h.media.calls[0].Sub(now))

				if tt.startedAt <= 0 {
					require.False(t, h.media.calls[0].Before(start.Add(testClipDelay)))
				}
			})
		})
	}
}

// TestCorrelator_ClipSentWhenNeverConfirmed sends the clip after the poll gives up.
func TestCorrelator_ClipSentWhenNeverConfirmed(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			ctx   = context.Background()
			h     = newHarness()
			start = time.Now()
		)

		require.NoError(t, h.correlator.Handle(ctx, message(frigate.EventNew, start, nil)))
		require.NoError(t, h.correlator.Handle(ctx, message(frigate.EventEnd, start, withClip)))

		require.Len(t, h.media.calls, 3)
		require.Equal(t, 5*time.Second, h.media.calls[1].Sub(h.media.calls[0]))
		require.Equal(t, 5*time.Second, h.media.calls[2].Sub(h.media.calls[1]))
		require.Equal(t, testClipDelay+10*time.Second, time.Since(start))

		sent := h.sender.notifications()
		require.Len(t, sent, 1)
		require.Equal(t, testClipURL, sent[0].Data.Video)
	})
}

// TestCorrelator_EndWithoutClip removes the record and sends nothing.
func TestCorrelator_EndWithoutClip(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			ctx   = context.Background()
			h     = newHarness(true)
			start = time.Now()
		)

		require.NoError(t, h.correlator.Handle(ctx, message(frigate.EventNew, start, nil)))
		require.NoError(t, h.correlator.Handle(ctx, message(frigate.EventEnd, start, nil)))

		require.Zero(t, h.store.Len())
		require.Empty(t, h.sender.notifications())
		require.Empty(t, h.media.calls)
	})
}

// TestCorrelator_CancelDuringWait stops before checking the clip.
func TestCorrelator_CancelDuringWait(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			ctx, cancel = context.WithCancel(context.Background())
			h           = newHarness(true)
			start       = time.Now()
		)

		defer cancel()

		require.NoError(t, h.correlator.Handle(ctx, message(frigate.EventNew, start, nil)))

		errCh := make(chan error, 1)

		go func() {
			errCh <- h.correlator.Handle(ctx, message(frigate.EventEnd, start, withClip))
		}()

		time.Sleep(5 * time.Second)
		cancel()

		require.ErrorIs(t, <-errCh, context.Canceled)
		require.Empty(t, h.media.calls)
		require.Empty(t, h.sender.notifications())
		require.Zero(t, h.store.Len())
	})
}

// TestCorrelator_PendingEventsSurviveOtherEnd keeps unrelated records.
func TestCorrelator_PendingEventsSurviveOtherEnd(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			ctx   = context.Background()
			h     = newHarness(true)
			start = time.Now()
			other = func(e *frigate.Event) { e.ID = "2" }
		)

		require.NoError(t, h.correlator.Handle(ctx, message(frigate.EventNew, start, nil)))
		require.NoError(t, h.correlator.Handle(ctx, message(frigate.EventNew, start, other)))
		require.NoError(t, h.correlator.Handle(ctx, message(frigate.EventEnd, start, nil)))

		_, ok := h.store.Get("2")
		require.True(t, ok)
		require.Equal(t, 1, h.store.Len())
	})
}

// TestCorrelator_SendErrorPropagates returns delivery failures to the caller.
func TestCorrelator_SendErrorPropagates(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			ctx   = context.Background()
			h     = newHarness(true)
			start = time.Now()
		)

		h.sender.err = errTestSend

		require.NoError(t, h.correlator.Handle(ctx, message(frigate.EventNew, start, nil)))
		require.ErrorIs(t, h.correlator.Handle(ctx, message(frigate.EventUpdate, start, withSnapshot)), errTestSend)
		require.ErrorIs(t, h.correlator.Handle(ctx, message(frigate.EventEnd, start, withClip)), errTestSend)
	})
}
