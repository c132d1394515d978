package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/frigate-notifier/internal/api/grpc/health"
	"github.com/oshokin/frigate-notifier/internal/config"
	"github.com/oshokin/frigate-notifier/internal/domain/notification"
	"github.com/oshokin/frigate-notifier/internal/service/common"
	"github.com/oshokin/frigate-notifier/internal/service/notifier"
)

// homeAssistant fakes the Home Assistant REST endpoints and the media proxy.
type homeAssistant struct {
	mu       sync.Mutex
	alarm    string
	notified []notification.Notification
}

func (h *homeAssistant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case r.URL.Path == "/api/states/alarm_control_panel.home":
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"entity_id":"alarm_control_panel.home","state":%q}`, h.alarm)
	case r.URL.Path == "/api/services/notify/all_phones":
		var n notification.Notification
		_ = json.NewDecoder(r.Body).Decode(&n)
		h.notified = append(h.notified, n)
	case r.Method == http.MethodGet && filepath.Base(r.URL.Path) == "clip.mp4":
		_, _ = w.Write([]byte("mp4"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *homeAssistant) notifications() []notification.Notification {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]notification.Notification(nil), h.notified...)
}

// reservePort returns a free loopback address.
func reservePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	_ = l.Close()

	return addr
}

// daemon is a running notifier with its collaborators.
type daemon struct {
	ha            *homeAssistant
	bus           *nats.Conn
	httpAddress   string
	statusAddress string
	configPath    string
}

// startDaemon runs the notifier against an embedded NATS server and a fake
// Home Assistant, and waits until it reports SERVING.
func startDaemon(t *testing.T) *daemon {
	t.Helper()

	opts := natsserver.DefaultTestOptions
	opts.Port = -1

	bus := natsserver.RunServer(&opts)
	t.Cleanup(bus.Shutdown)

	d := &daemon{
		ha:            &homeAssistant{alarm: "disarmed"},
		httpAddress:   reservePort(t),
		statusAddress: reservePort(t),
		configPath:    filepath.Join(t.TempDir(), config.DefaultConfigFilename),
	}

	haServer := httptest.NewServer(d.ha)
	t.Cleanup(haServer.Close)

	require.NoError(t, config.Save(d.configPath, &config.Config{
		LogLevel: "debug",
		HomeAssistant: config.HomeAssistant{
			URL:   haServer.URL,
			Token: "test-token",
		},
		Transport: config.Transport{
			Kind: config.TransportNATS,
			NATS: config.NATS{URL: bus.ClientURL()},
		},
		SnoozeStore:   config.SnoozeStore{Path: filepath.Join(t.TempDir(), config.DefaultSnoozeFilename)},
		HTTPAddress:   d.httpAddress,
		StatusAddress: d.statusAddress,
		Timeout:       3 * time.Second,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- notifier.Run(ctx, &notifier.Options{ConfigPath: d.configPath})
	}()

	t.Cleanup(func() {
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("notifier did not stop")
		}
	})

	probe, err := common.Dial(ctx, d.statusAddress, common.WithCallTimeout(time.Second))
	require.NoError(t, err)

	defer func() {
		_ = probe.Close()
	}()

	require.Eventually(t, func() bool {
		status, checkErr := probe.Check(ctx, health.ServiceName)

		return checkErr == nil && status == healthpb.HealthCheckResponse_SERVING
	}, 10*time.Second, 50*time.Millisecond)

	d.bus, err = nats.Connect(bus.ClientURL())
	require.NoError(t, err)
	t.Cleanup(d.bus.Close)

	return d
}

// publish sends a Frigate event for id on the NATS subject.
func (d *daemon) publish(t *testing.T, kind, id string, snapshot, clip bool) {
	t.Helper()

	payload := fmt.Sprintf(`{"type":%q,"after":{"id":%q,"camera":"frigate_driveway","label":"person",`+
		`"entered_zones":["driveway"],"has_snapshot":%t,"has_clip":%t,"start_time":1000}}`,
		kind, id, snapshot, clip)

	require.NoError(t, d.bus.Publish(config.DefaultNATSSubject, []byte(payload)))
	require.NoError(t, d.bus.Flush())
}

func (d *daemon) get(t *testing.T, path string, out any) {
	t.Helper()

	resp, err := http.Get("http://" + d.httpAddress + path) //nolint:noctx // Test helper.
	require.NoError(t, err)

	defer func() {
		_ = resp.Body.Close()
	}()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// pending returns the number of pending events, or -1 when the API fails.
func (d *daemon) pending() int {
	resp, err := http.Get("http://" + d.httpAddress + "/api/events") //nolint:noctx // Test helper.
	if err != nil {
		return -1
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	var body struct {
		Pending int `json:"pending"`
	}

	if err = json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return -1
	}

	return body.Pending
}

// TestNotifier_EventLifecycleOverNATS publishes a full event and expects three notifications.
func TestNotifier_EventLifecycleOverNATS(t *testing.T) {
	t.Parallel()

	d := startDaemon(t)

	d.publish(t, "new", "1", false, false)
	d.publish(t, "update", "1", true, false)
	d.publish(t, "update", "1", true, false)
	d.publish(t, "end", "1", true, true)

	require.Eventually(t, func() bool { return len(d.ha.notifications()) == 3 }, 10*time.Second, 50*time.Millisecond)

	sent := d.ha.notifications()
	require.False(t, sent[0].IsLowPriority())
	require.True(t, sent[1].IsLowPriority())
	require.Len(t, sent[2].Data.Actions, 3)
	require.NotEmpty(t, sent[2].Data.Video)

	require.Zero(t, d.pending())
}

// TestNotifier_SnoozeOverHTTP snoozes through the webhook and stops notifications.
func TestNotifier_SnoozeOverHTTP(t *testing.T) {
	t.Parallel()

	d := startDaemon(t)

	resp, err := http.Post( //nolint:noctx // Test helper.
		"http://"+d.httpAddress+"/api/actions",
		"application/json",
		bytes.NewBufferString(`{"action":"SNOOZE_CAMERAS","source":"integration"}`),
	)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	var status struct {
		Active      bool `json:"active"`
		Suppressing bool `json:"suppressing"`
	}

	d.get(t, "/api/snooze", &status)
	require.True(t, status.Active)
	require.True(t, status.Suppressing)

	d.publish(t, "new", "2", false, false)
	d.publish(t, "update", "2", true, false)

	require.Eventually(t, func() bool { return d.pending() == 1 }, 10*time.Second, 50*time.Millisecond)

	// The update is handled right after new; give it time to be consumed.
	time.Sleep(200 * time.Millisecond)

	var pending struct {
		Events []struct {
			ID         string `json:"id"`
			ImagesSent int    `json:"images_sent"`
		} `json:"events"`
	}

	d.get(t, "/api/events", &pending)
	require.Len(t, pending.Events, 1)
	require.Equal(t, "2", pending.Events[0].ID)
	require.Zero(t, pending.Events[0].ImagesSent)
	require.Empty(t, d.ha.notifications())
}
