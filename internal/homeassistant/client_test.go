package homeassistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/frigate-notifier/internal/domain/alarm"
	"github.com/oshokin/frigate-notifier/internal/domain/notification"
)

// newTestClient starts handler behind httptest and returns a client for it and the server URL.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, string) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, "test-token")
	require.NoError(t, err)

	return client, server.URL
}

// TestNewClient_ValidatesURL rejects empty and relative base URLs.
func TestNewClient_ValidatesURL(t *testing.T) {
	t.Parallel()

	_, err := NewClient("", "token")
	require.ErrorIs(t, err, errBaseURLRequired)

	_, err = NewClient("ha.local", "token")
	require.Error(t, err)
}

// TestClient_GetState decodes an entity and sends the bearer token.
func TestClient_GetState(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/states/alarm_control_panel.home", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.Contains(t, r.Header.Get("User-Agent"), "frigate-notifier/")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"entity_id":  "alarm_control_panel.home",
			"state":      "armed_away",
			"attributes": map[string]any{"code_format": nil},
		})
	})

	state, err := client.GetState(context.Background(), "alarm_control_panel.home")
	require.NoError(t, err)
	require.Equal(t, "armed_away", state.State)

	armState, err := client.ArmState(context.Background(), "alarm_control_panel.home")
	require.NoError(t, err)
	require.Equal(t, alarm.StateArmedAway, armState)

	armState, err = client.AlarmPanel("alarm_control_panel.home").ArmState(context.Background())
	require.NoError(t, err)
	require.Equal(t, alarm.StateArmedAway, armState)
}

// TestClient_GetState_NotFound maps 404 to ErrEntityNotFound and 500 to ErrUnexpectedStatus.
func TestClient_GetState_NotFound(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/states/input_datetime.missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Entity not found."}`))

			return
		}

		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.GetState(context.Background(), "input_datetime.missing")
	require.ErrorIs(t, err, ErrEntityNotFound)

	_, err = client.GetState(context.Background(), "sensor.broken")
	require.ErrorIs(t, err, ErrUnexpectedStatus)
}

// TestClient_Notify posts the notification body to the notify service.
func TestClient_Notify(t *testing.T) {
	t.Parallel()

	var got notification.Notification

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/services/notify/all_phones", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	})

	n := &notification.Notification{
		Title: "Driveway - Person at 12:34",
		Data:  notification.Data{Tag: "1", Image: "http://img"},
	}
	n.LowPriority()

	require.NoError(t, client.Notify(context.Background(), "all_phones", n))
	require.Equal(t, *n, got)
}

// TestClient_SetDateTime sends the unix timestamp to input_datetime.set_datetime.
func TestClient_SetDateTime(t *testing.T) {
	t.Parallel()

	var body map[string]any

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/services/input_datetime/set_datetime", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	})

	until := time.Unix(1_800_000_000, 0)
	require.NoError(t, client.SetDateTime(context.Background(), "input_datetime.snooze", until))
	require.Equal(t, "input_datetime.snooze", body["entity_id"])
	require.InDelta(t, 1_800_000_000, body["timestamp"], 0)
}

// TestClient_MediaAvailable treats only 200 as available.
func TestClient_MediaAvailable(t *testing.T) {
	t.Parallel()

	client, baseURL := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/frigate/notifications/1/clip.mp4" {
			w.WriteHeader(http.StatusOK)

			return
		}

		w.WriteHeader(http.StatusNotFound)
	})

	clipURL := baseURL + "/api/frigate/notifications/1/clip.mp4"

	ok, err := client.MediaAvailable(context.Background(), clipURL)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.MediaAvailable(context.Background(), clipURL+".missing")
	require.NoError(t, err)
	require.False(t, ok)
}

// TestClient_MediaAvailable_DoesNotDownloadBody stops reading after the status line.
func TestClient_MediaAvailable_DoesNotDownloadBody(t *testing.T) {
	t.Parallel()

	const (
		chunkSize = 32 << 10
		bodySize  = 256 << 20
	)

	written := make(chan int, 1)

	client, baseURL := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.WriteHeader(http.StatusOK)

		chunk := make([]byte, chunkSize)
		total := 0

		for total < bodySize {
			n, err := w.Write(chunk)
			total += n

			if err != nil {
				break
			}
		}

		written <- total
	})

	ok, err := client.MediaAvailable(context.Background(), baseURL+"/api/frigate/notifications/1/clip.mp4")
	require.NoError(t, err)
	require.True(t, ok)

	select {
	case total := <-written:
		require.Less(t, total, bodySize)
	case <-time.After(10 * time.Second):
		t.Fatal("media handler kept writing after the client returned")
	}
}

// TestClient_MediaAvailable_ConnectionError surfaces transport failures.
func TestClient_MediaAvailable_ConnectionError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	address := server.URL
	server.Close()

	client, err := NewClient(address, "token", WithTimeout(time.Second))
	require.NoError(t, err)

	ok, err := client.MediaAvailable(context.Background(), address+"/clip.mp4")
	require.Error(t, err)
	require.False(t, ok)
}

// TestState_Timestamp reads the input_datetime timestamp attribute.
func TestState_Timestamp(t *testing.T) {
	t.Parallel()

	s := &State{Attributes: map[string]any{"timestamp": float64(1_800_000_000)}}

	ts, ok := s.Timestamp()
	require.True(t, ok)
	require.Equal(t, time.Unix(1_800_000_000, 0), ts)

	_, ok = (&State{State: "unknown"}).Timestamp()
	require.False(t, ok)
}
