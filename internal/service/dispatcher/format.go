package dispatcher

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/oshokin/frigate-notifier/internal/domain/frigate"
)

// Media file names served by the Frigate integration's notification proxy.
const (
	SnapshotFile = "snapshot.jpg?bbox=1&crop=1"
	ClipFile     = "clip.mp4"
)

// MediaURL builds {baseURL}/api/frigate/notifications/{eventID}/{file}.
func MediaURL(baseURL, eventID, file string) string {
	return fmt.Sprintf("%s/api/frigate/notifications/%s/%s", baseURL, url.PathEscape(eventID), file)
}

// Title renders "{Camera} - {Label} at {HH:MM}". The camera name loses its
// first prefixLength characters ("frigate_driveway" -> "Driveway").
func Title(event *frigate.Event, prefixLength int, now time.Time) string {
	camera := []rune(event.Camera)
	if prefixLength > len(camera) {
		prefixLength = len(camera)
	}

	return fmt.Sprintf("%s - %s at %s",
		capitalize(string(camera[max(prefixLength, 0):])),
		capitalize(event.Label),
		now.Format("15:04"),
	)
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])

	return string(runes)
}

// snoozeTitle renders the snooze button label, e.g. "Snooze 10m" or "Snooze 1h".
func snoozeTitle(d time.Duration) string {
	switch {
	case d <= 0:
		return "Snooze"
	case d%time.Hour == 0:
		return fmt.Sprintf("Snooze %dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("Snooze %dm", d/time.Minute)
	default:
		return "Snooze " + d.String()
	}
}
