package frigate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"
)

// EventType is the lifecycle phase of a detection event.
type EventType string

const (
	// EventNew is published when Frigate starts tracking an object.
	EventNew EventType = "new"
	// EventUpdate is published when a tracked object changes (better snapshot, zones).
	EventUpdate EventType = "update"
	// EventEnd is published when the object is no longer tracked.
	EventEnd EventType = "end"
)

var (
	// ErrInvalidPayload is returned when the message is not valid JSON.
	ErrInvalidPayload = errors.New("invalid event payload")
	// ErrUnknownEventType is returned for a type other than new, update or end.
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrMissingEventID is returned when the "after" block has no id.
	ErrMissingEventID = errors.New("event id is missing")
	// ErrMissingCamera is returned when the "after" block has no camera.
	ErrMissingCamera = errors.New("event camera is missing")
)

// Message is one payload published on the Frigate events topic.
type Message struct {
	// Type is the lifecycle phase.
	Type EventType `json:"type"`
	// Before is the object state before the change; absent on "new".
	Before *Event `json:"before,omitempty"`
	// After is the object state after the change.
	After Event `json:"after"`
}

// Event describes a tracked object at one point of its lifecycle.
type Event struct {
	ID           string   `json:"id"`
	Camera       string   `json:"camera"`
	Label        string   `json:"label"`
	SubLabel     any      `json:"sub_label,omitempty"`
	TopScore     float64  `json:"top_score,omitempty"`
	EnteredZones []string `json:"entered_zones"`
	HasSnapshot  bool     `json:"has_snapshot"`
	HasClip      bool     `json:"has_clip"`
	// StartTime is a Unix timestamp in seconds with a fractional part.
	StartTime float64 `json:"start_time"`
	// EndTime is set once the event has ended.
	EndTime *float64 `json:"end_time,omitempty"`
}

// ParseMessage decodes and validates a raw Frigate event payload.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	if err := msg.Validate(); err != nil {
		return nil, err
	}

	return &msg, nil
}

// Validate checks the fields the notifier depends on.
func (m *Message) Validate() error {
	switch m.Type {
	case EventNew, EventUpdate, EventEnd:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, m.Type)
	}

	if m.After.ID == "" {
		return ErrMissingEventID
	}

	if m.After.Camera == "" {
		return fmt.Errorf("event %s: %w", m.After.ID, ErrMissingCamera)
	}

	return nil
}

// Started returns the event start as a time.Time.
func (e *Event) Started() time.Time {
	sec, frac := math.Modf(e.StartTime)

	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

// InZone reports whether the object entered the named zone.
func (e *Event) InZone(zone string) bool {
	return slices.Contains(e.EnteredZones, zone)
}
