// Package transport subscribes to the event bus carrying Frigate events and
// hands decoded messages to the notifier's event loop.
//
// Frigate publishes on the MQTT topic "frigate/events". The notifier either
// subscribes there directly or through NATS, whose MQTT gateway maps the
// topic to the subject "frigate.events".
package transport
