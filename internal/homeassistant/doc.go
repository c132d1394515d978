// Package homeassistant is a small client for the parts of the Home Assistant
// API the notifier needs.
//
// Client speaks the REST API (entity states, service calls, notify) and
// checks media URLs. Listener keeps a websocket subscription to an event type
// open, reconnecting until its context is cancelled; the notifier uses it to
// receive mobile app notification actions.
package homeassistant
