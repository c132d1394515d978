// Package rest exposes the notifier's HTTP API: a webhook for notification
// actions and read-only views of pending events and the snooze.
package rest
