// Package notifier runs the frigate-notifier daemon.
//
// It loads the configuration, connects to the event bus and Home Assistant,
// feeds Frigate events through the correlator one at a time and serves the
// HTTP API and gRPC health service until the context is cancelled.
package notifier
