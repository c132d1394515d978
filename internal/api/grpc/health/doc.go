// Package health serves the standard gRPC health service for the notifier.
// Probes such as frigate-healthcheck or a container orchestrator dial it.
package health
