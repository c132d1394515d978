// Package checker implements frigate-healthcheck, a probe of the notifier's
// gRPC health service suitable for container health checks.
package checker
