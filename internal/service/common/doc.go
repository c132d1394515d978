// Package common holds helpers shared by several services.
//
// It provides a gRPC health probe client with call timeouts and a helper to
// detect the current system actor (hostname/username) recorded with snoozes.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
