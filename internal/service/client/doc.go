// Package client implements the frigate-snooze command.
//
// The command reads or changes the persisted snooze directly through the
// configured snooze store, recording the local user as the actor.
package client
