// Package events holds the in-flight detection event records.
//
// The MemoryStore is owned by the correlator and injected into it, so tests
// and the HTTP status API can inspect it without package-level state.
package events
