// Package frigate contains the typed Frigate event payloads consumed from the
// event bus and the boundary validation that turns raw JSON into them.
package frigate
