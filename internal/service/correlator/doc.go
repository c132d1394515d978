// Package correlator follows Frigate events through their new, update and end
// phases and decides when snapshot and clip notifications are sent.
package correlator
