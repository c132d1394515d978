// Package state implements persistence for the snooze-until timestamp.
//
// FileRepository stores the snooze as JSON on disk, encoded through protojson
// so timestamps keep the canonical RFC 3339 form. EntityRepository keeps it in
// a Home Assistant input_datetime entity so automations and dashboards can
// see it. Both satisfy Repository, which the snooze gate depends on.
package state
