// Package dispatcher formats and sends camera notifications.
//
// A snapshot notification goes out for each event update with a snapshot;
// the first one for an event alerts normally and later ones are sent on the
// quiet camera_update channel. A clip notification goes out when the event
// ends and carries buttons to open the clip, open the snapshot and snooze.
// Both are dropped while the snooze gate reports notifications as snoozed.
package dispatcher
