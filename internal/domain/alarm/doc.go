// Package alarm contains the domain types the snooze gate reasons about.
//
// It defines ArmState (the alarm panel mode read from Home Assistant), Actor
// (who changed the snooze) and Snooze (the persisted snooze-until instant)
// with Clone helpers to avoid leaking internal references.
package alarm
