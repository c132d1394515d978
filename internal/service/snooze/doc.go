// Package snooze implements the notification snooze gate.
//
// A user snoozes camera notifications from the clip notification's action
// button (or the frigate-snooze CLI). The gate persists the snooze-until
// instant through a state.Repository and reports notifications as snoozed
// only while the alarm panel is disarmed, so an armed house always alerts.
package snooze
