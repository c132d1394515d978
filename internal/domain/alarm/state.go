package alarm

import "strings"

// ArmState is the mode reported by an alarm_control_panel entity.
type ArmState string

// Alarm panel modes as reported by Home Assistant.
const (
	StateDisarmed          ArmState = "disarmed"
	StateArmedHome         ArmState = "armed_home"
	StateArmedAway         ArmState = "armed_away"
	StateArmedNight        ArmState = "armed_night"
	StateArmedVacation     ArmState = "armed_vacation"
	StateArmedCustomBypass ArmState = "armed_custom_bypass"
	StateArming            ArmState = "arming"
	StateDisarming         ArmState = "disarming"
	StatePending           ArmState = "pending"
	StateTriggered         ArmState = "triggered"
	StateUnknown           ArmState = "unknown"
)

// ParseArmState maps a raw entity state to an ArmState.
// Anything unrecognised, including "unavailable", is StateUnknown.
func ParseArmState(raw string) ArmState {
	state := ArmState(strings.ToLower(strings.TrimSpace(raw)))

	switch state {
	case StateDisarmed, StateArmedHome, StateArmedAway, StateArmedNight,
		StateArmedVacation, StateArmedCustomBypass, StateArming, StateDisarming,
		StatePending, StateTriggered:
		return state
	default:
		return StateUnknown
	}
}

// IsDisarmed reports whether the panel is fully disarmed.
// Transitional and unknown states count as not disarmed so a snooze never
// hides events while the house might be armed.
func (s ArmState) IsDisarmed() bool {
	return s == StateDisarmed
}
