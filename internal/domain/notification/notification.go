// Package notification describes the push notification payload sent through
// the Home Assistant notify service.
package notification

const (
	// ChannelCameraUpdate is the Android channel used for follow-up notifications.
	ChannelCameraUpdate = "camera_update"
	// ImportanceLow keeps follow-up notifications from re-alerting loudly.
	ImportanceLow = "low"
	// ActionURI opens the action's URI on the phone.
	ActionURI = "URI"
)

// Notification is the body of a notify service call.
type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Data    Data   `json:"data"`
}

// Data carries the mobile app specific options.
type Data struct {
	// Tag groups notifications for the same event so newer ones replace older ones.
	Tag        string   `json:"tag"`
	Image      string   `json:"image"`
	Video      string   `json:"video,omitempty"`
	Channel    string   `json:"channel,omitempty"`
	Importance string   `json:"importance,omitempty"`
	Actions    []Action `json:"actions,omitempty"`
}

// Action is a button shown on the notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	URI    string `json:"uri,omitempty"`
}

// LowPriority marks the notification as a quiet camera update.
func (n *Notification) LowPriority() {
	n.Data.Channel = ChannelCameraUpdate
	n.Data.Importance = ImportanceLow
}

// IsLowPriority reports whether LowPriority was applied.
func (n *Notification) IsLowPriority() bool {
	return n.Data.Channel == ChannelCameraUpdate && n.Data.Importance == ImportanceLow
}
