package alarm

import "time"

// Actor identifies who performed an action in the system.
type Actor struct {
	// Hostname is the machine name where the action was performed.
	Hostname string
	// Username is the system user or notification action source.
	Username string
}

// Clone returns a deep copy of the actor.
func (a *Actor) Clone() *Actor {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// Snooze is the persisted notification suppression window.
type Snooze struct {
	// Until is the instant notifications resume. Zero means never snoozed.
	Until time.Time
	// UpdatedAt is when the snooze was last changed.
	UpdatedAt time.Time
	// LastActor is who last changed the snooze, if known.
	LastActor *Actor
}

// ActiveAt reports whether now falls inside the snooze window.
func (s *Snooze) ActiveAt(now time.Time) bool {
	if s == nil || s.Until.IsZero() {
		return false
	}

	return now.Before(s.Until)
}

// Clone returns a copy of the snooze to avoid leaking internal references.
func (s *Snooze) Clone() *Snooze {
	if s == nil {
		return nil
	}

	return &Snooze{
		Until:     s.Until,
		UpdatedAt: s.UpdatedAt,
		LastActor: s.LastActor.Clone(),
	}
}
