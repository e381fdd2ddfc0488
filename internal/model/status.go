package model

// Status is the lifecycle state of an event.
type Status string

const (
	StatusDiscovered Status = "discovered"
	StatusScheduled  Status = "scheduled"
	StatusSnoozed    Status = "snoozed"
	StatusIgnored    Status = "ignored"
	StatusReminded   Status = "reminded"
	StatusCompleted  Status = "completed"
	StatusExpired    Status = "expired"

	// Legacy spellings still present in older rows. Read as active,
	// never written by new code.
	StatusPending   Status = "pending"
	StatusDismissed Status = "dismissed"
)

// Statuses lists every status value the store may contain.
func Statuses() []Status {
	return []Status{
		StatusDiscovered, StatusScheduled, StatusSnoozed, StatusIgnored,
		StatusReminded, StatusCompleted, StatusDismissed, StatusExpired,
		StatusPending,
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDiscovered, StatusScheduled, StatusSnoozed, StatusIgnored,
		StatusReminded, StatusCompleted, StatusDismissed, StatusExpired,
		StatusPending:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s. Deletion is still
// allowed from terminal states.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusExpired, StatusIgnored:
		return true
	}
	return false
}

// Active reports whether the event still participates in sweeps and matching.
func (s Status) Active() bool {
	return s.Valid() && !s.Terminal()
}

// ActiveStatuses lists the statuses from which transitions may still occur.
func ActiveStatuses() []Status {
	out := make([]Status, 0, 6)
	for _, s := range Statuses() {
		if s.Active() {
			out = append(out, s)
		}
	}
	return out
}

// CanTransition reports whether an event may move from one status to
// another. Initial statuses (discovered, or scheduled for context-only
// events) are assigned at creation, not via a transition.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	switch to {
	case StatusSnoozed, StatusIgnored, StatusCompleted, StatusExpired:
		return true
	case StatusScheduled:
		// Approve, or a snooze timer elapsing.
		return from == StatusDiscovered || from == StatusSnoozed || from == StatusPending
	case StatusReminded:
		return from == StatusScheduled || from == StatusPending
	}
	return false
}
