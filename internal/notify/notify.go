// Package notify carries reminder notifications from the core to delivery
// channels. Delivery is at-least-once from the channel's point of view; the
// core's at-most-once guarantee lives in the trigger store, not here.
package notify

import "github.com/arguslabs/argus/server/internal/model"

// PopupKind tells the presentation layer which template to render.
type PopupKind string

const (
	PopupEventDiscovery  PopupKind = "event_discovery"
	PopupEventReminder   PopupKind = "event_reminder"
	PopupContextReminder PopupKind = "context_reminder"
	PopupConflictWarning PopupKind = "conflict_warning"
	PopupSnoozeReminder  PopupKind = "snooze_reminder"
)

// ConflictRef is the short form of a conflicting event carried inside a
// notification.
type ConflictRef struct {
	EventID      int64  `json:"eventId"`
	Title        string `json:"title"`
	AbsoluteTime *int64 `json:"absoluteTime,omitempty"`
}

// Notification is the push message delivered to channels. It carries the
// event's full current attributes plus the firing trigger's type, so the
// presentation layer needs no further store round-trip.
type Notification struct {
	EventID      int64           `json:"eventId"`
	Title        string          `json:"title"`
	Description  *string         `json:"description,omitempty"`
	AbsoluteTime *int64          `json:"absoluteTime,omitempty"`
	Location     *string         `json:"location,omitempty"`
	EventType    model.EventType `json:"eventType"`
	TriggerType  string          `json:"triggerType,omitempty"`
	PopupKind    PopupKind       `json:"popupKind"`
	Conflicts    []ConflictRef   `json:"conflicts,omitempty"`
}

// Trigger-type values for notifications not driven by a stored trigger.
const (
	TriggerReminder  = "reminder"
	TriggerSnooze    = "snooze"
	TriggerConflict  = "conflict"
	TriggerDiscovery = "discovery"
	TriggerContext   = "url"
)

// FromEvent builds a notification from an event's current attributes.
func FromEvent(ev *model.Event, trigger string, kind PopupKind) Notification {
	return Notification{
		EventID:      ev.ID,
		Title:        ev.Title,
		Description:  ev.Description,
		AbsoluteTime: ev.EventTime,
		Location:     ev.Location,
		EventType:    ev.EventType,
		TriggerType:  trigger,
		PopupKind:    kind,
	}
}

// ConflictRefs converts events to their notification short form.
func ConflictRefs(events []*model.Event) []ConflictRef {
	if len(events) == 0 {
		return nil
	}
	out := make([]ConflictRef, 0, len(events))
	for _, ev := range events {
		out = append(out, ConflictRef{EventID: ev.ID, Title: ev.Title, AbsoluteTime: ev.EventTime})
	}
	return out
}

// Broadcaster pushes notifications to every connected channel.
type Broadcaster interface {
	Publish(n Notification)
}

// NopBroadcaster discards notifications, for wiring without a channel.
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(Notification) {}
