package model

import "time"

// EventType classifies what kind of commitment an event represents.
type EventType string

const (
	EventMeeting        EventType = "meeting"
	EventDeadline       EventType = "deadline"
	EventReminder       EventType = "reminder"
	EventTravel         EventType = "travel"
	EventTask           EventType = "task"
	EventSubscription   EventType = "subscription"
	EventRecommendation EventType = "recommendation"
	EventOther          EventType = "other"
)

// EventTypes lists every valid event type.
func EventTypes() []EventType {
	return []EventType{
		EventMeeting, EventDeadline, EventReminder, EventTravel,
		EventTask, EventSubscription, EventRecommendation, EventOther,
	}
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventMeeting, EventDeadline, EventReminder, EventTravel,
		EventTask, EventSubscription, EventRecommendation, EventOther:
		return true
	}
	return false
}

// TriggerType identifies how a trigger fires: at a fixed offset before the
// event time, or on a url/keyword context match.
type TriggerType string

const (
	TriggerTime24h TriggerType = "time_24h"
	TriggerTime1h  TriggerType = "time_1h"
	TriggerTime15m TriggerType = "time_15m"
	TriggerURL     TriggerType = "url"
	TriggerKeyword TriggerType = "keyword"
)

// TimeTriggerTypes lists the pre-event offsets in firing order, earliest first.
func TimeTriggerTypes() []TriggerType {
	return []TriggerType{TriggerTime24h, TriggerTime1h, TriggerTime15m}
}

// Timed reports whether the trigger fires on the clock rather than on context.
func (t TriggerType) Timed() bool {
	switch t {
	case TriggerTime24h, TriggerTime1h, TriggerTime15m:
		return true
	}
	return false
}

// Offset returns how long before the event time a timed trigger fires.
// Zero for context triggers.
func (t TriggerType) Offset() time.Duration {
	switch t {
	case TriggerTime24h:
		return 24 * time.Hour
	case TriggerTime1h:
		return time.Hour
	case TriggerTime15m:
		return 15 * time.Minute
	}
	return 0
}

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	return t.Timed() || t == TriggerURL || t == TriggerKeyword
}

// Event is a detected commitment moving through the reminder lifecycle.
// EventTime and ReminderTime are Unix seconds; nil means unset.
type Event struct {
	ID             int64     `json:"id"`
	EventType      EventType `json:"eventType"`
	Title          string    `json:"title"`
	Description    *string   `json:"description,omitempty"`
	EventTime      *int64    `json:"eventTime,omitempty"`
	Location       *string   `json:"location,omitempty"`
	SenderName     *string   `json:"senderName,omitempty"`
	Keywords       []string  `json:"keywords,omitempty"`
	Confidence     float64   `json:"confidence"`
	ContextPattern *string   `json:"contextPattern,omitempty"`
	DismissCount   int       `json:"dismissCount"`
	ReminderTime   *int64    `json:"reminderTime,omitempty"`
	Status         Status    `json:"status"`
	MessageID      *string   `json:"messageId,omitempty"`
	CreationTime   time.Time `json:"creationTime"`
}

// Trigger is a single firing condition owned by an event. Time triggers
// carry an RFC3339 timestamp in TriggerValue and fire exactly once;
// url/keyword triggers carry a lowercase pattern and may fire repeatedly.
type Trigger struct {
	ID           int64       `json:"id"`
	EventID      int64       `json:"eventId"`
	TriggerType  TriggerType `json:"triggerType"`
	TriggerValue string      `json:"triggerValue"`
	Fired        bool        `json:"fired"`
	FireCount    int         `json:"fireCount"`
	CreationTime time.Time   `json:"creationTime"`
}

// ContextDismissal records a temporary "stop showing me this" for a context
// reminder. DismissedUntil is Unix seconds.
type ContextDismissal struct {
	EventID        int64     `json:"eventId"`
	Pattern        string    `json:"pattern"`
	DismissedUntil int64     `json:"dismissedUntil"`
	CreationTime   time.Time `json:"creationTime"`
}

// EventPatch carries the fields a modify action may change. Nil fields are
// left untouched.
type EventPatch struct {
	Title       *string
	Description *string
	EventTime   *int64
	Location    *string
}

// ListEventsRequest captures filters used when listing events.
type ListEventsRequest struct {
	Status *Status
	Limit  int
	Offset int
}
