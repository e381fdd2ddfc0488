package services

import (
	"context"
	"fmt"

	"github.com/arguslabs/argus/server/internal/model"
)

// Action is an externally-decided operation on a target event.
type Action string

const (
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
	ActionSnooze   Action = "snooze"
	ActionIgnore   Action = "ignore"
	ActionModify   Action = "modify"
)

// ActionParams carries the per-action arguments of an action envelope.
type ActionParams struct {
	SnoozeMinutes int          `json:"snoozeMinutes,omitempty"`
	Modify        ModifyParams `json:"modify,omitempty"`
}

// Dispatcher applies decided actions to events. Validation happens before
// any write, so an invalid action or parameter mutates nothing.
type Dispatcher struct {
	events *EventService
}

// NewDispatcher wires a dispatcher over the event service.
func NewDispatcher(events *EventService) *Dispatcher {
	return &Dispatcher{events: events}
}

// Apply executes exactly the state-machine transition the action names.
// cancel deletes the event; snooze defaults to 30 minutes when no duration
// is given.
func (d *Dispatcher) Apply(ctx context.Context, action Action, eventID int64, p ActionParams) error {
	switch action {
	case ActionCancel:
		return d.events.Delete(ctx, eventID)
	case ActionComplete:
		return d.events.Complete(ctx, eventID)
	case ActionIgnore:
		return d.events.Ignore(ctx, eventID)
	case ActionSnooze:
		minutes := p.SnoozeMinutes
		if minutes == 0 {
			minutes = 30
		}
		_, err := d.events.Snooze(ctx, eventID, minutes)
		return err
	case ActionModify:
		_, err := d.events.Modify(ctx, eventID, p.Modify)
		return err
	}
	return fmt.Errorf("unknown action %q: %w", action, model.ErrValidation)
}
