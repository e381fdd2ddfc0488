package store

import (
	"context"
	"strings"

	"github.com/arguslabs/argus/server/internal/model"
)

// Store exposes persistence operations required by services and the
// scheduler. Implementations live under internal/store/<driver>/
// (sqlite, postgres).
type Store interface {
	Events() Events
	Triggers() Triggers
	Dismissals() Dismissals
}

// Events persists event rows. Every status transition is a conditional
// single-statement update: callers pass the set of statuses the row must
// currently be in, and the update applies only when that holds. A false
// return with a nil error means the row exists but was not in the
// expected set (or does not exist); callers decide which error that maps to.
type Events interface {
	Create(ctx context.Context, e *model.Event) (*model.Event, error)
	Get(ctx context.Context, id int64) (*model.Event, error)
	List(ctx context.Context, req model.ListEventsRequest) ([]*model.Event, error)

	// Transition moves the event to status `to` iff its current status is
	// in `from`.
	Transition(ctx context.Context, id int64, from []model.Status, to model.Status) (bool, error)
	// TransitionWithReminder additionally sets reminder_time in the same
	// statement (nil clears it).
	TransitionWithReminder(ctx context.Context, id int64, from []model.Status, to model.Status, reminderTime *int64) (bool, error)

	// Update applies the non-nil fields of the patch in one statement, iff
	// the current status is in `from`. Terminal rows are immutable apart
	// from Delete, so callers pass the active set.
	Update(ctx context.Context, id int64, from []model.Status, patch model.EventPatch) (bool, error)
	IncrementDismissCount(ctx context.Context, id int64) error

	// Delete removes the event and cascades its triggers and dismissals
	// in one transaction.
	Delete(ctx context.Context, id int64) error

	// DueReminders returns events in the given status whose reminder_time
	// is at or before now (Unix seconds).
	DueReminders(ctx context.Context, status model.Status, now int64) ([]*model.Event, error)
	// ActiveTimedBetween returns non-terminal events whose event_time lies
	// in [from, to] (Unix seconds), for conflict detection and day views.
	ActiveTimedBetween(ctx context.Context, from, to int64) ([]*model.Event, error)
	// ScheduledWithContext returns scheduled events carrying a context
	// pattern or a location, the matcher's candidate set.
	ScheduledWithContext(ctx context.Context) ([]*model.Event, error)
	// ExpireOverdue moves events still in `from` whose event_time is at or
	// before cutoff to expired, returning how many rows changed.
	ExpireOverdue(ctx context.Context, from []model.Status, cutoff int64) (int64, error)

	CountByStatus(ctx context.Context) (map[model.Status]int, error)
}

// Triggers persists firing conditions. MarkFired is the at-most-once
// gate: it flips fired only when it is still false.
type Triggers interface {
	Create(ctx context.Context, t *model.Trigger) (*model.Trigger, error)
	ListByEvent(ctx context.Context, eventID int64) ([]*model.Trigger, error)
	// ListUnfiredTimed returns every unfired time trigger; due-ness is
	// decided by the caller against the RFC3339 trigger_value.
	ListUnfiredTimed(ctx context.Context) ([]*model.Trigger, error)
	// MarkFired sets fired=true iff it is currently false and bumps the
	// fire count. Returns false when the trigger was already fired or is
	// missing.
	MarkFired(ctx context.Context, id int64) (bool, error)
	// RecordFire bumps fire_count without touching fired, for repeatable
	// url/keyword triggers.
	RecordFire(ctx context.Context, id int64) error
	Counts(ctx context.Context) (total, unfired int, err error)
}

// Dismissals persists temporary context-reminder suppressions. The live
// suppression check is served by the in-memory cache; these rows exist for
// bookkeeping, cascade delete, and cache warm-up after restart.
type Dismissals interface {
	Put(ctx context.Context, d *model.ContextDismissal) error
	Get(ctx context.Context, eventID int64) (*model.ContextDismissal, error)
	ListActive(ctx context.Context, now int64) ([]*model.ContextDismissal, error)
	PruneExpired(ctx context.Context, now int64) (int64, error)
}

// JoinKeywords flattens a keyword set to its stored comma-joined form.
func JoinKeywords(ks []string) string {
	return strings.Join(ks, ",")
}

// SplitKeywords parses the stored comma-joined form, dropping empties.
func SplitKeywords(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
