package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/arguslabs/argus/server/internal/conflict"
	"github.com/arguslabs/argus/server/internal/dismiss"
	"github.com/arguslabs/argus/server/internal/matcher"
	"github.com/arguslabs/argus/server/internal/model"
	"github.com/arguslabs/argus/server/internal/notify"
	"github.com/arguslabs/argus/server/internal/store"
)

// EventService owns the event lifecycle: candidate intake, the approve /
// snooze / complete / ignore transitions, context dismissals, and the query
// surface. All transitions go through the store's conditional updates, so
// the service never writes from a stale in-memory copy.
type EventService struct {
	store       store.Store
	broadcaster notify.Broadcaster
	cache       *dismiss.Cache
	log         zerolog.Logger

	confidenceThreshold float64
	conflictWindow      time.Duration

	now func() time.Time
}

// NewEventService wires the service. threshold is the minimum candidate
// confidence; window is the symmetric conflict window.
func NewEventService(s store.Store, b notify.Broadcaster, cache *dismiss.Cache, log zerolog.Logger, threshold float64, window time.Duration) *EventService {
	return &EventService{
		store:               s,
		broadcaster:         b,
		cache:               cache,
		log:                 log,
		confidenceThreshold: threshold,
		conflictWindow:      window,
		now:                 time.Now,
	}
}

// CandidateRequest is a structured event candidate from the ingestion
// collaborator.
type CandidateRequest struct {
	EventType      model.EventType `json:"eventType"`
	Title          string          `json:"title"`
	Description    *string         `json:"description,omitempty"`
	AbsoluteTime   *int64          `json:"absoluteTime,omitempty"`
	Location       *string         `json:"location,omitempty"`
	SenderName     *string         `json:"senderName,omitempty"`
	Keywords       []string        `json:"keywords,omitempty"`
	Confidence     float64         `json:"confidence"`
	ContextPattern *string         `json:"contextPattern,omitempty"`
	MessageID      *string         `json:"messageId,omitempty"`
}

// keywords the original ingestion flags as trigger-worthy
var importantKeywords = []string{
	"travel", "flight", "hotel", "buy", "gift", "birthday", "meeting", "deadline",
}

// SubmitCandidate validates a candidate, stores it, creates its context
// triggers, and reports conflicting events inside the conflict window.
// Candidates below the confidence threshold are rejected before reaching
// the store.
func (s *EventService) SubmitCandidate(ctx context.Context, req CandidateRequest) (*model.Event, []*model.Event, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, nil, fmt.Errorf("title is required: %w", model.ErrValidation)
	}
	if !req.EventType.Valid() {
		return nil, nil, fmt.Errorf("unknown event type %q: %w", req.EventType, model.ErrValidation)
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		return nil, nil, fmt.Errorf("confidence %v out of range: %w", req.Confidence, model.ErrValidation)
	}
	if req.Confidence < s.confidenceThreshold {
		return nil, nil, fmt.Errorf("confidence %v below threshold %v: %w",
			req.Confidence, s.confidenceThreshold, model.ErrValidation)
	}

	// Timed events wait for user approval; context-only events have nothing
	// to schedule against and go straight to scheduled.
	status := model.StatusDiscovered
	if req.AbsoluteTime == nil {
		status = model.StatusScheduled
	}

	ev, err := s.store.Events().Create(ctx, &model.Event{
		EventType:      req.EventType,
		Title:          req.Title,
		Description:    req.Description,
		EventTime:      req.AbsoluteTime,
		Location:       req.Location,
		SenderName:     req.SenderName,
		Keywords:       req.Keywords,
		Confidence:     req.Confidence,
		ContextPattern: req.ContextPattern,
		Status:         status,
		MessageID:      req.MessageID,
	})
	if err != nil {
		return nil, nil, err
	}

	s.createContextTriggers(ctx, ev)

	conflicts, err := s.Conflicts(ctx, ev)
	if err != nil {
		return nil, nil, err
	}

	n := notify.FromEvent(ev, notify.TriggerDiscovery, notify.PopupEventDiscovery)
	n.Conflicts = notify.ConflictRefs(conflicts)
	s.broadcaster.Publish(n)
	if len(conflicts) > 0 {
		warn := notify.FromEvent(ev, notify.TriggerConflict, notify.PopupConflictWarning)
		warn.Conflicts = notify.ConflictRefs(conflicts)
		s.broadcaster.Publish(warn)
	}

	s.log.Info().Int64("event", ev.ID).Str("status", string(ev.Status)).
		Int("conflicts", len(conflicts)).Msg("candidate accepted")
	return ev, conflicts, nil
}

// createContextTriggers records the repeatable url/keyword triggers for a
// fresh event. Failures are logged, not fatal: the event row is already
// committed and context matching works off the event itself.
func (s *EventService) createContextTriggers(ctx context.Context, ev *model.Event) {
	pattern := ""
	if ev.ContextPattern != nil && *ev.ContextPattern != "" {
		pattern = strings.ToLower(*ev.ContextPattern)
	} else if ev.Location != nil && *ev.Location != "" {
		pattern = strings.ToLower(*ev.Location)
	}
	if pattern != "" {
		if _, err := s.store.Triggers().Create(ctx, &model.Trigger{
			EventID: ev.ID, TriggerType: model.TriggerURL, TriggerValue: pattern,
		}); err != nil {
			s.log.Error().Err(err).Int64("event", ev.ID).Msg("create url trigger failed")
		}
	}

	created := 0
	for _, kw := range ev.Keywords {
		if created == 3 {
			break
		}
		lower := strings.ToLower(kw)
		for _, imp := range importantKeywords {
			if strings.Contains(lower, imp) {
				if _, err := s.store.Triggers().Create(ctx, &model.Trigger{
					EventID: ev.ID, TriggerType: model.TriggerKeyword, TriggerValue: lower,
				}); err != nil {
					s.log.Error().Err(err).Int64("event", ev.ID).Msg("create keyword trigger failed")
				} else {
					created++
				}
				break
			}
		}
	}
}

// Approve moves a discovered event to scheduled, materializing up to three
// time triggers (24h/1h/15m before event_time, skipping offsets already in
// the past) and pointing reminder_time at the earliest surviving one.
func (s *EventService) Approve(ctx context.Context, id int64) (*model.Event, error) {
	ev, err := s.store.Events().Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var reminderTime *int64
	var pending []*model.Trigger
	if ev.EventTime != nil {
		eventAt := time.Unix(*ev.EventTime, 0).UTC()
		now := s.now()
		for _, tt := range model.TimeTriggerTypes() {
			at := eventAt.Add(-tt.Offset())
			if !at.After(now) {
				continue
			}
			pending = append(pending, &model.Trigger{
				EventID:      id,
				TriggerType:  tt,
				TriggerValue: at.Format(time.RFC3339),
			})
			if reminderTime == nil || at.Unix() < *reminderTime {
				ts := at.Unix()
				reminderTime = &ts
			}
		}
	}

	ok, err := s.store.Events().TransitionWithReminder(ctx, id,
		[]model.Status{model.StatusDiscovered}, model.StatusScheduled, reminderTime)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.transitionError(ctx, id, model.StatusScheduled)
	}

	for _, tr := range pending {
		if _, err := s.store.Triggers().Create(ctx, tr); err != nil {
			s.log.Error().Err(err).Int64("event", id).
				Str("type", string(tr.TriggerType)).Msg("create time trigger failed")
		}
	}

	return s.store.Events().Get(ctx, id)
}

// Snooze pushes the event's reminder to now+minutes and parks it in the
// snoozed state. Snoozing again simply overwrites the deadline.
func (s *EventService) Snooze(ctx context.Context, id int64, minutes int) (*model.Event, error) {
	if minutes <= 0 {
		return nil, fmt.Errorf("snooze minutes must be positive: %w", model.ErrValidation)
	}
	at := s.now().Add(time.Duration(minutes) * time.Minute).Unix()
	ok, err := s.store.Events().TransitionWithReminder(ctx, id,
		model.ActiveStatuses(), model.StatusSnoozed, &at)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.transitionError(ctx, id, model.StatusSnoozed)
	}
	return s.store.Events().Get(ctx, id)
}

// Complete marks the event done from any active state.
func (s *EventService) Complete(ctx context.Context, id int64) error {
	return s.terminal(ctx, id, model.StatusCompleted)
}

// Ignore permanently opts the event out of further reminders without
// deleting it.
func (s *EventService) Ignore(ctx context.Context, id int64) error {
	return s.terminal(ctx, id, model.StatusIgnored)
}

func (s *EventService) terminal(ctx context.Context, id int64, to model.Status) error {
	ok, err := s.store.Events().Transition(ctx, id, model.ActiveStatuses(), to)
	if err != nil {
		return err
	}
	if !ok {
		return s.transitionError(ctx, id, to)
	}
	return nil
}

// transitionError inspects the row a failed conditional update targeted and
// reports why the transition did not apply.
func (s *EventService) transitionError(ctx context.Context, id int64, to model.Status) error {
	ev, err := s.store.Events().Get(ctx, id)
	if err != nil {
		return err
	}
	if ev.Status.Terminal() {
		return fmt.Errorf("event %d is %s: %w", id, ev.Status, model.ErrTerminalStatus)
	}
	if !model.CanTransition(ev.Status, to) {
		return fmt.Errorf("event %d: %s does not transition to %s: %w",
			id, ev.Status, to, model.ErrInvalidTransition)
	}
	return fmt.Errorf("event %d: %s -> %s requires a different starting status: %w",
		id, ev.Status, to, model.ErrInvalidTransition)
}

// DismissContext handles a dismissed context reminder. Permanent dismissal
// completes the event; temporary dismissal bumps the dismiss counter,
// persists the suppression row, and primes the in-memory cache.
func (s *EventService) DismissContext(ctx context.Context, id int64, permanent bool) (*time.Time, error) {
	if permanent {
		return nil, s.Complete(ctx, id)
	}

	ev, err := s.store.Events().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.Events().IncrementDismissCount(ctx, id); err != nil {
		return nil, err
	}

	until := s.cache.Dismiss(id, s.now())
	pattern := ""
	if ev.ContextPattern != nil {
		pattern = *ev.ContextPattern
	} else if ev.Location != nil {
		pattern = *ev.Location
	}
	if err := s.store.Dismissals().Put(ctx, &model.ContextDismissal{
		EventID:        id,
		Pattern:        strings.ToLower(pattern),
		DismissedUntil: until.Unix(),
	}); err != nil {
		// the cache already suppresses; the row is bookkeeping
		s.log.Error().Err(err).Int64("event", id).Msg("persist dismissal failed")
	}
	return &until, nil
}

// ModifyParams carries raw modify-action fields. AbsoluteTime is the
// unparsed string from the caller; it must be RFC3339 or Unix seconds.
type ModifyParams struct {
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	Location     *string `json:"location,omitempty"`
	AbsoluteTime *string `json:"absoluteTime,omitempty"`
}

// Modify validates the new field values and applies them in a single
// atomic update. A failed time parse mutates nothing.
func (s *EventService) Modify(ctx context.Context, id int64, p ModifyParams) (*model.Event, error) {
	patch := model.EventPatch{
		Title:       p.Title,
		Description: p.Description,
		Location:    p.Location,
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return nil, fmt.Errorf("title must not be empty: %w", model.ErrValidation)
	}
	if p.AbsoluteTime != nil {
		ts, err := ParseEventTime(*p.AbsoluteTime)
		if err != nil {
			return nil, err
		}
		patch.EventTime = &ts
	}
	ok, err := s.store.Events().Update(ctx, id, model.ActiveStatuses(), patch)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Missing row or a terminal one; the re-read tells which.
		ev, err := s.store.Events().Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("event %d is %s: %w", id, ev.Status, model.ErrTerminalStatus)
	}
	return s.store.Events().Get(ctx, id)
}

// ParseEventTime accepts RFC3339 or a decimal Unix-seconds string.
func ParseEventTime(v string) (int64, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.Unix(), nil
	}
	var ts int64
	if _, err := fmt.Sscanf(v, "%d", &ts); err == nil && fmt.Sprintf("%d", ts) == v {
		return ts, nil
	}
	return 0, fmt.Errorf("unparseable time %q: %w", v, model.ErrValidation)
}

// Delete removes the event and all of its triggers and dismissals.
// Permitted from every state.
func (s *EventService) Delete(ctx context.Context, id int64) error {
	return s.store.Events().Delete(ctx, id)
}

// Get returns a single event.
func (s *EventService) Get(ctx context.Context, id int64) (*model.Event, error) {
	return s.store.Events().Get(ctx, id)
}

// List returns events, optionally filtered by status.
func (s *EventService) List(ctx context.Context, req model.ListEventsRequest) ([]*model.Event, error) {
	if req.Status != nil && !req.Status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", *req.Status, model.ErrValidation)
	}
	return s.store.Events().List(ctx, req)
}

// EventsForDay returns active timed events inside the UTC day containing ts.
func (s *EventService) EventsForDay(ctx context.Context, ts int64) ([]*model.Event, error) {
	day := time.Unix(ts, 0).UTC().Truncate(24 * time.Hour)
	start := day.Unix()
	return s.store.Events().ActiveTimedBetween(ctx, start, start+86399)
}

// DueReminders returns scheduled events whose reminder time has passed.
func (s *EventService) DueReminders(ctx context.Context) ([]*model.Event, error) {
	return s.store.Events().DueReminders(ctx, model.StatusScheduled, s.now().Unix())
}

// Conflicts returns the events double-booked against ev inside the
// configured window. The check is a closed-interval overlap; boundary ties
// count.
func (s *EventService) Conflicts(ctx context.Context, ev *model.Event) ([]*model.Event, error) {
	if ev.EventTime == nil {
		return nil, nil
	}
	w := int64(s.conflictWindow / time.Second)
	candidates, err := s.store.Events().ActiveTimedBetween(ctx, *ev.EventTime-w, *ev.EventTime+w)
	if err != nil {
		return nil, err
	}
	return conflict.Overlapping(candidates, *ev.EventTime, s.conflictWindow, ev.ID), nil
}

// ConflictsFor looks the event up and reports its conflicts.
func (s *EventService) ConflictsFor(ctx context.Context, id int64) ([]*model.Event, error) {
	ev, err := s.store.Events().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Conflicts(ctx, ev)
}

// CheckContext runs the pure matcher over the scheduled candidate set, then
// gates each match on the dismissal cache. Unsuppressed matches are
// broadcast as context reminders and returned. Matching never mutates event
// or trigger state, so matches repeat on later visits until the user acts.
func (s *EventService) CheckContext(ctx context.Context, url, title string) ([]matcher.Match, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("url is required: %w", model.ErrValidation)
	}
	candidates, err := s.store.Events().ScheduledWithContext(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var out []matcher.Match
	for _, m := range matcher.Find(candidates, url, title) {
		if s.cache.Suppressed(m.Event.ID, now) {
			continue
		}
		s.broadcaster.Publish(notify.FromEvent(m.Event, notify.TriggerContext, notify.PopupContextReminder))
		out = append(out, m)
	}
	return out, nil
}

// WarmDismissals primes the cache from persisted dismissal rows after a
// restart and prunes the expired ones.
func (s *EventService) WarmDismissals(ctx context.Context) error {
	now := s.now()
	active, err := s.store.Dismissals().ListActive(ctx, now.Unix())
	if err != nil {
		return err
	}
	for _, d := range active {
		s.cache.Set(d.EventID, time.Unix(d.DismissedUntil, 0))
	}
	if _, err := s.store.Dismissals().PruneExpired(ctx, now.Unix()); err != nil {
		return err
	}
	return nil
}

// Stats summarizes store contents for the stats endpoint.
type Stats struct {
	TotalEvents     int                  `json:"totalEvents"`
	EventsByStatus  map[model.Status]int `json:"eventsByStatus"`
	TotalTriggers   int                  `json:"totalTriggers"`
	UnfiredTriggers int                  `json:"unfiredTriggers"`
}

// GetStats aggregates event and trigger counts.
func (s *EventService) GetStats(ctx context.Context) (*Stats, error) {
	byStatus, err := s.store.Events().CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range byStatus {
		total += n
	}
	tTotal, tUnfired, err := s.store.Triggers().Counts(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		TotalEvents:     total,
		EventsByStatus:  byStatus,
		TotalTriggers:   tTotal,
		UnfiredTriggers: tUnfired,
	}, nil
}

// Triggers lists an event's triggers.
func (s *EventService) Triggers(ctx context.Context, eventID int64) ([]*model.Trigger, error) {
	if _, err := s.store.Events().Get(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.Triggers().ListByEvent(ctx, eventID)
}
