package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arguslabs/argus/server/internal/model"
	"github.com/arguslabs/argus/server/internal/store"
)

func ptr[T any](v T) *T { return &v }

// Run exercises a compliance suite against a store.Store implementation.
// Implementations should provide a clean, isolated store from makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	// Create a timed event
	ev, err := s.Events().Create(ctx, &model.Event{
		EventType:  model.EventMeeting,
		Title:      "design review",
		EventTime:  ptr(now + 7200),
		Location:   ptr("room 4"),
		Keywords:   []string{"design", "review"},
		Confidence: 0.9,
		Status:     model.StatusDiscovered,
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if ev.ID == 0 {
		t.Fatalf("CreateEvent: zero id")
	}

	got, err := s.Events().Get(ctx, ev.ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got.Title != "design review" || got.Status != model.StatusDiscovered {
		t.Fatalf("GetEvent: got=%+v", got)
	}
	if len(got.Keywords) != 2 || got.Keywords[0] != "design" {
		t.Fatalf("GetEvent keywords: %v", got.Keywords)
	}
	if got.EventTime == nil || *got.EventTime != now+7200 {
		t.Fatalf("GetEvent event_time: %v", got.EventTime)
	}

	if _, err := s.Events().Get(ctx, 999999); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Get missing: want ErrNotFound, got %v", err)
	}

	// List with status filter
	st := model.StatusDiscovered
	lst, err := s.Events().List(ctx, model.ListEventsRequest{Status: &st})
	if err != nil || len(lst) != 1 {
		t.Fatalf("ListEvents: n=%d err=%v", len(lst), err)
	}

	// Conditional transition: approve with reminder
	ok, err := s.Events().TransitionWithReminder(ctx, ev.ID,
		[]model.Status{model.StatusDiscovered}, model.StatusScheduled, ptr(now+3600))
	if err != nil || !ok {
		t.Fatalf("TransitionWithReminder: ok=%v err=%v", ok, err)
	}
	// Same precondition no longer holds
	ok, err = s.Events().Transition(ctx, ev.ID,
		[]model.Status{model.StatusDiscovered}, model.StatusScheduled)
	if err != nil || ok {
		t.Fatalf("Transition from stale status must not apply: ok=%v err=%v", ok, err)
	}

	// Patch update applies only while the row is in the expected status set
	ok, err = s.Events().Update(ctx, ev.ID, model.ActiveStatuses(),
		model.EventPatch{Title: ptr("design review v2")})
	if err != nil || !ok {
		t.Fatalf("Update: ok=%v err=%v", ok, err)
	}
	got, _ = s.Events().Get(ctx, ev.ID)
	if got.Title != "design review v2" || got.Location == nil || *got.Location != "room 4" {
		t.Fatalf("Update must only touch patched fields: %+v", got)
	}
	ok, err = s.Events().Update(ctx, 999999, model.ActiveStatuses(), model.EventPatch{Title: ptr("x")})
	if err != nil || ok {
		t.Fatalf("Update missing must not apply: ok=%v err=%v", ok, err)
	}

	// Terminal rows refuse patch updates
	done, err := s.Events().Create(ctx, &model.Event{
		EventType: model.EventTask, Title: "file expenses",
		Confidence: 0.9, Status: model.StatusCompleted,
	})
	if err != nil {
		t.Fatalf("CreateEvent terminal: %v", err)
	}
	ok, err = s.Events().Update(ctx, done.ID, model.ActiveStatuses(), model.EventPatch{Title: ptr("renamed")})
	if err != nil || ok {
		t.Fatalf("Update on terminal row must not apply: ok=%v err=%v", ok, err)
	}
	got, _ = s.Events().Get(ctx, done.ID)
	if got.Title != "file expenses" {
		t.Fatalf("refused update mutated the row: %+v", got)
	}

	if err := s.Events().IncrementDismissCount(ctx, ev.ID); err != nil {
		t.Fatalf("IncrementDismissCount: %v", err)
	}
	got, _ = s.Events().Get(ctx, ev.ID)
	if got.DismissCount != 1 {
		t.Fatalf("dismiss count: %d", got.DismissCount)
	}

	// Triggers
	tr, err := s.Triggers().Create(ctx, &model.Trigger{
		EventID:      ev.ID,
		TriggerType:  model.TriggerTime1h,
		TriggerValue: time.Unix(now+3600, 0).UTC().Format(time.RFC3339),
	})
	if err != nil || tr.ID == 0 {
		t.Fatalf("CreateTrigger: id=%d err=%v", tr.ID, err)
	}
	if _, err := s.Triggers().Create(ctx, &model.Trigger{
		EventID: ev.ID, TriggerType: model.TriggerURL, TriggerValue: "calendar.example.com",
	}); err != nil {
		t.Fatalf("CreateTrigger url: %v", err)
	}

	trs, err := s.Triggers().ListByEvent(ctx, ev.ID)
	if err != nil || len(trs) != 2 {
		t.Fatalf("ListByEvent: n=%d err=%v", len(trs), err)
	}

	timed, err := s.Triggers().ListUnfiredTimed(ctx)
	if err != nil || len(timed) != 1 || timed[0].ID != tr.ID {
		t.Fatalf("ListUnfiredTimed: %v err=%v", timed, err)
	}

	// MarkFired is the at-most-once gate
	ok, err = s.Triggers().MarkFired(ctx, tr.ID)
	if err != nil || !ok {
		t.Fatalf("MarkFired first: ok=%v err=%v", ok, err)
	}
	ok, err = s.Triggers().MarkFired(ctx, tr.ID)
	if err != nil || ok {
		t.Fatalf("MarkFired second must be a no-op: ok=%v err=%v", ok, err)
	}
	if timed, _ = s.Triggers().ListUnfiredTimed(ctx); len(timed) != 0 {
		t.Fatalf("fired trigger still listed: %v", timed)
	}

	// Repeatable context trigger
	urlTrig := trs[1]
	if urlTrig.TriggerType != model.TriggerURL {
		urlTrig = trs[0]
	}
	if err := s.Triggers().RecordFire(ctx, urlTrig.ID); err != nil {
		t.Fatalf("RecordFire: %v", err)
	}
	if err := s.Triggers().RecordFire(ctx, urlTrig.ID); err != nil {
		t.Fatalf("RecordFire again: %v", err)
	}
	trs, _ = s.Triggers().ListByEvent(ctx, ev.ID)
	for _, x := range trs {
		if x.ID == urlTrig.ID {
			if x.Fired || x.FireCount != 2 {
				t.Fatalf("context trigger after RecordFire: fired=%v count=%d", x.Fired, x.FireCount)
			}
		}
	}

	total, unfired, err := s.Triggers().Counts(ctx)
	if err != nil || total != 2 || unfired != 1 {
		t.Fatalf("Counts: total=%d unfired=%d err=%v", total, unfired, err)
	}

	// Due reminders
	due, err := s.Events().DueReminders(ctx, model.StatusScheduled, now+3600)
	if err != nil || len(due) != 1 || due[0].ID != ev.ID {
		t.Fatalf("DueReminders: n=%d err=%v", len(due), err)
	}
	if due, _ = s.Events().DueReminders(ctx, model.StatusScheduled, now+3599); len(due) != 0 {
		t.Fatalf("DueReminders before reminder_time: %v", due)
	}

	// Conflict window query
	win, err := s.Events().ActiveTimedBetween(ctx, now+3600, now+10800)
	if err != nil || len(win) != 1 {
		t.Fatalf("ActiveTimedBetween: n=%d err=%v", len(win), err)
	}
	if win, _ = s.Events().ActiveTimedBetween(ctx, now, now+3599); len(win) != 0 {
		t.Fatalf("ActiveTimedBetween outside window: %v", win)
	}

	// Matcher candidate set: scheduled + location qualifies
	cand, err := s.Events().ScheduledWithContext(ctx)
	if err != nil || len(cand) != 1 {
		t.Fatalf("ScheduledWithContext: n=%d err=%v", len(cand), err)
	}

	// Dismissals: upsert, read back, prune
	if err := s.Dismissals().Put(ctx, &model.ContextDismissal{
		EventID: ev.ID, Pattern: "calendar", DismissedUntil: now + 1800,
	}); err != nil {
		t.Fatalf("PutDismissal: %v", err)
	}
	if err := s.Dismissals().Put(ctx, &model.ContextDismissal{
		EventID: ev.ID, Pattern: "calendar", DismissedUntil: now + 3600,
	}); err != nil {
		t.Fatalf("PutDismissal upsert: %v", err)
	}
	dm, err := s.Dismissals().Get(ctx, ev.ID)
	if err != nil || dm.DismissedUntil != now+3600 {
		t.Fatalf("GetDismissal: %+v err=%v", dm, err)
	}
	if act, err := s.Dismissals().ListActive(ctx, now); err != nil || len(act) != 1 {
		t.Fatalf("ListActive: n=%d err=%v", len(act), err)
	}
	if n, err := s.Dismissals().PruneExpired(ctx, now+3600); err != nil || n != 1 {
		t.Fatalf("PruneExpired: n=%d err=%v", n, err)
	}

	// Expiry sweep
	past, err := s.Events().Create(ctx, &model.Event{
		EventType: model.EventDeadline, Title: "old deadline",
		EventTime: ptr(now - 86400), Confidence: 0.8, Status: model.StatusScheduled,
	})
	if err != nil {
		t.Fatalf("CreateEvent past: %v", err)
	}
	n, err := s.Events().ExpireOverdue(ctx, model.ActiveStatuses(), now-3600)
	if err != nil || n != 1 {
		t.Fatalf("ExpireOverdue: n=%d err=%v", n, err)
	}
	got, _ = s.Events().Get(ctx, past.ID)
	if got.Status != model.StatusExpired {
		t.Fatalf("expired event status: %s", got.Status)
	}

	counts, err := s.Events().CountByStatus(ctx)
	if err != nil || counts[model.StatusExpired] != 1 || counts[model.StatusScheduled] != 1 {
		t.Fatalf("CountByStatus: %v err=%v", counts, err)
	}

	// Delete cascades triggers and dismissals
	if err := s.Dismissals().Put(ctx, &model.ContextDismissal{
		EventID: ev.ID, Pattern: "calendar", DismissedUntil: now + 1800,
	}); err != nil {
		t.Fatalf("PutDismissal before delete: %v", err)
	}
	if err := s.Events().Delete(ctx, ev.ID); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	if _, err := s.Events().Get(ctx, ev.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}
	if trs, _ := s.Triggers().ListByEvent(ctx, ev.ID); len(trs) != 0 {
		t.Fatalf("triggers not cascaded: %v", trs)
	}
	if _, err := s.Dismissals().Get(ctx, ev.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("dismissal not cascaded: %v", err)
	}
	if err := s.Events().Delete(ctx, ev.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Delete missing: want ErrNotFound, got %v", err)
	}
}
