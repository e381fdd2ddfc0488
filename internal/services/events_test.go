package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/arguslabs/argus/server/internal/dismiss"
	"github.com/arguslabs/argus/server/internal/model"
	"github.com/arguslabs/argus/server/internal/notify"
	"github.com/arguslabs/argus/server/internal/store"
	"github.com/arguslabs/argus/server/internal/store/sqlite"
)

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingBroadcaster) Publish(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingBroadcaster) byKind(kind notify.PopupKind) []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Notification
	for _, n := range r.sent {
		if n.PopupKind == kind {
			out = append(out, n)
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func newTestService(t *testing.T) (*EventService, store.Store, *recordingBroadcaster, *dismiss.Cache) {
	t.Helper()
	db, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := sqlite.EnsureSchema(db); err != nil {
		t.Fatalf("schema: %v", err)
	}
	st := sqlite.NewWithDB(db)
	b := &recordingBroadcaster{}
	cache := dismiss.NewCache(30 * time.Minute)
	svc := NewEventService(st, b, cache, zerolog.Nop(), 0.4, time.Hour)
	return svc, st, b, cache
}

func timedCandidate(confidence float64, at int64) CandidateRequest {
	return CandidateRequest{
		EventType:    model.EventMeeting,
		Title:        "Project sync",
		AbsoluteTime: ptr(at),
		Confidence:   confidence,
	}
}

func TestSubmitCandidateTimed(t *testing.T) {
	svc, _, b, _ := newTestService(t)
	ctx := context.Background()
	at := time.Now().Add(48 * time.Hour).Unix()

	ev, conflicts, err := svc.SubmitCandidate(ctx, timedCandidate(0.9, at))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ev.Status != model.StatusDiscovered {
		t.Fatalf("status: %s", ev.Status)
	}
	if len(conflicts) != 0 {
		t.Fatalf("conflicts: %v", conflicts)
	}
	if got := b.byKind(notify.PopupEventDiscovery); len(got) != 1 || got[0].EventID != ev.ID {
		t.Fatalf("discovery notifications: %+v", got)
	}
}

func TestSubmitCandidateBelowThreshold(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, _, err := svc.SubmitCandidate(context.Background(), timedCandidate(0.3, time.Now().Unix()))
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("err: %v", err)
	}
}

func TestSubmitCandidateValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	req := timedCandidate(0.9, time.Now().Unix())
	req.Title = "   "
	if _, _, err := svc.SubmitCandidate(ctx, req); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("empty title: %v", err)
	}

	req = timedCandidate(0.9, time.Now().Unix())
	req.EventType = "party"
	if _, _, err := svc.SubmitCandidate(ctx, req); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("bad type: %v", err)
	}

	req = timedCandidate(1.5, time.Now().Unix())
	if _, _, err := svc.SubmitCandidate(ctx, req); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("bad confidence: %v", err)
	}
}

func TestSubmitCandidateContextOnly(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()

	ev, _, err := svc.SubmitCandidate(ctx, CandidateRequest{
		EventType:      model.EventSubscription,
		Title:          "Netflix renewal",
		Confidence:     0.8,
		ContextPattern: ptr("Netflix"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ev.Status != model.StatusScheduled {
		t.Fatalf("context-only status: %s", ev.Status)
	}

	triggers, err := st.Triggers().ListByEvent(ctx, ev.ID)
	if err != nil || len(triggers) != 1 {
		t.Fatalf("triggers: %v err=%v", triggers, err)
	}
	if triggers[0].TriggerType != model.TriggerURL || triggers[0].TriggerValue != "netflix" {
		t.Fatalf("url trigger: %+v", triggers[0])
	}
}

func TestSubmitCandidateKeywordTriggers(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()

	ev, _, err := svc.SubmitCandidate(ctx, CandidateRequest{
		EventType:  model.EventTravel,
		Title:      "Goa trip",
		Confidence: 0.9,
		Location:   ptr("Goa"),
		Keywords:   []string{"flight booking", "hotel", "beach", "travel plans", "gift"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	triggers, err := st.Triggers().ListByEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("triggers: %v", err)
	}
	var url, keyword int
	for _, tr := range triggers {
		switch tr.TriggerType {
		case model.TriggerURL:
			url++
		case model.TriggerKeyword:
			keyword++
		}
	}
	// location fallback pattern plus at most three keyword triggers
	if url != 1 || keyword != 3 {
		t.Fatalf("url=%d keyword=%d", url, keyword)
	}
}

func TestApproveMaterializesTimeTriggers(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()
	at := time.Now().Add(48 * time.Hour).Unix()

	ev, _, err := svc.SubmitCandidate(ctx, timedCandidate(0.9, at))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	approved, err := svc.Approve(ctx, ev.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != model.StatusScheduled {
		t.Fatalf("status: %s", approved.Status)
	}

	triggers, _ := st.Triggers().ListByEvent(ctx, ev.ID)
	types := map[model.TriggerType]string{}
	for _, tr := range triggers {
		types[tr.TriggerType] = tr.TriggerValue
	}
	for _, want := range model.TimeTriggerTypes() {
		if _, ok := types[want]; !ok {
			t.Fatalf("missing trigger %s: %v", want, types)
		}
	}

	// reminder points at the earliest trigger, 24h before the event
	if approved.ReminderTime == nil {
		t.Fatal("reminder time not set")
	}
	if want := at - 24*3600; *approved.ReminderTime != want {
		t.Fatalf("reminder=%d want=%d", *approved.ReminderTime, want)
	}
}

func TestApproveSkipsPastOffsets(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()
	// 30 minutes out: only the 15m offset is still in the future
	at := time.Now().Add(30 * time.Minute).Unix()

	ev, _, err := svc.SubmitCandidate(ctx, timedCandidate(0.9, at))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	approved, err := svc.Approve(ctx, ev.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	triggers, _ := st.Triggers().ListByEvent(ctx, ev.ID)
	if len(triggers) != 1 || triggers[0].TriggerType != model.TriggerTime15m {
		t.Fatalf("triggers: %+v", triggers)
	}
	if approved.ReminderTime == nil || *approved.ReminderTime != at-15*60 {
		t.Fatalf("reminder: %v", approved.ReminderTime)
	}
}

func TestApproveRequiresDiscovered(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	ev, _, err := svc.SubmitCandidate(ctx, timedCandidate(0.9, time.Now().Add(time.Hour).Unix()))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Approve(ctx, ev.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := svc.Approve(ctx, ev.ID); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("second approve: %v", err)
	}
	if _, err := svc.Approve(ctx, 9999); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("missing event: %v", err)
	}
}

func TestSnoozeAndTerminalGuard(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	ev, _, err := svc.SubmitCandidate(ctx, timedCandidate(0.9, time.Now().Add(time.Hour).Unix()))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := svc.Snooze(ctx, ev.ID, 0); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("zero minutes: %v", err)
	}

	before := time.Now().Add(45 * time.Minute).Unix()
	snoozed, err := svc.Snooze(ctx, ev.ID, 45)
	if err != nil {
		t.Fatalf("snooze: %v", err)
	}
	if snoozed.Status != model.StatusSnoozed || snoozed.ReminderTime == nil {
		t.Fatalf("snoozed: %+v", snoozed)
	}
	if *snoozed.ReminderTime < before || *snoozed.ReminderTime > before+2 {
		t.Fatalf("reminder: %d", *snoozed.ReminderTime)
	}

	if err := svc.Complete(ctx, ev.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := svc.Snooze(ctx, ev.ID, 10); !errors.Is(err, model.ErrTerminalStatus) {
		t.Fatalf("snooze after complete: %v", err)
	}
	if err := svc.Ignore(ctx, ev.ID); !errors.Is(err, model.ErrTerminalStatus) {
		t.Fatalf("ignore after complete: %v", err)
	}
}

func TestConflictDetection(t *testing.T) {
	svc, _, b, _ := newTestService(t)
	ctx := context.Background()
	base := time.Now().Add(72 * time.Hour).Unix()

	first, _, err := svc.SubmitCandidate(ctx, timedCandidate(0.9, base))
	if err != nil {
		t.Fatalf("first: %v", err)
	}

	// 30 minutes apart, inside the 60 minute window
	req := timedCandidate(0.9, base+1800)
	req.Title = "Dentist"
	second, conflicts, err := svc.SubmitCandidate(ctx, req)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if len(conflicts) != 1 || conflicts[0].ID != first.ID {
		t.Fatalf("conflicts: %+v", conflicts)
	}
	warns := b.byKind(notify.PopupConflictWarning)
	if len(warns) != 1 || warns[0].EventID != second.ID || len(warns[0].Conflicts) != 1 {
		t.Fatalf("conflict warnings: %+v", warns)
	}

	// boundary: exactly the window apart still conflicts
	req = timedCandidate(0.9, base+3600)
	req.Title = "Gym"
	_, conflicts, err = svc.SubmitCandidate(ctx, req)
	if err != nil {
		t.Fatalf("third: %v", err)
	}
	found := false
	for _, c := range conflicts {
		if c.ID == first.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("boundary conflict missing: %+v", conflicts)
	}

	// ConflictsFor excludes the event itself
	got, err := svc.ConflictsFor(ctx, first.ID)
	if err != nil {
		t.Fatalf("conflicts for: %v", err)
	}
	for _, c := range got {
		if c.ID == first.ID {
			t.Fatal("event conflicts with itself")
		}
	}
}

func TestCheckContextMatchesAndRepeats(t *testing.T) {
	svc, st, b, _ := newTestService(t)
	ctx := context.Background()

	ev, _, err := svc.SubmitCandidate(ctx, CandidateRequest{
		EventType:      model.EventSubscription,
		Title:          "Netflix renewal",
		Confidence:     0.8,
		ContextPattern: ptr("netflix"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := svc.CheckContext(ctx, "", "title"); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("empty url: %v", err)
	}

	matches, err := svc.CheckContext(ctx, "https://www.netflix.com/browse", "")
	if err != nil || len(matches) != 1 || matches[0].Event.ID != ev.ID {
		t.Fatalf("matches: %+v err=%v", matches, err)
	}
	if got := b.byKind(notify.PopupContextReminder); len(got) != 1 {
		t.Fatalf("context reminders: %+v", got)
	}

	// matching is read-only: the visit repeats until the user acts
	matches, err = svc.CheckContext(ctx, "https://www.netflix.com/browse", "")
	if err != nil || len(matches) != 1 {
		t.Fatalf("repeat match: %+v err=%v", matches, err)
	}
	got, _ := st.Events().Get(ctx, ev.ID)
	if got.Status != model.StatusScheduled {
		t.Fatalf("status mutated: %s", got.Status)
	}
	triggers, _ := st.Triggers().ListByEvent(ctx, ev.ID)
	for _, tr := range triggers {
		if tr.Fired || tr.FireCount != 0 {
			t.Fatalf("trigger mutated: %+v", tr)
		}
	}
}

func TestDismissContextTemporary(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()

	ev, _, err := svc.SubmitCandidate(ctx, CandidateRequest{
		EventType:      model.EventSubscription,
		Title:          "Netflix renewal",
		Confidence:     0.8,
		ContextPattern: ptr("netflix"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	until, err := svc.DismissContext(ctx, ev.ID, false)
	if err != nil || until == nil {
		t.Fatalf("dismiss: until=%v err=%v", until, err)
	}

	// suppressed while the dismissal is live
	matches, err := svc.CheckContext(ctx, "netflix.com", "")
	if err != nil || len(matches) != 0 {
		t.Fatalf("suppressed match leaked: %+v err=%v", matches, err)
	}

	got, _ := st.Events().Get(ctx, ev.ID)
	if got.DismissCount != 1 || got.Status != model.StatusScheduled {
		t.Fatalf("event after dismiss: %+v", got)
	}

	rows, _ := st.Dismissals().ListActive(ctx, time.Now().Unix())
	if len(rows) != 1 || rows[0].EventID != ev.ID || rows[0].Pattern != "netflix" {
		t.Fatalf("dismissal rows: %+v", rows)
	}
}

func TestDismissContextPermanent(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()

	ev, _, err := svc.SubmitCandidate(ctx, CandidateRequest{
		EventType:      model.EventSubscription,
		Title:          "Netflix renewal",
		Confidence:     0.8,
		ContextPattern: ptr("netflix"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	until, err := svc.DismissContext(ctx, ev.ID, true)
	if err != nil || until != nil {
		t.Fatalf("permanent dismiss: until=%v err=%v", until, err)
	}
	got, _ := st.Events().Get(ctx, ev.ID)
	if got.Status != model.StatusCompleted {
		t.Fatalf("status: %s", got.Status)
	}
}

func TestWarmDismissalsPrimesCache(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()

	ev, _, err := svc.SubmitCandidate(ctx, CandidateRequest{
		EventType:      model.EventSubscription,
		Title:          "Netflix renewal",
		Confidence:     0.8,
		ContextPattern: ptr("netflix"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := st.Dismissals().Put(ctx, &model.ContextDismissal{
		EventID:        ev.ID,
		Pattern:        "netflix",
		DismissedUntil: time.Now().Add(10 * time.Minute).Unix(),
	}); err != nil {
		t.Fatalf("put dismissal: %v", err)
	}

	// fresh cache simulates a restart
	fresh := dismiss.NewCache(30 * time.Minute)
	svc.cache = fresh
	if err := svc.WarmDismissals(ctx); err != nil {
		t.Fatalf("warm: %v", err)
	}

	matches, err := svc.CheckContext(ctx, "netflix.com", "")
	if err != nil || len(matches) != 0 {
		t.Fatalf("warm-up did not suppress: %+v err=%v", matches, err)
	}
}

func TestModify(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	at := time.Now().Add(time.Hour).Unix()

	ev, _, err := svc.SubmitCandidate(ctx, timedCandidate(0.9, at))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	newAt := time.Now().Add(3 * time.Hour).UTC()
	got, err := svc.Modify(ctx, ev.ID, ModifyParams{
		Title:        ptr("Project sync (moved)"),
		AbsoluteTime: ptr(newAt.Format(time.RFC3339)),
	})
	if err != nil {
		t.Fatalf("modify: %v", err)
	}
	if got.Title != "Project sync (moved)" {
		t.Fatalf("title: %s", got.Title)
	}
	if got.EventTime == nil || *got.EventTime != newAt.Unix() {
		t.Fatalf("event time: %v", got.EventTime)
	}

	if _, err := svc.Modify(ctx, ev.ID, ModifyParams{Title: ptr(" ")}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("empty title: %v", err)
	}
	if _, err := svc.Modify(ctx, ev.ID, ModifyParams{AbsoluteTime: ptr("soon")}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("bad time: %v", err)
	}
	// a failed parse mutates nothing
	check, _ := svc.Get(ctx, ev.ID)
	if *check.EventTime != newAt.Unix() {
		t.Fatalf("time changed on failed modify: %v", check.EventTime)
	}
}

func TestModifyRefusesTerminalEvent(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	ev, _, err := svc.SubmitCandidate(ctx, timedCandidate(0.9, time.Now().Add(time.Hour).Unix()))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := svc.Complete(ctx, ev.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := svc.Modify(ctx, ev.ID, ModifyParams{Title: ptr("renamed")}); !errors.Is(err, model.ErrTerminalStatus) {
		t.Fatalf("modify after complete: %v", err)
	}
	got, _ := svc.Get(ctx, ev.ID)
	if got.Title != ev.Title || got.Status != model.StatusCompleted {
		t.Fatalf("completed event mutated: %+v", got)
	}

	if _, err := svc.Modify(ctx, 999999, ModifyParams{Title: ptr("x")}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("modify missing: %v", err)
	}
}

func TestParseEventTime(t *testing.T) {
	if ts, err := ParseEventTime("2026-09-01T10:00:00Z"); err != nil || ts != 1788256800 {
		t.Fatalf("rfc3339: %d err=%v", ts, err)
	}
	if ts, err := ParseEventTime("1788256800"); err != nil || ts != 1788256800 {
		t.Fatalf("unix: %d err=%v", ts, err)
	}
	if _, err := ParseEventTime("next tuesday"); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("garbage: %v", err)
	}
}

func TestEventsForDay(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	day := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	inDay, _, err := svc.SubmitCandidate(ctx, timedCandidate(0.9, day.Add(10*time.Hour).Unix()))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	req := timedCandidate(0.9, day.Add(26*time.Hour).Unix())
	req.Title = "Next day"
	if _, _, err := svc.SubmitCandidate(ctx, req); err != nil {
		t.Fatalf("submit next day: %v", err)
	}

	events, err := svc.EventsForDay(ctx, day.Add(15*time.Hour).Unix())
	if err != nil || len(events) != 1 || events[0].ID != inDay.ID {
		t.Fatalf("day events: %+v err=%v", events, err)
	}
}

func TestListValidatesStatus(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	bad := model.Status("archived")
	if _, err := svc.List(context.Background(), model.ListEventsRequest{Status: &bad}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("err: %v", err)
	}
}

func TestGetStats(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	ev, _, err := svc.SubmitCandidate(ctx, timedCandidate(0.9, time.Now().Add(48*time.Hour).Unix()))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Approve(ctx, ev.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	stats, err := svc.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalEvents != 1 || stats.EventsByStatus[model.StatusScheduled] != 1 {
		t.Fatalf("stats: %+v", stats)
	}
	if stats.TotalTriggers != 3 || stats.UnfiredTriggers != 3 {
		t.Fatalf("trigger stats: %+v", stats)
	}
}
