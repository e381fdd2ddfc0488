package conflict

import (
	"testing"
	"time"

	"github.com/arguslabs/argus/server/internal/model"
)

func timed(id int64, at int64, status model.Status) *model.Event {
	return &model.Event{ID: id, Title: "e", EventTime: &at, Status: status}
}

func TestOverlappingWindow(t *testing.T) {
	base := int64(1_000_000)
	events := []*model.Event{
		timed(1, base-3600, model.StatusScheduled), // boundary, inclusive
		timed(2, base+3600, model.StatusScheduled), // boundary, inclusive
		timed(3, base+3601, model.StatusScheduled), // outside
		timed(4, base-7200, model.StatusScheduled), // outside
		timed(5, base, model.StatusScheduled),      // exact tie
	}
	got := Overlapping(events, base, time.Hour, 0)
	if len(got) != 3 {
		t.Fatalf("want 3 conflicts, got %d", len(got))
	}
}

func TestOverlappingExcludesSelf(t *testing.T) {
	base := int64(1_000_000)
	events := []*model.Event{timed(7, base, model.StatusScheduled)}
	if got := Overlapping(events, base, time.Hour, 7); len(got) != 0 {
		t.Fatalf("event conflicted with itself: %v", got)
	}
}

func TestOverlappingSkipsFinishedAndUntimed(t *testing.T) {
	base := int64(1_000_000)
	events := []*model.Event{
		timed(1, base, model.StatusCompleted),
		timed(2, base, model.StatusExpired),
		{ID: 3, Title: "no time", Status: model.StatusScheduled},
		timed(4, base, model.StatusIgnored),
	}
	got := Overlapping(events, base, time.Hour, 0)
	if len(got) != 1 || got[0].ID != 4 {
		t.Fatalf("got %v", got)
	}
}

func TestOverlappingSymmetry(t *testing.T) {
	a := timed(1, 5000, model.StatusScheduled)
	b := timed(2, 6000, model.StatusScheduled)
	w := 20 * time.Minute
	abConflict := len(Overlapping([]*model.Event{b}, *a.EventTime, w, a.ID)) > 0
	baConflict := len(Overlapping([]*model.Event{a}, *b.EventTime, w, b.ID)) > 0
	if abConflict != baConflict {
		t.Fatalf("conflict detection not symmetric: ab=%v ba=%v", abConflict, baConflict)
	}
	if !abConflict {
		t.Fatal("expected conflict within window")
	}
}
