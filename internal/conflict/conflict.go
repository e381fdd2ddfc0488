// Package conflict detects double-bookings: events whose absolute time
// falls inside a symmetric window around a candidate time.
package conflict

import (
	"time"

	"github.com/arguslabs/argus/server/internal/model"
)

// Overlapping returns every event whose event_time lies within ±window of
// t (Unix seconds), excluding the candidate's own id. The interval is
// closed: ties at either boundary count as conflicts. Completed and
// expired events never conflict.
func Overlapping(events []*model.Event, t int64, window time.Duration, excludeID int64) []*model.Event {
	w := int64(window / time.Second)
	var out []*model.Event
	for _, ev := range events {
		if ev.ID == excludeID || ev.EventTime == nil {
			continue
		}
		if ev.Status == model.StatusCompleted || ev.Status == model.StatusExpired {
			continue
		}
		d := *ev.EventTime - t
		if d < 0 {
			d = -d
		}
		if d <= w {
			out = append(out, ev)
		}
	}
	return out
}
