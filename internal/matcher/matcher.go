// Package matcher selects events whose context pattern matches a visited
// page. Matching is pure: no store or trigger state is touched, and matches
// may repeat on later visits until the user dismisses or completes.
package matcher

import (
	"strings"

	"github.com/arguslabs/argus/server/internal/model"
)

// Match pairs a matched event with the pattern that matched it, so callers
// can record which pattern suppressions apply to.
type Match struct {
	Event          *model.Event
	MatchedPattern string
}

// Find returns every scheduled event whose context pattern is a substring
// match against the URL or page title. Containment is bidirectional: the
// page may contain the pattern or the pattern the page. Events without an
// explicit pattern fall back to their free-text location.
func Find(events []*model.Event, url, title string) []Match {
	url = strings.ToLower(url)
	title = strings.ToLower(title)

	var out []Match
	for _, ev := range events {
		if ev.Status != model.StatusScheduled {
			continue
		}
		pattern := patternFor(ev)
		if pattern == "" {
			continue
		}
		if contains(url, pattern) || (title != "" && contains(title, pattern)) {
			out = append(out, Match{Event: ev, MatchedPattern: pattern})
		}
	}
	return out
}

func patternFor(ev *model.Event) string {
	if ev.ContextPattern != nil && *ev.ContextPattern != "" {
		return strings.ToLower(*ev.ContextPattern)
	}
	if ev.Location != nil && *ev.Location != "" {
		return strings.ToLower(*ev.Location)
	}
	return ""
}

func contains(page, pattern string) bool {
	if page == "" {
		return false
	}
	return strings.Contains(page, pattern) || strings.Contains(pattern, page)
}
