package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/arguslabs/argus/server/internal/api/respond"
	"github.com/arguslabs/argus/server/internal/model"
	"github.com/arguslabs/argus/server/internal/services"
)

// EventHandler serves the event lifecycle endpoints.
type EventHandler struct {
	events *services.EventService
}

// NewEventHandler creates a new event handler
func NewEventHandler(events *services.EventService) *EventHandler {
	return &EventHandler{events: events}
}

func eventID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

// CreateEvent handles POST /api/events. The body is a structured candidate;
// candidates below the confidence threshold are rejected with 400.
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req services.CandidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON in request body")
		return
	}

	ev, conflicts, err := h.events.SubmitCandidate(r.Context(), req)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"event":     ev,
		"conflicts": conflicts,
	})
}

// ListEvents handles GET /api/events with optional status, limit and offset
// query parameters.
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	var req model.ListEventsRequest
	if s := r.URL.Query().Get("status"); s != "" {
		status := model.Status(s)
		req.Status = &status
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			respond.WriteBadRequest(w, "limit must be a non-negative integer")
			return
		}
		req.Limit = n
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		n, err := strconv.Atoi(o)
		if err != nil || n < 0 {
			respond.WriteBadRequest(w, "offset must be a non-negative integer")
			return
		}
		req.Offset = n
	}

	events, err := h.events.List(r.Context(), req)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// GetEvent handles GET /api/events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(r)
	if !ok {
		respond.WriteBadRequest(w, "Invalid event ID")
		return
	}
	ev, err := h.events.Get(r.Context(), id)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, ev)
}

// UpdateEvent handles PATCH /api/events/{id}. Only provided fields change;
// an unparseable time mutates nothing.
func (h *EventHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(r)
	if !ok {
		respond.WriteBadRequest(w, "Invalid event ID")
		return
	}
	var p services.ModifyParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON in request body")
		return
	}
	ev, err := h.events.Modify(r.Context(), id, p)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, ev)
}

// DeleteEvent handles DELETE /api/events/{id}, cascading over the event's
// triggers and dismissals.
func (h *EventHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(r)
	if !ok {
		respond.WriteBadRequest(w, "Invalid event ID")
		return
	}
	if err := h.events.Delete(r.Context(), id); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApproveEvent handles POST /api/events/{id}/approve
func (h *EventHandler) ApproveEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(r)
	if !ok {
		respond.WriteBadRequest(w, "Invalid event ID")
		return
	}
	ev, err := h.events.Approve(r.Context(), id)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, ev)
}

// SnoozeEvent handles POST /api/events/{id}/snooze. The body may carry
// {"minutes": n}; the default is 30.
func (h *EventHandler) SnoozeEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(r)
	if !ok {
		respond.WriteBadRequest(w, "Invalid event ID")
		return
	}
	var body struct {
		Minutes int `json:"minutes"`
	}
	if r.Body != nil {
		// an empty body means the default snooze
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	if body.Minutes == 0 {
		body.Minutes = 30
	}
	ev, err := h.events.Snooze(r.Context(), id, body.Minutes)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, ev)
}

// CompleteEvent handles POST /api/events/{id}/complete
func (h *EventHandler) CompleteEvent(w http.ResponseWriter, r *http.Request) {
	h.terminal(w, r, h.events.Complete)
}

// IgnoreEvent handles POST /api/events/{id}/ignore
func (h *EventHandler) IgnoreEvent(w http.ResponseWriter, r *http.Request) {
	h.terminal(w, r, h.events.Ignore)
}

func (h *EventHandler) terminal(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id int64) error) {
	id, ok := eventID(r)
	if !ok {
		respond.WriteBadRequest(w, "Invalid event ID")
		return
	}
	if err := apply(r.Context(), id); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	ev, err := h.events.Get(r.Context(), id)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, ev)
}

// DismissEvent handles POST /api/events/{id}/dismiss. A permanent dismissal
// completes the event; a temporary one suppresses context reminders for the
// dismissal TTL.
func (h *EventHandler) DismissEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(r)
	if !ok {
		respond.WriteBadRequest(w, "Invalid event ID")
		return
	}
	var body struct {
		Permanent bool `json:"permanent"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	until, err := h.events.DismissContext(r.Context(), id, body.Permanent)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	resp := map[string]interface{}{"eventId": id, "permanent": body.Permanent}
	if until != nil {
		resp["dismissedUntil"] = until.Format(time.RFC3339)
	}
	respond.WriteJSON(w, http.StatusOK, resp)
}

// EventsForDay handles GET /api/events/day/{timestamp}, returning active
// timed events inside the UTC day containing the timestamp.
func (h *EventHandler) EventsForDay(w http.ResponseWriter, r *http.Request) {
	ts, err := strconv.ParseInt(mux.Vars(r)["timestamp"], 10, 64)
	if err != nil {
		respond.WriteBadRequest(w, "timestamp must be Unix seconds")
		return
	}
	events, err := h.events.EventsForDay(r.Context(), ts)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// EventConflicts handles GET /api/events/{id}/conflicts
func (h *EventHandler) EventConflicts(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(r)
	if !ok {
		respond.WriteBadRequest(w, "Invalid event ID")
		return
	}
	conflicts, err := h.events.ConflictsFor(r.Context(), id)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"conflicts": conflicts,
		"count":     len(conflicts),
	})
}

// EventTriggers handles GET /api/events/{id}/triggers
func (h *EventHandler) EventTriggers(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(r)
	if !ok {
		respond.WriteBadRequest(w, "Invalid event ID")
		return
	}
	triggers, err := h.events.Triggers(r.Context(), id)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"triggers": triggers,
		"count":    len(triggers),
	})
}

// DueReminders handles GET /api/reminders/due
func (h *EventHandler) DueReminders(w http.ResponseWriter, r *http.Request) {
	due, err := h.events.DueReminders(r.Context())
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"events": due,
		"count":  len(due),
	})
}

// GetStats handles GET /api/stats
func (h *EventHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.events.GetStats(r.Context())
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, stats)
}
