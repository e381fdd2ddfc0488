package api

import (
	"encoding/json"
	"net/http"

	"github.com/arguslabs/argus/server/internal/api/respond"
	"github.com/arguslabs/argus/server/internal/services"
)

// ActionHandler serves the action envelope endpoint used by notification
// popups: one POST carrying the decided action and its target.
type ActionHandler struct {
	dispatcher *services.Dispatcher
	events     *services.EventService
}

// NewActionHandler creates a new action handler
func NewActionHandler(d *services.Dispatcher, events *services.EventService) *ActionHandler {
	return &ActionHandler{dispatcher: d, events: events}
}

type actionRequest struct {
	Action  services.Action       `json:"action"`
	EventID int64                 `json:"eventId"`
	Params  services.ActionParams `json:"params"`
}

// ApplyAction handles POST /api/actions
func (h *ActionHandler) ApplyAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON in request body")
		return
	}
	if req.EventID <= 0 {
		respond.WriteBadRequest(w, "eventId is required")
		return
	}

	if err := h.dispatcher.Apply(r.Context(), req.Action, req.EventID, req.Params); err != nil {
		respond.WriteServiceError(w, err)
		return
	}

	resp := map[string]interface{}{"action": req.Action, "eventId": req.EventID, "applied": true}
	// cancel deletes the row, so there is nothing left to echo
	if req.Action != services.ActionCancel {
		if ev, err := h.events.Get(r.Context(), req.EventID); err == nil {
			resp["event"] = ev
		}
	}
	respond.WriteJSON(w, http.StatusOK, resp)
}
