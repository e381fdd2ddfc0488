package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/arguslabs/argus/server/internal/api/respond"
	"github.com/arguslabs/argus/server/internal/services"
)

// IngestHandler serves message ingestion. The handler exists even when the
// extraction oracle is not configured; it then reports 503 so clients can
// tell "disabled" from "broken".
type IngestHandler struct {
	ingestor *services.Ingestor
}

// NewIngestHandler creates a new ingest handler. ingestor may be nil.
func NewIngestHandler(ingestor *services.Ingestor) *IngestHandler {
	return &IngestHandler{ingestor: ingestor}
}

// IngestMessage handles POST /api/messages
func (h *IngestHandler) IngestMessage(w http.ResponseWriter, r *http.Request) {
	if h.ingestor == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "message ingestion is not configured")
		return
	}
	var msg services.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON in request body")
		return
	}

	res, err := h.ingestor.ProcessMessage(r.Context(), msg)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	status := http.StatusOK
	if res.EventsCreated > 0 {
		status = http.StatusCreated
	}
	respond.WriteJSON(w, status, res)
}

// ContextHandler serves browsing-context checks.
type ContextHandler struct {
	events *services.EventService
}

// NewContextHandler creates a new context handler
func NewContextHandler(events *services.EventService) *ContextHandler {
	return &ContextHandler{events: events}
}

type contextCheckRequest struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

type contextMatch struct {
	Event          interface{} `json:"event"`
	MatchedPattern string      `json:"matchedPattern"`
}

// CheckContext handles POST /api/context-check. Matching is read-only;
// suppressed matches are filtered out before the response.
func (h *ContextHandler) CheckContext(w http.ResponseWriter, r *http.Request) {
	var req contextCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON in request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		respond.WriteBadRequest(w, "url is required")
		return
	}

	matches, err := h.events.CheckContext(r.Context(), req.URL, req.Title)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	out := make([]contextMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, contextMatch{Event: m.Event, MatchedPattern: m.MatchedPattern})
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"matches": out,
		"count":   len(out),
	})
}
