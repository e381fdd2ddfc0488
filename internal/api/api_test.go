package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arguslabs/argus/server/internal/dismiss"
	"github.com/arguslabs/argus/server/internal/model"
	"github.com/arguslabs/argus/server/internal/notify"
	"github.com/arguslabs/argus/server/internal/services"
	"github.com/arguslabs/argus/server/internal/store/sqlite"
)

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	db, err := sqlite.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.EnsureSchema(db))

	st := sqlite.NewWithDB(db)
	cache := dismiss.NewCache(30 * time.Minute)
	eventSvc := services.NewEventService(st, notify.NopBroadcaster{}, cache, zerolog.Nop(), 0.4, time.Hour)

	root := mux.NewRouter()
	root.Use(Recover)

	events := NewEventHandler(eventSvc)
	root.HandleFunc("/api/events", events.CreateEvent).Methods("POST")
	root.HandleFunc("/api/events", events.ListEvents).Methods("GET")
	root.HandleFunc("/api/events/day/{timestamp}", events.EventsForDay).Methods("GET")
	root.HandleFunc("/api/events/{id}", events.GetEvent).Methods("GET")
	root.HandleFunc("/api/events/{id}", events.UpdateEvent).Methods("PATCH")
	root.HandleFunc("/api/events/{id}", events.DeleteEvent).Methods("DELETE")
	root.HandleFunc("/api/events/{id}/approve", events.ApproveEvent).Methods("POST")
	root.HandleFunc("/api/events/{id}/snooze", events.SnoozeEvent).Methods("POST")
	root.HandleFunc("/api/events/{id}/complete", events.CompleteEvent).Methods("POST")
	root.HandleFunc("/api/events/{id}/ignore", events.IgnoreEvent).Methods("POST")
	root.HandleFunc("/api/events/{id}/dismiss", events.DismissEvent).Methods("POST")
	root.HandleFunc("/api/events/{id}/conflicts", events.EventConflicts).Methods("GET")
	root.HandleFunc("/api/events/{id}/triggers", events.EventTriggers).Methods("GET")
	root.HandleFunc("/api/reminders/due", events.DueReminders).Methods("GET")
	root.HandleFunc("/api/stats", events.GetStats).Methods("GET")

	actions := NewActionHandler(services.NewDispatcher(eventSvc), eventSvc)
	root.HandleFunc("/api/actions", actions.ApplyAction).Methods("POST")

	contextHandler := NewContextHandler(eventSvc)
	root.HandleFunc("/api/context-check", contextHandler.CheckContext).Methods("POST")

	ingest := NewIngestHandler(nil)
	root.HandleFunc("/api/messages", ingest.IngestMessage).Methods("POST")

	healthHandler := NewHealthHandler()
	root.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")

	return root
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func createTimedEvent(t *testing.T, router *mux.Router, title string, at int64) int64 {
	t.Helper()
	rr := doJSON(t, router, "POST", "/api/events", map[string]interface{}{
		"eventType":    "meeting",
		"title":        title,
		"absoluteTime": at,
		"confidence":   0.9,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var resp struct {
		Event model.Event `json:"event"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Event.ID
}

func TestCreateEventEndpoint(t *testing.T) {
	router := newTestRouter(t)
	at := time.Now().Add(48 * time.Hour).Unix()

	rr := doJSON(t, router, "POST", "/api/events", map[string]interface{}{
		"eventType":    "meeting",
		"title":        "Design review",
		"absoluteTime": at,
		"confidence":   0.9,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp struct {
		Event model.Event `json:"event"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, model.StatusDiscovered, resp.Event.Status)
	assert.Equal(t, "Design review", resp.Event.Title)
}

func TestCreateEventRejectsLowConfidence(t *testing.T) {
	router := newTestRouter(t)
	rr := doJSON(t, router, "POST", "/api/events", map[string]interface{}{
		"eventType":  "meeting",
		"title":      "Maybe",
		"confidence": 0.1,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateEventRejectsBadJSON(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest("POST", "/api/events", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetEventEndpoint(t *testing.T) {
	router := newTestRouter(t)
	id := createTimedEvent(t, router, "Standup", time.Now().Add(time.Hour).Unix())

	rr := doJSON(t, router, "GET", fmt.Sprintf("/api/events/%d", id), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, "GET", "/api/events/99999", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, router, "GET", "/api/events/zero", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListEventsEndpoint(t *testing.T) {
	router := newTestRouter(t)
	createTimedEvent(t, router, "One", time.Now().Add(time.Hour).Unix())
	createTimedEvent(t, router, "Two", time.Now().Add(2*time.Hour).Unix())

	rr := doJSON(t, router, "GET", "/api/events", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Events []model.Event `json:"events"`
		Count  int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)

	rr = doJSON(t, router, "GET", "/api/events?status=discovered", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, "GET", "/api/events?status=archived", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, "GET", "/api/events?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestApproveEndpoint(t *testing.T) {
	router := newTestRouter(t)
	id := createTimedEvent(t, router, "Review", time.Now().Add(48*time.Hour).Unix())

	rr := doJSON(t, router, "POST", fmt.Sprintf("/api/events/%d/approve", id), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var ev model.Event
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ev))
	assert.Equal(t, model.StatusScheduled, ev.Status)
	require.NotNil(t, ev.ReminderTime)

	// approving twice conflicts with the current state
	rr = doJSON(t, router, "POST", fmt.Sprintf("/api/events/%d/approve", id), nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	// triggers were materialized
	rr = doJSON(t, router, "GET", fmt.Sprintf("/api/events/%d/triggers", id), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var triggers struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &triggers))
	assert.Equal(t, 3, triggers.Count)
}

func TestSnoozeEndpoint(t *testing.T) {
	router := newTestRouter(t)
	id := createTimedEvent(t, router, "Call", time.Now().Add(time.Hour).Unix())

	rr := doJSON(t, router, "POST", fmt.Sprintf("/api/events/%d/snooze", id), map[string]int{"minutes": 10})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var ev model.Event
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ev))
	assert.Equal(t, model.StatusSnoozed, ev.Status)

	rr = doJSON(t, router, "POST", fmt.Sprintf("/api/events/%d/snooze", id), map[string]int{"minutes": -5})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCompleteIgnoreEndpoints(t *testing.T) {
	router := newTestRouter(t)
	id := createTimedEvent(t, router, "Done soon", time.Now().Add(time.Hour).Unix())

	rr := doJSON(t, router, "POST", fmt.Sprintf("/api/events/%d/complete", id), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var ev model.Event
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ev))
	assert.Equal(t, model.StatusCompleted, ev.Status)

	// terminal states refuse further transitions
	rr = doJSON(t, router, "POST", fmt.Sprintf("/api/events/%d/ignore", id), nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestUpdateAndDeleteEndpoints(t *testing.T) {
	router := newTestRouter(t)
	id := createTimedEvent(t, router, "Old title", time.Now().Add(time.Hour).Unix())

	rr := doJSON(t, router, "PATCH", fmt.Sprintf("/api/events/%d", id), map[string]string{"title": "New title"})
	require.Equal(t, http.StatusOK, rr.Code)
	var ev model.Event
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ev))
	assert.Equal(t, "New title", ev.Title)

	rr = doJSON(t, router, "PATCH", fmt.Sprintf("/api/events/%d", id), map[string]string{"absoluteTime": "whenever"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, "DELETE", fmt.Sprintf("/api/events/%d", id), nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = doJSON(t, router, "GET", fmt.Sprintf("/api/events/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestActionsEndpoint(t *testing.T) {
	router := newTestRouter(t)
	id := createTimedEvent(t, router, "Actionable", time.Now().Add(time.Hour).Unix())

	rr := doJSON(t, router, "POST", "/api/actions", map[string]interface{}{
		"action":  "snooze",
		"eventId": id,
		"params":  map[string]interface{}{"snoozeMinutes": 15},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doJSON(t, router, "POST", "/api/actions", map[string]interface{}{
		"action":  "teleport",
		"eventId": id,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, "POST", "/api/actions", map[string]interface{}{
		"action": "complete",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, "POST", "/api/actions", map[string]interface{}{
		"action":  "cancel",
		"eventId": id,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	rr = doJSON(t, router, "GET", fmt.Sprintf("/api/events/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestContextCheckEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, "POST", "/api/events", map[string]interface{}{
		"eventType":      "subscription",
		"title":          "Netflix renewal",
		"confidence":     0.8,
		"contextPattern": "netflix",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, router, "POST", "/api/context-check", map[string]string{
		"url": "https://www.netflix.com/browse",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)

	rr = doJSON(t, router, "POST", "/api/context-check", map[string]string{"title": "no url"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDismissEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, "POST", "/api/events", map[string]interface{}{
		"eventType":      "subscription",
		"title":          "Netflix renewal",
		"confidence":     0.8,
		"contextPattern": "netflix",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var created struct {
		Event model.Event `json:"event"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

	rr = doJSON(t, router, "POST", fmt.Sprintf("/api/events/%d/dismiss", created.Event.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["dismissedUntil"])

	// suppressed match no longer shows up
	rr = doJSON(t, router, "POST", "/api/context-check", map[string]string{"url": "netflix.com"})
	require.Equal(t, http.StatusOK, rr.Code)
	var check struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &check))
	assert.Equal(t, 0, check.Count)
}

func TestDayAndDueEndpoints(t *testing.T) {
	router := newTestRouter(t)
	day := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	createTimedEvent(t, router, "In day", day.Add(10*time.Hour).Unix())

	rr := doJSON(t, router, "GET", fmt.Sprintf("/api/events/day/%d", day.Add(15*time.Hour).Unix()), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)

	rr = doJSON(t, router, "GET", "/api/events/day/tomorrow", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, "GET", "/api/reminders/due", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestStatsEndpoint(t *testing.T) {
	router := newTestRouter(t)
	createTimedEvent(t, router, "Counted", time.Now().Add(time.Hour).Unix())

	rr := doJSON(t, router, "GET", "/api/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var stats struct {
		TotalEvents int `json:"totalEvents"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalEvents)
}

func TestMessagesEndpointWithoutOracle(t *testing.T) {
	router := newTestRouter(t)
	rr := doJSON(t, router, "POST", "/api/messages", map[string]string{"content": "hello"})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)
	BindServiceHealth(func() bool { return true })
	t.Cleanup(func() { BindServiceHealth(func() bool { return healthyFlag.Load() == 1 }) })

	rr := doJSON(t, router, "GET", "/api/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}
