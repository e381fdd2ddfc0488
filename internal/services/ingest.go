package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arguslabs/argus/server/internal/model"
	"github.com/arguslabs/argus/server/internal/oracle"
)

// Message is an inbound raw message handed to the ingestion pipeline.
type Message struct {
	ID      string   `json:"id,omitempty"`
	Sender  string   `json:"sender,omitempty"`
	Content string   `json:"content"`
	Recent  []string `json:"recent,omitempty"`
}

// IngestResult reports what a message produced.
type IngestResult struct {
	MessageID     string                   `json:"messageId"`
	Skipped       bool                     `json:"skipped"`
	SkipReason    string                   `json:"skipReason,omitempty"`
	EventsCreated int                      `json:"eventsCreated"`
	Events        []*model.Event           `json:"events,omitempty"`
	Conflicts     map[int64][]*model.Event `json:"-"`
}

// Ingestor turns raw messages into event candidates via the extraction
// oracle and submits them. An oracle failure leaves the store untouched.
type Ingestor struct {
	oracle oracle.Analyzer
	events *EventService
	log    zerolog.Logger
}

// NewIngestor wires the ingestion pipeline.
func NewIngestor(a oracle.Analyzer, events *EventService, log zerolog.Logger) *Ingestor {
	return &Ingestor{oracle: a, events: events, log: log}
}

// known subscription services whose names double as context patterns
var servicePatterns = []string{
	"netflix", "hotstar", "amazon", "prime", "disney", "spotify",
	"youtube", "hulu", "hbo", "zee5", "sonyliv", "jiocinema",
	"gym", "domain", "hosting", "aws", "azure", "vercel", "heroku",
}

// travel destinations recognized as context patterns
var placePatterns = []string{
	"goa", "mumbai", "delhi", "bangalore", "chennai", "kolkata", "hyderabad",
	"jaipur", "udaipur", "kerala", "manali", "shimla", "ladakh", "kashmir",
	"thailand", "bali", "singapore", "dubai", "maldives", "europe",
}

// ProcessMessage extracts candidates from one message and submits each that
// clears the confidence threshold.
func (ing *Ingestor) ProcessMessage(ctx context.Context, msg Message) (*IngestResult, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	res := &IngestResult{MessageID: msg.ID, Conflicts: make(map[int64][]*model.Event)}

	if strings.TrimSpace(msg.Content) == "" {
		res.Skipped = true
		res.SkipReason = "no_content"
		return res, nil
	}

	candidates, err := ing.oracle.Analyze(ctx, msg.Content, msg.Recent)
	if err != nil {
		return nil, fmt.Errorf("oracle analyze: %w", err)
	}
	if len(candidates) == 0 {
		res.Skipped = true
		res.SkipReason = "no_event_detected"
		return res, nil
	}

	for _, c := range candidates {
		req, ok := ing.toRequest(msg, c)
		if !ok {
			continue
		}
		ev, conflicts, err := ing.events.SubmitCandidate(ctx, req)
		if err != nil {
			if errors.Is(err, model.ErrValidation) {
				ing.log.Debug().Err(err).Str("message", msg.ID).Msg("candidate rejected")
				continue
			}
			return nil, err
		}
		res.EventsCreated++
		res.Events = append(res.Events, ev)
		if len(conflicts) > 0 {
			res.Conflicts[ev.ID] = conflicts
		}
	}

	if res.EventsCreated == 0 {
		res.Skipped = true
		res.SkipReason = "no_event_detected"
	}
	ing.log.Info().Str("message", msg.ID).Int("events", res.EventsCreated).Msg("message processed")
	return res, nil
}

// toRequest converts an oracle candidate to a submit request, deriving the
// context pattern the way the candidate's type suggests. A candidate with
// an unusable type or time is normalized rather than dropped; confidence
// filtering is left to SubmitCandidate.
func (ing *Ingestor) toRequest(msg Message, c oracle.Candidate) (CandidateRequest, bool) {
	et := model.EventType(c.Type)
	if !et.Valid() {
		et = model.EventOther
	}
	if strings.TrimSpace(c.Title) == "" {
		return CandidateRequest{}, false
	}

	var eventTime *int64
	if c.EventTime != nil && *c.EventTime != "" {
		if ts, err := ParseEventTime(*c.EventTime); err == nil {
			eventTime = &ts
		}
	}

	req := CandidateRequest{
		EventType:    et,
		Title:        c.Title,
		Description:  c.Description,
		AbsoluteTime: eventTime,
		Location:     c.Location,
		Keywords:     c.Keywords,
		Confidence:   c.Confidence,
		MessageID:    &msg.ID,
	}
	if msg.Sender != "" {
		req.SenderName = &msg.Sender
	}
	if p := deriveContextPattern(et, c); p != "" {
		req.ContextPattern = &p
	}
	return req, true
}

// deriveContextPattern picks a short pattern for context matching:
// subscription events match on the service name, travel and recommendation
// events on the destination, everything else on a cleaned-up location.
func deriveContextPattern(et model.EventType, c oracle.Candidate) string {
	search := strings.ToLower(strings.Join(c.Keywords, " ") + " " + c.Title)
	if c.Location != nil {
		search = strings.ToLower(*c.Location) + " " + search
	}
	if c.Description != nil {
		search += " " + strings.ToLower(*c.Description)
	}

	switch et {
	case model.EventSubscription:
		for _, svc := range servicePatterns {
			if strings.Contains(search, svc) {
				return svc
			}
		}
		if c.Location != nil {
			if cleaned := cleanServiceName(*c.Location); cleaned != "" {
				return cleaned
			}
		}
	case model.EventTravel, model.EventRecommendation:
		for _, place := range placePatterns {
			if strings.Contains(search, place) {
				return place
			}
		}
	}
	if c.Location != nil {
		loc := strings.ToLower(*c.Location)
		for _, place := range placePatterns {
			if strings.Contains(loc, place) {
				return place
			}
		}
	}
	return ""
}

// cleanServiceName strips scheme, www and TLD from a service URL, leaving
// just the name.
func cleanServiceName(loc string) string {
	s := strings.ToLower(strings.TrimSpace(loc))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	for _, tld := range []string{".com", ".in", ".org", ".net", ".io", ".co"} {
		if i := strings.Index(s, tld); i > 0 {
			s = s[:i]
			break
		}
	}
	if len(s) > 2 && !strings.ContainsAny(s, "/ ") {
		return s
	}
	return ""
}
