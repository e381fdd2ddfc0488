package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const extractionPrompt = `You extract calendar-relevant events from chat messages.
Respond with JSON only: {"events":[{"type":"meeting|deadline|reminder|travel|task|subscription|recommendation|other","title":"...","description":"...","event_time":"RFC3339 or null","location":"... or null","keywords":["..."],"confidence":0.0}]}.
Return {"events":[]} when the message contains no event.`

// Client calls an OpenAI-compatible chat-completions endpoint and parses
// the assistant's JSON reply into candidates.
type Client struct {
	http  *resty.Client
	model string
}

// NewClient builds a client for the given endpoint. apiKey may be empty for
// local, unauthenticated servers.
func NewClient(baseURL, apiKey, model string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(60 * time.Second)
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &Client{http: c, model: model}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type extraction struct {
	Events []Candidate `json:"events"`
}

// Analyze implements Analyzer.
func (c *Client) Analyze(ctx context.Context, content string, recent []string) ([]Candidate, error) {
	user := content
	if len(recent) > 0 {
		user = "Recent context:\n" + strings.Join(recent, "\n") + "\n\nMessage:\n" + content
	}
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: extractionPrompt},
			{Role: "user", Content: user},
		},
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(&reqBody).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("oracle request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("oracle status %d: %s", resp.StatusCode(), resp.String())
	}

	var cr chatResponse
	if err := json.Unmarshal(resp.Body(), &cr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("oracle returned no choices")
	}

	var ex extraction
	if err := json.Unmarshal([]byte(stripFences(cr.Choices[0].Message.Content)), &ex); err != nil {
		return nil, fmt.Errorf("parse extraction: %w", err)
	}
	return ex.Events, nil
}

// stripFences removes a markdown code fence some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
