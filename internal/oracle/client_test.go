package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func completionFixture(content string) []byte {
	b, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return b
}

func TestClientAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(completionFixture(`{"events":[{"type":"meeting","title":"standup","keywords":["meeting"],"confidence":0.9}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "test-model")
	got, err := c.Analyze(context.Background(), "standup tomorrow at 10", nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(got) != 1 || got[0].Title != "standup" || got[0].Confidence != 0.9 {
		t.Fatalf("got %+v", got)
	}
}

func TestClientAnalyzeFencedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(completionFixture("```json\n{\"events\":[]}\n```"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "test-model")
	got, err := c.Analyze(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %+v", got)
	}
}

func TestClientAnalyzeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "test-model")
	if _, err := c.Analyze(context.Background(), "hello", nil); err == nil {
		t.Fatal("expected error on 503")
	}
}
