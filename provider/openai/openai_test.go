package openai_provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCompleteSendsJSONMode(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Fatalf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(Options{APIKey: "sk-test", BaseURL: srv.URL + "/", Model: "gpt-4o", Temperature: 0.1, MaxTokens: 100, Timeout: time.Second}, nil)
	out, err := c.Complete(context.Background(), "be strict", "rank these", true)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != `{"ok":true}` {
		t.Fatalf("unexpected content %q", out)
	}
	if got.Model != "gpt-4o" || got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Fatalf("unexpected request %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "rank these" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
}

func TestCompleteOmitsFormatAndEmptySystem(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hi"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(Options{APIKey: "k", BaseURL: srv.URL, Model: "m"}, nil)
	if _, err := c.Complete(context.Background(), " ", "hello", false); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, ok := raw["response_format"]; ok {
		t.Fatalf("response_format should be omitted")
	}
	if msgs := raw["messages"].([]any); len(msgs) != 1 {
		t.Fatalf("expected only the user message, got %d", len(msgs))
	}
}

func TestCompleteErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limited"}`))
		},
		"no choices": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		},
		"garbage": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			c := NewOpenAIClient(Options{APIKey: "k", BaseURL: srv.URL, Model: "m"}, nil)
			_, err := c.Complete(context.Background(), "", "x", true)
			if err == nil {
				t.Fatalf("expected error")
			}
			if name == "status" && !strings.Contains(err.Error(), "429") {
				t.Fatalf("status missing from error: %v", err)
			}
		})
	}
}
