package ingest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"eventcrawl/internal/event"
)

func TestSendEventSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		var payload event.CanonicalCandidate
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		if payload.SourceType != "rss" {
			t.Errorf("source_type = %q, want rss", payload.SourceType)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Result{Action: ActionCreated})
	}))
	defer server.Close()

	client := New(server.URL, "test-token", 5*time.Second)
	candidate := BuildCandidate("rss", "https://example.org/feed", "ext-1", "fp123", "hash123", time.Now(), map[string]any{"title": "Stadtfest"})

	result := client.SendEvent(t.Context(), candidate)
	if result.Action != ActionCreated {
		t.Fatalf("expected created, got %s (%s)", result.Action, result.Error)
	}
}

func TestSendEventNon2xxReturnsErrorAction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	client := New(server.URL, "", 5*time.Second)
	candidate := BuildCandidate("rss", "https://example.org/feed", "", "fp", "hash", time.Now(), map[string]any{})

	result := client.SendEvent(t.Context(), candidate)
	if result.Action != ActionError {
		t.Fatalf("expected error action, got %s", result.Action)
	}
}

func TestUpdateIngestRunSkipsEmptyRunID(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, "", 5*time.Second)
	client.UpdateIngestRun(t.Context(), "", RunUpdate{Status: RunSuccess})

	if called {
		t.Fatal("expected no request for empty run id")
	}
}

func TestUpdateIngestRunSetsNeedsAttentionOnError(t *testing.T) {
	var received RunUpdate
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s, want PATCH", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, "", 5*time.Second)
	client.UpdateIngestRun(t.Context(), "run-1", RunUpdate{Status: RunFailed, ErrorMessage: "feed parsing failed"})

	if !received.NeedsAttention {
		t.Fatal("expected needs_attention=true when error_message is set")
	}
}
