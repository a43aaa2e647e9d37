package httpapi

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"
)

func newTestServer() *Server {
	return NewServer(Deps{Logger: slog.Default()})
}

func TestPostCrawlTriggerRejectsMalformedJSON(t *testing.T) {
	s := newTestServer()

	req, _ := http.NewRequest(http.MethodPost, "/crawl/trigger", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestPostCrawlTriggerRejectsMissingSourceURL(t *testing.T) {
	s := newTestServer()

	body, _ := json.Marshal(map[string]any{"source_type": "rss"})
	req, _ := http.NewRequest(http.MethodPost, "/crawl/trigger", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errResp.Code != "BAD_REQUEST" {
		t.Errorf("Code = %q, want BAD_REQUEST", errResp.Code)
	}
}

func TestPostCrawlTriggerRejectsUnknownSourceType(t *testing.T) {
	s := newTestServer()

	body, _ := json.Marshal(map[string]any{"source_url": "https://example.org/feed.xml", "source_type": "carrier-pigeon"})
	req, _ := http.NewRequest(http.MethodPost, "/crawl/trigger", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestGetHealthzShallow(t *testing.T) {
	s := newTestServer()

	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}
