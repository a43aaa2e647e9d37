// Package ingest implements the outbound HTTP calls the worker makes to
// the backend: posting a canonical event candidate for ingestion, and
// reporting an ingest run's progress/outcome, grounded on
// original_source/ai-worker/src/queue/worker.py's send_event_to_backend
// and update_ingest_run.
package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"eventcrawl/internal/event"
	"eventcrawl/internal/redact"
)

// Action classifies how the backend handled a submitted candidate.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionDuplicate Action = "duplicate"
	ActionError     Action = "error"
)

// Result is the backend's response to a single SendEvent call.
type Result struct {
	Action Action `json:"action"`
	Error  string `json:"error,omitempty"`
}

// Client posts canonical candidates and ingest-run status updates to the
// backend service.
type Client struct {
	httpClient   *http.Client
	backendURL   string
	serviceToken string
}

// New builds a Client. backendURL is the backend's base URL with no
// trailing slash; serviceToken, when non-empty, is sent as a bearer token.
func New(backendURL, serviceToken string, timeout time.Duration) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		backendURL:   backendURL,
		serviceToken: serviceToken,
	}
}

// SendEvent posts candidate to the backend's /api/events/ingest endpoint,
// matching send_event_to_backend's payload shape and status handling.
// Transport and non-2xx failures are reported as a Result with
// Action=error rather than returned as an error, matching the Python
// implementation's "never blow up the batch on one bad event" behavior.
func (c *Client) SendEvent(ctx context.Context, candidate event.CanonicalCandidate) *Result {
	body, err := json.Marshal(candidate)
	if err != nil {
		return &Result{Action: ActionError, Error: fmt.Sprintf("marshal candidate: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.backendURL+"/api/events/ingest", bytes.NewReader(body))
	if err != nil {
		return &Result{Action: ActionError, Error: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.serviceToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.serviceToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("failed to send event to backend", slog.String("error", err.Error()))
		return &Result{Action: ActionError, Error: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		var result Result
		if err := json.Unmarshal(respBody, &result); err != nil {
			return &Result{Action: ActionError, Error: fmt.Sprintf("decode response: %v", err)}
		}
		return &result
	}

	snippet := string(respBody)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	slog.Warn("ingest failed",
		slog.String("title", redact.ForLogging(candidateTitle(candidate))),
		slog.Int("status", resp.StatusCode), slog.String("body", snippet))
	return &Result{Action: ActionError, Error: snippet}
}

func candidateTitle(c event.CanonicalCandidate) string {
	if title, ok := c.Data["title"].(string); ok {
		return title
	}
	return ""
}

// RunStatus is an IngestRun's reported lifecycle state.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// RunUpdate is the payload PATCHed to the backend's ingest-run endpoint,
// matching update_ingest_run's fields.
type RunUpdate struct {
	Status         RunStatus      `json:"status"`
	EventsFound    int            `json:"events_found"`
	EventsCreated  int            `json:"events_created"`
	EventsUpdated  int            `json:"events_updated"`
	EventsSkipped  int            `json:"events_skipped"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	ErrorDetails   map[string]any `json:"error_details,omitempty"`
	NeedsAttention bool           `json:"needs_attention,omitempty"`
}

// UpdateIngestRun PATCHes the backend's /api/admin/ingest-runs/{id}
// endpoint. A zero-value runID is a no-op, matching the Python guard
// clause for an absent ingest_run_id. Failures are logged, not returned,
// since a run-status update failing must never abort the crawl job
// itself.
func (c *Client) UpdateIngestRun(ctx context.Context, runID string, update RunUpdate) {
	if runID == "" {
		return
	}
	if update.ErrorMessage != "" {
		update.NeedsAttention = true
	}

	body, err := json.Marshal(update)
	if err != nil {
		slog.Error("failed to marshal ingest run update", slog.String("error", err.Error()))
		return
	}

	url := fmt.Sprintf("%s/api/admin/ingest-runs/%s", c.backendURL, runID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		slog.Error("failed to build ingest run update request", slog.String("error", err.Error()))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if c.serviceToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.serviceToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("failed to update ingest run", slog.String("run_id", runID), slog.String("error", err.Error()))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		slog.Warn("failed to update ingest run", slog.String("run_id", runID), slog.Int("status", resp.StatusCode))
	}
}

// BuildCandidate assembles the canonical ingest payload from a normalized
// event, its fingerprint, and a content hash, matching §6's
// CanonicalCandidate shape.
func BuildCandidate(sourceType, sourceURL, externalID, fingerprint, rawHash string, extractedAt time.Time, data map[string]any) event.CanonicalCandidate {
	return event.CanonicalCandidate{
		SourceType:  sourceType,
		SourceURL:   sourceURL,
		ExternalID:  externalID,
		Fingerprint: fingerprint,
		RawHash:     rawHash,
		ExtractedAt: extractedAt,
		Data:        data,
	}
}

// HashPayload returns a 32-char hex digest of data's canonical JSON
// encoding, used as CanonicalCandidate.RawHash for change detection: two
// extractions of the same source produce the same hash only when every
// field in data is unchanged. Map keys are sorted by encoding/json before
// hashing so field order never affects the result.
func HashPayload(data map[string]any) (string, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal payload for hashing: %w", err)
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])[:32], nil
}
