package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"eventcrawl/internal/dedupe"
	"eventcrawl/internal/deepfetch"
	"eventcrawl/internal/event"
	"eventcrawl/internal/feed"
	"eventcrawl/internal/fetch"
	"eventcrawl/internal/ingest"
	"eventcrawl/internal/metrics"
	"eventcrawl/internal/normalize"
	"eventcrawl/internal/queue"
	"eventcrawl/internal/redact"
	"eventcrawl/internal/scrape"
	"eventcrawl/internal/sourceconfig"
)

// CrawlRequest is a decoded `crawl` job payload, matching §6's
// POST /crawl/trigger body.
type CrawlRequest struct {
	SourceID        string               `json:"source_id"`
	SourceURL       string               `json:"source_url"`
	SourceType      string               `json:"source_type"` // rss, ics, scraper
	ScraperConfig   *event.ScraperConfig `json:"scraper_config,omitempty"`
	Force           bool                 `json:"force,omitempty"`
	DryRun          bool                 `json:"dry_run,omitempty"`
	EnableAI        bool                 `json:"enable_ai,omitempty"`
	FetchEventPages *bool                `json:"fetch_event_pages,omitempty"`
	IngestRunID     string               `json:"ingest_run_id,omitempty"`
}

// wantsDeepFetch reports whether detail-page enrichment should run,
// defaulting to true when the caller did not specify, matching the
// trigger body's optional `fetch_event_pages?` field.
func (r CrawlRequest) wantsDeepFetch() bool {
	if r.FetchEventPages == nil {
		return true
	}
	return *r.FetchEventPages
}

// DecodeCrawlRequest converts a queue Job's opaque payload map into a
// CrawlRequest via a JSON round trip, since the payload crosses the Redis
// boundary as untyped JSON.
func DecodeCrawlRequest(payload map[string]any) (CrawlRequest, error) {
	var req CrawlRequest
	data, err := json.Marshal(payload)
	if err != nil {
		return req, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("unmarshal payload: %w", err)
	}
	return req, nil
}

// CrawlOutcome is everything a crawl job produces: the built candidates
// (whether or not they were posted) and the per-event counters.
type CrawlOutcome struct {
	Candidates []event.CanonicalCandidate
	Counters   Counters
}

// CrawlHandler implements the `crawl` job type (§4.14): parse or scrape the
// configured source, selectively deep-fetch, normalize, deduplicate, and
// (unless dry-run) post each candidate to the ingest endpoint and report
// the run's outcome.
type CrawlHandler struct {
	deps      Deps
	sources   *sourceconfig.Registry
	deepCfg   deepfetch.Config
	normalize *normalize.Normalizer
}

// NewCrawlHandler builds a CrawlHandler sharing deps' PoliteClient and
// extraction Pipeline across every job it processes.
func NewCrawlHandler(deps Deps, sources *sourceconfig.Registry, deepCfg deepfetch.Config) *CrawlHandler {
	return &CrawlHandler{
		deps:      deps,
		sources:   sources,
		deepCfg:   deepCfg,
		normalize: normalize.New(),
	}
}

// Handle implements worker.Handler: decode, Process, and persist the
// outcome into the job's result. The job is completed whenever Process
// returns no error, even when no event was ingested; the per-event
// success/partial/failed classification (Counters.Outcome) is reported
// only through the ingest-run status callback, not as the job's status.
func (h *CrawlHandler) Handle(ctx context.Context, job *queue.Job) (map[string]any, error) {
	req, err := DecodeCrawlRequest(job.Payload)
	if err != nil {
		return nil, &PermanentError{Err: err}
	}

	outcome, err := h.Process(ctx, req)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"job_id":       job.ID,
		"source_id":    req.SourceID,
		"events_found": outcome.Counters.EventsFound(),
		"events_new":   outcome.Counters.Created,
		"counters":     outcome,
	}, nil
}

// Process runs the full pipeline for req: fetch/scrape, optional
// deep-fetch, normalize, in-run dedupe, and (unless DryRun) ingest POST +
// run-status callback. It is shared between the queue handler and the
// synchronous fallback/dry-run HTTP paths, matching §4.14's "the same
// handler is invoked inline in a background task" fallback contract.
func (h *CrawlHandler) Process(ctx context.Context, req CrawlRequest) (CrawlOutcome, error) {
	if req.IngestRunID != "" && !req.DryRun {
		h.deps.Ingest.UpdateIngestRun(ctx, req.IngestRunID, ingest.RunUpdate{Status: ingest.RunRunning})
	}

	parsed, err := h.fetchEvents(ctx, req)
	if err != nil {
		h.reportFailure(ctx, req, err)
		return CrawlOutcome{}, fmt.Errorf("fetch source %s: %w", req.SourceURL, err)
	}

	if req.wantsDeepFetch() && len(parsed) > 0 {
		cfg := h.deepCfg
		cfg.UserAgent = userAgentFor(req)
		deepFetcher := deepfetch.New(h.deps.Client, h.deps.Pipeline, cfg, h.detailSelectors(req), dateFormatsFor(req))
		enriched, stats := deepFetcher.EnrichEvents(ctx, parsed, h.deps.MaxDeepFetches)
		parsed = enriched
		slog.Info("deep-fetch complete",
			slog.String("source_id", req.SourceID),
			slog.Int("needing_fetch", stats.EventsNeedingFetch),
			slog.Int("successful", stats.SuccessfulFetches),
			slog.Int("failed", stats.FailedFetches),
			slog.Int("enriched", stats.EventsEnriched))
		metrics.DeepFetchesTotal.WithLabelValues("success").Add(float64(stats.SuccessfulFetches))
		metrics.DeepFetchesTotal.WithLabelValues("failed").Add(float64(stats.FailedFetches))
	}

	deduper := dedupe.New(func(e event.ParsedEvent) string { return e.Fingerprint })
	parsed = deduper.Dedupe(parsed)

	outcome := CrawlOutcome{}
	extractedAt := time.Now().UTC()

	for _, ev := range parsed {
		normalized := h.normalize.Normalize(ev)
		data, err := normalizedToMap(normalized)
		if err != nil {
			outcome.Counters.Error++
			slog.Warn("flatten normalized event failed", slog.String("title", redact.ForLogging(ev.Title)), slog.String("error", err.Error()))
			continue
		}

		rawHash, err := ingest.HashPayload(data)
		if err != nil {
			outcome.Counters.Error++
			continue
		}

		candidate := ingest.BuildCandidate(sourceTypeLabel(req.SourceType), req.SourceURL, ev.ExternalID, ev.Fingerprint, rawHash, extractedAt, data)
		outcome.Candidates = append(outcome.Candidates, candidate)

		if req.DryRun {
			outcome.Counters.Created++
			continue
		}

		result := h.deps.Ingest.SendEvent(ctx, candidate)
		metrics.EventsIngestedTotal.WithLabelValues(string(result.Action)).Inc()
		switch result.Action {
		case ingest.ActionCreated:
			outcome.Counters.Created++
		case ingest.ActionUpdated:
			outcome.Counters.Updated++
		case ingest.ActionDuplicate:
			outcome.Counters.Duplicate++
		default:
			outcome.Counters.Error++
		}
	}

	if !req.DryRun {
		h.deps.Ingest.UpdateIngestRun(ctx, req.IngestRunID, ingest.RunUpdate{
			Status:        outcome.Counters.Outcome(),
			EventsFound:   outcome.Counters.EventsFound(),
			EventsCreated: outcome.Counters.Created,
			EventsUpdated: outcome.Counters.Updated,
			EventsSkipped: outcome.Counters.Duplicate,
		})
	}

	return outcome, nil
}

func (h *CrawlHandler) reportFailure(ctx context.Context, req CrawlRequest, cause error) {
	if req.DryRun || req.IngestRunID == "" {
		return
	}
	h.deps.Ingest.UpdateIngestRun(ctx, req.IngestRunID, ingest.RunUpdate{
		Status:       ingest.RunFailed,
		ErrorMessage: cause.Error(),
	})
}

// fetchEvents dispatches req to the RSS/ICS feed parser or the polite
// scraper, depending on SourceType, matching §4.14's "invoke the parser or
// scraper matching source_type".
func (h *CrawlHandler) fetchEvents(ctx context.Context, req CrawlRequest) ([]event.ParsedEvent, error) {
	switch req.SourceType {
	case "rss":
		return feed.NewRSSParser(fetch.NewGuardedHTTPClient(15 * time.Second)).Parse(ctx, req.SourceURL)
	case "ics":
		return feed.NewICSParser(fetch.NewGuardedHTTPClient(15 * time.Second)).Parse(ctx, req.SourceURL)
	case "scraper":
		cfg := h.scraperConfigFor(req)
		scraper := scrape.New(h.deps.Client, h.deps.Pipeline)
		results, err := scraper.Run(ctx, cfg, req.EnableAI)
		if err != nil {
			return nil, err
		}
		events := make([]event.ParsedEvent, 0, len(results))
		for _, r := range results {
			parsed := r.Event.ToParsedEvent()
			parsed.Fingerprint = event.Fingerprint(parsed.Title, parsed.StartDatetime, parsed.LocationAddress+parsed.LocationName)
			events = append(events, parsed)
		}
		return events, nil
	default:
		return nil, &PermanentError{Err: fmt.Errorf("unknown source_type %q", req.SourceType)}
	}
}

func (h *CrawlHandler) scraperConfigFor(req CrawlRequest) event.ScraperConfig {
	if req.ScraperConfig != nil {
		cfg := *req.ScraperConfig
		if cfg.URL == "" {
			cfg.URL = req.SourceURL
		}
		return cfg.WithDefaults()
	}
	if entry, ok := h.sources.Get(req.SourceID); ok {
		cfg := entry.Config
		if cfg.URL == "" {
			cfg.URL = req.SourceURL
		}
		return cfg.WithDefaults()
	}
	return event.ScraperConfig{URL: req.SourceURL}.WithDefaults()
}

func (h *CrawlHandler) detailSelectors(req CrawlRequest) map[string]event.FieldSelector {
	if entry, ok := h.sources.Get(req.SourceID); ok {
		return entry.Detail
	}
	return nil
}

func dateFormatsFor(req CrawlRequest) []string {
	if req.ScraperConfig != nil {
		return req.ScraperConfig.DateFormats
	}
	return nil
}

func userAgentFor(req CrawlRequest) string {
	if req.ScraperConfig != nil && req.ScraperConfig.UserAgent != "" {
		return req.ScraperConfig.UserAgent
	}
	return "family-event-crawler/1.0 (+https://example.invalid/bot)"
}

func sourceTypeLabel(sourceType string) string {
	if sourceType == "" {
		return "unknown"
	}
	return sourceType
}

// normalizedToMap flattens a NormalizedEvent into the flat field map the
// CanonicalCandidate contract requires, via a JSON round trip so the
// field names match the NormalizedEvent's json tags exactly.
func normalizedToMap(n event.NormalizedEvent) (map[string]any, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
