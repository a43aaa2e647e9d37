// Package deepfetch implements the Deep-Fetcher (§4.10): selective
// enrichment of a ParsedEvent by fetching its detail page when important
// fields are missing, grounded on
// original_source/ai-worker/src/crawlers/rss_deep_fetch.py's
// SelectiveDeepFetcher.
package deepfetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"eventcrawl/internal/event"
	"eventcrawl/internal/extract"
	"eventcrawl/internal/fetch"
)

// Config mirrors rss_deep_fetch.py's DeepFetchConfig.
type Config struct {
	MinDelayPerDomainMs  int
	MaxConcurrentRequests int
	RequestTimeoutSeconds int

	RequireLocation     bool
	RequireEndDatetime  bool
	RequireImage        bool
	RequirePrice        bool

	MinValidYear    int
	MaxValidYear    int
	MaxDateDriftDays int

	UserAgent string
}

// DefaultConfig matches DeepFetchConfig's dataclass defaults.
func DefaultConfig() Config {
	return Config{
		MinDelayPerDomainMs:   1000,
		MaxConcurrentRequests: 3,
		RequestTimeoutSeconds: 15,
		RequireLocation:       true,
		RequireEndDatetime:    true,
		RequireImage:          true,
		RequirePrice:          false,
		MinValidYear:          2020,
		MaxValidYear:          2030,
		MaxDateDriftDays:      365,
		UserAgent:             "family-event-crawler/1.0 (+https://example.invalid/bot)",
	}
}

// Stats reports a deep-fetch run's outcome, matching DeepFetchStats.
type Stats struct {
	TotalEvents         int
	EventsNeedingFetch  int
	SuccessfulFetches   int
	FailedFetches       int
	EventsEnriched      int
	SkippedNoURL        int
}

// DeepFetcher selectively enriches ParsedEvents via their detail pages.
type DeepFetcher struct {
	client   *fetch.PoliteClient
	pipeline *extract.Pipeline
	config   Config

	// detailSelectors, when non-empty, are tried first for every detail
	// page (a per-source detail_page_config), matching the Python
	// implementation's optional CustomSelectorExtractor pass.
	detailSelectors map[string]event.FieldSelector
	dateFormats     []string
}

// New builds a DeepFetcher sharing client and pipeline with the rest of the
// crawl. detailSelectors may be nil when the source has no detail-page
// config.
func New(client *fetch.PoliteClient, pipeline *extract.Pipeline, cfg Config, detailSelectors map[string]event.FieldSelector, dateFormats []string) *DeepFetcher {
	return &DeepFetcher{
		client:          client,
		pipeline:        pipeline,
		config:          cfg,
		detailSelectors: detailSelectors,
		dateFormats:     dateFormats,
	}
}

// NeedsDeepFetch reports whether ev is missing a field the configured
// requirements say must be present, matching SelectiveDeepFetcher.needs_deep_fetch.
func (d *DeepFetcher) NeedsDeepFetch(ev event.ParsedEvent) bool {
	if !hasHTTPPrefix(ev.SourceURL) {
		return false
	}
	if ev.DeepFetched {
		return false
	}

	if d.config.RequireLocation {
		if ev.LocationAddress == "" || len(ev.LocationAddress) < 15 {
			return true
		}
	}
	if d.config.RequireEndDatetime && ev.EndDatetime == nil {
		return true
	}
	if d.config.RequireImage && ev.ImageURL == "" {
		return true
	}
	if d.config.RequirePrice && ev.Price == nil {
		return true
	}
	return false
}

func hasHTTPPrefix(s string) bool {
	return len(s) >= 4 && (s[:4] == "http")
}

// FetchAndExtract fetches url and runs custom-selector (if configured) and
// structured-data extraction (JSON-LD, microdata, heuristic), merging the
// two the way custom_results_to_extracted_event + _merge_extracted do:
// custom wins where non-empty, og:image is a final image-only fallback.
func (d *DeepFetcher) FetchAndExtract(ctx context.Context, url string) (*event.ExtractedEvent, error) {
	timeout := time.Duration(d.config.RequestTimeoutSeconds) * time.Second
	page, err := d.client.Get(ctx, url, fetch.Options{
		UserAgent:     d.config.UserAgent,
		RespectRobots: true,
		RateLimitMs:   d.config.MinDelayPerDomainMs,
		Timeout:       timeout,
	})
	if err != nil || page == nil || page.Doc == nil {
		return nil, err
	}

	fieldsNeeded := []string{
		"title", "description", "start_datetime", "end_datetime",
		"location_name", "location_address", "image_url",
		"organizer_name", "price", "currency",
	}

	results, _, err := d.pipeline.Run(ctx, page.Doc, d.detailSelectors, d.dateFormats, url, fieldsNeeded, false)
	if err != nil {
		return nil, err
	}
	if results["title"].Value == "" {
		return nil, nil
	}

	extracted := extract.ToExtractedEvent(results, url)

	if extracted.ImageURL == "" {
		if og, ok := page.Doc.Find(`meta[property="og:image"]`).Attr("content"); ok && og != "" {
			extracted.ImageURL = og
		}
	}

	return &extracted, nil
}

// validateExtractedDate rejects a date outside the configured valid year
// range, or too far from the original (RSS) date, matching
// validate_extracted_date.
func (d *DeepFetcher) validateExtractedDate(extracted, original *time.Time) bool {
	if extracted == nil {
		return false
	}
	year := extracted.Year()
	if year < d.config.MinValidYear || year > d.config.MaxValidYear {
		return false
	}
	if original != nil {
		drift := extracted.Sub(*original)
		if drift < 0 {
			drift = -drift
		}
		if int(drift.Hours()/24) > d.config.MaxDateDriftDays {
			return false
		}
	}
	return true
}

// MergeExtractedData merges extracted into ev following merge_extracted_data's
// fill-only-if-missing rules, always setting DeepFetched=true.
func (d *DeepFetcher) MergeExtractedData(ev event.ParsedEvent, extracted event.ExtractedEvent) event.ParsedEvent {
	if extracted.Description != "" && (ev.Description == "" || len(ev.Description) < 50) {
		desc := extracted.Description
		if len(desc) > 5000 {
			desc = desc[:5000]
		}
		ev.Description = desc
	}

	if extracted.StartDatetime != nil && d.validateExtractedDate(extracted.StartDatetime, ev.StartDatetime) {
		ev.StartDatetime = extracted.StartDatetime
	}

	if ev.EndDatetime == nil && extracted.EndDatetime != nil && d.validateExtractedDate(extracted.EndDatetime, ev.StartDatetime) {
		ev.EndDatetime = extracted.EndDatetime
	}

	if extracted.LocationAddress != "" && (ev.LocationAddress == "" || len(ev.LocationAddress) < 15) {
		if extracted.LocationName != "" && !containsSubstr(extracted.LocationAddress, extracted.LocationName) {
			ev.LocationAddress = extracted.LocationName + ", " + extracted.LocationAddress
		} else {
			ev.LocationAddress = extracted.LocationAddress
		}
	}

	if ev.LocationName == "" && extracted.LocationName != "" {
		ev.LocationName = extracted.LocationName
	}

	if ev.Lat == nil && extracted.Lat != nil {
		ev.Lat = extracted.Lat
	}
	if ev.Lng == nil && extracted.Lng != nil {
		ev.Lng = extracted.Lng
	}

	if ev.ImageURL == "" && extracted.ImageURL != "" {
		ev.ImageURL = extracted.ImageURL
	}

	if ev.Price == nil && extracted.Price != nil {
		ev.Price = extracted.Price
		if extracted.Currency != "" {
			ev.Currency = extracted.Currency
		} else {
			ev.Currency = "EUR"
		}
	}

	if ev.OrganizerName == "" && extracted.OrganizerName != "" {
		ev.OrganizerName = extracted.OrganizerName
	}

	ev.DeepFetched = true
	return ev
}

func containsSubstr(haystack, needle string) bool {
	return len(needle) > 0 && len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

// EnrichEvents fetches detail pages for every event NeedsDeepFetch selects,
// bounded by MaxConcurrentRequests via a golang.org/x/sync/semaphore
// weighted semaphore, and merges results back in place — matching
// enrich_events' asyncio.Semaphore + asyncio.gather shape translated to
// goroutines + sync.WaitGroup. maxFetches<=0 means unlimited.
func (d *DeepFetcher) EnrichEvents(ctx context.Context, events []event.ParsedEvent, maxFetches int) ([]event.ParsedEvent, Stats) {
	stats := Stats{TotalEvents: len(events)}

	type pending struct {
		idx int
		ev  event.ParsedEvent
	}
	var toFetch []pending
	for i, ev := range events {
		if ev.SourceURL == "" {
			stats.SkippedNoURL++
			continue
		}
		if d.NeedsDeepFetch(ev) {
			toFetch = append(toFetch, pending{idx: i, ev: ev})
		}
	}
	stats.EventsNeedingFetch = len(toFetch)

	if len(toFetch) == 0 {
		return events, stats
	}
	if maxFetches > 0 && len(toFetch) > maxFetches {
		slog.Info("limiting deep-fetch", slog.Int("requested", len(toFetch)), slog.Int("limit", maxFetches))
		toFetch = toFetch[:maxFetches]
	}

	maxConcurrent := int64(d.config.MaxConcurrentRequests)
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	sem := semaphore.NewWeighted(maxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, p := range toFetch {
		if err := sem.Acquire(ctx, 1); err != nil {
			// ctx canceled while waiting for a slot; the remaining
			// pending fetches are simply not attempted.
			break
		}
		wg.Add(1)
		go func(p pending) {
			defer wg.Done()
			defer sem.Release(1)

			extracted, err := d.FetchAndExtract(ctx, p.ev.SourceURL)

			mu.Lock()
			defer mu.Unlock()
			if err != nil || extracted == nil {
				if err != nil {
					slog.Debug("deep-fetch failed", slog.String("url", p.ev.SourceURL), slog.String("error", err.Error()))
				}
				stats.FailedFetches++
				return
			}
			stats.SuccessfulFetches++
			events[p.idx] = d.MergeExtractedData(events[p.idx], *extracted)
			stats.EventsEnriched++
		}(p)
	}
	wg.Wait()

	return events, stats
}
