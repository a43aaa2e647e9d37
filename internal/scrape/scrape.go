// Package scrape implements the Polite Scraper: orchestration for a single
// configured HTML source, tying the fetch client, sitemap walker, and
// extraction pipeline together into the sequence described for §4.9,
// grounded on raito's internal/crawler/map.go + internal/scraper/scraper.go
// shape, enriched with the resilience wrapping in internal/fetch.
package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"eventcrawl/internal/dedupe"
	"eventcrawl/internal/event"
	"eventcrawl/internal/extract"
	"eventcrawl/internal/fetch"
	"eventcrawl/internal/sitemap"
)

// Scraper runs a ScraperConfig end to end: robots-aware rate-limit
// resolution, sitemap-mode or direct-fetch-with-strategy-fallback mode, and
// extraction-pipeline composition.
type Scraper struct {
	client   *fetch.PoliteClient
	pipeline *extract.Pipeline
}

// New builds a Scraper sharing a single PoliteClient (and therefore a
// single per-domain rate limiter and robots cache) and a single extraction
// Pipeline across every call.
func New(client *fetch.PoliteClient, pipeline *extract.Pipeline) *Scraper {
	return &Scraper{client: client, pipeline: pipeline}
}

// Result is one page's outcome: the built event plus the extraction method
// string and per-field provenance, passed straight through from the
// pipeline so callers (the worker, the /crawl/single-event handler) can
// report it.
type Result struct {
	Event            event.ExtractedEvent
	ExtractionMethod string
	FieldProvenance  map[string]event.ExtractionResult
	SourceURL        string
}

// Run scrapes cfg's configured source, returning one Result per event page
// found. useAI gates the AI fallback extraction stage.
func (s *Scraper) Run(ctx context.Context, cfg event.ScraperConfig, useAI bool) ([]Result, error) {
	cfg = cfg.WithDefaults()

	rateLimitMs := cfg.RateLimitMs
	if cfg.RespectRobots {
		if _, crawlDelay, err := (fetch.NewRobotsChecker()).CanFetch(ctx, cfg.URL, cfg.UserAgent); err == nil {
			if ms := int(crawlDelay.Milliseconds()); ms > rateLimitMs {
				rateLimitMs = ms
			}
		}
	}

	opts := fetch.Options{
		UserAgent:     cfg.UserAgent,
		RespectRobots: cfg.RespectRobots,
		RateLimitMs:   rateLimitMs,
		MaxRetries:    cfg.MaxRetries,
		Timeout:       time.Duration(cfg.TimeoutSeconds) * time.Second,
	}

	if cfg.UseSitemap {
		return s.runSitemapMode(ctx, cfg, opts, useAI)
	}
	return s.runDirectMode(ctx, cfg, opts, useAI)
}

// runSitemapMode obtains event-like URLs via the Sitemap Walker, then
// scrapes each page with structured-data extraction only (no custom
// selectors, no heuristic, no AI), deduplicating by fingerprint in the same
// pass, per §4.9 step 2.
func (s *Scraper) runSitemapMode(ctx context.Context, cfg event.ScraperConfig, opts fetch.Options, useAI bool) ([]Result, error) {
	fetcher := fetch.SitemapFetcher{Client: s.client}

	urls, err := sitemap.Walk(ctx, fetcher, cfg.URL, sitemap.WalkOptions{
		FilterEventLike: true,
		MaxURLs:         cfg.MaxSitemapURLs,
	})
	if err != nil {
		return nil, fmt.Errorf("sitemap walk: %w", err)
	}

	deduper := dedupe.New(func(r Result) string {
		return event.Fingerprint(r.Event.Title, r.Event.StartDatetime, r.Event.LocationAddress+r.Event.LocationName)
	})

	structured := extract.NewStructuredStage()
	var results []Result
	for _, u := range urls {
		page, err := s.client.Get(ctx, u, opts)
		if err != nil {
			slog.Warn("sitemap page fetch failed", slog.String("url", u), slog.String("error", err.Error()))
			continue
		}
		if page == nil || page.Doc == nil {
			continue
		}

		fields := structured.ExtractJSONLD(page.Doc)
		if len(fields) == 0 {
			fields = structured.ExtractMicrodata(page.Doc)
		}
		if fields["title"].Value == "" {
			continue
		}

		results = append(results, Result{
			Event:            extract.ToExtractedEvent(fields, u),
			ExtractionMethod: "structured",
			FieldProvenance:  fields,
			SourceURL:        u,
		})
	}

	return deduper.Dedupe(results), nil
}

// runDirectMode fetches the configured URL once and applies extraction
// strategies in configured order: jsonld/microdata first (return on first
// hit), else fall back to CSS selectors, per §4.9 step 3.
func (s *Scraper) runDirectMode(ctx context.Context, cfg event.ScraperConfig, opts fetch.Options, useAI bool) ([]Result, error) {
	page, err := s.client.Get(ctx, cfg.URL, opts)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", cfg.URL, err)
	}
	if page == nil || page.Doc == nil {
		return nil, nil
	}

	strategies := cfg.Strategies
	if len(strategies) == 0 {
		strategies = []event.Strategy{event.StrategyJSONLD, event.StrategyMicrodata, event.StrategyCSS}
	}

	var fields map[string]event.ExtractionResult
	var method string
	structured := extract.NewStructuredStage()

strategyLoop:
	for _, strat := range strategies {
		switch strat {
		case event.StrategyJSONLD:
			if jsonld := structured.ExtractJSONLD(page.Doc); len(jsonld) > 0 {
				fields, method = jsonld, "structured"
				break strategyLoop
			}
		case event.StrategyMicrodata:
			if micro := structured.ExtractMicrodata(page.Doc); len(micro) > 0 {
				fields, method = micro, "structured"
				break strategyLoop
			}
		case event.StrategyCSS:
			css, m, err := s.pipeline.Run(ctx, page.Doc, cfg.Selectors, cfg.DateFormats, cfg.URL, nil, useAI)
			if err != nil {
				return nil, fmt.Errorf("extract %s: %w", cfg.URL, err)
			}
			if len(css) > 0 {
				fields, method = css, m
				break strategyLoop
			}
		}
	}

	if len(fields) == 0 {
		return nil, nil
	}
	if fields["title"].Value == "" {
		return nil, nil
	}

	return []Result{{
		Event:            extract.ToExtractedEvent(fields, cfg.URL),
		ExtractionMethod: method,
		FieldProvenance:  fields,
		SourceURL:        cfg.URL,
	}}, nil
}

func hasStrategy(strategies []event.Strategy, want event.Strategy) bool {
	for _, s := range strategies {
		if s == want {
			return true
		}
	}
	return false
}
