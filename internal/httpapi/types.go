package httpapi

import "eventcrawl/internal/event"

// CrawlTriggerRequest is the body of POST /crawl/trigger, matching §6.
type CrawlTriggerRequest struct {
	SourceID        string               `json:"source_id"`
	SourceURL       string               `json:"source_url"`
	SourceType      string               `json:"source_type"`
	ScraperConfig   *event.ScraperConfig `json:"scraper_config,omitempty"`
	Force           bool                 `json:"force,omitempty"`
	DryRun          bool                 `json:"dry_run,omitempty"`
	EnableAI        bool                 `json:"enable_ai,omitempty"`
	FetchEventPages *bool                `json:"fetch_event_pages,omitempty"`
	IngestRunID     string               `json:"ingest_run_id,omitempty"`
}

// CrawlTriggerResponse is the response of POST /crawl/trigger.
type CrawlTriggerResponse struct {
	JobID      string                     `json:"job_id,omitempty"`
	SourceID   string                     `json:"source_id,omitempty"`
	Status     string                     `json:"status"`
	Message    string                     `json:"message,omitempty"`
	Candidates []event.CanonicalCandidate `json:"candidates,omitempty"`
	Counters   map[string]int             `json:"counters,omitempty"`
}

// CrawlStatusResponse is the response of GET /crawl/status/{job_id}.
type CrawlStatusResponse struct {
	JobID       string `json:"job_id"`
	SourceID    string `json:"source_id,omitempty"`
	Status      string `json:"status"`
	StartedAt   string `json:"started_at,omitempty"`
	FinishedAt  string `json:"finished_at,omitempty"`
	EventsFound int    `json:"events_found,omitempty"`
	EventsNew   int    `json:"events_new,omitempty"`
	Error       string `json:"error,omitempty"`
}

// DetectRequest is the body of POST /crawl/detect.
type DetectRequest struct {
	URL string `json:"url"`
}

// DetectResponse is the response of POST /crawl/detect, matching §6.
type DetectResponse struct {
	DetectedType       string                 `json:"detected_type"`
	RSSURL             string                 `json:"rss_url,omitempty"`
	ICSURL             string                 `json:"ics_url,omitempty"`
	HasJSONLDEvents    bool                   `json:"has_json_ld_events"`
	HasMicrodataEvents bool                   `json:"has_microdata_events"`
	SampleEvents       []event.ExtractedEvent `json:"sample_events,omitempty"`
	Recommendation     string                 `json:"recommendation"`
	SitemapURL         string                 `json:"sitemap_url,omitempty"`
}

// SingleEventRequest is the body of POST /crawl/single-event.
type SingleEventRequest struct {
	URL              string                         `json:"url"`
	FieldsNeeded     []string                       `json:"fields_needed,omitempty"`
	UseAI            bool                           `json:"use_ai,omitempty"`
	DetailPageConfig map[string]event.FieldSelector `json:"detail_page_config,omitempty"`
	SourceID         string                         `json:"source_id,omitempty"`
}

// SingleEventResponse is the response of POST /crawl/single-event, matching
// §6: `extraction_method` is a `+`-joined subset of
// `{custom_selector, structured, heuristic, ai}` and
// `field_provenance.keys() == fields_found.keys()`.
type SingleEventResponse struct {
	Success            bool                              `json:"success"`
	FieldsFound        map[string]string                 `json:"fields_found"`
	FieldsMissing      []string                           `json:"fields_missing"`
	ExtractionMethod   string                             `json:"extraction_method,omitempty"`
	FieldProvenance    map[string]event.ExtractionResult  `json:"field_provenance"`
	SuggestedSelectors map[string]event.FieldSelector     `json:"suggested_selectors,omitempty"`
	Error              string                             `json:"error,omitempty"`
}

// ErrorResponse is the generic machine-code error body used across the
// inbound HTTP surface, grounded on raito's ErrorResponse{Success, Code,
// Error} shape.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}
