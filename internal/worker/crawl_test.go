package worker

import (
	"testing"

	"eventcrawl/internal/event"
)

func TestDecodeCrawlRequestRoundTrips(t *testing.T) {
	payload := map[string]any{
		"source_id":   "stadtjena",
		"source_url":  "https://example.org/feed.xml",
		"source_type": "rss",
		"force":       true,
	}

	req, err := DecodeCrawlRequest(payload)
	if err != nil {
		t.Fatalf("DecodeCrawlRequest error: %v", err)
	}
	if req.SourceID != "stadtjena" {
		t.Errorf("SourceID = %q", req.SourceID)
	}
	if req.SourceType != "rss" {
		t.Errorf("SourceType = %q", req.SourceType)
	}
	if !req.Force {
		t.Error("expected Force true")
	}
}

func TestCrawlRequestWantsDeepFetchDefaultsTrue(t *testing.T) {
	req := CrawlRequest{}
	if !req.wantsDeepFetch() {
		t.Error("expected wantsDeepFetch() true when FetchEventPages is unset")
	}

	no := false
	req.FetchEventPages = &no
	if req.wantsDeepFetch() {
		t.Error("expected wantsDeepFetch() false when FetchEventPages=false")
	}

	yes := true
	req.FetchEventPages = &yes
	if !req.wantsDeepFetch() {
		t.Error("expected wantsDeepFetch() true when FetchEventPages=true")
	}
}

func TestSourceTypeLabel(t *testing.T) {
	if got := sourceTypeLabel(""); got != "unknown" {
		t.Errorf("sourceTypeLabel(\"\") = %q, want unknown", got)
	}
	if got := sourceTypeLabel("ics"); got != "ics" {
		t.Errorf("sourceTypeLabel(ics) = %q, want ics", got)
	}
}

func TestUserAgentForDefaultsWhenUnset(t *testing.T) {
	req := CrawlRequest{}
	if got := userAgentFor(req); got == "" {
		t.Error("expected a non-empty default user agent")
	}

	req.ScraperConfig = &event.ScraperConfig{UserAgent: "custom-bot/1.0"}
	if got := userAgentFor(req); got != "custom-bot/1.0" {
		t.Errorf("userAgentFor = %q, want custom-bot/1.0", got)
	}
}

func TestDateFormatsForUsesScraperConfig(t *testing.T) {
	req := CrawlRequest{}
	if got := dateFormatsFor(req); got != nil {
		t.Errorf("expected nil date formats with no scraper config, got %v", got)
	}

	req.ScraperConfig = &event.ScraperConfig{DateFormats: []string{"2006-01-02"}}
	got := dateFormatsFor(req)
	if len(got) != 1 || got[0] != "2006-01-02" {
		t.Errorf("dateFormatsFor = %v", got)
	}
}

func TestNormalizedToMapFlattensJSONFields(t *testing.T) {
	n := event.NormalizedEvent{Title: "Stadtfest", City: "Jena"}

	m, err := normalizedToMap(n)
	if err != nil {
		t.Fatalf("normalizedToMap error: %v", err)
	}
	if m["title"] != "Stadtfest" {
		t.Errorf("title = %v, want Stadtfest", m["title"])
	}
	if m["city"] != "Jena" {
		t.Errorf("city = %v, want Jena", m["city"])
	}
}
