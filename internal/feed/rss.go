// Package feed parses RSS/Atom and ICS calendar feeds into ParsedEvents.
package feed

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"regexp"
	"strings"
	"time"

	"eventcrawl/internal/circuitbreaker"
	"eventcrawl/internal/event"
	"eventcrawl/internal/retry"

	"github.com/mmcdole/gofeed"
)

// RSSParser parses RSS/Atom feeds with gofeed, wrapped in retry and circuit
// breaker logic for transient network failures.
type RSSParser struct {
	client         *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

// NewRSSParser builds an RSSParser using client for transport.
func NewRSSParser(client *http.Client) *RSSParser {
	return &RSSParser{
		client:         client,
		circuitBreaker: circuitbreaker.New(circuitbreaker.FeedFetchConfig()),
		retryConfig:    retry.FeedFetchConfig(),
	}
}

// Parse fetches and parses the RSS/Atom feed at feedURL, returning one
// ParsedEvent per entry with a non-empty title.
func (p *RSSParser) Parse(ctx context.Context, feedURL string) ([]event.ParsedEvent, error) {
	var items []event.ParsedEvent

	retryErr := retry.WithBackoff(ctx, p.retryConfig, func() error {
		result, err := p.circuitBreaker.Execute(func() (interface{}, error) {
			return p.doParse(ctx, feedURL)
		})
		if err != nil {
			return err
		}
		items = result.([]event.ParsedEvent)
		return nil
	})
	if retryErr != nil {
		return nil, retryErr
	}

	return items, nil
}

func (p *RSSParser) doParse(ctx context.Context, feedURL string) ([]event.ParsedEvent, error) {
	fp := gofeed.NewParser()
	fp.UserAgent = "family-event-crawler/1.0"
	fp.Client = p.client

	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	events := make([]event.ParsedEvent, 0, len(feed.Items))
	for _, entry := range feed.Items {
		parsed := parseEntry(entry, feedURL)
		if parsed != nil {
			events = append(events, *parsed)
		}
	}
	return events, nil
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

func stripHTML(s string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(s, ""))
}

func parseEntry(entry *gofeed.Item, sourceURL string) *event.ParsedEvent {
	title := strings.TrimSpace(entry.Title)
	if title == "" {
		return nil
	}
	if len(title) > 200 {
		title = title[:200]
	}

	var start *time.Time
	if entry.PublishedParsed != nil {
		start = entry.PublishedParsed
	} else if entry.UpdatedParsed != nil {
		start = entry.UpdatedParsed
	}

	description := entry.Description
	if entry.Content != "" {
		description = entry.Content
	}
	description = stripHTML(description)
	if len(description) > 5000 {
		description = description[:5000]
	}

	externalID := entry.GUID
	if externalID == "" {
		externalID = entry.Link
	}
	if externalID == "" {
		sum := md5.Sum([]byte(title))
		externalID = hex.EncodeToString(sum[:])
	}
	if len(externalID) > 255 {
		externalID = externalID[:255]
	}

	link := entry.Link
	if link == "" {
		link = sourceURL
	}
	if len(link) > 500 {
		link = link[:500]
	}

	raw := map[string]any{
		"title":       entry.Title,
		"link":        entry.Link,
		"guid":        entry.GUID,
		"description": entry.Description,
	}
	if entry.PublishedParsed != nil {
		raw["published"] = entry.Published
	}

	fingerprint := event.Fingerprint(title, start, "")

	return &event.ParsedEvent{
		ExternalID:      externalID,
		Fingerprint:     fingerprint,
		Title:           title,
		Description:     description,
		StartDatetime:   start,
		LocationAddress: "",
		SourceURL:       link,
		RawData:         raw,
	}
}
