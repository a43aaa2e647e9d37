package feed

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"eventcrawl/internal/circuitbreaker"
	"eventcrawl/internal/event"
	"eventcrawl/internal/retry"

	ics "github.com/arran4/golang-ical"
)

// ICSParser parses iCalendar (.ics) feeds into ParsedEvents.
type ICSParser struct {
	client         *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

// NewICSParser builds an ICSParser using client for transport.
func NewICSParser(client *http.Client) *ICSParser {
	return &ICSParser{
		client:         client,
		circuitBreaker: circuitbreaker.New(circuitbreaker.FeedFetchConfig()),
		retryConfig:    retry.FeedFetchConfig(),
	}
}

// Parse fetches and parses the ICS calendar at feedURL, returning one
// ParsedEvent per VEVENT component with a non-empty SUMMARY.
func (p *ICSParser) Parse(ctx context.Context, feedURL string) ([]event.ParsedEvent, error) {
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

func (p *ICSParser) doParse(ctx context.Context, feedURL string) ([]event.ParsedEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "family-event-crawler/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &retry.HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("fetching %s", feedURL)}
	}

	cal, err := ics.ParseCalendar(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("parsing ics calendar: %w", err)
	}

	var events []event.ParsedEvent
	for _, comp := range cal.Events() {
		parsed := parseVEvent(comp, feedURL)
		if parsed != nil {
			events = append(events, *parsed)
		}
	}
	return events, nil
}

func propValue(comp *ics.VEvent, prop ics.ComponentProperty) string {
	p := comp.GetProperty(prop)
	if p == nil {
		return ""
	}
	return p.Value
}

// icsTimeLayouts covers the DATE-TIME and DATE value types ICS allows for
// DTSTART/DTEND: UTC ("Z" suffix), floating local time, and date-only.
var icsTimeLayouts = []string{
	"20060102T150405Z",
	"20060102T150405",
	"20060102",
}

func parseICSTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range icsTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

func parseVEvent(comp *ics.VEvent, sourceURL string) *event.ParsedEvent {
	title := strings.TrimSpace(propValue(comp, ics.ComponentPropertySummary))
	if title == "" {
		return nil
	}
	if len(title) > 200 {
		title = title[:200]
	}

	start := parseICSTime(propValue(comp, ics.ComponentPropertyDtStart))
	end := parseICSTime(propValue(comp, ics.ComponentPropertyDtEnd))

	description := strings.TrimSpace(propValue(comp, ics.ComponentPropertyDescription))
	if len(description) > 5000 {
		description = description[:5000]
	}

	location := strings.TrimSpace(propValue(comp, ics.ComponentPropertyLocation))
	if len(location) > 300 {
		location = location[:300]
	}

	link := strings.TrimSpace(propValue(comp, ics.ComponentPropertyUrl))
	if link == "" {
		link = sourceURL
	}
	if len(link) > 500 {
		link = link[:500]
	}

	uid := strings.TrimSpace(propValue(comp, ics.ComponentPropertyUniqueId))
	externalID := uid
	if externalID == "" {
		key := title
		if start != nil {
			key += start.String()
		}
		sum := md5.Sum([]byte(key))
		externalID = hex.EncodeToString(sum[:])
	}
	if len(externalID) > 255 {
		externalID = externalID[:255]
	}

	raw := map[string]any{
		"uid":         uid,
		"summary":     title,
		"description": description,
		"location":    location,
	}
	if start != nil {
		raw["dtstart"] = start.Format(time.RFC3339)
	}
	if end != nil {
		raw["dtend"] = end.Format(time.RFC3339)
	}

	fingerprint := event.Fingerprint(title, start, location)

	return &event.ParsedEvent{
		ExternalID:      externalID,
		Fingerprint:     fingerprint,
		Title:           title,
		Description:     description,
		StartDatetime:   start,
		EndDatetime:     end,
		LocationAddress: location,
		SourceURL:       link,
		RawData:         raw,
	}
}
