package extract

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"eventcrawl/internal/event"
)

// Pipeline runs the extraction stages in strict precedence order —
// custom_selector, jsonld, microdata, heuristic, ai — folding each stage's
// results into an accumulator and never overwriting a field a
// higher-precedence stage already filled, matching the "fold that
// accumulates results and subtracts already-filled fields from the needs
// set" design.
type Pipeline struct {
	structured *StructuredStage
	selector   *SelectorStage
	ai         *AIStage
}

// NewPipeline wires the four in-process stages together. ai may be a
// disabled *AIStage (see NewAIStage) — Extract treats it the same as a nil
// result either way.
func NewPipeline(ai *AIStage) *Pipeline {
	return &Pipeline{
		structured: NewStructuredStage(),
		selector:   NewSelectorStage(),
		ai:         ai,
	}
}

// DefaultFields is the full set of fields the pipeline will try to fill when
// the caller does not constrain it, matching the field set every extraction
// stage in this package knows how to produce.
var DefaultFields = []string{
	"title", "description", "start_datetime", "end_datetime",
	"location_name", "location_address", "lat", "lng",
	"price", "currency", "organizer_name", "image_url", "url",
}

// Run executes the pipeline against a parsed page. selectors may be nil or
// empty when the source has no ScraperConfig; dateFormats/baseURL are passed
// through to the custom-selector stage. fieldsNeeded narrows which fields
// are requested; pass nil for DefaultFields. useAI gates the final AI
// fallback stage independently of whether the stage itself is enabled,
// since a caller (e.g. a dry-run sitemap scrape) may want to skip AI cost
// even when a provider is configured.
func (p *Pipeline) Run(ctx context.Context, doc *goquery.Document, selectors map[string]event.FieldSelector, dateFormats []string, baseURL string, fieldsNeeded []string, useAI bool) (map[string]event.ExtractionResult, string, error) {
	if len(fieldsNeeded) == 0 {
		fieldsNeeded = DefaultFields
	}

	results := map[string]event.ExtractionResult{}
	var methods []string

	needed := func() []string {
		var remaining []string
		for _, f := range fieldsNeeded {
			if _, ok := results[f]; !ok {
				remaining = append(remaining, f)
			}
		}
		return remaining
	}

	if len(selectors) > 0 {
		if sel := p.selector.Extract(doc, selectors, dateFormats, needed(), baseURL); len(sel) > 0 {
			fold(results, sel)
			methods = append(methods, "custom_selector")
		}
	}

	if remaining := needed(); len(remaining) > 0 {
		if jsonld := p.structured.ExtractJSONLD(doc); len(jsonld) > 0 {
			fold(results, jsonld)
			methods = append(methods, "structured")
		}
	}

	if remaining := needed(); len(remaining) > 0 {
		if micro := p.structured.ExtractMicrodata(doc); len(micro) > 0 {
			fold(results, micro)
			if !containsStr(methods, "structured") {
				methods = append(methods, "structured")
			}
		}
	}

	if remaining := needed(); len(remaining) > 0 {
		heurFields := remaining
		if containsStr(remaining, "image_url") {
			heurFields = append(append([]string{}, remaining...), "image")
		}
		if heur := Heuristic(doc, heurFields); len(heur) > 0 {
			if img, ok := heur["image"]; ok {
				if _, taken := heur["image_url"]; !taken {
					heur["image_url"] = img
				}
				delete(heur, "image")
			}
			fold(results, heur)
			methods = append(methods, "heuristic")
		}
	}

	if remaining := needed(); useAI && len(remaining) > 0 && p.ai != nil && p.ai.Enabled() {
		pageText := visibleText(doc)
		aiResults, err := p.ai.Extract(ctx, pageText, remaining)
		if err != nil {
			return results, strings.Join(methods, "+"), err
		}
		if len(aiResults) > 0 {
			fold(results, aiResults)
			methods = append(methods, "ai")
		}
	}

	return results, strings.Join(methods, "+"), nil
}

// fold merges src into dst, keeping dst's existing value for any field
// already present (a higher-precedence stage ran earlier in Run) and
// otherwise taking src's value if non-empty.
func fold(dst, src map[string]event.ExtractionResult) {
	for field, result := range src {
		if result.Value == "" {
			continue
		}
		if existing, ok := dst[field]; ok && existing.Value != "" {
			continue
		}
		dst[field] = result
	}
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ToExtractedEvent flattens a field→ExtractionResult map into an
// event.ExtractedEvent, the shape the polite scraper and deep-fetcher build
// ParsedEvents from.
func ToExtractedEvent(results map[string]event.ExtractionResult, sourceURL string) event.ExtractedEvent {
	get := func(field string) string {
		return results[field].Value
	}

	ev := event.ExtractedEvent{
		Title:           get("title"),
		Description:     get("description"),
		LocationName:    get("location_name"),
		LocationAddress: get("location_address"),
		OrganizerName:   get("organizer_name"),
		ImageURL:        get("image_url"),
		Currency:        get("currency"),
		SourceURL:       sourceURL,
	}

	if v := get("start_datetime"); v != "" {
		if t := ParseJSONLDTime(v); t != nil {
			ev.StartDatetime = t
		}
	}
	if v := get("end_datetime"); v != "" {
		if t := ParseJSONLDTime(v); t != nil {
			ev.EndDatetime = t
		}
	}
	if v := get("lat"); v != "" {
		if f, ok := parseFloatOrNil(v); ok {
			ev.Lat = f
		}
	}
	if v := get("lng"); v != "" {
		if f, ok := parseFloatOrNil(v); ok {
			ev.Lng = f
		}
	}
	if v := get("price"); v != "" {
		if f, ok := parseFloatOrNil(v); ok {
			ev.Price = f
		}
	}

	return ev
}

func parseFloatOrNil(s string) (*float64, bool) {
	f := floatField(map[string]any{"v": s}, "v")
	return f, f != nil
}
