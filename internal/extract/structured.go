package extract

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"eventcrawl/internal/event"
)

// eventTypes lists the schema.org types recognized as events, matching
// structured_data.py's EVENT_TYPES.
var eventTypes = map[string]bool{
	"Event":            true,
	"SocialEvent":      true,
	"ChildrensEvent":   true,
	"MusicEvent":       true,
	"TheaterEvent":     true,
	"SportsEvent":      true,
	"ExhibitionEvent":  true,
	"Festival":         true,
	"CourseInstance":   true,
	"EventSeries":      true,
}

// StructuredStage extracts events from JSON-LD and Microdata markup, the
// two highest-priority extraction stages after the custom selector config.
type StructuredStage struct{}

// NewStructuredStage returns a ready-to-use StructuredStage.
func NewStructuredStage() *StructuredStage { return &StructuredStage{} }

// ExtractJSONLD parses every `<script type="application/ld+json">` block in
// doc and returns the first recognized schema.org Event object found,
// dispatching through @graph containers, top-level arrays, and ItemList
// itemListElement wrappers the way Togather's scraper package does for raw
// JSON-LD collection.
func (s *StructuredStage) ExtractJSONLD(doc *goquery.Document) map[string]event.ExtractionResult {
	var found map[string]any

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw := strings.TrimSpace(sel.Text())
		if raw == "" {
			return true
		}
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return true
		}
		if ev := findJSONLDEvent(data); ev != nil {
			found = ev
			return false
		}
		return true
	})

	if found == nil {
		return nil
	}
	return jsonldToResults(found)
}

func findJSONLDEvent(data any) map[string]any {
	switch v := data.(type) {
	case map[string]any:
		if graph, ok := v["@graph"]; ok {
			if arr, ok := graph.([]any); ok {
				for _, item := range arr {
					if ev := findJSONLDEvent(item); ev != nil {
						return ev
					}
				}
			}
			return nil
		}
		if itemType(v) == "ItemList" {
			if elems, ok := v["itemListElement"].([]any); ok {
				for _, elem := range elems {
					em, ok := elem.(map[string]any)
					if !ok {
						continue
					}
					if item, ok := em["item"]; ok {
						if ev := findJSONLDEvent(item); ev != nil {
							return ev
						}
					}
				}
			}
			return nil
		}
		if eventTypes[itemType(v)] {
			return v
		}
		return nil
	case []any:
		for _, item := range v {
			if ev := findJSONLDEvent(item); ev != nil {
				return ev
			}
		}
		return nil
	default:
		return nil
	}
}

func itemType(v map[string]any) string {
	t, ok := v["@type"]
	if !ok {
		return ""
	}
	switch tv := t.(type) {
	case string:
		return tv
	case []any:
		if len(tv) > 0 {
			if s, ok := tv[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// jsonldToResults maps a single parsed JSON-LD Event object onto the shared
// ExtractionResult map, following structured_data.py's _parse_jsonld_event
// field rules (location as string or PostalAddress, offers as object or
// first-of-array, organizer/image string-or-object).
func jsonldToResults(data map[string]any) map[string]event.ExtractionResult {
	results := map[string]event.ExtractionResult{}

	title := stringField(data, "name")
	if title == "" {
		title = stringField(data, "headline")
	}
	if title == "" {
		return nil
	}
	set(results, "title", title, "jsonld", "name")

	if desc := stringField(data, "description"); desc != "" {
		set(results, "description", desc, "jsonld", "description")
	}
	if start := stringField(data, "startDate"); start != "" {
		set(results, "start_datetime", start, "jsonld", "startDate")
	}
	if end := stringField(data, "endDate"); end != "" {
		set(results, "end_datetime", end, "jsonld", "endDate")
	}
	if url := stringField(data, "url"); url != "" {
		set(results, "url", url, "jsonld", "url")
	}

	if loc, ok := data["location"]; ok {
		switch l := loc.(type) {
		case string:
			set(results, "location_address", l, "jsonld", "location")
		case map[string]any:
			if name := stringField(l, "name"); name != "" {
				set(results, "location_name", name, "jsonld", "location.name")
			}
			if addr, ok := l["address"]; ok {
				switch a := addr.(type) {
				case string:
					set(results, "location_address", a, "jsonld", "location.address")
				case map[string]any:
					parts := []string{
						stringField(a, "streetAddress"),
						stringField(a, "postalCode"),
						stringField(a, "addressLocality"),
					}
					var nonEmpty []string
					for _, p := range parts {
						if p != "" {
							nonEmpty = append(nonEmpty, p)
						}
					}
					if len(nonEmpty) > 0 {
						set(results, "location_address", strings.Join(nonEmpty, ", "), "jsonld", "location.address")
					}
				}
			}
			if geo, ok := l["geo"].(map[string]any); ok {
				if lat := floatField(geo, "latitude"); lat != nil {
					set(results, "lat", strconv.FormatFloat(*lat, 'f', -1, 64), "jsonld", "location.geo.latitude")
				}
				if lng := floatField(geo, "longitude"); lng != nil {
					set(results, "lng", strconv.FormatFloat(*lng, 'f', -1, 64), "jsonld", "location.geo.longitude")
				}
			}
		}
	}

	if offers, ok := data["offers"]; ok {
		var offer map[string]any
		switch o := offers.(type) {
		case map[string]any:
			offer = o
		case []any:
			if len(o) > 0 {
				if m, ok := o[0].(map[string]any); ok {
					offer = m
				}
			}
		}
		if offer != nil {
			if price := floatField(offer, "price"); price != nil {
				set(results, "price", strconv.FormatFloat(*price, 'f', -1, 64), "jsonld", "offers.price")
			}
			currency := stringField(offer, "priceCurrency")
			if currency == "" {
				currency = "EUR"
			}
			set(results, "currency", currency, "jsonld", "offers.priceCurrency")
		}
	}

	if organizer, ok := data["organizer"]; ok {
		switch o := organizer.(type) {
		case string:
			set(results, "organizer_name", o, "jsonld", "organizer")
		case map[string]any:
			if name := stringField(o, "name"); name != "" {
				set(results, "organizer_name", name, "jsonld", "organizer.name")
			}
		}
	}

	if image, ok := data["image"]; ok {
		switch im := image.(type) {
		case string:
			set(results, "image_url", im, "jsonld", "image")
		case map[string]any:
			if url := stringField(im, "url"); url != "" {
				set(results, "image_url", url, "jsonld", "image.url")
			}
		case []any:
			if len(im) > 0 {
				switch first := im[0].(type) {
				case string:
					set(results, "image_url", first, "jsonld", "image[0]")
				case map[string]any:
					if url := stringField(first, "url"); url != "" {
						set(results, "image_url", url, "jsonld", "image[0].url")
					}
				}
			}
		}
	}

	return results
}

// ExtractMicrodata walks elements carrying an itemtype attribute referencing
// a schema.org event type and pulls itemprop children, matching
// structured_data.py's _parse_microdata_event.
func (s *StructuredStage) ExtractMicrodata(doc *goquery.Document) map[string]event.ExtractionResult {
	var found *goquery.Selection

	doc.Find("[itemtype]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		itemtype, _ := sel.Attr("itemtype")
		for t := range eventTypes {
			if strings.Contains(itemtype, "schema.org/"+t) {
				found = sel
				return false
			}
		}
		return true
	})

	if found == nil {
		return nil
	}

	getProp := func(name string) string {
		el := found.Find("[itemprop=\"" + name + "\"]").First()
		if el.Length() == 0 {
			return ""
		}
		if v, ok := el.Attr("content"); ok && v != "" {
			return v
		}
		if v, ok := el.Attr("datetime"); ok && v != "" {
			return v
		}
		return strings.TrimSpace(el.Text())
	}

	title := getProp("name")
	if title == "" {
		return nil
	}

	results := map[string]event.ExtractionResult{}
	set(results, "title", title, "microdata", "itemprop:name")
	if v := getProp("description"); v != "" {
		set(results, "description", v, "microdata", "itemprop:description")
	}
	if v := getProp("startDate"); v != "" {
		set(results, "start_datetime", v, "microdata", "itemprop:startDate")
	}
	if v := getProp("endDate"); v != "" {
		set(results, "end_datetime", v, "microdata", "itemprop:endDate")
	}
	if v := getProp("location"); v != "" {
		set(results, "location_name", v, "microdata", "itemprop:location")
	}
	if v := getProp("address"); v != "" {
		set(results, "location_address", v, "microdata", "itemprop:address")
	}
	if v := getProp("url"); v != "" {
		set(results, "url", v, "microdata", "itemprop:url")
	}
	if v := getProp("image"); v != "" {
		set(results, "image_url", v, "microdata", "itemprop:image")
	}

	return results
}

func set(m map[string]event.ExtractionResult, field, value, source, evidence string) {
	m[field] = event.ExtractionResult{
		Value:      value,
		Confidence: confidenceFor(event.Source(source)),
		Source:     event.Source(source),
		Evidence:   evidence,
	}
}

func confidenceFor(src event.Source) float64 {
	switch src {
	case event.SourceCustomSelector:
		return 0.95
	case event.SourceJSONLD:
		return 0.9
	case event.SourceMicrodata:
		return 0.9
	case event.SourceHeuristic:
		return 0.6
	case event.SourceAI:
		return 0.5
	default:
		return 0.5
	}
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func floatField(m map[string]any, key string) *float64 {
	v, ok := m[key]
	if !ok {
		return nil
	}
	switch f := v.(type) {
	case float64:
		return &f
	case string:
		if parsed, err := strconv.ParseFloat(f, 64); err == nil {
			return &parsed
		}
	}
	return nil
}

// ParseJSONLDTime parses an ISO-8601-ish JSON-LD date/datetime string,
// tolerating a trailing "Z" the way structured_data.py's _parse_datetime
// does (it strips any "+HH:MM" offset rather than honoring it).
func ParseJSONLDTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	cleaned := strings.Replace(value, "Z", "+00:00", 1)
	if idx := strings.Index(cleaned, "+"); idx > 0 && strings.Contains(cleaned, "T") {
		cleaned = cleaned[:idx]
	}
	for _, layout := range []string{
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02",
		time.RFC3339,
	} {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return &t
		}
	}
	return nil
}
