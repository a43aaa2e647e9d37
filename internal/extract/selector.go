package extract

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"eventcrawl/internal/event"
)

// selectorAliases maps a requested field name to the name a ScraperConfig
// may have saved it under, matching custom_selector_extractor.py's
// `_ALIASES` table (the config-authoring UI saves "image"/"organizer";
// the pipeline asks for "image_url"/"organizer_name").
var selectorAliases = map[string]string{
	"image_url":      "image",
	"organizer_name": "organizer",
}

var datetimeFields = map[string]bool{
	"start_datetime": true,
	"end_datetime":   true,
}

// dateFormatPatterns mirrors custom_selector_extractor.py's _DATE_FORMAT_MAP:
// a named format to the regex that extracts its components.
var dateFormatPatterns = map[string]*regexp.Regexp{
	"DD.MM.YYYY HH:mm": regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{4})\s+(\d{1,2}):(\d{2})`),
	"DD.MM.YYYY":       regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{4})`),
	"YYYY-MM-DDTHH:mm": regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})T(\d{2}):(\d{2})`),
	"YYYY-MM-DD":       regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`),
	"DD.MM.YY HH:mm":   regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{2})\s+(\d{1,2}):(\d{2})`),
	"DD.MM.YY":         regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{2})`),
}

var allDateFormats = []string{
	"DD.MM.YYYY HH:mm", "DD.MM.YYYY", "YYYY-MM-DDTHH:mm",
	"YYYY-MM-DD", "DD.MM.YY HH:mm", "DD.MM.YY",
}

// SelectorStage applies a ScraperConfig's per-field CSS selectors to a
// parsed page, the highest-priority extraction stage (custom_selector).
type SelectorStage struct{}

// NewSelectorStage returns a ready-to-use SelectorStage.
func NewSelectorStage() *SelectorStage { return &SelectorStage{} }

// Extract tries each field's configured CSS selectors in order, taking the
// first match, reading the configured attribute, and — for datetime fields —
// parsing with the configured date formats falling back to every known
// format. A field with no matching selector, or an unparseable datetime, is
// simply absent from the result (missing, not an error), per
// custom_selector_extractor.py's CustomSelectorExtractor.extract.
func (s *SelectorStage) Extract(doc *goquery.Document, selectors map[string]event.FieldSelector, dateFormats []string, fieldsNeeded []string, baseURL string) map[string]event.ExtractionResult {
	if len(selectors) == 0 {
		return nil
	}
	results := map[string]event.ExtractionResult{}

	for _, field := range fieldsNeeded {
		fs, ok := selectors[field]
		if !ok {
			if alias, hasAlias := selectorAliases[field]; hasAlias {
				fs, ok = selectors[alias]
			}
		}
		if !ok {
			continue
		}

		attr := fs.Attr
		if attr == "" {
			attr = event.AttrText
		}

		var value, matched string
		for _, css := range fs.CSS {
			sel := safeSelect(doc, css)
			if sel == nil || sel.Length() == 0 {
				continue
			}
			raw := extractAttr(sel, attr)
			raw = strings.TrimSpace(raw)
			if raw != "" {
				value = raw
				matched = css
				break
			}
		}
		if value == "" {
			continue
		}

		if datetimeFields[field] {
			parsed := parseDateWithFormats(value, dateFormats)
			if parsed == nil {
				parsed = parseDateWithFormats(value, allDateFormats)
			}
			if parsed == nil {
				continue
			}
			value = parsed.Format(time.RFC3339)
		} else if (field == "image" || field == "image_url" || attr == event.AttrHref) && baseURL != "" {
			value = resolveURL(baseURL, value)
		}

		results[field] = event.ExtractionResult{
			Value:      value,
			Confidence: confidenceFor(event.SourceCustomSelector),
			Source:     event.SourceCustomSelector,
			Evidence:   "css:" + matched,
		}
	}

	return results
}

// safeSelect runs doc.Find but recovers from goquery/cascadia panics on a
// malformed operator-authored selector, treating it the way Python's
// try/except around soup.select_one does.
func safeSelect(doc *goquery.Document, css string) (sel *goquery.Selection) {
	defer func() {
		if recover() != nil {
			sel = nil
		}
	}()
	found := doc.Find(css).First()
	return found
}

func extractAttr(sel *goquery.Selection, attr event.AttrType) string {
	switch attr {
	case event.AttrDatetime:
		if v, ok := sel.Attr("datetime"); ok && v != "" {
			return v
		}
		if v, ok := sel.Attr("content"); ok && v != "" {
			return v
		}
		return sel.Text()
	case event.AttrSrc:
		if v, ok := sel.Attr("src"); ok && v != "" {
			return v
		}
		if v, ok := sel.Attr("data-src"); ok {
			return v
		}
		return ""
	case event.AttrHref:
		v, _ := sel.Attr("href")
		return v
	case event.AttrContent:
		v, _ := sel.Attr("content")
		return v
	default:
		return sel.Text()
	}
}

// parseDateWithFormats always tries ISO-8601 first, then each named format
// in order, matching _parse_date_with_formats.
func parseDateWithFormats(value string, formats []string) *time.Time {
	value = strings.TrimSpace(value)

	if t := ParseJSONLDTime(value); t != nil {
		return t
	}

	for _, format := range formats {
		pattern, ok := dateFormatPatterns[format]
		if !ok {
			continue
		}
		m := pattern.FindStringSubmatch(value)
		if m == nil {
			continue
		}

		var year, month, day, hour, minute int
		var err error
		if strings.HasPrefix(format, "YYYY") {
			year, _ = strconv.Atoi(m[1])
			month, _ = strconv.Atoi(m[2])
			day, _ = strconv.Atoi(m[3])
			if len(m) > 4 {
				hour, _ = strconv.Atoi(m[4])
			}
			if len(m) > 5 {
				minute, _ = strconv.Atoi(m[5])
			}
		} else {
			day, _ = strconv.Atoi(m[1])
			month, _ = strconv.Atoi(m[2])
			year, err = strconv.Atoi(m[3])
			if err == nil && year < 100 {
				year += 2000
			}
			if len(m) > 4 {
				hour, _ = strconv.Atoi(m[4])
			}
			if len(m) > 5 {
				minute, _ = strconv.Atoi(m[5])
			}
		}

		if year < 2020 || year > 2030 || month < 1 || month > 12 || day < 1 || day > 31 {
			continue
		}
		t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC)
		return &t
	}

	return nil
}

func resolveURL(baseURL, ref string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return ref
	}
	resolved, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(resolved).String()
}
