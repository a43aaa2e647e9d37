// Package sniff inspects a response's Content-Type header and body snippet
// to recognize RSS/Atom, ICS, and HTML content, so the pipeline can warn
// when a configured source no longer returns what it was set up for.
package sniff

import "strings"

// ContentType is a detected payload shape.
type ContentType string

const (
	ContentRSS     ContentType = "rss"
	ContentICS     ContentType = "ics"
	ContentHTML    ContentType = "html"
	ContentUnknown ContentType = "unknown"
)

// SnippetSize is the number of leading bytes of a response body that need
// to be read to make a detection call; the caller truncates before Detect.
const SnippetSize = 8192

// Detect classifies a response from its Content-Type header and a body
// snippet (SnippetSize bytes is sufficient; more is harmless).
func Detect(contentTypeHeader, bodySnippet string) ContentType {
	body := strings.TrimSpace(bodySnippet)
	header := strings.ToLower(contentTypeHeader)

	switch {
	case strings.Contains(header, "text/calendar"), strings.Contains(header, "application/ics"):
		return ContentICS
	case strings.Contains(header, "application/rss+xml"), strings.Contains(header, "application/atom+xml"):
		return ContentRSS
	}

	if strings.Contains(header, "text/xml") || strings.Contains(header, "application/xml") {
		head500 := head(body, 500)
		head200 := head(body, 200)
		if strings.Contains(head500, "<rss") || strings.Contains(head500, "<feed") || strings.Contains(head200, "<?xml") {
			return ContentRSS
		}
	}

	if strings.Contains(header, "text/html") {
		head200Lower := strings.ToLower(head(body, 200))
		if strings.Contains(head200Lower, "<!doctype") || strings.Contains(head200Lower, "<html") {
			return ContentHTML
		}
	}

	bodyLower := strings.ToLower(head(body, 2000))

	if strings.HasPrefix(strings.TrimSpace(body), "BEGIN:VCALENDAR") {
		return ContentICS
	}
	if strings.Contains(bodyLower, "<!doctype") || strings.Contains(bodyLower, "<html") || strings.Contains(head(bodyLower, 500), "<!--") {
		return ContentHTML
	}
	if strings.HasPrefix(strings.TrimSpace(body), "<?xml") || strings.Contains(head(bodyLower, 500), "<rss") || strings.Contains(head(bodyLower, 500), "<feed") {
		return ContentRSS
	}

	return ContentUnknown
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var typeLabels = map[ContentType]string{
	ContentRSS:     "RSS/Atom-Feed",
	ContentICS:     "ICS-Kalender",
	ContentHTML:    "HTML-Seite",
	ContentUnknown: "unbekanntes Format",
}

// MismatchMessage returns a short German-language message describing why a
// detected content type does not match the type a source was configured
// with ("rss", "ics", or "scraper"), or "" when there is no mismatch.
func MismatchMessage(detected ContentType, configured string) string {
	configuredLabel := configuredTypeLabel(configured)

	switch {
	case detected == ContentHTML && (configured == "rss" || configured == "ics"):
		return "Die URL liefert eine HTML-Seite, kein " + configuredLabel + ". Bitte die richtige Feed-URL verwenden (z. B. .ics oder RSS-Link)."
	case detected == ContentICS && configured == "rss":
		return "Die URL liefert einen ICS-Kalender, aber die Quelle ist als RSS eingetragen. Quelle auf „ICS“ umstellen."
	case detected == ContentRSS && configured == "ics":
		return "Die URL liefert einen RSS/Atom-Feed, aber die Quelle ist als ICS eingetragen. Quelle auf „RSS“ umstellen."
	case detected == ContentHTML && configured == "scraper":
		return ""
	case detected == ContentUnknown:
		return "Der Inhaltstyp konnte nicht erkannt werden. Erwartet: " + configuredLabel + "."
	case string(detected) != configured:
		return "Die URL liefert " + typeLabels[detected] + ", die Quelle ist als " + configuredLabel + " eingetragen. Bitte anpassen."
	default:
		return ""
	}
}

func configuredTypeLabel(configured string) string {
	if configured == "scraper" {
		return "HTML (Scraper)"
	}
	if label, ok := typeLabels[ContentType(configured)]; ok {
		return label
	}
	return configured
}
