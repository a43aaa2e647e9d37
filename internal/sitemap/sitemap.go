// Package sitemap discovers event-like URLs by walking a site's sitemap.xml
// (recursing into sitemap indexes) and, when no sitemap is explicitly
// configured, by checking robots.txt for a Sitemap directive first.
package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Fetcher performs a single polite GET. Callers inject the politeness-layer
// client (robots check, rate limiting, retry) so this package stays
// concerned only with sitemap shape.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (body []byte, statusCode int, err error)
}

// EventPathPatterns are the default path regexes used to recognize
// event-detail URLs inside a sitemap, case-insensitively.
var EventPathPatterns = []string{
	`/event[s]?/`,
	`/veranstaltung(en)?/`,
	`/termine?/`,
	`/kalender/`,
	`/programm/`,
	`/aktivitaet(en)?/`,
	`/angebot(e)?/`,
}

var compiledEventPatterns = mustCompileAll(EventPathPatterns)

func mustCompileAll(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return compiled
}

// extractLocs walks the XML tree looking for any <loc> element regardless
// of its parent tag or namespace prefix, tolerating both sitemap-index and
// urlset documents and both namespaced and bare tag names.
func extractLocs(body []byte) []string {
	decoder := xml.NewDecoder(strings.NewReader(string(body)))
	var locs []string
	var inLoc bool
	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if localName(t.Name.Local) == "loc" {
				inLoc = true
			}
		case xml.CharData:
			if inLoc {
				locs = append(locs, strings.TrimSpace(string(t)))
			}
		case xml.EndElement:
			if localName(t.Name.Local) == "loc" {
				inLoc = false
			}
		}
	}
	return locs
}

func localName(tag string) string {
	if idx := strings.LastIndex(tag, "}"); idx >= 0 {
		return tag[idx+1:]
	}
	return tag
}

func matchesEventPath(rawURL string, patterns []*regexp.Regexp) bool {
	u, err := url.Parse(rawURL)
	path := "/"
	if err == nil && u.Path != "" {
		path = u.Path
	}
	pathLower := strings.ToLower(path)
	for _, p := range patterns {
		if p.MatchString(pathLower) {
			return true
		}
	}
	return false
}

// WalkOptions configures a single Walk call.
type WalkOptions struct {
	// SitemapURL overrides auto-discovery ({origin}/sitemap.xml or a
	// robots.txt Sitemap: directive).
	SitemapURL string
	// FilterEventLike restricts results to paths matching EventPathPatterns
	// (or Patterns, if given).
	FilterEventLike bool
	Patterns        []string
	MaxURLs         int
}

// Walk discovers URLs from baseURL's sitemap, recursing into sitemap-index
// documents (a <loc> ending in ".xml" whose text contains "sitemap" is
// treated as a child sitemap rather than a page). Returns at most
// opts.MaxURLs URLs, in discovery order.
func Walk(ctx context.Context, fetcher Fetcher, baseURL string, opts WalkOptions) ([]string, error) {
	maxURLs := opts.MaxURLs
	if maxURLs <= 0 {
		maxURLs = 200
	}

	sitemapURL := opts.SitemapURL
	if sitemapURL == "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing base url: %w", err)
		}
		origin := fmt.Sprintf("%s://%s", u.Scheme, u.Host)
		sitemapURL = discoverSitemapURL(ctx, fetcher, origin)
	}

	var patterns []*regexp.Regexp
	switch {
	case len(opts.Patterns) > 0:
		patterns = mustCompileAll(opts.Patterns)
	case opts.FilterEventLike:
		patterns = compiledEventPatterns
	}

	seen := map[string]bool{sitemapURL: true}
	toFetch := []string{sitemapURL}
	var results []string

	for len(toFetch) > 0 && len(results) < maxURLs {
		next := toFetch[0]
		toFetch = toFetch[1:]

		body, status, err := fetcher.Get(ctx, next)
		if err != nil || status != 200 {
			continue
		}

		for _, loc := range extractLocs(body) {
			if loc == "" {
				continue
			}
			if strings.HasSuffix(loc, ".xml") && strings.Contains(strings.ToLower(loc), "sitemap") {
				if !seen[loc] {
					seen[loc] = true
					toFetch = append(toFetch, loc)
				}
				continue
			}
			if len(patterns) > 0 && !matchesEventPath(loc, patterns) {
				continue
			}
			if !seen[loc] {
				seen[loc] = true
				results = append(results, loc)
				if len(results) >= maxURLs {
					break
				}
			}
		}
	}

	if len(results) > maxURLs {
		results = results[:maxURLs]
	}
	return results, nil
}

// discoverSitemapURL checks robots.txt for a Sitemap: directive and falls
// back to {origin}/sitemap.xml. Errors are swallowed; an empty result just
// means Walk will try the default path and find nothing.
func discoverSitemapURL(ctx context.Context, fetcher Fetcher, origin string) string {
	body, status, err := fetcher.Get(ctx, origin+"/robots.txt")
	if err == nil && status == 200 {
		for _, line := range strings.Split(string(body), "\n") {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(strings.ToLower(trimmed), "sitemap:") {
				parts := strings.SplitN(trimmed, ":", 2)
				if len(parts) == 2 {
					if sitemapURL := strings.TrimSpace(parts[1]); sitemapURL != "" {
						return sitemapURL
					}
				}
			}
		}
	}
	return origin + "/sitemap.xml"
}
