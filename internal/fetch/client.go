// Package fetch implements the Polite Scraper's underlying HTTP client:
// SSRF validation, robots.txt compliance, per-domain throttling, retry with
// backoff, and a circuit breaker, wrapping net/http and goquery.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eventcrawl/internal/circuitbreaker"
	"eventcrawl/internal/retry"
	"eventcrawl/internal/ssrf"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// Page is the result of a single polite GET.
type Page struct {
	URL        string
	StatusCode int
	HTML       string
	Doc        *goquery.Document
}

// Markdown renders the page body as Markdown, best-effort.
func (p *Page) Markdown() string {
	converter := htmlmd.NewConverter("", true, nil)
	md, err := converter.ConvertString(p.HTML)
	if err != nil {
		if p.Doc != nil {
			return p.Doc.Text()
		}
		return ""
	}
	return md
}

// Images returns every absolute http(s) image URL found in the page, from
// <img src> and the first candidate of <source srcset>.
func (p *Page) Images() []string {
	if p.Doc == nil {
		return nil
	}
	base, _ := url.Parse(p.URL)
	seen := make(map[string]struct{})
	var images []string

	resolve := func(src string) string {
		src = strings.TrimSpace(src)
		if src == "" {
			return ""
		}
		imgURL, err := url.Parse(src)
		if err != nil {
			return ""
		}
		if base != nil && !imgURL.IsAbs() {
			imgURL = base.ResolveReference(imgURL)
		}
		if imgURL.Scheme != "http" && imgURL.Scheme != "https" {
			return ""
		}
		imgURL.Fragment = ""
		return imgURL.String()
	}

	p.Doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		if u := resolve(sel.AttrOr("src", "")); u != "" {
			if _, ok := seen[u]; !ok {
				seen[u] = struct{}{}
				images = append(images, u)
			}
		}
	})
	p.Doc.Find("source[srcset]").Each(func(_ int, sel *goquery.Selection) {
		srcset := strings.TrimSpace(sel.AttrOr("srcset", ""))
		if srcset == "" {
			return
		}
		first := strings.Fields(strings.TrimSpace(strings.Split(srcset, ",")[0]))
		if len(first) == 0 {
			return
		}
		if u := resolve(first[0]); u != "" {
			if _, ok := seen[u]; !ok {
				seen[u] = struct{}{}
				images = append(images, u)
			}
		}
	})

	return images
}

// Options configures a single source's politeness behavior.
type Options struct {
	UserAgent     string
	RespectRobots bool
	RateLimitMs   int
	MaxRetries    int
	Timeout       time.Duration
}

// PoliteClient performs SSRF-checked, robots-respecting, rate-limited,
// retried GET requests.
type PoliteClient struct {
	httpClient     *http.Client
	robots         *RobotsChecker
	limiter        *DomainLimiter
	resolver       ssrf.Resolver
	circuitBreaker *circuitbreaker.CircuitBreaker
}

// NewPoliteClient builds a PoliteClient sharing one robots cache and
// domain limiter across all sources fetched through it.
func NewPoliteClient() *PoliteClient {
	return &PoliteClient{
		httpClient:     &http.Client{},
		robots:         NewRobotsChecker(),
		limiter:        NewDomainLimiter(),
		resolver:       ssrf.DefaultResolver{},
		circuitBreaker: circuitbreaker.New(circuitbreaker.WebScraperConfig()),
	}
}

// emptyResult marks a response the caller should treat as "no page" rather
// than an error: a 403 or any other non-429 status of 400 or above, returned
// on the first such response without a retry.
type emptyResult struct{}

func (emptyResult) Error() string { return "fetch returned empty by policy" }

// Get performs a single polite GET against rawURL, applying opts. A nil,
// nil return means the page was intentionally skipped (robots disallow,
// 403, or any other non-429 status of 400 or above) rather than a
// transport failure.
func (c *PoliteClient) Get(ctx context.Context, rawURL string, opts Options) (*Page, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = "family-event-crawler/1.0 (+https://example.invalid/bot)"
	}
	if opts.RateLimitMs <= 0 {
		opts.RateLimitMs = 2000
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	if err := ssrf.Validate(ctx, c.resolver, rawURL); err != nil {
		return nil, err
	}

	rateLimitMs := opts.RateLimitMs
	if opts.RespectRobots {
		allowed, crawlDelay, err := c.robots.CanFetch(ctx, rawURL, opts.UserAgent)
		if err == nil && !allowed {
			return nil, nil
		}
		if crawlDelay > 0 && int(crawlDelay.Milliseconds()) > rateLimitMs {
			rateLimitMs = int(crawlDelay.Milliseconds())
		}
	}

	var page *Page
	retryCfg := retry.PoliteScrapeConfig(opts.MaxRetries)

	err := retry.WithBackoff(ctx, retryCfg, func() error {
		if werr := c.limiter.Wait(ctx, DomainOf(rawURL), time.Duration(rateLimitMs)*time.Millisecond); werr != nil {
			return werr
		}

		result, cbErr := c.circuitBreaker.Execute(func() (interface{}, error) {
			return c.doGet(ctx, rawURL, opts)
		})
		if cbErr != nil {
			if _, skip := cbErr.(emptyResult); skip {
				return nil
			}
			return cbErr
		}
		page = result.(*Page)
		return nil
	})

	if err != nil {
		return nil, err
	}
	return page, nil
}

func (c *PoliteClient) doGet(ctx context.Context, rawURL string, opts Options) (*Page, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &retry.HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("rate limited by %s", rawURL)}
	}
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode >= 400 {
		return nil, emptyResult{}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, ssrf.MaxResponseBytes))
	if err != nil {
		return nil, err
	}

	htmlStr := string(body)
	doc, docErr := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if docErr != nil {
		doc = nil
	}

	return &Page{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		HTML:       htmlStr,
		Doc:        doc,
	}, nil
}

// SitemapFetcher adapts a PoliteClient to sitemap.Fetcher's narrower
// (ctx, url) -> (body, status, err) signature.
type SitemapFetcher struct {
	Client *PoliteClient
}

// Get fetches rawURL politely and returns its raw body and status code.
func (f SitemapFetcher) Get(ctx context.Context, rawURL string) ([]byte, int, error) {
	page, err := f.Client.Get(ctx, rawURL, Options{RespectRobots: true})
	if err != nil {
		return nil, 0, err
	}
	if page == nil {
		return nil, 0, nil
	}
	return []byte(page.HTML), page.StatusCode, nil
}
