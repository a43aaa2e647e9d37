package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

const robotsTimeout = 10 * time.Second

// RobotsChecker fetches and caches robots.txt per origin, and answers
// can-fetch and crawl-delay questions against it.
type RobotsChecker struct {
	client *http.Client

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData // origin -> parsed data, nil means "treat as allow"
}

// NewRobotsChecker builds a RobotsChecker using its own short-timeout HTTP
// client, independent of the caller's page-fetch client.
func NewRobotsChecker() *RobotsChecker {
	return &RobotsChecker{
		client: &http.Client{
			Timeout: robotsTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		cache: make(map[string]*robotstxt.RobotsData),
	}
}

// CanFetch reports whether userAgent may fetch rawURL per the origin's
// robots.txt, along with any Crawl-delay configured for that agent (zero if
// none). A missing or malformed robots.txt is treated as allow-all.
func (c *RobotsChecker) CanFetch(ctx context.Context, rawURL, userAgent string) (allowed bool, crawlDelay time.Duration, err error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, 0, fmt.Errorf("parsing url: %w", err)
	}
	origin := fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)

	data, err := c.dataFor(ctx, origin, userAgent)
	if err != nil {
		// Unreachable robots.txt: treat as allowed, matching polite-scraper
		// practice of not blocking a crawl on a transient robots fetch failure.
		return true, 0, nil
	}
	if data == nil {
		return true, 0, nil
	}

	group := data.FindGroup(userAgent)
	delay := time.Duration(0)
	if group != nil {
		delay = group.CrawlDelay
	}

	return data.TestAgent(parsed.Path, userAgent), delay, nil
}

func (c *RobotsChecker) dataFor(ctx context.Context, origin, userAgent string) (*robotstxt.RobotsData, error) {
	c.mu.Lock()
	if data, ok := c.cache[origin]; ok {
		c.mu.Unlock()
		return data, nil
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		c.store(origin, nil)
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, err
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		c.store(origin, nil)
		return nil, nil
	}

	c.store(origin, data)
	return data, nil
}

func (c *RobotsChecker) store(origin string, data *robotstxt.RobotsData) {
	c.mu.Lock()
	c.cache[origin] = data
	c.mu.Unlock()
}
