package fetch

import (
	"fmt"
	"net/http"
	"time"

	"eventcrawl/internal/ssrf"
)

// guardedTransport validates every outbound request's URL against the SSRF
// guard before it reaches the underlying transport, matching §4.1's "every
// outbound URL" requirement for the feed parsers (gofeed and
// golang-ical/arran4's client both take a plain *http.Client, so the SSRF
// check has to live at the RoundTripper layer instead of inside PoliteClient).
type guardedTransport struct {
	base     http.RoundTripper
	resolver ssrf.Resolver
}

func (t *guardedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := ssrf.Validate(req.Context(), t.resolver, req.URL.String()); err != nil {
		return nil, fmt.Errorf("ssrf guard: %w", err)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	resp.Body = http.MaxBytesReader(nil, resp.Body, ssrf.MaxResponseBytes)
	return resp, nil
}

// NewGuardedHTTPClient builds an *http.Client whose every request is
// validated by the SSRF guard and whose response body is capped at
// ssrf.MaxResponseBytes, for use by collaborators (the feed parsers) that
// take a plain http.Client rather than going through PoliteClient.Get.
func NewGuardedHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &guardedTransport{resolver: ssrf.DefaultResolver{}},
	}
}
