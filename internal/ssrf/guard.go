// Package ssrf validates outbound URLs before the pipeline's HTTP clients
// open a connection, rejecting schemes and resolved addresses that could
// reach internal or loopback network space.
package ssrf

import (
	"context"
	"fmt"
	"net"
	"net/url"
)

// MaxResponseBytes bounds every fetch made by the pipeline.
const MaxResponseBytes = 5 * 1024 * 1024

// BlockedReason distinguishes why a URL was rejected.
type BlockedReason string

const (
	ReasonScheme    BlockedReason = "scheme"
	ReasonNoHost    BlockedReason = "no_host"
	ReasonPrivateIP BlockedReason = "private_ip"
)

// BlockedError is returned by Validate when a URL is unsafe to fetch.
type BlockedError struct {
	URL    string
	Reason BlockedReason
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("URL blocked (%s): %s", e.Reason, e.URL)
}

// Resolver abstracts DNS lookup so tests can substitute canned answers
// without touching the network.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Validate parses rawURL, checks its scheme and hostname, resolves the
// hostname, and rejects the URL if any resolved address is loopback,
// private, or link-local. It returns nil when the URL is safe to fetch.
func Validate(ctx context.Context, resolver Resolver, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parsing url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return &BlockedError{URL: rawURL, Reason: ReasonScheme}
	}

	host := u.Hostname()
	if host == "" {
		return &BlockedError{URL: rawURL, Reason: ReasonNoHost}
	}

	// A literal IP in the URL skips DNS resolution but still gets checked.
	if ip := net.ParseIP(host); ip != nil {
		if isUnsafeIP(ip) {
			return &BlockedError{URL: rawURL, Reason: ReasonPrivateIP}
		}
		return nil
	}

	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("resolving host %q: %w", host, err)
	}
	if len(addrs) == 0 {
		return &BlockedError{URL: rawURL, Reason: ReasonNoHost}
	}

	for _, addr := range addrs {
		if isUnsafeIP(addr.IP) {
			return &BlockedError{URL: rawURL, Reason: ReasonPrivateIP}
		}
	}

	return nil
}

func isUnsafeIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

// DefaultResolver resolves hostnames via the standard library's net
// package, honoring ctx cancellation.
type DefaultResolver struct{}

func (DefaultResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	return net.DefaultResolver.LookupIPAddr(ctx, host)
}
