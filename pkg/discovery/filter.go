package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Filter decides whether a candidate URL is kept.
type Filter interface {
	ShouldKeep(ctx context.Context, url string) (bool, error)
}

// FilterURLs applies all filters to a list of URLs, preserving order.
func FilterURLs(ctx context.Context, urls []string, filters ...Filter) ([]string, error) {
	filtered := make([]string, 0, len(urls))

	for _, urlStr := range urls {
		keep := true
		for _, f := range filters {
			shouldKeep, err := f.ShouldKeep(ctx, urlStr)
			if err != nil {
				return nil, fmt.Errorf("filter error for URL %s: %w", urlStr, err)
			}
			if !shouldKeep {
				keep = false
				break
			}
		}
		if keep {
			filtered = append(filtered, urlStr)
		}
	}

	return filtered, nil
}

// SchemeFilter keeps only absolute http(s) URLs.
type SchemeFilter struct{}

func NewSchemeFilter() *SchemeFilter {
	return &SchemeFilter{}
}

func (f *SchemeFilter) ShouldKeep(ctx context.Context, urlStr string) (bool, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false, nil
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != "", nil
}

// BaseURLFilter filters out site root URLs, which are rarely about one product.
type BaseURLFilter struct{}

func NewBaseURLFilter() *BaseURLFilter {
	return &BaseURLFilter{}
}

func (f *BaseURLFilter) ShouldKeep(ctx context.Context, urlStr string) (bool, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		// Unparsable URLs are left for the fetcher to reject.
		return true, nil
	}
	return strings.Trim(parsed.Path, "/") != "", nil
}

// DedupeFilter drops URLs already seen, ignoring fragments and a trailing slash.
type DedupeFilter struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewDedupeFilter() *DedupeFilter {
	return &DedupeFilter{seen: make(map[string]bool)}
}

func (f *DedupeFilter) ShouldKeep(ctx context.Context, urlStr string) (bool, error) {
	key := dedupeKey(urlStr)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func dedupeKey(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return urlStr
	}
	parsed.Fragment = ""
	parsed.RawFragment = ""
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	return parsed.String()
}

// BlockedHostFilter drops URLs on listed hosts and their subdomains.
type BlockedHostFilter struct {
	hosts []string
}

// DefaultBlockedHosts are sites whose pages rarely carry extractable review prose.
var DefaultBlockedHosts = []string{
	"youtube.com", "facebook.com", "instagram.com", "tiktok.com", "twitter.com", "x.com", "pinterest.com",
}

func NewBlockedHostFilter(hosts ...string) *BlockedHostFilter {
	normalized := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			normalized = append(normalized, h)
		}
	}
	return &BlockedHostFilter{hosts: normalized}
}

func (f *BlockedHostFilter) ShouldKeep(ctx context.Context, urlStr string) (bool, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return true, nil
	}
	host := strings.ToLower(parsed.Hostname())
	for _, blocked := range f.hosts {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return false, nil
		}
	}
	return true, nil
}
