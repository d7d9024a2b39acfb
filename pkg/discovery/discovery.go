// Package discovery produces candidate source URLs for a product from search providers.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// Provider searches for query and returns at most limit results in ranked order.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// DefaultQueries are the search templates run for a product, in order.
var DefaultQueries = []string{"%s review", "%s customer reviews"}

// DefaultMaxSources caps the number of candidate URLs per product.
const DefaultMaxSources = 10

// Discoverer runs query templates against a provider and filters the hits.
type Discoverer struct {
	provider   Provider
	queries    []string
	filters    []Filter
	maxSources int
	logger     *slog.Logger
}

// NewDiscoverer creates a discoverer. Empty queries fall back to DefaultQueries and a
// non-positive maxSources to DefaultMaxSources.
func NewDiscoverer(provider Provider, queries []string, maxSources int, logger *slog.Logger, filters ...Filter) *Discoverer {
	if len(queries) == 0 {
		queries = DefaultQueries
	}
	if maxSources <= 0 {
		maxSources = DefaultMaxSources
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{
		provider:   provider,
		queries:    queries,
		filters:    filters,
		maxSources: maxSources,
		logger:     logger.With("component", "discovery"),
	}
}

// Discover returns up to maxSources distinct candidate URLs for product, keeping
// provider ranking. A failing query is logged and skipped.
func (d *Discoverer) Discover(ctx context.Context, product string) ([]string, error) {
	product = strings.TrimSpace(product)
	if product == "" {
		return nil, fmt.Errorf("product name is required")
	}

	dedupe := NewDedupeFilter()
	filters := append([]Filter{NewSchemeFilter(), dedupe}, d.filters...)

	var out []string
	for _, tpl := range d.queries {
		if len(out) >= d.maxSources {
			break
		}
		query := fmt.Sprintf(tpl, product)

		results, err := d.provider.Search(ctx, query, d.maxSources)
		if err != nil {
			d.logger.Warn("Discovery: search failed", "provider", d.provider.Name(), "query", query, "error", err)
			continue
		}

		candidates := make([]string, 0, len(results))
		for _, r := range results {
			candidates = append(candidates, strings.TrimSpace(r.URL))
		}
		kept, err := FilterURLs(ctx, candidates, filters...)
		if err != nil {
			return nil, err
		}

		for _, u := range kept {
			if len(out) >= d.maxSources {
				break
			}
			out = append(out, u)
		}
		d.logger.Info("Discovery: query done", "provider", d.provider.Name(), "query", query, "hits", len(results), "kept", len(kept))
	}
	return out, nil
}
