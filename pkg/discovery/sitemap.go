package discovery

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"unicode"

	"market-sentiment/pkg/httpclient"
	"market-sentiment/pkg/relevance"
)

// maxSitemapDepth bounds how many index levels are followed.
const maxSitemapDepth = 2

// queryNoise are template words that say nothing about which page is about the product.
var queryNoise = map[string]bool{
	"review": true, "reviews": true, "customer": true, "customers": true,
}

// SitemapEntry is a single URL entry from a sitemap.
type SitemapEntry struct {
	Location string
	LastMod  string
}

type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	URLs    []urlEntry `xml:"url"`
}

type urlEntry struct {
	Location string `xml:"loc"`
	LastMod  string `xml:"lastmod,omitempty"`
}

type sitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []sitemapRef `xml:"sitemap"`
}

type sitemapRef struct {
	Location string `xml:"loc"`
}

// SitemapProvider searches the sitemaps of known review sites for pages whose URL
// mentions the product.
type SitemapProvider struct {
	client   *httpclient.HTTPClient
	sitemaps []string
	logger   *slog.Logger
}

// NewSitemapProvider creates a provider over the given sitemap or sitemap index URLs.
func NewSitemapProvider(client *httpclient.HTTPClient, logger *slog.Logger, sitemaps ...string) *SitemapProvider {
	if client == nil {
		client = httpclient.NewClient(httpclient.BotClient)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SitemapProvider{client: client, sitemaps: sitemaps, logger: logger.With("component", "discovery")}
}

func (p *SitemapProvider) Name() string { return "sitemap" }

// Search returns sitemap URLs ranked by how many product tokens their path carries.
// A URL needs at least two tokens, or all of them for one-word products.
func (p *SitemapProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	need := 2
	if len(tokens) < need {
		need = len(tokens)
	}

	type scored struct {
		url   string
		score int
	}
	var hits []scored
	var lastErr error
	loaded := 0
	for _, sm := range p.sitemaps {
		entries, err := p.ParseFromURL(ctx, sm)
		if err != nil {
			p.logger.Warn("Discovery: sitemap failed", "sitemap", sm, "error", err)
			lastErr = err
			continue
		}
		loaded++
		for _, e := range entries {
			if s := matchScore(e.Location, tokens); s >= need {
				hits = append(hits, scored{url: e.Location, score: s})
			}
		}
	}
	if loaded == 0 && lastErr != nil {
		return nil, lastErr
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	var results []Result
	for _, h := range hits {
		if limit > 0 && len(results) >= limit {
			break
		}
		results = append(results, Result{URL: h.url})
	}
	return results, nil
}

// ParseFromURL fetches a sitemap and returns its entries. Sitemap indexes are followed
// up to maxSitemapDepth levels; a failing child sitemap is skipped.
func (p *SitemapProvider) ParseFromURL(ctx context.Context, sitemapURL string) ([]SitemapEntry, error) {
	return p.parseFromURL(ctx, sitemapURL, 0)
}

func (p *SitemapProvider) parseFromURL(ctx context.Context, sitemapURL string, depth int) ([]SitemapEntry, error) {
	resp, err := p.client.Get(ctx, sitemapURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sitemap: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	head := resp.Body
	if len(head) > 512 {
		head = head[:512]
	}
	if !bytes.Contains(head, []byte("sitemapindex")) {
		return parseSitemap(bytes.NewReader(resp.Body))
	}

	if depth >= maxSitemapDepth {
		return nil, fmt.Errorf("sitemap index nested deeper than %d levels", maxSitemapDepth)
	}
	children, err := parseSitemapIndex(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse sitemap index: %w", err)
	}
	if len(children) == 0 {
		return nil, fmt.Errorf("sitemap index contained no sitemap URLs")
	}

	var all []SitemapEntry
	for _, child := range children {
		entries, err := p.parseFromURL(ctx, child, depth+1)
		if err != nil {
			p.logger.Debug("Discovery: child sitemap skipped", "sitemap", child, "error", err)
			continue
		}
		all = append(all, entries...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no entries found in any sitemap from index")
	}
	return all, nil
}

func parseSitemapIndex(r io.Reader) ([]string, error) {
	var index sitemapIndex
	if err := xml.NewDecoder(r).Decode(&index); err != nil {
		return nil, fmt.Errorf("failed to decode sitemap index XML: %w", err)
	}

	urls := make([]string, 0, len(index.Sitemaps))
	for _, ref := range index.Sitemaps {
		if loc := strings.TrimSpace(ref.Location); loc != "" {
			urls = append(urls, loc)
		}
	}
	return urls, nil
}

func parseSitemap(r io.Reader) ([]SitemapEntry, error) {
	var set urlSet
	if err := xml.NewDecoder(r).Decode(&set); err != nil {
		return nil, fmt.Errorf("failed to decode sitemap XML: %w", err)
	}

	entries := make([]SitemapEntry, 0, len(set.URLs))
	for _, u := range set.URLs {
		if loc := strings.TrimSpace(u.Location); loc != "" {
			entries = append(entries, SitemapEntry{Location: loc, LastMod: u.LastMod})
		}
	}
	return entries, nil
}

// queryTokens derives product tokens from a search query, ignoring template words.
func queryTokens(query string) []string {
	var words []string
	for _, w := range strings.Fields(query) {
		if !queryNoise[strings.ToLower(w)] {
			words = append(words, w)
		}
	}
	return relevance.New(strings.Join(words, " ")).Tokens()
}

// matchScore counts tokens found in the URL path with separators removed, so
// "/lao-gan-ma-chili-crisp" matches both "chili" and "laoganmachilicrisp".
func matchScore(rawURL string, tokens []string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	compact := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, u.Path)

	score := 0
	for _, tok := range tokens {
		if strings.Contains(compact, tok) {
			score++
		}
	}
	return score
}
