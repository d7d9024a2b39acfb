package discovery

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"market-sentiment/pkg/httpclient"

	"github.com/PuerkitoBio/goquery"
)

// DefaultDuckDuckGoURL is the no-JavaScript HTML search endpoint.
const DefaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"

// DuckDuckGoProvider scrapes the DuckDuckGo HTML results page. It needs no API key.
type DuckDuckGoProvider struct {
	client   *httpclient.HTTPClient
	endpoint string
}

func NewDuckDuckGoProvider(client *httpclient.HTTPClient, endpoint string) *DuckDuckGoProvider {
	if client == nil {
		client = httpclient.NewClient(httpclient.BrowserClient)
	}
	if endpoint == "" {
		endpoint = DefaultDuckDuckGoURL
	}
	return &DuckDuckGoProvider{client: client, endpoint: endpoint}
}

func (p *DuckDuckGoProvider) Name() string { return "duckduckgo" }

func (p *DuckDuckGoProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	searchURL, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := searchURL.Query()
	q.Set("q", query)
	searchURL.RawQuery = q.Encode()

	resp, err := p.client.Get(ctx, searchURL.String())
	if err != nil {
		return nil, fmt.Errorf("duckduckgo request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse results page: %w", err)
	}

	var results []Result
	doc.Find(".result__body").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		a := s.Find(".result__a").First()
		href, ok := a.Attr("href")
		if !ok || href == "" {
			return true
		}
		results = append(results, Result{
			Title:   strings.Join(strings.Fields(a.Text()), " "),
			Snippet: strings.Join(strings.Fields(s.Find(".result__snippet").First().Text()), " "),
			URL:     decodeRedirect(href),
		})
		return limit <= 0 || len(results) < limit
	})
	return results, nil
}

// decodeRedirect unwraps DuckDuckGo's "/l/?uddg=<target>" click-tracking links.
func decodeRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}
