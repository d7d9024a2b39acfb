package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"market-sentiment/pkg/httpclient"

	"github.com/mmcdole/gofeed"
)

// DefaultFeedURL is a Google News RSS search; %s receives the escaped query.
const DefaultFeedURL = "https://news.google.com/rss/search?q=%s&hl=en-US&gl=US&ceid=US:en"

// FeedProvider searches through an RSS/Atom search feed.
type FeedProvider struct {
	client      *httpclient.HTTPClient
	urlTemplate string
	parser      *gofeed.Parser
}

// NewFeedProvider creates a feed provider. urlTemplate must contain one %s.
func NewFeedProvider(client *httpclient.HTTPClient, urlTemplate string) *FeedProvider {
	if client == nil {
		client = httpclient.NewClient(httpclient.BotClient)
	}
	if urlTemplate == "" {
		urlTemplate = DefaultFeedURL
	}
	return &FeedProvider{client: client, urlTemplate: urlTemplate, parser: gofeed.NewParser()}
}

func (p *FeedProvider) Name() string { return "feed" }

func (p *FeedProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	feedURL := fmt.Sprintf(p.urlTemplate, url.QueryEscape(query))

	resp, err := p.client.Get(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	feed, err := p.parser.ParseString(string(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	results := make([]Result, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link == "" {
			continue
		}
		results = append(results, Result{
			Title:   strings.TrimSpace(item.Title),
			Snippet: strings.TrimSpace(item.Description),
			URL:     item.Link,
		})
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}
