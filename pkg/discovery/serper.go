package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"market-sentiment/pkg/httpclient"
)

// DefaultSerperURL is the Google search endpoint of serper.dev.
const DefaultSerperURL = "https://google.serper.dev/search"

// SerperProvider queries the serper.dev Google search API. Without an API key it
// returns no results and no error, so a chain can fall through to the next provider.
type SerperProvider struct {
	client   *httpclient.HTTPClient
	apiKey   string
	endpoint string
}

// NewSerperProvider creates a provider; an empty endpoint uses DefaultSerperURL.
func NewSerperProvider(client *httpclient.HTTPClient, apiKey, endpoint string) *SerperProvider {
	if client == nil {
		client = httpclient.NewClient(httpclient.BotClient)
	}
	if endpoint == "" {
		endpoint = DefaultSerperURL
	}
	return &SerperProvider{client: client, apiKey: apiKey, endpoint: endpoint}
}

func (p *SerperProvider) Name() string { return "serper" }

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"organic"`
}

func (p *SerperProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if p.apiKey == "" {
		return nil, nil
	}

	payload, err := json.Marshal(serperRequest{Q: query, Num: limit})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-KEY", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serper request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("serper returned status %d", resp.StatusCode)
	}

	var decoded serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode serper response: %w", err)
	}

	results := make([]Result, 0, len(decoded.Organic))
	for _, item := range decoded.Organic {
		if item.Link == "" {
			continue
		}
		results = append(results, Result{Title: item.Title, Snippet: item.Snippet, URL: item.Link})
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}
