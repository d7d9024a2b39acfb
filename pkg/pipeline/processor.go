package pipeline

import (
	"context"
	"fmt"

	"market-sentiment/pkg/domain"
)

// SourceFetcher retrieves the raw payload for a URL.
type SourceFetcher interface {
	Fetch(ctx context.Context, url string) (domain.Source, error)
}

// DocumentExtractor turns a raw payload into clean text. It never fails.
type DocumentExtractor interface {
	Extract(url, raw string) domain.ExtractedDocument
}

// ContentProcessor fetches a URL and returns its extracted document.
type ContentProcessor interface {
	ProcessContent(ctx context.Context, url string) (*domain.ExtractedDocument, error)
}

// FetchingProcessor implements ContentProcessor with a fetcher and an extractor.
type FetchingProcessor struct {
	fetcher   SourceFetcher
	extractor DocumentExtractor
}

// NewFetchingProcessor creates a processor from its two stages.
func NewFetchingProcessor(fetcher SourceFetcher, extractor DocumentExtractor) *FetchingProcessor {
	return &FetchingProcessor{fetcher: fetcher, extractor: extractor}
}

// ProcessContent fetches url and extracts it. The document keeps the requested URL so
// quotes cite what the caller asked for; redirects are visible in Source.FinalURL.
func (p *FetchingProcessor) ProcessContent(ctx context.Context, url string) (*domain.ExtractedDocument, error) {
	src, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}

	// Links resolve against where the page actually lives; quotes cite the requested URL.
	base := src.FinalURL
	if base == "" {
		base = src.URL
	}
	doc := p.extractor.Extract(base, src.RawMarkup)
	doc.URL = src.URL
	return &doc, nil
}
