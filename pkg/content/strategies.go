package content

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/markusmobius/go-trafilatura"
)

// ReadabilityStrategy extracts the main article with a readability heuristic.
type ReadabilityStrategy struct{}

func (ReadabilityStrategy) Name() string { return "readability" }

func (ReadabilityStrategy) Extract(pageURL *url.URL, raw string) (Result, error) {
	if IsPDF(raw) || strings.TrimSpace(raw) == "" {
		return Result{}, ErrNotApplicable
	}
	article, err := readability.FromReader(strings.NewReader(raw), pageURL)
	if err != nil {
		return Result{}, fmt.Errorf("failed to extract text: %w", err)
	}
	return Result{Title: article.Title, Text: article.TextContent}, nil
}

// TrafilaturaStrategy is a general-purpose boilerplate remover.
type TrafilaturaStrategy struct{}

func (TrafilaturaStrategy) Name() string { return "trafilatura" }

func (TrafilaturaStrategy) Extract(pageURL *url.URL, raw string) (Result, error) {
	if IsPDF(raw) || strings.TrimSpace(raw) == "" {
		return Result{}, ErrNotApplicable
	}
	res, err := trafilatura.Extract(strings.NewReader(raw), trafilatura.Options{OriginalURL: pageURL})
	if err != nil {
		return Result{}, fmt.Errorf("trafilatura: %w", err)
	}
	if res == nil {
		return Result{}, errors.New("trafilatura: no result")
	}
	return Result{Title: res.Metadata.Title, Text: res.ContentText}, nil
}

// RawStrategy strips non-content elements and keeps the remaining visible text.
type RawStrategy struct {
	MaxRunes int
}

func (RawStrategy) Name() string { return "raw" }

// noiseSelector lists elements that never hold the page's prose.
const noiseSelector = "script, style, noscript, template, nav, aside, footer, header"

func (s RawStrategy) Extract(_ *url.URL, raw string) (Result, error) {
	if IsPDF(raw) || strings.TrimSpace(raw) == "" {
		return Result{}, ErrNotApplicable
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return Result{}, fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find(noiseSelector).Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	text := normalizeText(visibleText(root))
	return Result{Title: doc.Find("title").First().Text(), Text: truncateRunes(text, s.MaxRunes)}, nil
}

// PDFStrategy handles payloads that are PDF documents.
type PDFStrategy struct{}

func (PDFStrategy) Name() string { return "pdf" }

func (PDFStrategy) Extract(_ *url.URL, raw string) (Result, error) {
	if !IsPDF(raw) {
		return Result{}, ErrNotApplicable
	}
	text, err := ExtractTextFromPDFBytes([]byte(raw))
	if err != nil {
		return Result{}, err
	}
	return Result{Text: text}, nil
}
