package content

import (
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"market-sentiment/pkg/domain"
	"market-sentiment/pkg/metrics"

	"golang.org/x/text/unicode/norm"
)

const (
	// MinChars is the text length (in runes) at which the chain stops trying strategies.
	MinChars = 250

	// MaxRawRunes caps the text taken by the raw markup fallback.
	MaxRawRunes = 20000
)

// ErrNotApplicable is returned by a strategy that cannot handle the payload at all.
var ErrNotApplicable = errors.New("strategy not applicable")

// Result is what a single strategy recovered.
type Result struct {
	Title string
	Text  string
}

// Strategy is one way of turning raw markup into prose.
type Strategy interface {
	Name() string
	Extract(pageURL *url.URL, raw string) (Result, error)
}

// Extractor runs an ordered list of strategies and keeps the longest text, stopping as
// soon as one clears the minimum length.
type Extractor struct {
	strategies []Strategy
	minChars   int
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// DefaultStrategies is the standard chain: pdf, readability, trafilatura, raw markup.
func DefaultStrategies() []Strategy {
	return []Strategy{
		PDFStrategy{},
		ReadabilityStrategy{},
		TrafilaturaStrategy{},
		RawStrategy{MaxRunes: MaxRawRunes},
	}
}

// NewExtractor creates an extractor with the default chain.
func NewExtractor(logger *slog.Logger, m *metrics.Metrics) *Extractor {
	return NewExtractorWith(MinChars, logger, m, DefaultStrategies()...)
}

// NewExtractorWith creates an extractor with a custom chain.
func NewExtractorWith(minChars int, logger *slog.Logger, m *metrics.Metrics, strategies ...Strategy) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if minChars <= 0 {
		minChars = MinChars
	}
	return &Extractor{
		strategies: strategies,
		minChars:   minChars,
		logger:     logger.With("component", "extractor"),
		metrics:    m,
	}
}

// Extract never fails. An empty Text means no usable content was found.
func (e *Extractor) Extract(rawURL, raw string) domain.ExtractedDocument {
	pageURL, _ := url.Parse(rawURL)

	var (
		best     Result
		bestLen  int
		strategy string
		title    string
	)
	for _, s := range e.strategies {
		res, err := s.Extract(pageURL, raw)
		if err != nil {
			if !errors.Is(err, ErrNotApplicable) {
				e.logger.Debug("Extractor: strategy failed", "strategy", s.Name(), "url", rawURL, "error", err)
			}
			continue
		}

		text := normalizeText(res.Text)
		if title == "" {
			title = normalizeText(res.Title)
		}
		if n := utf8.RuneCountInString(text); n > bestLen {
			best, bestLen, strategy = Result{Text: text}, n, s.Name()
		}
		if bestLen >= e.minChars {
			break
		}
	}

	doc := domain.ExtractedDocument{
		URL:       rawURL,
		Text:      best.Text,
		Strategy:  strategy,
		Language:  DetectLanguage(best.Text),
		CrawledAt: time.Now().UTC(),
	}

	if !IsPDF(raw) {
		page := parseHTML(raw)
		if title == "" {
			title = page.fallbackTitle()
		}
		doc.OutboundLinks = page.links(pageURL, maxLinks)
		doc.IsArticleLike = IsArticleLike(raw)
	}
	doc.Title = title

	e.metrics.Extraction(strategy)
	return doc
}

// normalizeText applies NFC and collapses all whitespace runs to a single space.
func normalizeText(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}
