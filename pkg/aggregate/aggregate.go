// Package aggregate turns relevant scored sentences into a sentiment verdict, refusing to
// report numbers when there is too little evidence.
package aggregate

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"market-sentiment/pkg/domain"
	"market-sentiment/pkg/relevance"
	"market-sentiment/pkg/sentiment"
)

const (
	// TrustThreshold is the minimum number of relevant sentences for a verified verdict.
	TrustThreshold = 8

	// MaxThemes is the number of keywords kept per polarity.
	MaxThemes = 6

	// MaxQuotesPerPolarity caps surfaced quotes per polarity.
	MaxQuotesPerPolarity = 2

	minThemeRunes = 3
)

// Aggregator is stateless apart from its scorer and safe for concurrent use.
type Aggregator struct {
	scorer sentiment.Scorer
}

// New creates an aggregator. A nil scorer uses VADER.
func New(scorer sentiment.Scorer) *Aggregator {
	if scorer == nil {
		scorer = sentiment.NewVader()
	}
	return &Aggregator{scorer: scorer}
}

// Pool filters sentences for relevance to product and scores the survivors into
// polarity buckets, preserving input order within each bucket.
func (a *Aggregator) Pool(product string, sentences []domain.Sentence) domain.EvidencePool {
	filter := relevance.New(product)
	pool := domain.EvidencePool{}
	for _, s := range sentences {
		if !filter.IsRelevant(s.Text) {
			continue
		}
		scored := sentiment.ScoreSentence(a.scorer, s)
		pool[scored.Polarity] = append(pool[scored.Polarity], scored)
	}
	return pool
}

// Aggregate builds the verdict for product. It never fails: too little evidence yields
// an unverified verdict with zero percentages and no themes or quotes.
func (a *Aggregator) Aggregate(product string, sentences []domain.Sentence) domain.SentimentVerdict {
	return Verdict(product, a.Pool(product, sentences))
}

// Verdict applies the trust gate to an already scored pool.
func Verdict(product string, pool domain.EvidencePool) domain.SentimentVerdict {
	counts := domain.Breakdown{
		Positive: len(pool[domain.Positive]),
		Negative: len(pool[domain.Negative]),
		Neutral:  len(pool[domain.Neutral]),
	}
	total := pool.Total()

	verdict := domain.SentimentVerdict{
		Product:  product,
		Evidence: counts,
		Themes:   domain.Themes{Positive: []string{}, Negative: []string{}, Neutral: []string{}},
		Quotes:   []domain.Quote{},
	}

	if total < TrustThreshold {
		verdict.Status = domain.StatusInsufficientEvidence
		verdict.Note = fmt.Sprintf("only %d product-relevant sentences found; at least %d are needed to report sentiment", total, TrustThreshold)
		return verdict
	}

	verdict.Verified = true
	verdict.Status = domain.StatusVerified
	verdict.Percentages = Percentages(counts)

	exclude := productWords(product)
	verdict.Themes = domain.Themes{
		Positive: Themes(pool[domain.Positive], exclude),
		Negative: Themes(pool[domain.Negative], exclude),
		Neutral:  Themes(pool[domain.Neutral], exclude),
	}

	verdict.Quotes = append(verdict.Quotes, Quotes(domain.Positive, pool[domain.Positive])...)
	verdict.Quotes = append(verdict.Quotes, Quotes(domain.Negative, pool[domain.Negative])...)
	return verdict
}

// Percentages rounds positive and negative shares; neutral takes the remainder so the
// three always sum to 100. counts must not be empty.
func Percentages(counts domain.Breakdown) domain.Breakdown {
	total := float64(counts.Sum())
	pos := int(math.Round(100 * float64(counts.Positive) / total))
	neg := int(math.Round(100 * float64(counts.Negative) / total))
	return domain.Breakdown{Positive: pos, Negative: neg, Neutral: 100 - pos - neg}
}

// Themes returns up to MaxThemes most frequent content words, ties broken alphabetically.
func Themes(sentences []domain.ScoredSentence, exclude map[string]bool) []string {
	freq := make(map[string]int)
	for _, s := range sentences {
		for _, w := range words(s.Text) {
			if utf8.RuneCountInString(w) < minThemeRunes || stopwords[w] || fillerWords[w] || exclude[w] {
				continue
			}
			freq[w]++
		}
	}

	themes := make([]string, 0, len(freq))
	for w := range freq {
		themes = append(themes, w)
	}
	sort.Slice(themes, func(i, j int) bool {
		if freq[themes[i]] != freq[themes[j]] {
			return freq[themes[i]] > freq[themes[j]]
		}
		return themes[i] < themes[j]
	})
	if len(themes) > MaxThemes {
		themes = themes[:MaxThemes]
	}
	return themes
}

// Quotes keeps the first MaxQuotesPerPolarity sentences, skipping case-insensitive
// duplicates. Text is copied verbatim.
func Quotes(polarity domain.Polarity, sentences []domain.ScoredSentence) []domain.Quote {
	var quotes []domain.Quote
	seen := make(map[string]bool)
	for _, s := range sentences {
		key := strings.ToLower(s.Text)
		if seen[key] {
			continue
		}
		seen[key] = true
		quotes = append(quotes, domain.Quote{Polarity: polarity, Text: s.Text, URL: s.SourceURL})
		if len(quotes) == MaxQuotesPerPolarity {
			break
		}
	}
	return quotes
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

// productWords are the product's own words and match tokens; they would otherwise
// dominate every theme list.
func productWords(product string) map[string]bool {
	exclude := make(map[string]bool)
	for _, w := range words(product) {
		exclude[w] = true
	}
	for _, tok := range relevance.New(product).Tokens() {
		exclude[tok] = true
	}
	return exclude
}
