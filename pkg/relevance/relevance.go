// Package relevance decides whether a sentence is about a given product.
package relevance

import (
	"strings"
	"unicode"
)

const (
	minTokenLen  = 3
	minJoinedLen = 5
)

// Filter matches sentences against tokens derived from a product name. Matching is a
// plain substring test on the lowercased sentence, which favors recall: a short token
// can match inside an unrelated word.
type Filter struct {
	tokens []string
}

// New builds the token set for product: lowercase alphanumeric words of at least three
// characters, plus all words concatenated when that is at least five characters long
// ("Lao Gan Ma" also matches "laoganma").
func New(product string) *Filter {
	words := strings.FieldsFunc(strings.ToLower(product), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool)
	var tokens []string
	add := func(tok string) {
		if !seen[tok] {
			seen[tok] = true
			tokens = append(tokens, tok)
		}
	}

	for _, w := range words {
		if len([]rune(w)) >= minTokenLen {
			add(w)
		}
	}
	if joined := strings.Join(words, ""); len([]rune(joined)) >= minJoinedLen {
		add(joined)
	}
	return &Filter{tokens: tokens}
}

// Tokens returns the match tokens in derivation order.
func (f *Filter) Tokens() []string {
	return append([]string(nil), f.tokens...)
}

// IsRelevant reports whether sentence contains any token.
func (f *Filter) IsRelevant(sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, tok := range f.tokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}
