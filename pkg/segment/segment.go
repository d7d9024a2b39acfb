// Package segment splits prose into candidate sentences.
package segment

import (
	"strings"
	"unicode/utf8"

	"market-sentiment/pkg/domain"
)

// MinRunes is the shortest fragment kept as a sentence; anything shorter is treated as
// a heading, label or other noise.
const MinRunes = 20

// Segment collapses whitespace in text and splits it after '.', '!' or '?' when followed
// by whitespace. Every returned sentence is a substring of the collapsed text.
func Segment(text, sourceURL string) []domain.Sentence {
	collapsed := strings.Join(strings.Fields(text), " ")
	if collapsed == "" {
		return nil
	}

	var sentences []domain.Sentence
	start := 0
	for i := 0; i < len(collapsed)-1; i++ {
		if !isTerminal(collapsed[i]) || collapsed[i+1] != ' ' {
			continue
		}
		sentences = appendSentence(sentences, collapsed[start:i+1], sourceURL)
		start = i + 2
	}
	if start < len(collapsed) {
		sentences = appendSentence(sentences, collapsed[start:], sourceURL)
	}
	return sentences
}

func appendSentence(out []domain.Sentence, fragment, sourceURL string) []domain.Sentence {
	fragment = strings.TrimSpace(fragment)
	if utf8.RuneCountInString(fragment) < MinRunes {
		return out
	}
	return append(out, domain.Sentence{Text: fragment, SourceURL: sourceURL})
}

func isTerminal(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}
