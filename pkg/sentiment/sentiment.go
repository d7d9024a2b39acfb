// Package sentiment scores sentences with a lexicon-based analyzer.
package sentiment

import (
	"sync"

	"market-sentiment/pkg/domain"

	"github.com/jonreiter/govader"
)

// Bucket thresholds. Scores strictly between them are neutral.
const (
	PositiveThreshold = 0.25
	NegativeThreshold = -0.25
)

// Scorer returns a compound polarity score in [-1, 1].
type Scorer interface {
	Score(text string) float64
}

// Vader scores with the VADER lexicon and rules (negation, intensifiers, punctuation).
type Vader struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

var (
	defaultVader     *Vader
	defaultVaderOnce sync.Once
)

// NewVader returns a shared analyzer; loading the lexicon is done once per process.
func NewVader() *Vader {
	defaultVaderOnce.Do(func() {
		defaultVader = &Vader{analyzer: govader.NewSentimentIntensityAnalyzer()}
	})
	return defaultVader
}

// Score returns the VADER compound score for text.
func (v *Vader) Score(text string) float64 {
	return v.analyzer.PolarityScores(text).Compound
}

// Bucket maps a compound score to a polarity. Both thresholds are inclusive.
func Bucket(compound float64) domain.Polarity {
	switch {
	case compound >= PositiveThreshold:
		return domain.Positive
	case compound <= NegativeThreshold:
		return domain.Negative
	default:
		return domain.Neutral
	}
}

// ScoreSentence scores and buckets s.
func ScoreSentence(scorer Scorer, s domain.Sentence) domain.ScoredSentence {
	compound := scorer.Score(s.Text)
	return domain.ScoredSentence{Sentence: s, Polarity: Bucket(compound), Compound: compound}
}
