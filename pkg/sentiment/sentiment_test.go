package sentiment

import (
	"testing"

	"market-sentiment/pkg/domain"
)

func TestBucket(t *testing.T) {
	tests := []struct {
		compound float64
		want     domain.Polarity
	}{
		{1, domain.Positive},
		{0.25, domain.Positive},
		{0.2499, domain.Neutral},
		{0, domain.Neutral},
		{-0.2499, domain.Neutral},
		{-0.25, domain.Negative},
		{-1, domain.Negative},
	}
	for _, tt := range tests {
		if got := Bucket(tt.compound); got != tt.want {
			t.Errorf("Bucket(%v) = %s, want %s", tt.compound, got, tt.want)
		}
	}
}

func TestVaderPolarity(t *testing.T) {
	v := NewVader()
	if got := v.Score("This chili crisp is absolutely wonderful and I love it!"); got < PositiveThreshold {
		t.Errorf("expected clearly positive score, got %v", got)
	}
	if got := v.Score("The jar leaked everywhere and the taste was terrible."); got > NegativeThreshold {
		t.Errorf("expected clearly negative score, got %v", got)
	}
	if got := v.Score("The jar is made of glass."); Bucket(got) != domain.Neutral {
		t.Errorf("expected neutral score, got %v", got)
	}
}

func TestVaderIsShared(t *testing.T) {
	if NewVader() != NewVader() {
		t.Error("expected the analyzer to be constructed once")
	}
}

type fixedScorer float64

func (f fixedScorer) Score(string) float64 { return float64(f) }

func TestScoreSentence(t *testing.T) {
	s := domain.Sentence{Text: "whatever", SourceURL: "https://example.com"}
	got := ScoreSentence(fixedScorer(-0.6), s)
	if got.Polarity != domain.Negative || got.Compound != -0.6 || got.Sentence != s {
		t.Errorf("unexpected scored sentence %+v", got)
	}
}
