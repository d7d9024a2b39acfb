package domain

import "time"

// Polarity is the sentiment bucket of a scored sentence.
type Polarity string

const (
	Positive Polarity = "positive"
	Negative Polarity = "negative"
	Neutral  Polarity = "neutral"
)

// Sentence is a segment of document text together with the URL it came from.
type Sentence struct {
	Text      string `json:"text"`
	SourceURL string `json:"url"`
}

// ScoredSentence is a product-relevant sentence with its analyzer score.
type ScoredSentence struct {
	Sentence
	Polarity Polarity `json:"polarity"`
	Compound float64  `json:"compound"`
}

// EvidencePool groups scored sentences by polarity for one run.
type EvidencePool map[Polarity][]ScoredSentence

// Total returns the number of sentences in all buckets.
func (p EvidencePool) Total() int {
	return len(p[Positive]) + len(p[Negative]) + len(p[Neutral])
}

// Verdict statuses.
const (
	StatusVerified             = "verified"
	StatusInsufficientEvidence = "insufficient_evidence"
	StatusNoSourcesFetched     = "no_sources_fetched"
)

// Breakdown holds one integer per polarity. It is used both for percentages and raw counts.
type Breakdown struct {
	Positive int `json:"positive" bson:"positive"`
	Negative int `json:"negative" bson:"negative"`
	Neutral  int `json:"neutral" bson:"neutral"`
}

// Sum adds the three buckets.
func (b Breakdown) Sum() int {
	return b.Positive + b.Negative + b.Neutral
}

// Themes holds the top keywords per polarity.
type Themes struct {
	Positive []string `json:"positive" bson:"positive"`
	Negative []string `json:"negative" bson:"negative"`
	Neutral  []string `json:"neutral" bson:"neutral"`
}

// Quote is a verbatim sentence from a fetched document, always paired with its URL.
type Quote struct {
	Polarity Polarity `json:"polarity" bson:"polarity"`
	Text     string   `json:"quote" bson:"quote"`
	URL      string   `json:"url" bson:"url"`
}

// SentimentVerdict is the terminal artifact of a run.
//
// When Verified is false the percentages are zero and Themes/Quotes are empty.
// Downstream renderers must show an explicit unverified banner in that case.
type SentimentVerdict struct {
	RunID       string    `json:"run_id,omitempty" bson:"run_id"`
	Product     string    `json:"product" bson:"product"`
	Verified    bool      `json:"-" bson:"verified"`
	Status      string    `json:"status" bson:"status"`
	Note        string    `json:"note,omitempty" bson:"note,omitempty"`
	Percentages Breakdown `json:"sentiment" bson:"sentiment"`
	Evidence    Breakdown `json:"evidence" bson:"evidence"`
	Themes      Themes    `json:"themes" bson:"themes"`
	Quotes      []Quote   `json:"quotes" bson:"quotes"`
	Sources     []string  `json:"sources" bson:"sources"`
	GeneratedAt time.Time `json:"generated_at" bson:"generated_at"`
}

// NoVerifiedSources reports the inverse of Verified, the flag name consumers read.
func (v SentimentVerdict) NoVerifiedSources() bool {
	return !v.Verified
}
