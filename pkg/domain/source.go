package domain

import "time"

// Source is a fetched page payload. It is never mutated after the fetch that created it;
// a fresh copy comes either from the network or from the cache.
type Source struct {
	URL         string    `json:"url" bson:"url"`
	FinalURL    string    `json:"final_url" bson:"final_url"`
	RawMarkup   string    `json:"-" bson:"-"`
	ContentType string    `json:"content_type,omitempty" bson:"content_type,omitempty"`
	FetchedAt   time.Time `json:"fetched_at" bson:"fetched_at"`
	CacheKey    string    `json:"cache_key" bson:"cache_key"`
	FromCache   bool      `json:"from_cache" bson:"from_cache"`
}

// Link is an outbound link found on an extracted page.
type Link struct {
	URL        string `json:"url" bson:"url"`
	SameDomain bool   `json:"same_domain" bson:"same_domain"`
}

// ExtractedDocument is the clean prose recovered from a Source.
// An empty Text means the page had no usable content; it is not an error.
type ExtractedDocument struct {
	URL           string    `json:"url" bson:"url"`
	Title         string    `json:"title" bson:"title"`
	Text          string    `json:"text" bson:"text"`
	Language      string    `json:"language" bson:"language"`
	IsArticleLike bool      `json:"is_article_like" bson:"is_article_like"`
	OutboundLinks []Link    `json:"links" bson:"links"`
	Strategy      string    `json:"strategy,omitempty" bson:"strategy,omitempty"`
	CrawledAt     time.Time `json:"crawled_at" bson:"crawled_at"`
}
