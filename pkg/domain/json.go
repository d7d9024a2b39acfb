package domain

import "encoding/json"

// MarshalJSON writes the verdict in the payload shape consumed by report rendering:
// the verified flag is exposed inverted as no_verified_sources and empty lists are
// emitted as [] rather than null.
func (v SentimentVerdict) MarshalJSON() ([]byte, error) {
	type verdict SentimentVerdict
	out := struct {
		verdict
		NoVerifiedSources bool `json:"no_verified_sources"`
	}{
		verdict:           verdict(v),
		NoVerifiedSources: v.NoVerifiedSources(),
	}
	out.Themes.Positive = nonNil(out.Themes.Positive)
	out.Themes.Negative = nonNil(out.Themes.Negative)
	out.Themes.Neutral = nonNil(out.Themes.Neutral)
	out.Sources = nonNil(out.Sources)
	if out.Quotes == nil {
		out.Quotes = []Quote{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (v *SentimentVerdict) UnmarshalJSON(data []byte) error {
	type verdict SentimentVerdict
	var in struct {
		verdict
		NoVerifiedSources bool `json:"no_verified_sources"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*v = SentimentVerdict(in.verdict)
	v.Verified = !in.NoVerifiedSources
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
