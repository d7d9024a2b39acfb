package content

import "github.com/abadojack/whatlanggo"

const languageSampleRunes = 2000

// DetectLanguage returns the ISO 639-1 code of text, or "" when it cannot be told.
func DetectLanguage(text string) string {
	sample := truncateRunes(text, languageSampleRunes)
	if sample == "" {
		return ""
	}
	info := whatlanggo.Detect(sample)
	if info.Lang < 0 || info.Confidence == 0 {
		return ""
	}
	return info.Lang.Iso6391()
}
