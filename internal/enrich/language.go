package enrich

import (
	"github.com/abadojack/whatlanggo"
)

const langSampleRunes = 1000

// DetectLanguage returns an ISO 639-1 code and a confidence in [0,1], or
// ("", 0) when detection produced nothing usable.
func DetectLanguage(text string) (string, float64) {
	sample := capRunes(text, langSampleRunes)
	if len(sample) < 20 {
		return "", 0
	}

	info := whatlanggo.Detect(sample)
	code := info.Lang.Iso6391()
	if code == "" {
		return "", 0
	}
	return code, info.Confidence
}

func capRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
