package enrich

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Short keywords need word boundaries to avoid false hits like "us" in
// "focus"; longer keywords and multiword phrases match by substring.
const longTokenMin = 6

const softBoundaryChars = " -/._'\"’‘“”—–"

var punctReplacer = strings.NewReplacer(
	"—", "-", // em dash
	"–", "-", // en dash
	"’", "'",
	"‘", "'",
	"“", `"`,
	"”", `"`,
)

var wsRe = regexp.MustCompile(`\s+`)

// Normalize folds a string for keyword matching: NFKC, unified punctuation,
// lowercase, collapsed whitespace. Both keywords and text go through it so
// matching is stable across sources.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	s = punctReplacer.Replace(s)
	s = strings.ToLower(s)
	return strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
}

// TagTopics returns the sorted topic names with at least minHits distinct
// keyword hits in text, honoring per-topic exclusion fragments.
func TagTopics(textNorm string, keywords map[string][]string, excludes map[string][]string, minHits int) []string {
	if textNorm == "" {
		return nil
	}
	if minHits < 1 {
		minHits = 1
	}

	var found []string
	for topic, kws := range keywords {
		if len(kws) == 0 {
			continue
		}
		if excludedTopic(textNorm, excludes[topic]) {
			continue
		}
		hits := 0
		for _, kw := range kws {
			if tokenHit(textNorm, Normalize(kw)) {
				hits++
				if hits >= minHits {
					found = append(found, topic)
					break
				}
			}
		}
	}

	sort.Strings(found)
	return found
}

// KeywordHits returns which of the given keywords occur in textNorm,
// preserving keyword order.
func KeywordHits(textNorm string, kws []string) []string {
	var matched []string
	for _, kw := range kws {
		if tokenHit(textNorm, Normalize(kw)) {
			matched = append(matched, kw)
		}
	}
	return matched
}

func tokenHit(textNorm, kwNorm string) bool {
	if kwNorm == "" {
		return false
	}

	if strings.ContainsAny(kwNorm, softBoundaryChars) || len([]rune(kwNorm)) >= longTokenMin {
		return strings.Contains(textNorm, kwNorm)
	}

	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(kwNorm) + `\b`)
	if err != nil {
		return false
	}
	return re.MatchString(textNorm)
}

func excludedTopic(textNorm string, excludes []string) bool {
	for _, ex := range excludes {
		exNorm := Normalize(ex)
		if exNorm != "" && strings.Contains(textNorm, exNorm) {
			return true
		}
	}
	return false
}
