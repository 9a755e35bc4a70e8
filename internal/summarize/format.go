package summarize

import (
	"net/url"
	"strings"
)

const (
	bulletCount    = 3
	maxBulletWords = 60
	maxEntities    = 6
	emptyEntities  = "—"
)

// enforceFormat normalizes raw model output into exactly three bullet lines
// and one Entities line. It degrades through progressively cruder extraction
// so the result is always well formed.
func enforceFormat(raw string, reps []repInput) string {
	entities := ""
	var bullets []string

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "entities:") {
			entities = strings.TrimSpace(line[len("entities:"):])
			continue
		}
		if b := stripBulletMarker(line); b != "" {
			bullets = append(bullets, truncateWords(b, maxBulletWords))
		}
	}

	if len(bullets) < bulletCount {
		bullets = appendInlineSplits(bullets, raw)
	}
	if len(bullets) < bulletCount {
		bullets = appendSentences(bullets, raw)
	}
	for _, r := range reps {
		if len(bullets) >= bulletCount {
			break
		}
		if t := strings.TrimSpace(r.Title); t != "" {
			bullets = append(bullets, truncateWords(t, maxBulletWords))
		}
	}
	for len(bullets) < bulletCount {
		bullets = append(bullets, "No further details available in the source material.")
	}
	bullets = bullets[:bulletCount]

	if entities == "" {
		entities = entitiesFallback(reps)
	}

	var b strings.Builder
	for _, bl := range bullets {
		b.WriteString("- ")
		b.WriteString(bl)
		b.WriteString("\n")
	}
	b.WriteString("Entities: ")
	b.WriteString(entities)
	return b.String()
}

func stripBulletMarker(line string) string {
	for _, marker := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, marker) {
			return strings.TrimSpace(line[len(marker):])
		}
	}
	return ""
}

// appendInlineSplits salvages bullets jammed into one line with " - "
// separators.
func appendInlineSplits(bullets []string, raw string) []string {
	if len(bullets) > 0 || !strings.Contains(raw, " - ") {
		return bullets
	}
	for _, part := range strings.Split(raw, " - ") {
		part = strings.TrimSpace(part)
		if part == "" || strings.HasPrefix(strings.ToLower(part), "entities:") {
			continue
		}
		bullets = append(bullets, truncateWords(part, maxBulletWords))
		if len(bullets) >= bulletCount {
			break
		}
	}
	return bullets
}

func appendSentences(bullets []string, raw string) []string {
	text := strings.ReplaceAll(raw, "\n", " ")
	for _, s := range strings.Split(text, ". ") {
		if len(bullets) >= bulletCount {
			break
		}
		s = strings.TrimSpace(strings.TrimSuffix(s, "."))
		if len(s) < 15 || strings.HasPrefix(strings.ToLower(s), "entities:") {
			continue
		}
		if containsBullet(bullets, s) {
			continue
		}
		bullets = append(bullets, truncateWords(s, maxBulletWords))
	}
	return bullets
}

func containsBullet(bullets []string, s string) bool {
	for _, b := range bullets {
		if strings.EqualFold(b, s) {
			return true
		}
	}
	return false
}

func truncateWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + "…"
}

// entitiesFallback derives an entities line from representative sources:
// registrable hostname parts capitalized, then up to three titles, deduped
// and capped.
func entitiesFallback(reps []repInput) string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] || len(out) >= maxEntities {
			return
		}
		seen[key] = true
		out = append(out, s)
	}

	for _, r := range reps {
		if h := registrableHost(r.URL); h != "" {
			add(capitalize(h))
		}
	}
	titles := 0
	for _, r := range reps {
		if titles >= 3 {
			break
		}
		if t := strings.TrimSpace(r.Title); t != "" {
			add(t)
			titles++
		}
	}

	if len(out) == 0 {
		return emptyEntities
	}
	return strings.Join(out, ", ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// registrableHost returns the site's name part, "www.reuters.com" gives "reuters".
func registrableHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	return host
}
