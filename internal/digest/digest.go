// Package digest renders the daily HTML report from stored clusters.
package digest

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"osmon/internal/config"
	"osmon/internal/logger"
	"osmon/internal/storage"
)

// Renderer writes one digest file per run.
type Renderer struct {
	store *storage.Store
	cfg   *config.Config
	now   func() time.Time
}

func New(store *storage.Store, cfg *config.Config) *Renderer {
	return &Renderer{store: store, cfg: cfg, now: time.Now}
}

// Run renders the digest for the current lookback window and returns the
// written file path.
func (r *Renderer) Run(ctx context.Context) (string, error) {
	now := r.now()
	since := now.Add(-time.Duration(r.cfg.Clustering.LookbackHours) * time.Hour)

	counts, err := r.store.TopicCounts(ctx, since)
	if err != nil {
		return "", fmt.Errorf("loading topic counts: %w", err)
	}

	var b strings.Builder
	writeHeader(&b, now, counts)

	for _, topic := range r.topicOrder(counts) {
		clusters, err := r.store.ClustersByTopic(ctx, topic, since, r.cfg.Summaries.DailyTopClusters)
		if err != nil {
			return "", fmt.Errorf("loading clusters for %s: %w", topic, err)
		}
		if len(clusters) == 0 {
			continue
		}

		fmt.Fprintf(&b, "<h2>%s</h2>\n", html.EscapeString(topic))
		for _, c := range clusters {
			if err := r.writeCluster(ctx, &b, c); err != nil {
				return "", err
			}
		}
	}
	b.WriteString("</body></html>\n")

	if err := os.MkdirAll(r.cfg.DigestDir, 0o755); err != nil {
		return "", fmt.Errorf("creating digest dir: %w", err)
	}
	path := filepath.Join(r.cfg.DigestDir, "digest_"+now.Format("02Jan2006")+".html")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("writing digest: %w", err)
	}

	logger.Info("digest written", "path", path)
	return path, nil
}

// topicOrder lists configured topics first, then any others seen in the
// cluster store, alphabetically.
func (r *Renderer) topicOrder(counts map[string]int) []string {
	seen := make(map[string]bool, len(r.cfg.Topics))
	order := append([]string(nil), r.cfg.Topics...)
	for _, t := range order {
		seen[t] = true
	}

	var extra []string
	for t := range counts {
		if t != "" && !seen[t] {
			extra = append(extra, t)
		}
	}
	sort.Strings(extra)
	return append(order, extra...)
}

func (r *Renderer) writeCluster(ctx context.Context, b *strings.Builder, c storage.Cluster) error {
	bullets, entities := SplitSummary(c.Summary())
	if max := r.cfg.Summaries.BulletsPerCluster; max > 0 && len(bullets) > max {
		bullets = bullets[:max]
	}

	reps, err := r.store.ItemsByIDs(ctx, c.RepItemIDs)
	if err != nil {
		return fmt.Errorf("loading representatives for %s: %w", c.ID, err)
	}

	b.WriteString("<div class=\"cluster\">\n<ul>\n")
	for _, bl := range bullets {
		fmt.Fprintf(b, "<li>%s</li>\n", html.EscapeString(bl))
	}
	b.WriteString("</ul>\n")

	if entities != "" {
		fmt.Fprintf(b, "<p class=\"entities\"><b>Entities:</b> %s</p>\n", html.EscapeString(entities))
	}
	fmt.Fprintf(b, "<p class=\"tone\">Tone: %s · %d items</p>\n", GuessTone(c.Summary(), reps), c.Size)

	if len(reps) > 0 {
		b.WriteString("<p class=\"links\">")
		for i, rep := range reps {
			if i > 0 {
				b.WriteString(" · ")
			}
			title := rep.Title
			if strings.TrimSpace(title) == "" {
				title = rep.URL
			}
			fmt.Fprintf(b, "<a href=\"%s\">%s</a>",
				html.EscapeString(rep.URL), html.EscapeString(title))
		}
		b.WriteString("</p>\n")
	}
	b.WriteString("</div>\n")
	return nil
}

func writeHeader(b *strings.Builder, now time.Time, counts map[string]int) {
	b.WriteString("<!doctype html>\n<html><head><meta charset=\"utf-8\">\n")
	b.WriteString("<title>OSINT digest</title>\n")
	b.WriteString("<style>body{font-family:sans-serif;max-width:60em;margin:2em auto}" +
		".cluster{margin-bottom:1.5em;border-bottom:1px solid #ddd}" +
		".entities,.tone,.links{color:#555;font-size:0.9em}</style>\n")
	b.WriteString("</head><body>\n")

	fmt.Fprintf(b, "<h1>Digest — %s</h1>\n", now.Format("Mon, 02 Jan 2006 15:04"))

	topics := make([]string, 0, len(counts))
	for t := range counts {
		if t != "" {
			topics = append(topics, t)
		}
	}
	sort.Strings(topics)
	parts := make([]string, len(topics))
	for i, t := range topics {
		parts[i] = fmt.Sprintf("%s: %d", t, counts[t])
	}
	if len(parts) > 0 {
		fmt.Fprintf(b, "<p class=\"counts\">%s</p>\n", html.EscapeString(strings.Join(parts, " · ")))
	}
}

// SplitSummary splits stored summary text into bullet lines and the entities
// line.
func SplitSummary(summary string) (bullets []string, entities string) {
	for _, line := range strings.Split(summary, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "entities:") {
			entities = strings.TrimSpace(line[len("entities:"):])
			continue
		}
		bullets = append(bullets, strings.TrimSpace(strings.TrimPrefix(line, "- ")))
	}
	return bullets, entities
}

// Official domains a representative link may point into.
var officialFragments = []string{"gov", "europa.eu", "nato.int"}

// GuessTone classifies a cluster by crude surface signals on its summary and
// source links.
func GuessTone(summary string, reps []storage.RepItem) string {
	for _, rep := range reps {
		for _, frag := range officialFragments {
			if strings.Contains(rep.URL, frag) {
				return "Official"
			}
		}
	}

	letters := 0
	upper := 0
	for _, r := range summary {
		if 'a' <= r && r <= 'z' {
			letters++
		}
		if 'A' <= r && r <= 'Z' {
			letters++
			upper++
		}
	}
	if strings.Contains(summary, "!!!") || (letters > 0 && upper == letters) {
		return "Propagandistic"
	}
	return "Neutral/Reportage"
}
