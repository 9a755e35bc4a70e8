// Package feeds ingests RSS and Reddit feeds into the document store.
package feeds

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"

	"osmon/internal/extract"
	"osmon/internal/fetch"
	"osmon/internal/logger"
	"osmon/internal/metrics"
	"osmon/internal/storage"
)

const (
	textCap     = 8000
	minBodyWarn = 80
)

// Stats reports what one ingestion run did.
type Stats struct {
	Feeds    int
	Inserted int
	Skipped  int
}

// Collector pulls feeds, extracts article text and stores documents.
type Collector struct {
	parser *gofeed.Parser
	pages  *fetch.Client
	store  *storage.Store
}

// NewCollector wires the feed parser with a page fetcher and the store.
func NewCollector(pages *fetch.Client, store *storage.Store) *Collector {
	return &Collector{
		parser: gofeed.NewParser(),
		pages:  pages,
		store:  store,
	}
}

// Run fetches every feed URL in order. Broken feeds are logged and skipped;
// the run only fails on storage-level errors that abort item insertion.
func (c *Collector) Run(ctx context.Context, feedURLs []string) (Stats, error) {
	var stats Stats

	for _, feedURL := range feedURLs {
		logger.Info("fetching feed", "url", feedURL)

		feed, err := c.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			logger.Error("feed parse failed, skipping", "url", feedURL, "error", err)
			metrics.Global.IncrementFeedErrors()
			continue
		}
		stats.Feeds++

		for _, entry := range feed.Items {
			if err := ctx.Err(); err != nil {
				return stats, err
			}

			link := pickURL(entry)
			ts := entryTime(entry)
			body := capRunes(c.extractText(ctx, entry, link), textCap)
			if n := utf8.RuneCountInString(body); n < minBodyWarn {
				logger.Warn("short body, keeping", "chars", n, "url", link)
			}

			item := storage.Item{
				ID:    DocID(link, entry.Title, entry.GUID),
				URL:   link,
				TS:    ts,
				Title: extract.CleanText(entry.Title),
				Text:  body,
			}

			inserted, err := c.store.InsertItem(ctx, item)
			if err != nil {
				logger.Error("item insert failed", "url", link, "error", err)
				metrics.Global.IncrementPersistErrors()
				continue
			}
			if inserted {
				stats.Inserted++
			} else {
				stats.Skipped++
			}
		}
	}

	metrics.Global.AddItemsIngested(stats.Inserted)
	metrics.Global.AddItemsSkipped(stats.Skipped)
	logger.Info("ingestion finished", "feeds", stats.Feeds, "inserted", stats.Inserted, "skipped", stats.Skipped)
	return stats, nil
}

// extractText tries feed-embedded HTML first, then the article page, then the
// bare summary text.
func (c *Collector) extractText(ctx context.Context, entry *gofeed.Item, link string) string {
	best := ""
	for _, candidate := range []string{entry.Content, entry.Description} {
		if candidate == "" {
			continue
		}
		if txt := extract.FromHTML(candidate, link); len(txt) > len(best) {
			best = txt
		}
	}
	if best != "" {
		return best
	}

	if link != "" && c.pages != nil {
		if page, err := c.pages.Page(ctx, link); err == nil {
			if txt := extract.FromHTML(page, link); txt != "" {
				return txt
			}
		} else {
			logger.Debug("page fetch failed", "url", link, "error", err)
		}
	}

	return extract.CleanText(entry.Description)
}

// DocID derives the stable document id from url, title and the feed's own
// entry id. Identical inputs always map to the same id.
func DocID(link, title, entryID string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{link, title, entryID} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	base := strings.Join(parts, "|")
	if base == "" {
		base = fmt.Sprintf("%d", time.Now().UnixNano())
	}

	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}

// capRunes truncates on rune boundaries so stored text stays valid UTF-8.
func capRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func pickURL(entry *gofeed.Item) string {
	if entry.Link != "" {
		return entry.Link
	}
	if strings.HasPrefix(entry.GUID, "http") {
		return entry.GUID
	}
	for _, l := range entry.Links {
		if l != "" {
			return l
		}
	}
	return ""
}

func entryTime(entry *gofeed.Item) time.Time {
	if entry.PublishedParsed != nil {
		return entry.PublishedParsed.UTC()
	}
	if entry.UpdatedParsed != nil {
		return entry.UpdatedParsed.UTC()
	}
	return time.Now().UTC()
}
