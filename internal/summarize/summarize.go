// Package summarize turns cluster representatives into short neutral
// narratives, with a deterministic fallback when the model is unavailable.
package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"osmon/internal/config"
	"osmon/internal/logger"
	"osmon/internal/metrics"
	"osmon/internal/ratelimit"
	"osmon/internal/retry"
	"osmon/internal/storage"
)

const (
	contextBlobCap = 6500

	// How many top-scored clusters one pass considers. Independent of the
	// model-call budget; clusters past the budget still get fallback text.
	topClusterLimit = 24
)

// Retry policy for model calls; throttling responses resolve within a couple
// of doubled delays.
var modelRetry = retry.Config{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true}

// Generator produces text from a prompt. The Gemini client satisfies it; nil
// means every cluster takes the fallback path.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

type repInput struct {
	Title string
	URL   string
	Text  string
}

// Summarizer writes narrative text for the highest scored clusters.
type Summarizer struct {
	store  *storage.Store
	cfg    *config.Config
	gen    Generator
	budget *ratelimit.Budget
}

func New(store *storage.Store, cfg *config.Config, gen Generator, budget *ratelimit.Budget) *Summarizer {
	return &Summarizer{store: store, cfg: cfg, gen: gen, budget: budget}
}

// Run summarizes the top clusters by score. Every selected cluster ends up
// with well-formed summary text even when the model call fails.
func (s *Summarizer) Run(ctx context.Context) (int, error) {
	clusters, err := s.store.TopClusters(ctx, topClusterLimit)
	if err != nil {
		return 0, fmt.Errorf("loading top clusters: %w", err)
	}

	done := 0
	for _, c := range clusters {
		if err := ctx.Err(); err != nil {
			return done, err
		}

		reps, err := s.loadReps(ctx, c)
		if err != nil {
			logger.Error("loading representatives failed", "cluster", c.ID, "error", err)
			continue
		}
		if len(reps) == 0 {
			continue
		}

		summary := s.summarize(ctx, reps)
		if err := s.store.SetClusterSummary(ctx, c.ID, summary); err != nil {
			logger.Error("storing summary failed", "cluster", c.ID, "error", err)
			continue
		}
		done++
		metrics.Global.AddClustersSummarized(1)
	}

	logger.Info("summarization done", "clusters", done, "model_calls", s.budget.Used())
	return done, nil
}

func (s *Summarizer) loadReps(ctx context.Context, c storage.Cluster) ([]repInput, error) {
	items, err := s.store.ItemsByIDs(ctx, c.RepItemIDs)
	if err != nil {
		return nil, err
	}
	reps := make([]repInput, len(items))
	for i, it := range items {
		reps[i] = repInput{Title: it.Title, URL: it.URL, Text: it.Text}
	}
	return reps, nil
}

func (s *Summarizer) summarize(ctx context.Context, reps []repInput) string {
	if s.gen == nil || !s.budget.Allow() {
		return fallbackSummary(reps)
	}

	var raw string
	err := retry.Do(ctx, modelRetry, func() error {
		var genErr error
		raw, genErr = s.gen.GenerateText(ctx, buildPrompt(reps))
		return genErr
	})
	if err != nil {
		logger.Warn("model summary failed, using fallback", "error", err)
		metrics.Global.IncrementModelFallbacks()
		return fallbackSummary(reps)
	}
	return enforceFormat(raw, reps)
}

func buildPrompt(reps []repInput) string {
	var b strings.Builder
	b.WriteString("You are an OSINT analyst. Summarize the story below in exactly three bullet points, ")
	b.WriteString("each at most 60 words, neutral paraphrase only, no speculation. ")
	b.WriteString("Finish with one line starting with \"Entities:\" listing the key actors, places and organizations.\n\nSources:\n")

	for _, r := range reps {
		entry := fmt.Sprintf("- %s\n  %s\n  %s\n", r.Title, r.URL, excerpt(r.Text, 800))
		if b.Len()+len(entry) > contextBlobCap {
			break
		}
		b.WriteString(entry)
	}
	return b.String()
}

// fallbackSummary builds the degraded summary from titles and hostnames.
func fallbackSummary(reps []repInput) string {
	var b strings.Builder
	count := 0
	for _, r := range reps {
		if count >= bulletCount {
			break
		}
		if t := strings.TrimSpace(r.Title); t != "" {
			b.WriteString("- ")
			b.WriteString(truncateWords(t, maxBulletWords))
			b.WriteString("\n")
			count++
		}
	}
	for count < bulletCount {
		b.WriteString("- No further details available in the source material.\n")
		count++
	}
	b.WriteString("Entities: ")
	b.WriteString(entitiesFallback(reps))
	return b.String()
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
