package enrich

import (
	"context"
	"fmt"
	"math"
	"sort"

	"osmon/internal/config"
	"osmon/internal/logger"
	"osmon/internal/metrics"
	"osmon/internal/storage"
)

// Embedder produces a vector for a short text. When no embedding backend is
// configured the Enricher runs keywords-only.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Stats summarizes one enrichment batch.
type Stats struct {
	Total   int
	Updated int
	Skipped int
}

// Enricher labels stored items with language and topics.
type Enricher struct {
	store    *storage.Store
	cfg      *config.Config
	embedder Embedder

	// normalized anchor vectors per topic, built lazily on Run
	anchors map[string][][]float64
}

func New(store *storage.Store, cfg *config.Config, embedder Embedder) *Enricher {
	if cfg.Classification.Method == config.MethodKeywords {
		embedder = nil
	}
	return &Enricher{store: store, cfg: cfg, embedder: embedder}
}

// Run labels one batch of unenriched items. Per-item failures are logged and
// skipped so a single bad row never stalls the pipeline.
func (e *Enricher) Run(ctx context.Context) (Stats, error) {
	if e.embedder != nil {
		if err := e.prepareAnchors(ctx); err != nil {
			logger.Warn("anchor embedding failed, falling back to keywords only", "error", err)
			e.embedder = nil
		}
	}

	items, err := e.store.UnenrichedItems(ctx, e.cfg.Enrich.BatchLimit)
	if err != nil {
		return Stats{}, fmt.Errorf("loading unenriched items: %w", err)
	}

	stats := Stats{Total: len(items)}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		lang, langConf, topics, keywords := e.label(ctx, item.Title, item.Text)

		var langPtr *string
		var confPtr *float64
		if lang != "" {
			langPtr, confPtr = &lang, &langConf
		}

		if err := e.store.UpdateEnrichment(ctx, item.ID, langPtr, confPtr, topics, keywords); err != nil {
			logger.Error("enrichment update failed", "id", item.ID, "error", err)
			stats.Skipped++
			continue
		}
		stats.Updated++
		metrics.Global.AddItemsEnriched(1)
	}

	logger.Info("enrichment batch done",
		"total", stats.Total, "updated", stats.Updated, "skipped", stats.Skipped)
	return stats, nil
}

func (e *Enricher) label(ctx context.Context, title, body string) (lang string, langConf float64, topics, keywords []string) {
	raw := title + "\n" + capRunes(body, e.cfg.Enrich.TextCap)
	lang, langConf = DetectLanguage(raw)

	textNorm := Normalize(raw)

	excludes := make(map[string][]string, len(e.cfg.Filters))
	for topic, f := range e.cfg.Filters {
		excludes[topic] = f.Exclude
	}
	topics = TagTopics(textNorm, e.cfg.Keywords, excludes, e.cfg.Classification.KeywordMinHits)

	// One document vector serves every topic comparison.
	var docVec []float64
	if e.embedder != nil {
		docVec = e.embedDoc(ctx, raw)
	}

	if docVec != nil {
		topics = e.addEmbeddingTopics(textNorm, topics, docVec, excludes)
	}

	topics = e.applyNegatives(textNorm, topics, docVec)
	sort.Strings(topics)

	for _, topic := range topics {
		keywords = append(keywords, KeywordHits(textNorm, e.cfg.Keywords[topic])...)
	}
	keywords = dedupe(keywords)

	return lang, langConf, topics, keywords
}

// addEmbeddingTopics admits topics whose anchor similarity clears the cosine
// threshold even without a keyword hit.
func (e *Enricher) addEmbeddingTopics(textNorm string, topics []string, docVec []float64, excludes map[string][]string) []string {
	have := make(map[string]bool, len(topics))
	for _, t := range topics {
		have[t] = true
	}
	for topic := range e.anchors {
		if have[topic] || excludedTopic(textNorm, excludes[topic]) {
			continue
		}
		if e.anchorScore(topic, docVec) >= e.cfg.Classification.EmbedCosine {
			topics = append(topics, topic)
		}
	}
	return topics
}

// applyNegatives drops a topic on a negative-phrase hit unless the embedding
// similarity argues strongly for keeping it.
func (e *Enricher) applyNegatives(textNorm string, topics []string, docVec []float64) []string {
	if len(e.cfg.Classification.Negatives) == 0 {
		return topics
	}
	keepThreshold := e.cfg.Classification.EmbedCosine + 0.05

	kept := topics[:0]
	for _, topic := range topics {
		negHit := false
		for _, neg := range e.cfg.Classification.Negatives[topic] {
			if tokenHit(textNorm, Normalize(neg)) {
				negHit = true
				break
			}
		}
		if negHit {
			if docVec == nil || e.anchorScore(topic, docVec) < keepThreshold {
				continue
			}
		}
		kept = append(kept, topic)
	}
	return kept
}

func (e *Enricher) prepareAnchors(ctx context.Context) error {
	e.anchors = make(map[string][][]float64, len(e.cfg.Classification.Anchors))
	for topic, phrases := range e.cfg.Classification.Anchors {
		for _, phrase := range phrases {
			vec, err := e.embedder.Embed(ctx, phrase)
			if err != nil {
				return fmt.Errorf("embedding anchor for %s: %w", topic, err)
			}
			e.anchors[topic] = append(e.anchors[topic], normalizeVec(toFloat64(vec)))
		}
	}
	return nil
}

func (e *Enricher) embedDoc(ctx context.Context, raw string) []float64 {
	vec, err := e.embedder.Embed(ctx, capRunes(raw, e.cfg.Enrich.TextCap))
	if err != nil {
		logger.Warn("document embedding failed", "error", err)
		return nil
	}
	return normalizeVec(toFloat64(vec))
}

// anchorScore is the best cosine similarity between the document vector and
// any anchor of the topic. Vectors are pre-normalized, so the dot product is
// the cosine.
func (e *Enricher) anchorScore(topic string, docVec []float64) float64 {
	best := 0.0
	for _, anchor := range e.anchors[topic] {
		if s := dot(docVec, anchor); s > best {
			best = s
		}
	}
	return best
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func normalizeVec(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	n := math.Sqrt(sum)
	if n == 0 {
		return v
	}
	for i := range v {
		v[i] /= n
	}
	return v
}

func dot(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
