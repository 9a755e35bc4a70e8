// Package cluster partitions recently ingested documents into story groups
// and persists qualifying groups with a stable, order-independent identity.
package cluster

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"osmon/internal/config"
	"osmon/internal/logger"
	"osmon/internal/metrics"
	"osmon/internal/storage"
)

// ErrUnavailable marks a pass that could not run at all, as opposed to a
// runtime failure mid-pass. Quality mode without an embedding backend is the
// main producer.
var ErrUnavailable = errors.New("clustering unavailable")

// Embedder produces a dense vector for a document, used in quality mode.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Stats summarizes one clustering pass.
type Stats struct {
	Items int
	Kept  int
}

// Engine runs one clustering pass over the recent document window.
type Engine struct {
	store    *storage.Store
	cfg      *config.Config
	embedder Embedder
	now      func() time.Time
}

func New(store *storage.Store, cfg *config.Config, embedder Embedder) *Engine {
	return &Engine{store: store, cfg: cfg, embedder: embedder, now: time.Now}
}

// Run loads the lookback window, partitions it, and upserts qualifying
// groups. A feature-computation failure aborts the pass; per-group
// persistence errors are handled inside the store.
func (e *Engine) Run(ctx context.Context) (Stats, error) {
	now := e.now().UTC()
	since := now.Add(-time.Duration(e.cfg.Clustering.LookbackHours) * time.Hour)

	all, err := e.store.RecentItems(ctx, since)
	if err != nil {
		return Stats{}, fmt.Errorf("loading window: %w", err)
	}

	items := all[:0]
	for _, it := range all {
		if strings.TrimSpace(it.Text) != "" || strings.TrimSpace(it.Title) != "" {
			items = append(items, it)
		}
	}

	stats := Stats{Items: len(items)}
	if len(items) < e.cfg.Clustering.MinClusterSize {
		logger.Info("too few documents to cluster", "items", len(items), "since", since)
		return stats, nil
	}

	contents := make([]string, len(items))
	for i, it := range items {
		contents[i] = capRunes(it.Title+" "+it.Text, e.cfg.Clustering.ContentCap)
	}

	labels, err := e.partition(ctx, contents)
	if err != nil {
		return stats, err
	}

	clusters := e.buildClusters(items, labels, since, now)
	kept, err := e.store.UpsertClusters(ctx, clusters)
	if err != nil {
		return stats, fmt.Errorf("persisting clusters: %w", err)
	}
	stats.Kept = kept
	metrics.Global.AddClustersUpserted(kept)

	logger.Info("clustering pass done",
		"mode", e.cfg.Clustering.Mode, "items", stats.Items, "kept", stats.Kept)
	return stats, nil
}

func (e *Engine) partition(ctx context.Context, contents []string) ([]int, error) {
	if e.cfg.Clustering.Mode == config.ModeQuality {
		return e.partitionQuality(ctx, contents)
	}
	return e.partitionLight(contents)
}

func (e *Engine) partitionLight(contents []string) ([]int, error) {
	vecs := tfidfVectors(contents, e.cfg.Clustering.TFIDFMaxDF, e.cfg.Clustering.TFIDFMinDF)
	if vecs == nil {
		return nil, fmt.Errorf("%w: empty vocabulary after frequency filtering", ErrUnavailable)
	}
	return kmeansLabels(vecs, chooseK(len(contents))), nil
}

func (e *Engine) partitionQuality(ctx context.Context, contents []string) ([]int, error) {
	if e.embedder == nil {
		return nil, fmt.Errorf("%w: quality mode needs an embedding backend", ErrUnavailable)
	}

	vecs := make([][]float64, len(contents))
	for i, c := range contents {
		raw, err := e.embedder.Embed(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("%w: embedding document %d: %v", ErrUnavailable, i, err)
		}
		vecs[i] = normDense(raw)
	}
	return aggloLabels(vecs, e.cfg.Clustering.DistanceThreshold), nil
}

func (e *Engine) buildClusters(items []storage.Item, labels []int, windowStart, now time.Time) []storage.Cluster {
	groups := make(map[int][]storage.Item)
	order := make([]int, 0)
	for i, label := range labels {
		if _, seen := groups[label]; !seen {
			order = append(order, label)
		}
		groups[label] = append(groups[label], items[i])
	}
	sort.Ints(order)

	var clusters []storage.Cluster
	for _, label := range order {
		members := groups[label]
		if len(members) < e.cfg.Clustering.MinClusterSize {
			continue
		}

		startTS, endTS := memberSpan(members, windowStart, now)

		topic := "misc"
		if len(members[0].Topics) > 0 {
			topic = members[0].Topics[0]
		}

		reps := make([]storage.Item, len(members))
		copy(reps, members)
		sort.SliceStable(reps, func(i, j int) bool { return reps[i].TS.After(reps[j].TS) })
		if len(reps) > e.cfg.Clustering.MaxRepItems {
			reps = reps[:e.cfg.Clustering.MaxRepItems]
		}
		repIDs := make([]string, len(reps))
		for i, r := range reps {
			repIDs[i] = r.ID
		}

		memberIDs := make([]string, len(members))
		for i, m := range members {
			memberIDs[i] = m.ID
		}

		clusters = append(clusters, storage.Cluster{
			ID:         StableID(memberIDs),
			Topic:      topic,
			StartTS:    startTS,
			EndTS:      endTS,
			Size:       len(members),
			Score:      scoreFor(len(members), endTS, now),
			RepItemIDs: repIDs,
		})
	}
	return clusters
}

// StableID hashes the sorted member id set, so the same membership yields the
// same cluster identity regardless of input order or run.
func StableID(memberIDs []string) string {
	ids := make([]string, len(memberIDs))
	copy(ids, memberIDs)
	sort.Strings(ids)
	sum := md5.Sum([]byte(strings.Join(ids, "|")))
	return hex.EncodeToString(sum[:])
}

// chooseK picks the k-means group count from corpus size: small corpora get
// 2, larger ones roughly sqrt(n/2) capped at 24.
func chooseK(n int) int {
	if n <= 8 {
		return 2
	}
	k := int(math.Round(math.Sqrt(float64(n) / 2)))
	if k < 2 {
		k = 2
	}
	if k > 24 {
		k = 24
	}
	return k
}

// scoreFor favors big and fresh groups. Recency contributes at most 2 points
// and decays with hours since the newest member.
func scoreFor(size int, endTS, now time.Time) float64 {
	hours := now.Sub(endTS).Hours()
	if hours < 1 {
		hours = 1
	}
	return float64(size) + 2.0/hours
}

func memberSpan(members []storage.Item, windowStart, now time.Time) (time.Time, time.Time) {
	start, end := time.Time{}, time.Time{}
	for _, m := range members {
		if m.TS.IsZero() {
			continue
		}
		if start.IsZero() || m.TS.Before(start) {
			start = m.TS
		}
		if end.IsZero() || m.TS.After(end) {
			end = m.TS
		}
	}
	if start.IsZero() {
		start = windowStart
	}
	if end.IsZero() {
		end = now
	}
	return start, end
}

func normDense(v []float32) []float64 {
	out := make([]float64, len(v))
	var sum float64
	for i, x := range v {
		f := float64(x)
		out[i] = f
		sum += f * f
	}
	n := math.Sqrt(sum)
	if n == 0 {
		return out
	}
	for i := range out {
		out[i] /= n
	}
	return out
}

func capRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
