package cluster

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"osmon/internal/config"
	"osmon/internal/storage"
)

func testEngine() *Engine {
	return &Engine{
		cfg: &config.Config{
			Clustering: config.ClusteringConfig{
				LookbackHours:     36,
				Mode:              config.ModeLight,
				MinClusterSize:    3,
				MaxRepItems:       5,
				TFIDFMaxDF:        0.85,
				TFIDFMinDF:        2,
				DistanceThreshold: 0.35,
				ContentCap:        2000,
			},
		},
		now: time.Now,
	}
}

func TestStableID(t *testing.T) {
	a := StableID([]string{"x", "y", "z"})
	b := StableID([]string{"z", "x", "y"})
	if a != b {
		t.Errorf("id depends on member order: %s vs %s", a, b)
	}
	if len(a) != 32 {
		t.Errorf("id length = %d, want 32 hex chars", len(a))
	}
	if c := StableID([]string{"x", "y"}); c == a {
		t.Error("different membership produced the same id")
	}
}

func TestChooseK(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{3, 2},
		{8, 2},
		{9, 2},
		{18, 3},
		{50, 5},
		{200, 10},
		{5000, 24},
	}
	for _, tt := range tests {
		if got := chooseK(tt.n); got != tt.want {
			t.Errorf("chooseK(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestScoreFor(t *testing.T) {
	now := time.Now()

	fresh := scoreFor(5, now, now)
	if fresh != 7 {
		t.Errorf("fresh score = %v, want 7", fresh)
	}

	old := scoreFor(5, now.Add(-10*time.Hour), now)
	if old >= fresh {
		t.Errorf("older cluster scored >= fresher one: %v vs %v", old, fresh)
	}
	if old <= 5 {
		t.Errorf("recency bonus missing: %v", old)
	}
}

func TestBuildClusters(t *testing.T) {
	e := testEngine()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	windowStart := now.Add(-36 * time.Hour)

	ts := func(h int) time.Time { return now.Add(-time.Duration(h) * time.Hour) }
	items := []storage.Item{
		{ID: "a", TS: ts(5), Topics: []string{"energy", "sanctions"}},
		{ID: "b", TS: ts(2)},
		{ID: "c", TS: ts(9)},
		{ID: "d", TS: ts(1)}, // lone group, below min size
	}
	labels := []int{0, 0, 0, 1}

	clusters := e.buildClusters(items, labels, windowStart, now)
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}

	c := clusters[0]
	if c.ID != StableID([]string{"a", "b", "c"}) {
		t.Errorf("unexpected cluster id %s", c.ID)
	}
	if c.Topic != "energy" {
		t.Errorf("topic = %q, want energy (first member's head tag)", c.Topic)
	}
	if c.Size != 3 {
		t.Errorf("size = %d, want 3", c.Size)
	}
	if !c.StartTS.Equal(ts(9)) || !c.EndTS.Equal(ts(2)) {
		t.Errorf("span = %v..%v, want %v..%v", c.StartTS, c.EndTS, ts(9), ts(2))
	}
	if diff := cmp.Diff([]string{"b", "a", "c"}, c.RepItemIDs); diff != "" {
		t.Errorf("reps not newest-first (-want +got):\n%s", diff)
	}
	if c.Score <= 3 {
		t.Errorf("score = %v, want > size", c.Score)
	}
}

func TestBuildClustersDefaultsTopicToMisc(t *testing.T) {
	e := testEngine()
	now := time.Now().UTC()
	items := []storage.Item{
		{ID: "a", TS: now}, {ID: "b", TS: now}, {ID: "c", TS: now},
	}
	clusters := e.buildClusters(items, []int{0, 0, 0}, now.Add(-time.Hour), now)
	if len(clusters) != 1 || clusters[0].Topic != "misc" {
		t.Fatalf("got %+v, want one misc cluster", clusters)
	}
}

func TestBuildClustersCapsReps(t *testing.T) {
	e := testEngine()
	now := time.Now().UTC()
	var items []storage.Item
	labels := make([]int, 7)
	for i := 0; i < 7; i++ {
		items = append(items, storage.Item{
			ID: string(rune('a' + i)),
			TS: now.Add(-time.Duration(i) * time.Hour),
		})
	}
	clusters := e.buildClusters(items, labels, now.Add(-36*time.Hour), now)
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	if got := clusters[0].RepItemIDs; len(got) != 5 || got[0] != "a" {
		t.Errorf("reps = %v, want 5 newest-first starting at a", got)
	}
	if clusters[0].Size != 7 {
		t.Errorf("size = %d, want full membership 7", clusters[0].Size)
	}
}

func TestPartitionLightGroupsIdenticalDocs(t *testing.T) {
	e := testEngine()
	docs := []string{
		"missile strike hits port infrastructure overnight",
		"missile strike hits port infrastructure overnight",
		"missile strike hits port infrastructure overnight",
		"missile strike hits port infrastructure overnight",
		"missile strike hits port infrastructure overnight",
		"central bank announces interest rate decision today",
		"central bank announces interest rate decision today",
		"central bank announces interest rate decision today",
		"central bank announces interest rate decision today",
	}

	labels, err := e.partitionLight(docs)
	if err != nil {
		t.Fatalf("partitionLight: %v", err)
	}
	for i := 1; i < 5; i++ {
		if labels[i] != labels[0] {
			t.Errorf("identical docs split: labels=%v", labels)
		}
	}
	for i := 6; i < 9; i++ {
		if labels[i] != labels[5] {
			t.Errorf("identical docs split: labels=%v", labels)
		}
	}
	if labels[0] == labels[5] {
		t.Errorf("distinct stories merged: labels=%v", labels)
	}
}

func TestPartitionQualityNeedsEmbedder(t *testing.T) {
	e := testEngine()
	e.cfg.Clustering.Mode = config.ModeQuality

	_, err := e.partition(nil, []string{"a", "b", "c"})
	if err == nil {
		t.Fatal("expected error without embedding backend")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error %v does not wrap ErrUnavailable", err)
	}
}
