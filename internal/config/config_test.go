package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleYAML = `
topics:
  - drones
  - sanctions
keywords:
  drones: ["drone", "uav", "drone"]
  sanctions: ["sanctions"]
  unknown_topic: ["ignored"]
languages_prefer: ["en", "uk"]
filters:
  drones:
    exclude: ["drone racing"]
classification:
  method: hybrid
  thresholds:
    keyword_min_hits: 1
    embed_cosine: 0.5
sources:
  rss:
    - https://example.com/feed.xml
    - https://example.com/feed.xml
    - not-a-url
  reddit:
    subs:
      - https://www.reddit.com/r/geopolitics/.rss
    search_rss:
      drones:
        - https://www.reddit.com/search.rss?q=drone
clustering:
  lookback_hours: 48
  mode: light
  min_cluster_size: 4
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "monitor.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	t.Setenv("POSTGRES_URL", "postgres://test")

	cfg, err := LoadFile(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if diff := cmp.Diff([]string{"drones", "sanctions"}, cfg.Topics); diff != "" {
		t.Errorf("topics mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"drone", "uav"}, cfg.Keywords["drones"]); diff != "" {
		t.Errorf("keywords not deduped (-want +got):\n%s", diff)
	}
	if _, ok := cfg.Keywords["unknown_topic"]; ok {
		t.Error("keywords for unknown topic not dropped")
	}
	if diff := cmp.Diff([]string{"https://example.com/feed.xml"}, cfg.Sources.RSS); diff != "" {
		t.Errorf("rss sources mismatch (-want +got):\n%s", diff)
	}
	if cfg.Clustering.LookbackHours != 48 || cfg.Clustering.MinClusterSize != 4 {
		t.Errorf("clustering block not applied: %+v", cfg.Clustering)
	}
	if cfg.Classification.EmbedCosine != 0.5 {
		t.Errorf("embed_cosine = %v, want 0.5", cfg.Classification.EmbedCosine)
	}
	if got := cfg.Filters["drones"].Exclude; len(got) != 1 || got[0] != "drone racing" {
		t.Errorf("filters = %v", got)
	}

	// Defaults survive where the file is silent.
	if cfg.Clustering.MaxRepItems != 5 {
		t.Errorf("MaxRepItems default = %d, want 5", cfg.Clustering.MaxRepItems)
	}
	if cfg.Gemini.SummaryModel == "" || cfg.Gemini.EmbedModel == "" {
		t.Error("model defaults missing")
	}
}

func TestLoadFileRequiresPostgresURL(t *testing.T) {
	t.Setenv("POSTGRES_URL", "")
	if _, err := LoadFile(writeConfig(t, sampleYAML)); err == nil {
		t.Fatal("expected error without POSTGRES_URL")
	}
}

func TestLoadFileRequiresTopics(t *testing.T) {
	t.Setenv("POSTGRES_URL", "postgres://test")
	if _, err := LoadFile(writeConfig(t, "topics: []\n")); err == nil {
		t.Fatal("expected error for empty topics")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("POSTGRES_URL", "postgres://test")
	t.Setenv("CLUSTER_LOOKBACK_HOURS", "12")
	t.Setenv("MIN_CLUSTER_SIZE", "2")
	t.Setenv("AGGLO_DISTANCE_THRESHOLD", "0.25")
	t.Setenv("LIGHT_CLUSTER", "0")

	cfg, err := LoadFile(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Clustering.LookbackHours != 12 {
		t.Errorf("LookbackHours = %d, want env override 12", cfg.Clustering.LookbackHours)
	}
	if cfg.Clustering.MinClusterSize != 2 {
		t.Errorf("MinClusterSize = %d, want 2", cfg.Clustering.MinClusterSize)
	}
	if cfg.Clustering.DistanceThreshold != 0.25 {
		t.Errorf("DistanceThreshold = %v, want 0.25", cfg.Clustering.DistanceThreshold)
	}
	if cfg.Clustering.Mode != ModeQuality {
		t.Errorf("Mode = %q, want quality when LIGHT_CLUSTER=0", cfg.Clustering.Mode)
	}
}

func TestFeedURLs(t *testing.T) {
	t.Setenv("POSTGRES_URL", "postgres://test")

	cfg, err := LoadFile(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	want := []string{
		"https://example.com/feed.xml",
		"https://www.reddit.com/r/geopolitics/.rss",
		"https://www.reddit.com/search.rss?q=drone",
	}
	if diff := cmp.Diff(want, cfg.FeedURLs()); diff != "" {
		t.Errorf("FeedURLs mismatch (-want +got):\n%s", diff)
	}
}
