// Package config loads and sanitizes monitor.yaml plus environment overrides.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"osmon/internal/logger"
)

const (
	postgresURLEnv = "POSTGRES_URL"
	monitorYAMLEnv = "MONITOR_YAML"
	geminiKeyEnv   = "GEMINI_API_KEY"

	defaultConfigPath = "config/monitor.yaml"
)

// Classification methods accepted in monitor.yaml.
const (
	MethodHybrid    = "hybrid"
	MethodKeywords  = "keywords"
	MethodEmbedding = "embedding"
)

// Clustering modes.
const (
	ModeLight   = "light"
	ModeQuality = "quality"
)

// Config is the full runtime configuration shared by all pipeline stages.
type Config struct {
	PostgresURL string

	Topics          []string
	Keywords        map[string][]string
	LanguagesPrefer []string
	Filters         map[string]TopicFilter

	Summaries      SummariesConfig
	Classification ClassificationConfig
	Sources        SourcesConfig
	Clustering     ClusteringConfig
	Enrich         EnrichConfig
	HTTP           HTTPConfig
	Gemini         GeminiConfig

	DigestDir string
}

// TopicFilter holds per-topic exclusion fragments.
type TopicFilter struct {
	Exclude []string
}

// SummariesConfig controls digest sizing.
type SummariesConfig struct {
	DailyTopClusters  int
	BulletsPerCluster int
}

// ClassificationConfig drives the tagger.
type ClassificationConfig struct {
	Method         string
	KeywordMinHits int
	EmbedCosine    float64
	Anchors        map[string][]string
	Negatives      map[string][]string
}

// SourcesConfig lists feed URLs to ingest.
type SourcesConfig struct {
	RSS    []string
	Reddit RedditConfig
}

// RedditConfig mirrors the sources.reddit subtree: plain subreddit feeds,
// named search feeds, and per-subreddit topic searches.
type RedditConfig struct {
	Subs         []string
	SearchRSS    map[string][]string
	PerSubSearch map[string]map[string][]string
}

// ClusteringConfig holds all knobs of the clustering pass.
type ClusteringConfig struct {
	LookbackHours     int
	Mode              string
	MinClusterSize    int
	MaxRepItems       int
	TFIDFMaxDF        float64
	TFIDFMinDF        int
	DistanceThreshold float64
	ContentCap        int
}

// EnrichConfig bounds the enrichment batch.
type EnrichConfig struct {
	BatchLimit int
	TextCap    int
}

// HTTPConfig bounds outbound page/feed fetches.
type HTTPConfig struct {
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

// GeminiConfig wires the model used for summaries and embeddings.
type GeminiConfig struct {
	APIKey           string
	SummaryModel     string
	EmbedModel       string
	MaxModelRequests int
}

// rawConfig is the yaml shape of monitor.yaml before sanitization.
type rawConfig struct {
	Topics          []string            `yaml:"topics"`
	Keywords        map[string][]string `yaml:"keywords"`
	LanguagesPrefer []string            `yaml:"languages_prefer"`
	Summaries       struct {
		DailyTopClusters  int `yaml:"daily_top_clusters"`
		BulletsPerCluster int `yaml:"bullets_per_cluster"`
	} `yaml:"summaries"`
	Filters map[string]struct {
		Exclude []string `yaml:"exclude"`
	} `yaml:"filters"`
	Classification struct {
		Method     string `yaml:"method"`
		Thresholds struct {
			KeywordMinHits int     `yaml:"keyword_min_hits"`
			EmbedCosine    float64 `yaml:"embed_cosine"`
		} `yaml:"thresholds"`
		Anchors   map[string][]string `yaml:"anchors"`
		Negatives map[string][]string `yaml:"negatives"`
	} `yaml:"classification"`
	Sources struct {
		RSS    []string `yaml:"rss"`
		Reddit struct {
			Subs         []string                       `yaml:"subs"`
			SearchRSS    map[string][]string            `yaml:"search_rss"`
			PerSubSearch map[string]map[string][]string `yaml:"per_sub_search"`
		} `yaml:"reddit"`
	} `yaml:"sources"`
	Clustering struct {
		LookbackHours     int     `yaml:"lookback_hours"`
		Mode              string  `yaml:"mode"`
		MinClusterSize    int     `yaml:"min_cluster_size"`
		MaxRepItems       int     `yaml:"max_rep_items"`
		TFIDFMaxDF        float64 `yaml:"tfidf_max_df"`
		TFIDFMinDF        int     `yaml:"tfidf_min_df"`
		DistanceThreshold float64 `yaml:"distance_threshold"`
	} `yaml:"clustering"`
}

var urlRe = regexp.MustCompile(`(?i)^https?://`)

// Load reads monitor.yaml (path from MONITOR_YAML or the default), sanitizes
// it, applies environment overrides and validates required fields.
func Load() (*Config, error) {
	path := os.Getenv(monitorYAMLEnv)
	if path == "" {
		path = defaultConfigPath
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit config path (used by tests).
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg := defaults()
	cfg.PostgresURL = strings.TrimSpace(os.Getenv(postgresURLEnv))

	cfg.Topics = dedupeKeepOrder(trimAll(raw.Topics))
	cfg.Keywords = sanitizeTopicMap(raw.Keywords, cfg.Topics, "keywords")

	if langs := dedupeKeepOrder(trimAll(raw.LanguagesPrefer)); len(langs) > 0 {
		cfg.LanguagesPrefer = langs
	}

	if raw.Summaries.DailyTopClusters > 0 {
		cfg.Summaries.DailyTopClusters = raw.Summaries.DailyTopClusters
	}
	if raw.Summaries.BulletsPerCluster > 0 {
		cfg.Summaries.BulletsPerCluster = raw.Summaries.BulletsPerCluster
	}

	cfg.Filters = make(map[string]TopicFilter, len(cfg.Topics))
	for _, t := range cfg.Topics {
		block := raw.Filters[t]
		cfg.Filters[t] = TopicFilter{Exclude: dedupeKeepOrder(trimAll(block.Exclude))}
	}

	if m := strings.ToLower(strings.TrimSpace(raw.Classification.Method)); m != "" {
		if m == MethodHybrid || m == MethodKeywords || m == MethodEmbedding {
			cfg.Classification.Method = m
		} else {
			logger.Warn("invalid classification.method, using hybrid", "method", m)
		}
	}
	if raw.Classification.Thresholds.KeywordMinHits > 0 {
		cfg.Classification.KeywordMinHits = raw.Classification.Thresholds.KeywordMinHits
	}
	if raw.Classification.Thresholds.EmbedCosine > 0 {
		cfg.Classification.EmbedCosine = raw.Classification.Thresholds.EmbedCosine
	}
	cfg.Classification.Anchors = sanitizeTopicMap(raw.Classification.Anchors, cfg.Topics, "anchors")
	cfg.Classification.Negatives = sanitizeTopicMap(raw.Classification.Negatives, cfg.Topics, "negatives")

	cfg.Sources.RSS = onlyHTTPURLs(dedupeKeepOrder(trimAll(raw.Sources.RSS)))
	if len(cfg.Sources.RSS) == 0 {
		logger.Warn("no valid RSS URLs under sources.rss; ingestion may do nothing")
	}
	cfg.Sources.Reddit = RedditConfig{
		Subs:         dedupeKeepOrder(trimAll(raw.Sources.Reddit.Subs)),
		SearchRSS:    raw.Sources.Reddit.SearchRSS,
		PerSubSearch: raw.Sources.Reddit.PerSubSearch,
	}

	if raw.Clustering.LookbackHours > 0 {
		cfg.Clustering.LookbackHours = raw.Clustering.LookbackHours
	}
	if m := strings.ToLower(strings.TrimSpace(raw.Clustering.Mode)); m == ModeLight || m == ModeQuality {
		cfg.Clustering.Mode = m
	}
	if raw.Clustering.MinClusterSize > 0 {
		cfg.Clustering.MinClusterSize = raw.Clustering.MinClusterSize
	}
	if raw.Clustering.MaxRepItems > 0 {
		cfg.Clustering.MaxRepItems = raw.Clustering.MaxRepItems
	}
	if raw.Clustering.TFIDFMaxDF > 0 {
		cfg.Clustering.TFIDFMaxDF = raw.Clustering.TFIDFMaxDF
	}
	if raw.Clustering.TFIDFMinDF > 0 {
		cfg.Clustering.TFIDFMinDF = raw.Clustering.TFIDFMinDF
	}
	if raw.Clustering.DistanceThreshold > 0 {
		cfg.Clustering.DistanceThreshold = raw.Clustering.DistanceThreshold
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		LanguagesPrefer: []string{"en", "de", "ru"},
		Summaries: SummariesConfig{
			DailyTopClusters:  8,
			BulletsPerCluster: 3,
		},
		Classification: ClassificationConfig{
			Method:         MethodHybrid,
			KeywordMinHits: 1,
			EmbedCosine:    0.42,
		},
		Clustering: ClusteringConfig{
			LookbackHours:     36,
			Mode:              ModeLight,
			MinClusterSize:    3,
			MaxRepItems:       5,
			TFIDFMaxDF:        0.85,
			TFIDFMinDF:        2,
			DistanceThreshold: 0.35,
			ContentCap:        2000,
		},
		Enrich: EnrichConfig{
			BatchLimit: 2000,
			TextCap:    4000,
		},
		HTTP: HTTPConfig{
			Timeout: 20 * time.Second,
			Retries: 3,
			Backoff: 500 * time.Millisecond,
		},
		Gemini: GeminiConfig{
			SummaryModel:     "gemini-1.5-flash",
			EmbedModel:       "text-embedding-004",
			MaxModelRequests: 24,
		},
		DigestDir: "digests",
	}
}

func (c *Config) applyEnvOverrides() {
	c.Gemini.APIKey = os.Getenv(geminiKeyEnv)
	if v := os.Getenv("GEMINI_SUMMARY_MODEL"); v != "" {
		c.Gemini.SummaryModel = v
	}
	if v := os.Getenv("GEMINI_EMBED_MODEL"); v != "" {
		c.Gemini.EmbedModel = v
	}
	c.Gemini.MaxModelRequests = envInt("MAX_MODEL_REQUESTS", c.Gemini.MaxModelRequests)

	c.Clustering.LookbackHours = envInt("CLUSTER_LOOKBACK_HOURS", c.Clustering.LookbackHours)
	c.Clustering.MinClusterSize = envInt("MIN_CLUSTER_SIZE", c.Clustering.MinClusterSize)
	c.Clustering.MaxRepItems = envInt("MAX_REP_ITEMS", c.Clustering.MaxRepItems)
	c.Clustering.TFIDFMaxDF = envFloat("TFIDF_MAX_DF", c.Clustering.TFIDFMaxDF)
	c.Clustering.TFIDFMinDF = envInt("TFIDF_MIN_DF", c.Clustering.TFIDFMinDF)
	c.Clustering.DistanceThreshold = envFloat("AGGLO_DISTANCE_THRESHOLD", c.Clustering.DistanceThreshold)
	if v := os.Getenv("LIGHT_CLUSTER"); v != "" {
		if v == "1" {
			c.Clustering.Mode = ModeLight
		} else {
			c.Clustering.Mode = ModeQuality
		}
	}

	if v := strings.ToLower(os.Getenv("ENRICH_METHOD")); v != "" {
		if v == MethodHybrid || v == MethodKeywords || v == MethodEmbedding {
			c.Classification.Method = v
		}
	}
	c.Enrich.BatchLimit = envInt("ENRICH_BATCH_LIMIT", c.Enrich.BatchLimit)
	c.Enrich.TextCap = envInt("ENRICH_TEXT_CAP", c.Enrich.TextCap)
	c.Classification.EmbedCosine = envFloat("ENRICH_EMBED_COS", c.Classification.EmbedCosine)
	c.Classification.KeywordMinHits = envInt("ENRICH_KEYWORD_MIN", c.Classification.KeywordMinHits)

	if v := envInt("RSS_TIMEOUT", 0); v > 0 {
		c.HTTP.Timeout = time.Duration(v) * time.Second
	}
	c.HTTP.Retries = envInt("HTTP_RETRIES", c.HTTP.Retries)
	if v := envFloat("HTTP_BACKOFF", 0); v > 0 {
		c.HTTP.Backoff = time.Duration(v * float64(time.Second))
	}

	if v := os.Getenv("DIGEST_DIR"); v != "" {
		c.DigestDir = v
	}
}

// Validate checks the required fields common to every stage.
func (c *Config) Validate() error {
	if c.PostgresURL == "" {
		return fmt.Errorf("POSTGRES_URL is required")
	}
	if len(c.Topics) == 0 {
		return fmt.Errorf("monitor.yaml: 'topics' is required and must be a non-empty list")
	}
	if c.Clustering.Mode != ModeLight && c.Clustering.Mode != ModeQuality {
		return fmt.Errorf("clustering.mode must be %q or %q", ModeLight, ModeQuality)
	}
	return nil
}

// RedditURLs flattens the reddit subtree into a deduplicated URL list,
// preserving discovery order.
func (c *Config) RedditURLs() []string {
	var urls []string
	urls = append(urls, c.Sources.Reddit.Subs...)
	for _, lst := range c.Sources.Reddit.SearchRSS {
		urls = append(urls, lst...)
	}
	for _, topics := range c.Sources.Reddit.PerSubSearch {
		for _, lst := range topics {
			urls = append(urls, lst...)
		}
	}
	return dedupeKeepOrder(trimAll(urls))
}

// FeedURLs merges plain RSS sources with reddit feeds, deduplicated.
func (c *Config) FeedURLs() []string {
	merged := append([]string{}, c.Sources.RSS...)
	merged = append(merged, c.RedditURLs()...)
	return dedupeKeepOrder(merged)
}

func sanitizeTopicMap(in map[string][]string, topics []string, label string) map[string][]string {
	out := make(map[string][]string, len(topics))
	for _, t := range topics {
		out[t] = nil
	}
	for k, v := range in {
		key := strings.TrimSpace(k)
		if _, ok := out[key]; !ok {
			logger.Warn("ignoring entry for unknown topic", "section", label, "topic", key)
			continue
		}
		out[key] = dedupeKeepOrder(trimAll(v))
	}
	return out
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func dedupeKeepOrder(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func onlyHTTPURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if urlRe.MatchString(u) {
			out = append(out, u)
		} else {
			logger.Warn("dropping non-http(s) source URL", "url", u)
		}
	}
	return out
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
