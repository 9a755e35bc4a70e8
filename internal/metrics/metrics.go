package metrics

import (
	"sync"
	"time"
)

// Metrics tracks per-run pipeline counters for the monitoring endpoints.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	ItemsIngested      int64
	ItemsSkipped       int64
	ItemsEnriched      int64
	ClustersUpserted   int64
	ClustersSummarized int64
	FeedErrors         int64
	PersistErrors      int64
	ModelCalls         int64
	ModelFallbacks     int64

	// Timings
	LastRunDuration time.Duration

	// Status
	LastStage     string
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) AddItemsIngested(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsIngested += int64(n)
}

func (m *Metrics) AddItemsSkipped(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsSkipped += int64(n)
}

func (m *Metrics) AddItemsEnriched(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsEnriched += int64(n)
}

func (m *Metrics) AddClustersUpserted(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClustersUpserted += int64(n)
}

func (m *Metrics) AddClustersSummarized(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClustersSummarized += int64(n)
}

func (m *Metrics) IncrementFeedErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FeedErrors++
}

func (m *Metrics) IncrementPersistErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PersistErrors++
}

func (m *Metrics) IncrementModelCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ModelCalls++
}

func (m *Metrics) IncrementModelFallbacks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ModelFallbacks++
}

func (m *Metrics) SetRunFinished(stage string, took time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastStage = stage
	m.LastRunTime = time.Now()
	m.LastRunDuration = took
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"items_ingested":       m.ItemsIngested,
		"items_skipped":        m.ItemsSkipped,
		"items_enriched":       m.ItemsEnriched,
		"clusters_upserted":    m.ClustersUpserted,
		"clusters_summarized":  m.ClustersSummarized,
		"feed_errors":          m.FeedErrors,
		"persist_errors":       m.PersistErrors,
		"model_calls":          m.ModelCalls,
		"model_fallbacks":      m.ModelFallbacks,
		"last_stage":           m.LastStage,
		"last_run_duration_ms": m.LastRunDuration.Milliseconds(),
		"last_run_time":        m.LastRunTime.Format(time.RFC3339),
		"last_error_time":      m.LastErrorTime.Format(time.RFC3339),
		"last_error":           m.LastError,
		"is_healthy":           m.IsHealthy,
	}
}
