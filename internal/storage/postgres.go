// Package storage persists documents and clusters in PostgreSQL. The two
// tables are the only coordination point between pipeline stages.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"osmon/internal/logger"
	"osmon/internal/metrics"
)

// Item is one ingested document. Lang/LangConf stay nil until enrichment.
type Item struct {
	ID       string
	Src      string
	Chan     *string
	URL      string
	TS       time.Time
	Lang     *string
	LangConf *float64
	Title    string
	Text     string
	Topics   []string
	Keywords []string
}

// Cluster is one topic-coherent group row. The rendered summary is stored in
// TopTerms[0]; Summary() hides that encoding.
type Cluster struct {
	ID         string
	Topic      string
	StartTS    time.Time
	EndTS      time.Time
	Size       int
	Score      float64
	TopTerms   []string
	RepItemIDs []string
}

// Summary returns the stored narrative text, empty when none was written yet.
func (c Cluster) Summary() string {
	if len(c.TopTerms) == 0 {
		return ""
	}
	return c.TopTerms[0]
}

// RepItem is the slice of an item the summarizer and digest need.
type RepItem struct {
	Title string
	URL   string
	Text  string
}

// Store wraps the database handle used by all stages.
type Store struct {
	db *sql.DB
}

// New connects to Postgres and verifies the connection.
func New(connString string) (*Store, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InitSchema creates tables and indexes if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id         TEXT PRIMARY KEY,
		src        TEXT NOT NULL DEFAULT 'rss',
		chan       TEXT,
		url        TEXT,
		ts         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		lang       TEXT,
		lang_conf  REAL CHECK (lang_conf BETWEEN 0 AND 1 OR lang_conf IS NULL),
		title      TEXT,
		text       TEXT,
		entities   JSONB  NOT NULL DEFAULT '{}'::jsonb,
		topics     TEXT[] NOT NULL DEFAULT '{}'::text[],
		keywords   TEXT[] NOT NULL DEFAULT '{}'::text[],
		hash_sim   TEXT
	);

	CREATE TABLE IF NOT EXISTS clusters (
		cluster_id   TEXT PRIMARY KEY,
		topic        TEXT,
		start_ts     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		end_ts       TIMESTAMPTZ,
		size         INT  NOT NULL DEFAULT 0,
		score        REAL NOT NULL DEFAULT 0,
		top_terms    TEXT[] NOT NULL DEFAULT '{}'::text[],
		rep_item_ids TEXT[] NOT NULL DEFAULT '{}'::text[]
	);

	CREATE INDEX IF NOT EXISTS idx_items_ts ON items (ts);
	CREATE INDEX IF NOT EXISTS idx_items_topics_gin ON items USING GIN (topics);
	CREATE INDEX IF NOT EXISTS idx_items_keywords_gin ON items USING GIN (keywords);
	CREATE INDEX IF NOT EXISTS idx_items_entities_gin ON items USING GIN (entities);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_items_url_unique ON items (url) WHERE url IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_clusters_topic_score ON clusters (topic, score);
	CREATE INDEX IF NOT EXISTS idx_clusters_end_ts ON clusters (end_ts);
	CREATE INDEX IF NOT EXISTS idx_clusters_start_ts ON clusters (start_ts);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	logger.Info("database schema initialized")
	return nil
}

// InsertItem stores a document idempotently. Returns true when a new row was
// created, false when the id already existed.
func (s *Store) InsertItem(ctx context.Context, item Item) (bool, error) {
	query := `
		INSERT INTO items (id, src, chan, url, ts, lang, lang_conf, title, text, entities, topics, keywords, hash_sim)
		VALUES ($1, 'rss', NULL, $2, $3, NULL, NULL, $4, $5, '{}'::jsonb, '{}'::text[], '{}'::text[], NULL)
		ON CONFLICT (id) DO NOTHING
	`

	res, err := s.db.ExecContext(ctx, query,
		item.ID, nullIfEmpty(item.URL), item.TS, item.Title, item.Text)
	if err != nil {
		return false, fmt.Errorf("insert item %s: %w", item.ID, err)
	}

	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UnenrichedItems loads up to limit rows that still miss language or topics,
// newest first.
func (s *Store) UnenrichedItems(ctx context.Context, limit int) ([]Item, error) {
	query := `
		SELECT id, COALESCE(title,''), COALESCE(text,''), lang, topics
		FROM items
		WHERE lang IS NULL OR topics IS NULL
		ORDER BY ts DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select unenriched items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var lang sql.NullString
		if err := rows.Scan(&it.ID, &it.Title, &it.Text, &lang, pq.Array(&it.Topics)); err != nil {
			return nil, fmt.Errorf("scan item row: %w", err)
		}
		if lang.Valid {
			it.Lang = &lang.String
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpdateEnrichment writes language and topic labels back to a row. Arrays are
// stored empty rather than NULL.
func (s *Store) UpdateEnrichment(ctx context.Context, id string, lang *string, langConf *float64, topics, keywords []string) error {
	if topics == nil {
		topics = []string{}
	}
	if keywords == nil {
		keywords = []string{}
	}

	query := `
		UPDATE items
		SET lang = $2, lang_conf = $3, topics = $4, keywords = $5
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, query, id, lang, langConf, pq.Array(topics), pq.Array(keywords))
	if err != nil {
		return fmt.Errorf("update enrichment for %s: %w", id, err)
	}
	return nil
}

// RecentItems loads every document observed since the given time.
func (s *Store) RecentItems(ctx context.Context, since time.Time) ([]Item, error) {
	query := `
		SELECT id, COALESCE(title,''), COALESCE(text,''), topics, ts
		FROM items
		WHERE ts >= $1
	`

	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("select recent items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Title, &it.Text, pq.Array(&it.Topics), &it.TS); err != nil {
			return nil, fmt.Errorf("scan item row: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpsertClusters merges a batch of cluster rows inside one transaction.
// A row that already exists keeps its id, extends its window, refreshes size
// and representatives, and never regresses its score. Individual row failures
// roll back to a savepoint and the rest of the batch proceeds.
func (s *Store) UpsertClusters(ctx context.Context, clusters []Cluster) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin cluster upsert: %w", err)
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO clusters (cluster_id, topic, start_ts, end_ts, size, score, top_terms, rep_item_ids)
		VALUES ($1, $2, $3, $4, $5, $6, '{}'::text[], $7)
		ON CONFLICT (cluster_id) DO UPDATE SET
			end_ts = EXCLUDED.end_ts,
			size   = EXCLUDED.size,
			score  = GREATEST(clusters.score, EXCLUDED.score),
			rep_item_ids = EXCLUDED.rep_item_ids
	`

	kept := 0
	for _, c := range clusters {
		if _, err := tx.ExecContext(ctx, `SAVEPOINT cluster_row`); err != nil {
			return kept, fmt.Errorf("savepoint: %w", err)
		}
		_, err := tx.ExecContext(ctx, upsert,
			c.ID, c.Topic, c.StartTS, c.EndTS, c.Size, c.Score, pq.Array(c.RepItemIDs))
		if err != nil {
			logger.Error("cluster upsert failed, skipping", "cluster", c.ID, "error", err)
			metrics.Global.IncrementPersistErrors()
			if _, rbErr := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT cluster_row`); rbErr != nil {
				return kept, fmt.Errorf("rollback to savepoint: %w", rbErr)
			}
			continue
		}
		kept++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit cluster upsert: %w", err)
	}
	return kept, nil
}

// TopClusters returns the highest-scored clusters for summarization.
func (s *Store) TopClusters(ctx context.Context, limit int) ([]Cluster, error) {
	query := `
		SELECT cluster_id, COALESCE(topic,''), size, score, top_terms, rep_item_ids
		FROM clusters
		WHERE size >= 1
		ORDER BY score DESC NULLS LAST
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select top clusters: %w", err)
	}
	defer rows.Close()

	return scanClusters(rows)
}

// ClustersByTopic returns up to limit scored clusters for a topic still
// inside the window, best first.
func (s *Store) ClustersByTopic(ctx context.Context, topic string, since time.Time, limit int) ([]Cluster, error) {
	query := `
		SELECT cluster_id, COALESCE(topic,''), size, score, top_terms, rep_item_ids
		FROM clusters
		WHERE topic = $1 AND score IS NOT NULL AND (end_ts IS NULL OR end_ts >= $2)
		ORDER BY score DESC, size DESC NULLS LAST
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, topic, since, limit)
	if err != nil {
		return nil, fmt.Errorf("select clusters for topic %s: %w", topic, err)
	}
	defer rows.Close()

	return scanClusters(rows)
}

func scanClusters(rows *sql.Rows) ([]Cluster, error) {
	var clusters []Cluster
	for rows.Next() {
		var c Cluster
		if err := rows.Scan(&c.ID, &c.Topic, &c.Size, &c.Score,
			pq.Array(&c.TopTerms), pq.Array(&c.RepItemIDs)); err != nil {
			return nil, fmt.Errorf("scan cluster row: %w", err)
		}
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

// TopicCounts sums cluster sizes per topic for clusters still inside the
// lookback window (or with no end yet).
func (s *Store) TopicCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	query := `
		SELECT COALESCE(topic,''), COALESCE(SUM(size),0)
		FROM clusters
		WHERE end_ts IS NULL OR end_ts >= $1
		GROUP BY topic
	`

	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("select topic counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var topic string
		var total int
		if err := rows.Scan(&topic, &total); err != nil {
			return nil, fmt.Errorf("scan topic count: %w", err)
		}
		counts[topic] = total
	}
	return counts, rows.Err()
}

// ItemsByIDs loads title/url/text for the given item ids.
func (s *Store) ItemsByIDs(ctx context.Context, ids []string) ([]RepItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT COALESCE(title,''), COALESCE(url,''), COALESCE(text,'') FROM items WHERE id = ANY($1)`

	rows, err := s.db.QueryContext(ctx, query, pq.StringArray(ids))
	if err != nil {
		return nil, fmt.Errorf("select items by ids: %w", err)
	}
	defer rows.Close()

	var items []RepItem
	for rows.Next() {
		var it RepItem
		if err := rows.Scan(&it.Title, &it.URL, &it.Text); err != nil {
			return nil, fmt.Errorf("scan rep item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// SetClusterSummary stores the rendered summary for a cluster.
func (s *Store) SetClusterSummary(ctx context.Context, clusterID, summary string) error {
	query := `UPDATE clusters SET top_terms = $2 WHERE cluster_id = $1`
	if _, err := s.db.ExecContext(ctx, query, clusterID, pq.Array([]string{summary})); err != nil {
		return fmt.Errorf("set summary for cluster %s: %w", clusterID, err)
	}
	return nil
}

// GetStats returns row counts for after-the-fact auditing.
func (s *Store) GetStats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int)

	var items int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&items); err != nil {
		return nil, err
	}
	stats["items"] = items

	var clusters int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clusters`).Scan(&clusters); err != nil {
		return nil, err
	}
	stats["clusters"] = clusters

	return stats, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
