// Package app wires the pipeline stages together and maps their failures to
// process exit codes.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"osmon/internal/cluster"
	"osmon/internal/config"
	"osmon/internal/digest"
	"osmon/internal/enrich"
	"osmon/internal/feeds"
	"osmon/internal/fetch"
	"osmon/internal/gemini"
	"osmon/internal/logger"
	"osmon/internal/metrics"
	"osmon/internal/ratelimit"
	"osmon/internal/storage"
	"osmon/internal/summarize"
)

// Exit codes used by every stage.
const (
	ExitOK          = 0
	ExitRuntime     = 1 // DB or mid-pass failure
	ExitUnavailable = 2 // bad config, unknown stage, missing capability
)

// Stages in pipeline order.
var Stages = []string{"initdb", "ingest", "enrich", "cluster", "summarize", "digest"}

// Run executes one pipeline stage and returns the process exit code.
func Run(stage string) int {
	if !knownStage(stage) {
		fmt.Fprintf(os.Stderr, "unknown stage %q, want one of %v\n", stage, Stages)
		return ExitUnavailable
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration error", "error", err)
		return ExitUnavailable
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(cfg.PostgresURL)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		return ExitRuntime
	}
	defer store.Close()

	start := time.Now()
	if err := runStage(ctx, stage, cfg, store); err != nil {
		metrics.Global.SetError(err.Error())
		logger.Error("stage failed", "stage", stage, "error", err)
		if errors.Is(err, cluster.ErrUnavailable) {
			return ExitUnavailable
		}
		return ExitRuntime
	}

	metrics.Global.SetRunFinished(stage, time.Since(start))
	if stats, statErr := store.GetStats(ctx); statErr == nil {
		logger.Info("stage finished", "stage", stage, "took", time.Since(start).Round(time.Millisecond),
			"items", stats["items"], "clusters", stats["clusters"])
	} else {
		logger.Info("stage finished", "stage", stage, "took", time.Since(start).Round(time.Millisecond))
	}
	return ExitOK
}

func runStage(ctx context.Context, stage string, cfg *config.Config, store *storage.Store) error {
	switch stage {
	case "initdb":
		return store.InitSchema(ctx)

	case "ingest":
		pages := fetch.New(cfg.HTTP.Timeout, cfg.HTTP.Retries, cfg.HTTP.Backoff)
		_, err := feeds.NewCollector(pages, store).Run(ctx, cfg.FeedURLs())
		return err

	case "enrich":
		model, err := maybeModel(ctx, cfg)
		if err != nil {
			return err
		}
		var embedder enrich.Embedder
		if model != nil {
			defer model.Close()
			embedder = model
		}
		_, err = enrich.New(store, cfg, embedder).Run(ctx)
		return err

	case "cluster":
		model, err := maybeModel(ctx, cfg)
		if err != nil {
			return err
		}
		var embedder cluster.Embedder
		if model != nil {
			defer model.Close()
			embedder = model
		}
		_, err = cluster.New(store, cfg, embedder).Run(ctx)
		return err

	case "summarize":
		model, err := maybeModel(ctx, cfg)
		if err != nil {
			return err
		}
		var gen summarize.Generator
		if model != nil {
			defer model.Close()
			gen = model
		}
		budget := ratelimit.NewBudget(cfg.Gemini.MaxModelRequests)
		_, err = summarize.New(store, cfg, gen, budget).Run(ctx)
		return err

	case "digest":
		_, err := digest.New(store, cfg).Run(ctx)
		return err
	}
	return fmt.Errorf("unhandled stage %q", stage)
}

// maybeModel builds the Gemini client when an API key is configured. Key
// presence is the capability decision for the whole run; stages degrade to
// their keyword or fallback paths without it.
func maybeModel(ctx context.Context, cfg *config.Config) (*gemini.Client, error) {
	if cfg.Gemini.APIKey == "" {
		logger.Info("no model API key configured, running without model support")
		return nil, nil
	}
	client, err := gemini.NewClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.SummaryModel, cfg.Gemini.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("creating model client: %w", err)
	}
	return client, nil
}

func knownStage(stage string) bool {
	for _, s := range Stages {
		if s == stage {
			return true
		}
	}
	return false
}
