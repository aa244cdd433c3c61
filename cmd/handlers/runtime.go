package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"signalbrief/internal/config"
	"signalbrief/internal/llm"
	"signalbrief/internal/logger"
	"signalbrief/internal/observability"
	"signalbrief/internal/persistence"
	"signalbrief/internal/pipeline"
	"signalbrief/internal/sources"
	"signalbrief/internal/targets"
	"signalbrief/internal/vectorstore"
)

// runtime holds the collaborators shared by the commands. Optional stores
// that are unconfigured or unreachable are left nil; the pipeline treats
// them as configuration gaps.
type runtime struct {
	cfg      *config.Config
	db       *persistence.DB
	redis    *targets.RedisLegacyStore
	bleve    *vectorstore.BleveIndex
	metrics  *observability.Metrics
	loader   *targets.Loader
	pipeline *pipeline.Pipeline
	log      *slog.Logger
}

// newStores connects the target stores and the database only
func newStores(ctx context.Context, cfg *config.Config) *runtime {
	rt := &runtime{cfg: cfg, log: logger.Get()}

	if cfg.Database.URL != "" {
		db, err := persistence.Open(ctx, cfg.Database)
		if err != nil {
			rt.log.Warn("Database unavailable, continuing without profile targets or persistence", "error", err)
		} else {
			rt.db = db
		}
	}

	if cfg.Redis.URL != "" {
		store, err := targets.NewRedisLegacyStore(ctx, cfg.Redis.URL, cfg.Redis.KeyPrefix)
		if err != nil {
			rt.log.Warn("Redis unavailable, continuing without legacy targets", "error", err)
		} else {
			rt.redis = store
		}
	}

	var profile targets.ProfileStore
	if rt.db != nil {
		profile = targets.NewPostgresProfileStore(rt.db.SQL())
	}
	var legacy targets.LegacyStore
	if rt.redis != nil {
		legacy = rt.redis
	}
	rt.loader = targets.NewLoader(profile, legacy)
	if err := rt.loader.Configured(); errors.Is(err, targets.ErrNoStore) {
		rt.log.Warn("No target store configured, coverage will report zero targets")
	}

	return rt
}

// newRuntime wires the full pipeline: stores, Gemini, sink and metrics
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	if err := cfg.RequireGemini(); err != nil {
		return nil, err
	}

	rt := newStores(ctx, cfg)
	rt.metrics = observability.NewMetrics()

	priorities, err := sources.LoadFile(cfg.Sources.PriorityFile)
	if err != nil {
		rt.log.Warn("Source priority file unusable, continuing without priorities", "path", cfg.Sources.PriorityFile, "error", err)
		priorities = &sources.File{}
	}

	client, err := llm.NewClient(ctx, cfg.AI.Gemini)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create generator client: %w", err)
	}

	var indexes []vectorstore.Index
	var results persistence.ResultStore
	if rt.db != nil {
		results = persistence.NewPostgresResultStore(rt.db.SQL())
		indexes = append(indexes, vectorstore.NewPgVectorIndex(rt.db.SQL()))
	}
	if cfg.Index.Enabled {
		idx, err := vectorstore.OpenBleveIndex(cfg.Index.BlevePath)
		if err != nil {
			rt.log.Warn("Bleve index unavailable, skipping local index", "path", cfg.Index.BlevePath, "error", err)
		} else {
			rt.bleve = idx
			indexes = append(indexes, idx)
		}
	}

	builder := pipeline.NewBuilder().
		WithGenerator(client).
		WithGeminiSettings(cfg.AI.Gemini).
		WithSynthesisSettings(cfg.Synthesis).
		WithTargets(rt.loader).
		WithPriorities(priorities).
		WithMetrics(rt.metrics)
	if results != nil || len(indexes) > 0 {
		builder = builder.WithPersister(persistence.NewSink(results, client, rt.metrics, indexes...))
	}

	p, err := builder.Build()
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	rt.pipeline = p

	rt.log.Info("Pipeline ready",
		"model", client.ModelName(),
		"database", rt.db != nil,
		"redis", rt.redis != nil,
		"bleve", rt.bleve != nil)
	return rt, nil
}

// Close releases every open store
func (rt *runtime) Close() {
	if rt.bleve != nil {
		if err := rt.bleve.Close(); err != nil {
			rt.log.Warn("Failed to close bleve index", "error", err)
		}
	}
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			rt.log.Warn("Failed to close redis", "error", err)
		}
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			rt.log.Warn("Failed to close database", "error", err)
		}
	}
}
