package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/exzackley/fondogis/internal/adapter/fieldsource"
	httpadapter "github.com/exzackley/fondogis/internal/adapter/http"
	kafkaadapter "github.com/exzackley/fondogis/internal/adapter/kafka"
	"github.com/exzackley/fondogis/internal/config"
	"github.com/exzackley/fondogis/internal/domain"
	"github.com/exzackley/fondogis/internal/observability"
	"github.com/exzackley/fondogis/internal/pipeline"
	"github.com/exzackley/fondogis/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ref, err := config.LoadReference(cfg.ReferencePath)
	if err != nil {
		logger.Error("failed to load reference tables", "error", err, "path", cfg.ReferencePath)
		os.Exit(1)
	}
	tables, err := ref.Build()
	if err != nil {
		logger.Error("invalid reference tables", "error", err, "path", cfg.ReferencePath)
		os.Exit(1)
	}

	opts := []domain.EngineOption{
		domain.WithLogger(logger),
		domain.WithDefaultResolution(cfg.DefaultResolution),
	}

	// Remote field lookups are feature-flagged via FIELD_SOURCE_ENABLED / FIELD_SOURCE_URL.
	if cfg.FieldSourceEnabled {
		client := fieldsource.NewClient(cfg.FieldSourceURL, cfg.FieldSourceToken, cfg.FieldSourceTimeout, metrics, logger)
		opts = append(opts, domain.WithFieldSource(fieldsource.NewCachedSource(client, cfg.FieldSourceCacheSize, metrics)))
		metrics.FieldSourceEnabled.Set(1)
		logger.Info("remote field source enabled",
			"url", cfg.FieldSourceURL, "cache_size", cfg.FieldSourceCacheSize, "timeout", cfg.FieldSourceTimeout)
	} else {
		logger.Info("remote field source disabled")
	}

	engine := domain.NewEngine(tables.Model, tables.Pairs, tables.Tiers, opts...)
	logger.Info("reconciliation engine ready",
		"model_version", tables.Model.Version(),
		"scenario_pairs", len(tables.Pairs.Pairs()),
		"tiers", len(tables.Tiers.Tiers()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reports, err := store.Open(ctx, cfg.DBPath, metrics, logger)
	if err != nil {
		logger.Error("failed to open report store", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(engine, metrics, logger)

	p := pipeline.New(reader, transformer, pipeline.MultiLoader{writer, reports}, logger, metrics, cfg.BatchSize, cfg.Workers)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, reports, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start reconciliation pipeline.
	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-pipelineDone:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if err := reports.Close(); err != nil {
		logger.Error("report store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
