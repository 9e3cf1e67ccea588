package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/retaillens/retaillens/internal/agent"
	"github.com/retaillens/retaillens/internal/api"
	"github.com/retaillens/retaillens/internal/config"
	"github.com/retaillens/retaillens/internal/llm"
	"github.com/retaillens/retaillens/internal/observability"
	"github.com/retaillens/retaillens/internal/storage"
	s3store "github.com/retaillens/retaillens/internal/storage/s3"
	"github.com/retaillens/retaillens/internal/warehouse"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("retaillens-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	startupCtx := context.Background()

	var objectStore storage.ObjectStore
	if cfg.ObjectStore.Enabled() {
		store, err := s3store.New(startupCtx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		objectStore = store
	}

	wh, err := warehouse.Open(startupCtx, warehouse.Config{
		Driver:           cfg.Warehouse.Driver,
		DSN:              cfg.Warehouse.DSN,
		Dataset:          cfg.Warehouse.Dataset,
		MaxOpenConns:     cfg.Warehouse.MaxOpenConns,
		QueryTimeout:     cfg.Warehouse.QueryTimeout,
		ParquetPath:      cfg.Warehouse.ParquetPath,
		ParquetObjectKey: cfg.Warehouse.ParquetObjectKey,
	}, objectStore)
	if err != nil {
		logger.Error("failed to open warehouse", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = wh.Close() }()

	var lookup warehouse.SchemaLookup = wh
	if cfg.Warehouse.SchemaCacheSize > 0 {
		lookup = warehouse.NewCachedSchemaLookup(wh, cfg.Warehouse.SchemaCacheSize, cfg.Warehouse.SchemaCacheTTL)
	}

	model, err := llm.New(startupCtx, llm.Config{
		Provider:    cfg.AI.Provider,
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout,
		Vertex:      cfg.AI.Vertex,
		Project:     cfg.AI.Project,
		Location:    cfg.AI.Location,
	})
	if err != nil {
		logger.Error("failed to initialize model client", slog.Any("error", err))
		os.Exit(1)
	}

	answerer, err := agent.New(agent.Dependencies{
		Model:     model,
		Schema:    &warehouse.Introspector{Lookup: lookup, Logger: logger},
		Warehouse: wh,
		Dataset:   cfg.Warehouse.Dataset,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to initialize agent", slog.Any("error", err))
		os.Exit(1)
	}

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger: logger,
		Readiness: api.CombineReadinessChecks(
			api.CheckWarehouse(wh),
			api.CheckModelCredentials(cfg),
		),
		DependencyTimeout: 2 * time.Second,
		Agent:             answerer,
		Schema:            lookup,
		Dataset:           cfg.Warehouse.Dataset,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("warehouse", cfg.Warehouse.Driver),
			slog.String("dataset", cfg.Warehouse.Dataset),
			slog.String("model", cfg.AI.Model),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		_ = wh.Close()
		os.Exit(1)
	}
}
