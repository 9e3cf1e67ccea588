package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/retaillens/retaillens/internal/config"
	"github.com/retaillens/retaillens/internal/demo/seed"
	"github.com/retaillens/retaillens/internal/observability"
	"github.com/retaillens/retaillens/internal/storage"
	s3store "github.com/retaillens/retaillens/internal/storage/s3"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("retaillens-seed")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var objectStore storage.ObjectStore
	if cfg.Seed.Upload {
		store, err := s3store.New(ctx, s3store.Config{
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

	service, err := seed.NewService(seed.Config{
		Dataset:    cfg.Warehouse.Dataset,
		Rows:       cfg.Seed.Rows,
		RandomSeed: cfg.Seed.RandomSeed,
		OutputPath: cfg.Seed.OutputPath,
		Upload:     cfg.Seed.Upload,
	}, objectStore, logger)
	if err != nil {
		logger.Error("failed to initialize seeder", slog.Any("error", err))
		os.Exit(1)
	}

	result, err := service.Run(ctx)
	if err != nil {
		logger.Error("seeding failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("seeding finished",
		slog.Int("rows", result.Rows),
		slog.Int("bytes", result.Bytes),
		slog.String("path", result.OutputPath),
		slog.String("key", result.ObjectKey),
	)
}
