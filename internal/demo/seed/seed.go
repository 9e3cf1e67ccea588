package seed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/retaillens/retaillens/internal/storage"
	"github.com/retaillens/retaillens/internal/warehouse"
)

const parquetContentType = "application/vnd.apache.parquet"

type Config struct {
	Dataset    string
	Rows       int
	RandomSeed int64
	OutputPath string
	Upload     bool
}

type Result struct {
	Rows       int
	Bytes      int
	OutputPath string
	ObjectKey  string
}

// Service writes the sample sales table to disk and/or the object store.
type Service struct {
	cfg     Config
	dataset warehouse.Dataset
	store   storage.ObjectStore
	log     *slog.Logger
}

func NewService(cfg Config, store storage.ObjectStore, logger *slog.Logger) (*Service, error) {
	dataset, err := warehouse.ParseDataset(cfg.Dataset)
	if err != nil {
		return nil, err
	}
	if cfg.Rows <= 0 {
		return nil, fmt.Errorf("rows must be positive, got %d", cfg.Rows)
	}
	if strings.TrimSpace(cfg.OutputPath) == "" && !cfg.Upload {
		return nil, fmt.Errorf("an output path or upload is required")
	}
	if cfg.Upload && store == nil {
		return nil, fmt.Errorf("object store is required for upload")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{cfg: cfg, dataset: dataset, store: store, log: logger}, nil
}

func (s *Service) Run(ctx context.Context) (Result, error) {
	rows := NewGenerator(s.cfg.RandomSeed).Generate(s.cfg.Rows)
	data, err := EncodeParquet(rows)
	if err != nil {
		return Result{}, err
	}
	result := Result{Rows: len(rows), Bytes: len(data)}

	if path := strings.TrimSpace(s.cfg.OutputPath); path != "" {
		if err := writeFile(path, data); err != nil {
			return Result{}, err
		}
		result.OutputPath = path
		s.log.InfoContext(ctx, "sample data written",
			slog.String("path", path),
			slog.Int("rows", len(rows)),
		)
	}

	if s.cfg.Upload {
		key, err := storage.BuildTableFilePath(s.dataset.Namespace, s.dataset.Table)
		if err != nil {
			return Result{}, err
		}
		info, err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: parquetContentType})
		if err != nil {
			return Result{}, fmt.Errorf("upload %q: %w", key, err)
		}
		result.ObjectKey = info.Key
		s.log.InfoContext(ctx, "sample data uploaded",
			slog.String("key", info.Key),
			slog.String("etag", info.ETag),
			slog.Int("rows", len(rows)),
		)
	}
	return result, nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir %q: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	return nil
}
