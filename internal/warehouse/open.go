package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/retaillens/retaillens/internal/storage"
)

type Config struct {
	Driver           string
	DSN              string
	Dataset          string
	MaxOpenConns     int
	QueryTimeout     time.Duration
	ParquetPath      string
	ParquetObjectKey string
}

// Open connects to the configured warehouse. For DuckDB a parquet file, local
// or fetched from the object store, can be mounted as the dataset table.
func Open(ctx context.Context, cfg Config, store storage.ObjectStore) (*SQLWarehouse, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if dialect == DialectBigQuery && strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("warehouse dsn is required for bigquery")
	}
	if dialect == DialectPostgres && strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("warehouse dsn is required for postgres")
	}

	db, err := sql.Open(dialect.driverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	w := New(db, dialect, cfg.QueryTimeout)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := w.Ping(pingCtx); err != nil {
		_ = w.Close()
		return nil, err
	}

	if dialect == DialectDuckDB && (cfg.ParquetPath != "" || cfg.ParquetObjectKey != "") {
		if err := w.mountConfiguredParquet(ctx, cfg, store); err != nil {
			_ = w.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *SQLWarehouse) mountConfiguredParquet(ctx context.Context, cfg Config, store storage.ObjectStore) error {
	dataset, err := ParseDataset(cfg.Dataset)
	if err != nil {
		return err
	}
	localPath := strings.TrimSpace(cfg.ParquetPath)
	if localPath == "" {
		if store == nil {
			return fmt.Errorf("object store is required to fetch %q", cfg.ParquetObjectKey)
		}
		workDir, err := os.MkdirTemp("", "retaillens-warehouse-")
		if err != nil {
			return fmt.Errorf("create warehouse temp dir: %w", err)
		}
		w.cleanup = append(w.cleanup, func() { _ = os.RemoveAll(workDir) })
		localPath = filepath.Join(workDir, dataset.Table+".parquet")
		if err := fetchObject(ctx, store, cfg.ParquetObjectKey, localPath); err != nil {
			return err
		}
	}
	return w.MountParquet(ctx, dataset, localPath)
}

// MountParquet exposes a parquet file as the view <namespace>.<table>.
func (w *SQLWarehouse) MountParquet(ctx context.Context, dataset Dataset, localPath string) error {
	if w.dialect != DialectDuckDB {
		return fmt.Errorf("parquet mounting requires duckdb, got %s", w.dialect)
	}
	schemaSQL := fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, quoteIdent(dataset.Namespace))
	if _, err := w.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema %q: %w", dataset.Namespace, err)
	}
	viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s.%s AS SELECT * FROM read_parquet(%s)`,
		quoteIdent(dataset.Namespace), quoteIdent(dataset.Table), quoteString(localPath))
	if _, err := w.db.ExecContext(ctx, viewSQL); err != nil {
		return fmt.Errorf("create view for %s: %w", dataset, err)
	}
	return nil
}

func fetchObject(ctx context.Context, store storage.ObjectStore, key, localPath string) error {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get object %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local parquet file %q: %w", localPath, err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return fmt.Errorf("write local parquet file %q: %w", localPath, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close local parquet file %q: %w", localPath, err)
	}
	return nil
}
