package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const envPrefix = "RETAILLENS_"

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Warehouse     WarehouseConfig
	ObjectStore   ObjectStoreConfig
	AI            AIConfig
	Seed          SeedConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// WarehouseConfig selects the SQL backend and the single table questions are
// answered about.
type WarehouseConfig struct {
	Driver           string
	DSN              string
	Dataset          string
	MaxOpenConns     int
	QueryTimeout     time.Duration
	ParquetPath      string
	ParquetObjectKey string
	SchemaCacheSize  int
	SchemaCacheTTL   time.Duration
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

// Enabled reports whether an object store endpoint is configured.
func (c ObjectStoreConfig) Enabled() bool {
	return c.Endpoint != ""
}

type AIConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	Vertex      bool
	Project     string
	Location    string
}

type SeedConfig struct {
	Rows       int
	RandomSeed int64
	OutputPath string
	Upload     bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup(envPrefix + "PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid %sPROFILE: %q", envPrefix, profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	env := func(name string) string { return envPrefix + name }
	err := errors.Join(
		applyString(lookup, env("SERVICE_NAME"), &cfg.Service.Name),

		applyString(lookup, env("HTTP_ADDR"), &cfg.HTTP.Address),
		applyDuration(lookup, env("HTTP_READ_TIMEOUT"), &cfg.HTTP.ReadTimeout),
		applyDuration(lookup, env("HTTP_WRITE_TIMEOUT"), &cfg.HTTP.WriteTimeout),
		applyDuration(lookup, env("HTTP_IDLE_TIMEOUT"), &cfg.HTTP.IdleTimeout),
		applyDuration(lookup, env("HTTP_SHUTDOWN_TIMEOUT"), &cfg.HTTP.ShutdownTimeout),

		applyString(lookup, env("WAREHOUSE_DRIVER"), &cfg.Warehouse.Driver),
		applyString(lookup, env("WAREHOUSE_DSN"), &cfg.Warehouse.DSN),
		applyString(lookup, env("WAREHOUSE_DATASET"), &cfg.Warehouse.Dataset),
		applyInt(lookup, env("WAREHOUSE_MAX_OPEN_CONNS"), &cfg.Warehouse.MaxOpenConns),
		applyDuration(lookup, env("WAREHOUSE_QUERY_TIMEOUT"), &cfg.Warehouse.QueryTimeout),
		applyString(lookup, env("WAREHOUSE_PARQUET_PATH"), &cfg.Warehouse.ParquetPath),
		applyString(lookup, env("WAREHOUSE_PARQUET_OBJECT_KEY"), &cfg.Warehouse.ParquetObjectKey),
		applyInt(lookup, env("WAREHOUSE_SCHEMA_CACHE_SIZE"), &cfg.Warehouse.SchemaCacheSize),
		applyDuration(lookup, env("WAREHOUSE_SCHEMA_CACHE_TTL"), &cfg.Warehouse.SchemaCacheTTL),

		applyString(lookup, env("OBJECTSTORE_ENDPOINT"), &cfg.ObjectStore.Endpoint),
		applyString(lookup, env("OBJECTSTORE_REGION"), &cfg.ObjectStore.Region),
		applyString(lookup, env("OBJECTSTORE_BUCKET"), &cfg.ObjectStore.Bucket),
		applyString(lookup, env("OBJECTSTORE_ACCESS_KEY"), &cfg.ObjectStore.AccessKeyID),
		applyString(lookup, env("OBJECTSTORE_SECRET_KEY"), &cfg.ObjectStore.SecretAccessKey),
		applyBool(lookup, env("OBJECTSTORE_USE_SSL"), &cfg.ObjectStore.UseSSL),
		applyString(lookup, env("OBJECTSTORE_PREFIX"), &cfg.ObjectStore.Prefix),
		applyBool(lookup, env("OBJECTSTORE_AUTO_CREATE_BUCKET"), &cfg.ObjectStore.AutoCreateBucket),

		applyString(lookup, env("AI_PROVIDER"), &cfg.AI.Provider),
		applyString(lookup, env("AI_BASE_URL"), &cfg.AI.BaseURL),
		applyString(lookup, env("AI_API_KEY"), &cfg.AI.APIKey),
		applyString(lookup, env("AI_MODEL"), &cfg.AI.Model),
		applyFloat(lookup, env("AI_TEMPERATURE"), &cfg.AI.Temperature),
		applyDuration(lookup, env("AI_TIMEOUT"), &cfg.AI.Timeout),
		applyBool(lookup, env("AI_VERTEX"), &cfg.AI.Vertex),
		applyString(lookup, env("AI_PROJECT"), &cfg.AI.Project),
		applyString(lookup, env("AI_LOCATION"), &cfg.AI.Location),

		applyInt(lookup, env("SEED_ROWS"), &cfg.Seed.Rows),
		applyInt64(lookup, env("SEED_RANDOM_SEED"), &cfg.Seed.RandomSeed),
		applyString(lookup, env("SEED_OUTPUT_PATH"), &cfg.Seed.OutputPath),
		applyBool(lookup, env("SEED_UPLOAD"), &cfg.Seed.Upload),

		applyBool(lookup, env("LOG_JSON"), &cfg.Observability.LogJSON),
		applyLogLevel(lookup, env("LOG_LEVEL"), &cfg.Observability.LogLevel),
	)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.Service.Name == "":
		return fmt.Errorf("service name is required")
	case c.HTTP.Address == "":
		return fmt.Errorf("http address is required")
	case c.Warehouse.Driver == "":
		return fmt.Errorf("%sWAREHOUSE_DRIVER is required", envPrefix)
	case strings.Count(c.Warehouse.Dataset, ".") != 1:
		return fmt.Errorf("%sWAREHOUSE_DATASET must look like <namespace>.<table>, got %q", envPrefix, c.Warehouse.Dataset)
	case c.AI.Temperature < 0 || c.AI.Temperature > 2:
		return fmt.Errorf("%sAI_TEMPERATURE must be within [0, 2], got %v", envPrefix, c.AI.Temperature)
	case c.Seed.Rows < 0:
		return fmt.Errorf("%sSEED_ROWS must not be negative", envPrefix)
	}
	switch strings.ToLower(c.AI.Provider) {
	case "gemini", "openai":
	default:
		return fmt.Errorf("invalid %sAI_PROVIDER: %q", envPrefix, c.AI.Provider)
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "retaillens-api"},
		HTTP: HTTPConfig{
			Address:         ":8080",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    90 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Warehouse: WarehouseConfig{
			Driver:          "duckdb",
			Dataset:         "retail_data.sales",
			MaxOpenConns:    8,
			QueryTimeout:    30 * time.Second,
			SchemaCacheSize: 0,
			SchemaCacheTTL:  5 * time.Minute,
		},
		ObjectStore: ObjectStoreConfig{
			Region:           "us-east-1",
			Bucket:           "retaillens",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			AutoCreateBucket: true,
		},
		AI: AIConfig{
			Provider:    "gemini",
			Model:       "gemini-2.5-flash",
			Temperature: 0.1,
			Timeout:     30 * time.Second,
			Location:    "us-central1",
		},
		Seed: SeedConfig{
			Rows:       500,
			RandomSeed: 42,
			OutputPath: "data/sales.parquet",
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Warehouse.Driver = "bigquery"
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	text := strings.TrimSpace(raw)
	if strings.EqualFold(text, "warning") {
		text = "warn"
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(text)); err != nil {
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	*dst = level
	return nil
}
