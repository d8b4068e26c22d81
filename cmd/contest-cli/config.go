package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"contestoj/internal/common/cache"
	"contestoj/internal/common/db"
	"contestoj/internal/common/storage"
	"contestoj/internal/contest/runner"
	"contestoj/internal/contest/sandbox"
	"contestoj/pkg/utils/logger"
	"contestoj/pkg/utils/validate"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	backendLocal = "local"
	backendRedis = "redis"
	backendMySQL = "mysql"

	defaultBackend      = backendLocal
	defaultLocalPath    = "data/competition_data.json"
	defaultNamespace    = "contest"
	defaultProblemsPath = "problems"
	defaultExportDir    = "exports"
	defaultStoreTimeout = 5 * time.Second
	defaultKeyPrefix    = "exports"
)

// StoreConfig selects and configures the progress store.
type StoreConfig struct {
	Backend   string            `yaml:"backend" validate:"oneof=local redis mysql"`
	Namespace string            `yaml:"namespace"`
	LocalPath string            `yaml:"localPath"`
	Timeout   time.Duration     `yaml:"timeout" validate:"gte=0"`
	Redis     cache.RedisConfig `yaml:"redis"`
	MySQL     db.MySQLConfig    `yaml:"mysql"`
}

// ExportConfig holds solution archive settings.
type ExportConfig struct {
	Dir       string              `yaml:"dir"`
	KeyPrefix string              `yaml:"keyPrefix"`
	MinIO     storage.MinIOConfig `yaml:"minio"`
}

// AppConfig holds contest-cli config.
type AppConfig struct {
	Logger   logger.Config  `yaml:"logger"`
	Store    StoreConfig    `yaml:"store"`
	Sandbox  sandbox.Config `yaml:"sandbox"`
	Runner   runner.Config  `yaml:"runner"`
	Problems string         `yaml:"problems" validate:"required"`
	Export   ExportConfig   `yaml:"export"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// loadAppConfig reads path, overlays secrets from the environment (and a
// .env file next to the working directory when present), then applies
// defaults and validates.
func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return nil, err
		}
	}
	_ = godotenv.Load()
	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	switch cfg.Store.Backend {
	case backendRedis:
		if cfg.Store.Redis.Addr == "" {
			return nil, fmt.Errorf("redis addr is required")
		}
	case backendMySQL:
		if cfg.Store.MySQL.DSN == "" {
			return nil, fmt.Errorf("mysql dsn is required")
		}
	}
	return &cfg, nil
}

func applyEnv(cfg *AppConfig) {
	cfg.Store.Backend = getEnv("CONTEST_STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Redis.Addr = getEnv("CONTEST_REDIS_ADDR", cfg.Store.Redis.Addr)
	cfg.Store.Redis.Password = getEnv("CONTEST_REDIS_PASSWORD", cfg.Store.Redis.Password)
	cfg.Store.MySQL.DSN = getEnv("CONTEST_MYSQL_DSN", cfg.Store.MySQL.DSN)
	cfg.Export.MinIO.Endpoint = getEnv("CONTEST_MINIO_ENDPOINT", cfg.Export.MinIO.Endpoint)
	cfg.Export.MinIO.AccessKey = getEnv("CONTEST_MINIO_ACCESS_KEY", cfg.Export.MinIO.AccessKey)
	cfg.Export.MinIO.SecretKey = getEnv("CONTEST_MINIO_SECRET_KEY", cfg.Export.MinIO.SecretKey)
	cfg.Problems = getEnv("CONTEST_PROBLEMS", cfg.Problems)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "console"
	}
	if cfg.Logger.OutputPath == "" {
		cfg.Logger.OutputPath = "stderr"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = defaultBackend
	}
	cfg.Store.Backend = strings.ToLower(cfg.Store.Backend)
	if cfg.Store.Namespace == "" {
		cfg.Store.Namespace = defaultNamespace
	}
	if cfg.Store.LocalPath == "" {
		cfg.Store.LocalPath = defaultLocalPath
	}
	if cfg.Store.Timeout == 0 {
		cfg.Store.Timeout = defaultStoreTimeout
	}
	if cfg.Store.Redis.Addr != "" {
		cfg.Store.Redis.ApplyDefaults()
	}
	if cfg.Problems == "" {
		cfg.Problems = defaultProblemsPath
	}
	if cfg.Export.Dir == "" {
		cfg.Export.Dir = defaultExportDir
	}
	if cfg.Export.KeyPrefix == "" {
		cfg.Export.KeyPrefix = defaultKeyPrefix
	}
}

// uploadsEnabled reports whether exported archives should also go to MinIO.
func (c *AppConfig) uploadsEnabled() bool {
	m := c.Export.MinIO
	return m.Endpoint != "" && m.Bucket != ""
}
