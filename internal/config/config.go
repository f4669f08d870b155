package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "VELOXDB"

// Validation errors.
var (
	ErrInvalidListenAddr   = errors.New("invalid listen address")
	ErrInvalidDataDir      = errors.New("data dir must not be empty")
	ErrInvalidLogFormat    = errors.New("log format must be json or text")
	ErrInvalidLogLevel     = errors.New("log level must be debug, info, warn or error")
	ErrInvalidRateLimit    = errors.New("rate limit values must not be negative")
	ErrInvalidMetric       = errors.New("default metric must be eucl or cos")
	ErrInvalidArchive      = errors.New("invalid archive configuration")
	ErrInvalidArchiveCodec = errors.New("archive codec must be none, lz4 or zstd")
)

// Config is the veloxd server configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr" envconfig:"LISTEN_ADDR"`
	DataDir    string `yaml:"data_dir" envconfig:"DATA_DIR"`
	LogFormat  string `yaml:"log_format" envconfig:"LOG_FORMAT"`
	LogLevel   string `yaml:"log_level" envconfig:"LOG_LEVEL"`

	RateLimitRPS   int `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS"` // 0 disables limiting
	RateLimitBurst int `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST"`

	DefaultMetric   string `yaml:"default_metric" envconfig:"DEFAULT_METRIC"`
	SIMD            bool   `yaml:"simd" envconfig:"SIMD"`
	Seed            uint64 `yaml:"seed" envconfig:"SEED"`
	TrainingWorkers int    `yaml:"training_workers" envconfig:"TRAINING_WORKERS"`

	Archive ArchiveConfig `yaml:"archive" envconfig:"ARCHIVE"`
}

// ArchiveConfig selects where snapshots are pushed to and pulled from.
type ArchiveConfig struct {
	Backend         string `yaml:"backend" envconfig:"BACKEND"` // s3, minio or local
	Bucket          string `yaml:"bucket" envconfig:"BUCKET"`
	Prefix          string `yaml:"prefix" envconfig:"PREFIX"`
	Endpoint        string `yaml:"endpoint" envconfig:"ENDPOINT"`
	Region          string `yaml:"region" envconfig:"REGION"`
	AccessKeyID     string `yaml:"access_key_id" envconfig:"ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" envconfig:"SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `yaml:"use_path_style" envconfig:"USE_PATH_STYLE"`
	Secure          bool   `yaml:"secure" envconfig:"SECURE"`
	Root            string `yaml:"root" envconfig:"ROOT"` // local backend directory
	Codec           string `yaml:"codec" envconfig:"CODEC"`
	DynamoDBTable   string `yaml:"dynamodb_table" envconfig:"DYNAMODB_TABLE"`
	MaxWorkers      int64  `yaml:"max_workers" envconfig:"MAX_WORKERS"`
	IOLimitBytes    int64  `yaml:"io_limit_bytes" envconfig:"IO_LIMIT_BYTES"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() Config {
	return Config{
		ListenAddr:    ":8080",
		DataDir:       "data",
		LogFormat:     "json",
		LogLevel:      "info",
		DefaultMetric: "eucl",
		SIMD:          true,
		Seed:          42,
		Archive: ArchiveConfig{
			Backend:    "local",
			Root:       "archive",
			Codec:      "zstd",
			MaxWorkers: 4,
		},
	}
}

// Load builds a Config from the defaults, the YAML file at path (skipped
// when path is empty), a .env file in the working directory if present and
// VELOXDB_* environment variables, in increasing precedence.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cfg and returns the first problem found.
func Validate(cfg *Config) error {
	if _, _, err := net.SplitHostPort(cfg.ListenAddr); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidListenAddr, cfg.ListenAddr)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return ErrInvalidDataDir
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, cfg.LogFormat)
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.LogLevel)
	}
	if cfg.RateLimitRPS < 0 || cfg.RateLimitBurst < 0 {
		return ErrInvalidRateLimit
	}
	switch strings.ToLower(cfg.DefaultMetric) {
	case "eucl", "l2", "euclidean", "cos", "cosine":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMetric, cfg.DefaultMetric)
	}
	return ValidateArchive(&cfg.Archive)
}

// SlogLevel maps LogLevel to a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidateArchive checks the archive section alone; commands that never
// touch remote storage skip it.
func ValidateArchive(a *ArchiveConfig) error {
	switch strings.ToLower(a.Codec) {
	case "", "none", "lz4", "zstd", "zst":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidArchiveCodec, a.Codec)
	}
	if a.MaxWorkers < 0 || a.IOLimitBytes < 0 {
		return fmt.Errorf("%w: negative limits", ErrInvalidArchive)
	}
	switch strings.ToLower(a.Backend) {
	case "local":
		if a.Root == "" {
			return fmt.Errorf("%w: local backend needs root", ErrInvalidArchive)
		}
	case "s3":
		if a.Bucket == "" {
			return fmt.Errorf("%w: s3 backend needs bucket", ErrInvalidArchive)
		}
	case "minio":
		if a.Bucket == "" || a.Endpoint == "" {
			return fmt.Errorf("%w: minio backend needs endpoint and bucket", ErrInvalidArchive)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidArchive, a.Backend)
	}
	if a.DynamoDBTable != "" && strings.ToLower(a.Backend) != "s3" {
		return fmt.Errorf("%w: dynamodb catalog requires the s3 backend", ErrInvalidArchive)
	}
	return nil
}
