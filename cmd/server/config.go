package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type config struct {
	ListenAddr string `yaml:"listen_addr"`

	StoreDriver      string        `yaml:"store_driver"`
	DatabaseURL      string        `yaml:"database_url"`
	DatabaseMaxConns int           `yaml:"database_max_conns"`
	SQLitePath       string        `yaml:"sqlite_path"`
	StoreTimeout     time.Duration `yaml:"store_timeout"`

	RateEnabled      bool          `yaml:"rate_enabled"`
	RateBackend      string        `yaml:"rate_backend"`
	RateAlgorithm    string        `yaml:"rate_algorithm"`
	RateWriteLimit   int           `yaml:"rate_write_limit"`
	RateWriteWindow  time.Duration `yaml:"rate_write_window"`
	RateReadLimit    int           `yaml:"rate_read_limit"`
	RateReadWindow   time.Duration `yaml:"rate_read_window"`
	RateKeyHeader    string        `yaml:"rate_key_header"`
	TrustXFF         bool          `yaml:"trust_xff"`
	RateFailOpen     bool          `yaml:"rate_fail_open"`
	RateCleanupEvery time.Duration `yaml:"rate_cleanup_every"`
	RateRedisPrefix  string        `yaml:"rate_redis_prefix"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	RateStatsBackend   string        `yaml:"rate_stats_backend"`
	RateStatsPrefix    string        `yaml:"rate_stats_prefix"`
	RateStatsTTL       time.Duration `yaml:"rate_stats_ttl"`
	RateStatsBucket    string        `yaml:"rate_stats_bucket"`
	RateStatsTrackKeys bool          `yaml:"rate_stats_track_keys"`

	MetricsEnabled     bool          `yaml:"metrics_enabled"`
	ConcurrencyMax     int           `yaml:"concurrency_max"`
	ConcurrencyTimeout time.Duration `yaml:"concurrency_timeout"`
	CookieSecure       bool          `yaml:"cookie_secure"`
	GzipEnabled        bool          `yaml:"gzip_enabled"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func defaultConfig() config {
	return config{
		ListenAddr:       ":3000",
		StoreDriver:      "memory",
		DatabaseMaxConns: 5,
		SQLitePath:       "data/kakizome.db",
		StoreTimeout:     5 * time.Second,

		RateEnabled:      true,
		RateBackend:      "memory",
		RateAlgorithm:    "fixed",
		RateWriteLimit:   1,
		RateWriteWindow:  10 * time.Second,
		RateReadLimit:    60,
		RateReadWindow:   time.Minute,
		RateFailOpen:     true,
		RateCleanupEvery: 2 * time.Minute,
		RateRedisPrefix:  "ratelimit:window",

		RateStatsBackend: "none",
		RateStatsPrefix:  "ratelimit:stats",
		RateStatsTTL:     24 * time.Hour,
		RateStatsBucket:  "minute",

		MetricsEnabled: true,
		ConcurrencyMax: 100,
		GzipEnabled:    true,

		LogLevel:  "info",
		LogFormat: "json",
	}
}

// readConfig aplica, nessa ordem: padrões, arquivo YAML (CONFIG_FILE) e ambiente.
func readConfig() (config, error) {
	cfg := defaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return config{}, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *config) {
	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", cfg.ListenAddr)

	cfg.StoreDriver = getenvDefault("STORE_DRIVER", cfg.StoreDriver)
	cfg.DatabaseURL = getenvDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.DatabaseMaxConns = getenvIntDefault("DATABASE_MAX_CONNS", cfg.DatabaseMaxConns)
	cfg.SQLitePath = getenvDefault("SQLITE_PATH", cfg.SQLitePath)
	cfg.StoreTimeout = getenvDurationDefault("STORE_TIMEOUT", cfg.StoreTimeout)

	cfg.RateEnabled = getenvBoolDefault("RATE_ENABLED", cfg.RateEnabled)
	cfg.RateBackend = getenvDefault("RATE_BACKEND", cfg.RateBackend)
	cfg.RateAlgorithm = getenvDefault("RATE_ALGORITHM", cfg.RateAlgorithm)
	cfg.RateWriteLimit = getenvIntDefault("RATE_WRITE_LIMIT", cfg.RateWriteLimit)
	cfg.RateWriteWindow = getenvDurationDefault("RATE_WRITE_WINDOW", cfg.RateWriteWindow)
	cfg.RateReadLimit = getenvIntDefault("RATE_READ_LIMIT", cfg.RateReadLimit)
	cfg.RateReadWindow = getenvDurationDefault("RATE_READ_WINDOW", cfg.RateReadWindow)
	cfg.RateKeyHeader = getenvDefault("RATE_KEY_HEADER", cfg.RateKeyHeader)
	cfg.TrustXFF = getenvBoolDefault("TRUST_XFF", cfg.TrustXFF)
	cfg.RateFailOpen = getenvBoolDefault("RATE_FAIL_OPEN", cfg.RateFailOpen)
	cfg.RateCleanupEvery = getenvDurationDefault("RATE_CLEANUP_EVERY", cfg.RateCleanupEvery)
	cfg.RateRedisPrefix = getenvDefault("RATE_REDIS_PREFIX", cfg.RateRedisPrefix)

	cfg.RedisAddr = getenvDefault("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getenvDefault("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getenvIntDefault("REDIS_DB", cfg.RedisDB)

	cfg.RateStatsBackend = getenvDefault("RATE_STATS_BACKEND", cfg.RateStatsBackend)
	cfg.RateStatsPrefix = getenvDefault("RATE_STATS_PREFIX", cfg.RateStatsPrefix)
	cfg.RateStatsTTL = getenvDurationDefault("RATE_STATS_TTL", cfg.RateStatsTTL)
	cfg.RateStatsBucket = getenvDefault("RATE_STATS_BUCKET", cfg.RateStatsBucket)
	cfg.RateStatsTrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", cfg.RateStatsTrackKeys)

	cfg.MetricsEnabled = getenvBoolDefault("METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.ConcurrencyMax = getenvIntDefault("CONCURRENCY_MAX", cfg.ConcurrencyMax)
	cfg.ConcurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", cfg.ConcurrencyTimeout)
	cfg.CookieSecure = getenvBoolDefault("COOKIE_SECURE", cfg.CookieSecure)
	cfg.GzipEnabled = getenvBoolDefault("GZIP_ENABLED", cfg.GzipEnabled)

	cfg.LogLevel = getenvDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenvDefault("LOG_FORMAT", cfg.LogFormat)
}

func (cfg config) validate() error {
	switch cfg.StoreDriver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case "sqlite":
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return errors.New("SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	switch cfg.RateBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown RATE_BACKEND %q", cfg.RateBackend)
	}
	switch cfg.RateAlgorithm {
	case "fixed", "token":
	default:
		return fmt.Errorf("unknown RATE_ALGORITHM %q", cfg.RateAlgorithm)
	}
	if cfg.RateBackend == "redis" && cfg.RateAlgorithm == "token" {
		return errors.New("RATE_ALGORITHM=token is only available with RATE_BACKEND=memory")
	}
	if cfg.RateEnabled {
		if cfg.RateWriteLimit <= 0 || cfg.RateWriteWindow <= 0 {
			return errors.New("RATE_WRITE_LIMIT and RATE_WRITE_WINDOW must be > 0")
		}
		if cfg.RateReadLimit <= 0 || cfg.RateReadWindow <= 0 {
			return errors.New("RATE_READ_LIMIT and RATE_READ_WINDOW must be > 0")
		}
	}

	switch cfg.RateStatsBackend {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("unknown RATE_STATS_BACKEND %q", cfg.RateStatsBackend)
	}
	if cfg.needsRedis() && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("REDIS_ADDR is required when RATE_BACKEND or RATE_STATS_BACKEND is redis")
	}

	if cfg.DatabaseMaxConns <= 0 {
		return errors.New("DATABASE_MAX_CONNS must be > 0")
	}
	if cfg.ConcurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return nil
}

func (cfg config) needsRedis() bool {
	return (cfg.RateEnabled && cfg.RateBackend == "redis") || cfg.RateStatsBackend == "redis"
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
