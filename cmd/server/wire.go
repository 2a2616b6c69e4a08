package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"kakizome/middleware/ratelimit/domain"
	rlinfra "kakizome/middleware/ratelimit/infra"
	postingdomain "kakizome/posting/domain"
	postinginfra "kakizome/posting/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	var zc zap.Config
	switch format {
	case "console":
		zc = zap.NewDevelopmentConfig()
	case "json", "":
		zc = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unknown LOG_FORMAT %q", format)
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// openStore devolve o Store escolhido e a função que libera seus recursos.
func openStore(ctx context.Context, cfg config) (postingdomain.Store, func(), error) {
	switch cfg.StoreDriver {
	case "postgres":
		pool, err := postinginfra.OpenPostgresPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		store := postinginfra.NewPostgresStore(pool, postinginfra.WithQueryTimeout(cfg.StoreTimeout))
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}
		return store, pool.Close, nil

	case "sqlite":
		store, err := postinginfra.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("sqlite schema: %w", err)
		}
		return store, func() { _ = store.Close() }, nil

	default:
		return postinginfra.NewMemoryStore(), func() {}, nil
	}
}

func openRedis(ctx context.Context, cfg config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := rdb.Ping(pingCtx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func policies(cfg config) domain.Policies {
	return domain.Policies{
		domain.ClassWrite: {Limit: cfg.RateWriteLimit, Window: cfg.RateWriteWindow},
		domain.ClassRead:  {Limit: cfg.RateReadLimit, Window: cfg.RateReadWindow},
	}
}

// newLimiter monta o Limiter configurado. Os backends em memória têm janitor,
// que para quando ctx é cancelado.
func newLimiter(ctx context.Context, cfg config, rdb *redis.Client) domain.Limiter {
	if !cfg.RateEnabled {
		return nil
	}
	pol := policies(cfg)

	if cfg.RateBackend == "redis" {
		return rlinfra.NewRedisWindowStore(rdb, pol, rlinfra.WithWindowPrefix(cfg.RateRedisPrefix))
	}
	if cfg.RateAlgorithm == "token" {
		s := rlinfra.NewTokenStore(pol, rlinfra.WithCleanupEvery(cfg.RateCleanupEvery))
		s.StartJanitor(ctx)
		return s
	}
	s := rlinfra.NewWindowStore(pol, rlinfra.WithWindowCleanupEvery(cfg.RateCleanupEvery))
	s.StartJanitor(ctx)
	return s
}

// newStats junta os destinos de estatística ativos. O segundo retorno é o store
// em memória, quando existe, para o endpoint de debug.
func newStats(cfg config, reg prometheus.Registerer, rdb *redis.Client) (domain.StatsStore, *rlinfra.MemoryStatsStore, error) {
	var (
		multi rlinfra.MultiStats
		mem   *rlinfra.MemoryStatsStore
	)

	if cfg.MetricsEnabled {
		prom, err := rlinfra.NewPrometheusStats(reg)
		if err != nil {
			return nil, nil, err
		}
		multi = append(multi, prom)
	}

	switch cfg.RateStatsBackend {
	case "memory":
		mem = rlinfra.NewMemoryStatsStore(rlinfra.WithTrackKeys(cfg.RateStatsTrackKeys))
		multi = append(multi, mem)
	case "redis":
		multi = append(multi, rlinfra.NewRedisStatsStore(
			rdb,
			rlinfra.WithStatsPrefix(cfg.RateStatsPrefix),
			rlinfra.WithStatsTTL(cfg.RateStatsTTL),
			rlinfra.WithStatsBucket(cfg.RateStatsBucket),
			rlinfra.WithStatsTrackKeys(cfg.RateStatsTrackKeys),
		))
	}

	if len(multi) == 0 {
		return nil, nil, nil
	}
	return multi, mem, nil
}

func rateStatsHandler(mem *rlinfra.MemoryStatsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(mem.Snapshot())
	}
}
