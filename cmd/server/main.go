package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kakizome/middleware/accesslog"
	"kakizome/middleware/identity"
	"kakizome/middleware/ratelimit"
	rlapp "kakizome/middleware/ratelimit/application"
	rlinfra "kakizome/middleware/ratelimit/infra"
	"kakizome/posting"
	"kakizome/posting/application"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := readConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, log *zap.Logger) error {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var rdb *redis.Client
	if cfg.needsRedis() {
		rdb, err = openRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	stats, memStats, err := newStats(cfg, reg, rdb)
	if err != nil {
		return fmt.Errorf("rate stats: %w", err)
	}

	svc := application.Service{
		Store: store,
		Throttle: rlapp.Service{
			Limiter:  newLimiter(ctx, cfg, rdb),
			Stats:    stats,
			FailOpen: cfg.RateFailOpen,
		},
		Log: log,
	}

	r := posting.NewRouter(posting.Options{
		Service:      svc,
		AddressFn:    ratelimit.DefaultAddressFunc(cfg.RateKeyHeader, cfg.TrustXFF),
		Resolver:     identity.Resolver{},
		CookieSecure: cfg.CookieSecure,
		Log:          log,
	})
	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	if memStats != nil {
		r.Get("/debug/ratelimit", rateStatsHandler(memStats))
	}

	var slotWait func(time.Duration, bool)
	if cfg.MetricsEnabled {
		obs, err := rlinfra.NewSlotWaitObserver(reg)
		if err != nil {
			return fmt.Errorf("concurrency metrics: %w", err)
		}
		slotWait = obs.Observe
	}

	h := http.Handler(r)
	if cfg.GzipEnabled {
		// respostas pequenas (abaixo de 1KB) passam sem compressão
		h = gzhttp.GzipHandler(h)
	}
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.ConcurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.ConcurrencyTimeout,
		Observe:        slotWait,
	})(h)
	h = accesslog.Middleware(log)(h)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	log.Info("listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("store", cfg.StoreDriver),
	)
	log.Info("rate",
		zap.Bool("enabled", cfg.RateEnabled),
		zap.String("backend", cfg.RateBackend),
		zap.String("algorithm", cfg.RateAlgorithm),
		zap.Int("write_limit", cfg.RateWriteLimit),
		zap.Duration("write_window", cfg.RateWriteWindow),
		zap.Int("read_limit", cfg.RateReadLimit),
		zap.Duration("read_window", cfg.RateReadWindow),
		zap.String("key_header", cfg.RateKeyHeader),
		zap.Bool("trust_xff", cfg.TrustXFF),
		zap.Bool("fail_open", cfg.RateFailOpen),
		zap.String("stats", cfg.RateStatsBackend),
	)
	log.Info("concurrency", zap.Int("max", cfg.ConcurrencyMax), zap.Duration("acquire_timeout", cfg.ConcurrencyTimeout))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
