package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/resilience"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
	slog.Info("starting search service", "port", cfg.Server.Port, "tokenizer", cfg.Fulltext.Tokenizer)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	tok, err := tokenizer.FromConfig(cfg.Fulltext)
	if err != nil {
		return err
	}
	keys := index.NewKeys(cfg.Fulltext.KeyPrefix)
	engine := indexer.NewEngine(redisClient, tok, keys)
	exec := executor.New(redisClient, tok, keys)

	var queryCache *cache.QueryCache
	if cfg.Redis.CacheTTL > 0 {
		queryCache = cache.New(redisClient, cfg.Fulltext.KeyPrefix, cfg.Redis.CacheTTL)
		slog.Info("search cache enabled", "ttl", cfg.Redis.CacheTTL)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	checker := health.NewChecker()
	checker.Register("redis", health.PingCheck(redisClient, true))

	h := handler.New(exec, engine, queryCache, m, handler.Options{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
		PartialMatch: cfg.Search.PartialMatch,
	})
	mux := http.NewServeMux()
	h.Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	if cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", metrics.Handler(reg))
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("search service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if queryCache != nil {
		// Every replica must see every event, so each one joins its own group.
		hostname, _ := os.Hostname()
		invalidations := kafka.NewConsumer(cfg.Kafka, kafka.ReaderOptions{
			Topic:      cfg.Kafka.Topics.IndexComplete,
			GroupID:    fmt.Sprintf("%s-cache-%s", cfg.Kafka.ConsumerGroup, hostname),
			FromLatest: true,
		}, invalidateOnComplete(queryCache, resilience.RetryConfig{
			MaxAttempts:  cfg.Kafka.RetryAttempts,
			InitialDelay: cfg.Kafka.RetryBackoff,
		}))
		g.Go(func() error {
			return invalidations.Start(gctx)
		})
	}
	return g.Wait()
}

// invalidateOnComplete drops the query cache on every index-complete event.
// An invalidation that still fails after retry is logged and skipped: entries
// expire with the cache TTL, and stopping the consumer would not refresh them
// any sooner.
func invalidateOnComplete(queryCache *cache.QueryCache, retry resilience.RetryConfig) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[consumer.IndexCompleteEvent](value)
		if err != nil {
			slog.Warn("undecodable index complete event", "key", string(key), "error", err)
		} else {
			slog.Debug("index changed, invalidating cache", "op", event.Op, "doc_id", event.DocumentID)
		}
		err = resilience.Retry(ctx, "invalidate cache", retry, func() error {
			return queryCache.Invalidate(ctx)
		})
		if err != nil {
			slog.Error("cache left stale until ttl", "error", err)
		}
		return nil
	}
}
