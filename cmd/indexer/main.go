package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/internal/indexer/rebuild"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/resilience"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	rebuildOnly := flag.Bool("rebuild", false, "rebuild the whole index from postgres and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg, *rebuildOnly); err != nil {
		slog.Error("indexer service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("indexer service stopped")
}

func run(cfg *config.Config, rebuildOnly bool) error {
	slog.Info("starting indexer service",
		"tokenizer", cfg.Fulltext.Tokenizer,
		"key_prefix", cfg.Fulltext.KeyPrefix,
	)
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
	engine := indexer.NewEngine(redisClient, tok, index.NewKeys(cfg.Fulltext.KeyPrefix))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
	defer producer.Close()

	if rebuildOnly || cfg.Rebuild.OnStart {
		if err := rebuildIndex(ctx, cfg, engine, producer, m); err != nil {
			return err
		}
		if rebuildOnly {
			return nil
		}
	}

	if count, err := engine.DocCount(ctx); err == nil {
		m.SetIndexedDocuments(count)
		slog.Info("index opened", "doc_count", count)
	} else {
		slog.Warn("reading doc count failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return shutdownMetrics(shutdownCtx)
		})
	}

	eventConsumer := kafka.NewConsumer(cfg.Kafka,
		kafka.ReaderOptions{Topic: cfg.Kafka.Topics.DocumentEvents},
		consumer.HandleMessage(engine, producer, m, resilience.RetryConfig{
			MaxAttempts:  cfg.Kafka.RetryAttempts,
			InitialDelay: cfg.Kafka.RetryBackoff,
		}),
	)
	slog.Info("indexer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.DocumentEvents,
		"group", cfg.Kafka.ConsumerGroup,
	)
	g.Go(func() error {
		return eventConsumer.Start(gctx)
	})
	return g.Wait()
}

func rebuildIndex(ctx context.Context, cfg *config.Config, engine *indexer.Engine, producer *kafka.Producer, m *metrics.Metrics) error {
	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connecting to rebuild source: %w", err)
	}
	defer pg.Close()

	report, err := rebuild.Run(ctx, engine, rebuild.NewPostgresSource(pg, cfg.Rebuild.SourceQuery), m)
	if err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}
	for _, f := range report.Failures {
		slog.Warn("document skipped during rebuild", "doc_id", f.ID, "error", f.Error)
	}

	complete := consumer.IndexCompleteEvent{Op: consumer.OpRebuild, Timestamp: time.Now().UTC()}
	if err := producer.Publish(ctx, kafka.Event{Key: consumer.OpRebuild, Value: complete}); err != nil {
		slog.Error("failed to announce rebuild", "error", err)
	}
	return nil
}
