package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/guarzo/killfeed-indexer/internal/api"
	"github.com/guarzo/killfeed-indexer/internal/config"
	"github.com/guarzo/killfeed-indexer/internal/enrich"
	"github.com/guarzo/killfeed-indexer/internal/listener"
	"github.com/guarzo/killfeed-indexer/internal/match"
	"github.com/guarzo/killfeed-indexer/internal/names"
	"github.com/guarzo/killfeed-indexer/internal/pipeline"
	"github.com/guarzo/killfeed-indexer/internal/pricing"
	"github.com/guarzo/killfeed-indexer/internal/profiles"
	"github.com/guarzo/killfeed-indexer/internal/publisher"
	"github.com/guarzo/killfeed-indexer/internal/store"
	"github.com/guarzo/killfeed-indexer/internal/supervise"
	"github.com/guarzo/killfeed-indexer/internal/topology"
	"github.com/guarzo/killfeed-indexer/internal/worker"
	"github.com/guarzo/killfeed-indexer/pkg/esi"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	// Setup logging
	setupLogging(cfg.LogLevel)

	slog.Info("starting killfeed-indexer",
		"stream_url", cfg.StreamURL,
		"channel", cfg.StreamChannel,
		"http_enabled", cfg.HTTPEnabled,
	)

	// Connect to PostgreSQL
	db, err := store.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		slog.Error("failed to connect to postgres", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		slog.Error("failed to initialize schema", "err", err)
		os.Exit(1)
	}

	partitions := store.NewPartitionMaintainer(db, cfg.PartitionCheckInterval)
	if err := partitions.EnsureCurrent(ctx); err != nil {
		slog.Error("failed to create partitions", "err", err)
		os.Exit(1)
	}

	// Connect to Redis
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("failed to parse redis url", "err", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	// Create publisher
	pub, err := publisher.New(redisClient, publisher.Topics{
		Raw:      cfg.RawTopic,
		Enriched: cfg.EnrichedTopic,
		Alerts:   cfg.AlertsTopic,
	})
	if err != nil {
		slog.Error("failed to create publisher", "err", err)
		os.Exit(1)
	}
	defer pub.Close()

	// Enrichment dependencies
	esiClient := esi.New(esi.Opts{
		Endpoints: cfg.ESIEndpoints,
		RPS:       cfg.UpstreamRPS,
		Burst:     cfg.UpstreamBurst,
		UserAgent: cfg.UserAgent,
	})

	resolver := names.New(names.Config{
		Bulk:   esiClient,
		Static: db,
		TTL:    cfg.NameTTL,
	})

	prices := pricing.NewChain(
		pricing.NewStaticSource(db),
		pricing.NewMarketSource(pricing.MarketOpts{
			Endpoints: cfg.MarketEndpoints,
			RPS:       cfg.UpstreamRPS,
			Burst:     cfg.UpstreamBurst,
			CacheTTL:  cfg.PriceTTL,
			UserAgent: cfg.UserAgent,
		}),
		pricing.NewMutamarketSource(pricing.MutamarketOpts{
			Endpoints: cfg.MutamarketEndpoints,
			RPS:       cfg.UpstreamRPS,
			Burst:     cfg.UpstreamBurst,
			UserAgent: cfg.UserAgent,
		}),
		pricing.NewManualSource(db),
	)

	enricher := enrich.New(enrich.Config{
		Prices: prices,
		Names:  resolver,
	})

	// Matching and alerting
	topologies := topology.NewRegistry()
	engine := match.NewEngine(topologies)

	poller := profiles.New(db, cfg.ProfilePollInterval)
	if err := poller.Refresh(ctx); err != nil {
		slog.Warn("initial profile load failed, starting empty", "err", err)
	}

	supervisor := supervise.New(supervise.Config{
		Name:          "pipeline",
		MaxConcurrent: cfg.MaxConcurrentTasks,
		MaxDuration:   cfg.TaskMaxDuration,
		WarningTime:   cfg.TaskWarningTime,
	})

	// Pipeline and worker
	pipe := pipeline.New(pipeline.Config{
		Store:      db,
		Enricher:   enricher,
		FanOut:     pub,
		Profiles:   poller,
		Engine:     engine,
		Supervisor: supervisor,
	})

	wrk, err := worker.New(worker.Config{
		RedisClient:   redisClient,
		Pipeline:      pipe,
		Topic:         cfg.RawTopic,
		ConsumerGroup: cfg.ConsumerGroup,
	})
	if err != nil {
		slog.Error("failed to create worker", "err", err)
		os.Exit(1)
	}
	defer wrk.Close()

	// Websocket listener feeds the durable queue
	lst := listener.New(listener.Config{
		URL:            cfg.StreamURL,
		Channel:        cfg.StreamChannel,
		MaxRetries:     cfg.WSMaxRetries,
		ReconnectDelay: cfg.WSReconnectDelay,
	}, func(payload []byte) {
		if err := pub.PublishRaw(ctx, payload); err != nil {
			slog.Error("failed to enqueue killmail", "err", err)
		}
	})

	// Run all components
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting worker")
		return wrk.Run(ctx)
	})

	g.Go(func() error {
		slog.Info("starting killstream listener", "url", cfg.StreamURL)
		return lst.Run(ctx)
	})

	g.Go(func() error {
		return poller.Run(ctx)
	})

	g.Go(func() error {
		return partitions.Run(ctx)
	})

	if cfg.QueueStatsInterval > 0 {
		g.Go(func() error {
			return runQueueStatsLoop(ctx, wrk, cfg.QueueStatsInterval)
		})
	}

	if cfg.HTTPEnabled {
		zapLogger, err := zap.NewProduction()
		if err != nil {
			slog.Error("failed to create http logger", "err", err)
			os.Exit(1)
		}
		defer zapLogger.Sync()

		srv, err := api.NewServer(db, wrk, lst, []*supervise.Supervisor{supervisor}, zapLogger, cfg.HTTPAddr, cfg.AdminToken)
		if err != nil {
			slog.Error("failed to create api server", "err", err)
			os.Exit(1)
		}
		g.Go(func() error {
			return srv.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("indexer error", "err", err)
		os.Exit(1)
	}

	supervisor.Drain()
	slog.Info("shutdown complete")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

// runQueueStatsLoop logs queue depth at regular intervals.
func runQueueStatsLoop(ctx context.Context, wrk *worker.Worker, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			wrk.LogQueueStats(ctx)
		}
	}
}
