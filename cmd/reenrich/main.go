package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guarzo/killfeed-indexer/internal/config"
	"github.com/guarzo/killfeed-indexer/internal/enrich"
	"github.com/guarzo/killfeed-indexer/internal/names"
	"github.com/guarzo/killfeed-indexer/internal/pricing"
	"github.com/guarzo/killfeed-indexer/internal/reenrich"
	"github.com/guarzo/killfeed-indexer/internal/store"
	"github.com/guarzo/killfeed-indexer/pkg/esi"
)

func main() {
	// Parse flags
	fromFlag := flag.String("from", "", "Start of kill_time range, RFC3339 (default: 24h ago)")
	toFlag := flag.String("to", "", "End of kill_time range, RFC3339 (default: now)")
	concurrency := flag.Int("concurrency", 0, "Number of concurrent enrichments (default: 10)")
	dryRun := flag.Bool("dry-run", false, "Re-enrich without writing back")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load base configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	// Setup logging
	setupLogging(cfg.LogLevel)

	// Re-enrichment configuration: env first, flags override
	rcfg := reenrich.LoadConfig()
	if *fromFlag != "" {
		t, err := time.Parse(time.RFC3339, *fromFlag)
		if err != nil {
			slog.Error("invalid -from value", "value", *fromFlag, "err", err)
			os.Exit(1)
		}
		rcfg.From = t
	}
	if *toFlag != "" {
		t, err := time.Parse(time.RFC3339, *toFlag)
		if err != nil {
			slog.Error("invalid -to value", "value", *toFlag, "err", err)
			os.Exit(1)
		}
		rcfg.To = t
	}
	if *concurrency > 0 {
		rcfg.Concurrency = *concurrency
	}
	if *dryRun {
		rcfg.DryRun = true
	}

	// Connect to PostgreSQL
	db, err := store.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		slog.Error("failed to connect to postgres", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// Enrichment dependencies, same stack as the live pipeline
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

	runner := reenrich.New(db, enricher, rcfg)

	result, err := runner.Run(ctx)
	if err != nil && ctx.Err() == nil {
		slog.Error("re-enrichment failed", "err", err)
		os.Exit(1)
	}

	if result != nil && result.TotalFailed > 0 {
		os.Exit(1)
	}
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
