// Package reenrich re-runs enrichment over stored raw killmails, repairing
// rows persisted when price or name sources were degraded.
package reenrich

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/guarzo/killfeed-indexer/internal/enrich"
	"github.com/guarzo/killfeed-indexer/internal/store"
	"github.com/guarzo/killfeed-indexer/pkg/zkb"
)

// Result contains the results of a re-enrichment run.
type Result struct {
	TotalScanned   uint64
	TotalSucceeded uint64
	TotalFailed    uint64
	Duration       time.Duration
	Errors         []error
}

// Runner re-enriches raw killmails over a time range.
type Runner struct {
	store    *store.Store
	enricher *enrich.Enricher
	config   *Config
}

// New creates a new Runner.
func New(s *store.Store, e *enrich.Enricher, cfg *Config) *Runner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Runner{
		store:    s,
		enricher: e,
		config:   cfg,
	}
}

// Run executes the re-enrichment over [From, To).
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}

	from := r.config.From
	to := r.config.To
	if to.IsZero() {
		to = time.Now().UTC()
	}

	slog.Info("starting re-enrichment",
		"from", from,
		"to", to,
		"concurrency", r.config.Concurrency,
		"dry_run", r.config.DryRun,
	)

	var errorsMu sync.Mutex
	var scanned, succeeded, failed atomic.Uint64

	progressCtx, cancelProgress := context.WithCancel(ctx)
	defer cancelProgress()
	go r.reportProgress(progressCtx, &scanned, &succeeded, &failed)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Concurrency)

	err := r.store.RawPayloads(ctx, from, to, func(payload []byte) error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		default:
		}

		body := make([]byte, len(payload))
		copy(body, payload)

		g.Go(func() error {
			scanned.Add(1)

			if err := r.processOne(gCtx, body); err != nil {
				failed.Add(1)
				errorsMu.Lock()
				result.Errors = append(result.Errors, err)
				errorsMu.Unlock()
				slog.Error("re-enrichment failed", "err", err)
				// Continue with other killmails, don't fail the entire run
				return nil
			}

			succeeded.Add(1)
			return nil
		})
		return nil
	})

	if werr := g.Wait(); werr != nil && err == nil {
		err = werr
	}

	result.TotalScanned = scanned.Load()
	result.TotalSucceeded = succeeded.Load()
	result.TotalFailed = failed.Load()
	result.Duration = time.Since(start)

	slog.Info("re-enrichment complete",
		"total_scanned", result.TotalScanned,
		"total_succeeded", result.TotalSucceeded,
		"total_failed", result.TotalFailed,
		"duration", result.Duration,
	)

	return result, err
}

func (r *Runner) processOne(ctx context.Context, payload []byte) error {
	km, err := zkb.Decode(payload)
	if err != nil {
		return fmt.Errorf("decode stored payload: %w", err)
	}

	enriched := r.enricher.Enrich(ctx, km)

	if r.config.DryRun {
		slog.Debug("dry run, skipping write",
			"killmail_id", km.KillmailID,
			"total_value", enriched.TotalValue,
			"value_source", enriched.ValueSource,
		)
		return nil
	}

	if err := r.store.UpsertEnriched(ctx, enriched, enrich.Participants(enriched)); err != nil {
		return fmt.Errorf("killmail %d: %w", km.KillmailID, err)
	}
	return nil
}

// reportProgress logs progress at regular intervals.
func (r *Runner) reportProgress(ctx context.Context, scanned, succeeded, failed *atomic.Uint64) {
	ticker := time.NewTicker(r.config.ProgressInterval)
	defer ticker.Stop()

	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := scanned.Load()
			elapsed := time.Since(startTime)
			rate := float64(s) / elapsed.Seconds()
			slog.Info("re-enrichment progress",
				"scanned", s,
				"succeeded", succeeded.Load(),
				"failed", failed.Load(),
				"rate_per_sec", fmt.Sprintf("%.1f", rate),
				"elapsed", elapsed.Round(time.Second),
			)
		}
	}
}
