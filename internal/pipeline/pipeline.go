// Package pipeline orchestrates the killmail lifecycle: received -> parsed ->
// validated -> enriched -> persisted -> published, with matching and alerting
// after the durability boundary.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/guarzo/killfeed-indexer/internal/alert"
	"github.com/guarzo/killfeed-indexer/internal/enrich"
	"github.com/guarzo/killfeed-indexer/internal/match"
	"github.com/guarzo/killfeed-indexer/internal/metrics"
	"github.com/guarzo/killfeed-indexer/internal/supervise"
	"github.com/guarzo/killfeed-indexer/pkg/zkb"
)

// Status is the terminal state of one event's trip through the pipeline.
type Status string

const (
	StatusPoison    Status = "poison"    // malformed payload, dropped, never retried
	StatusInvalid   Status = "invalid"   // missing required fields, dropped
	StatusFailed    Status = "failed"    // persistence failed after bounded retries
	StatusPublished Status = "published" // persisted; fan-out attempted
)

// Outcome reports one event's result. A batch yields one Outcome per input;
// a sibling's failure never affects the others.
type Outcome struct {
	KillmailID int64
	Status     Status
	Err        error
}

// Store is the durable persistence collaborator.
type Store interface {
	UpsertRaw(ctx context.Context, km *zkb.Killmail, payload []byte) error
	UpsertEnriched(ctx context.Context, e *enrich.Enriched, parts []enrich.Participant) error
}

// Enricher derives the enriched event; by contract it cannot fail.
type Enricher interface {
	Enrich(ctx context.Context, km *zkb.Killmail) *enrich.Enriched
}

// FanOut is the best-effort notification collaborator.
type FanOut interface {
	PublishEnriched(v any)
	PublishAlert(a *alert.Alert)
}

// ProfileSource supplies the live watch-profile snapshot.
type ProfileSource interface {
	Snapshot() []match.Profile
}

// Config configures a Pipeline.
type Config struct {
	Store      Store
	Enricher   Enricher
	FanOut     FanOut
	Profiles   ProfileSource
	Engine     *match.Engine
	Supervisor *supervise.Supervisor

	// MaxPersistAttempts bounds storage retries (default: 3).
	MaxPersistAttempts int
	// PersistRetryDelay is the pause between storage retries (default: 250ms).
	PersistRetryDelay time.Duration
}

// Pipeline processes raw killmail payloads end to end.
type Pipeline struct {
	store      Store
	enricher   Enricher
	fanOut     FanOut
	profiles   ProfileSource
	engine     *match.Engine
	supervisor *supervise.Supervisor

	maxAttempts int
	retryDelay  time.Duration
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	if cfg.MaxPersistAttempts <= 0 {
		cfg.MaxPersistAttempts = 3
	}
	if cfg.PersistRetryDelay <= 0 {
		cfg.PersistRetryDelay = 250 * time.Millisecond
	}
	return &Pipeline{
		store:       cfg.Store,
		enricher:    cfg.Enricher,
		fanOut:      cfg.FanOut,
		profiles:    cfg.Profiles,
		engine:      cfg.Engine,
		supervisor:  cfg.Supervisor,
		maxAttempts: cfg.MaxPersistAttempts,
		retryDelay:  cfg.PersistRetryDelay,
	}
}

// Process runs one raw payload through the full lifecycle.
func (p *Pipeline) Process(ctx context.Context, payload []byte) Outcome {
	// received -> parsed
	km, err := zkb.Decode(payload)
	if err != nil {
		metrics.EventsTotal.WithLabelValues(string(StatusPoison)).Inc()
		slog.Warn("dropping poison payload", "len", len(payload), "err", err)
		return Outcome{Status: StatusPoison, Err: err}
	}

	// parsed -> validated
	if err := zkb.Validate(km); err != nil {
		metrics.EventsTotal.WithLabelValues(string(StatusInvalid)).Inc()
		slog.Warn("dropping invalid killmail", "killmail_id", km.KillmailID, "err", err)
		return Outcome{KillmailID: km.KillmailID, Status: StatusInvalid, Err: err}
	}

	// validated -> enriched (cannot fail by contract)
	enriched := p.enricher.Enrich(ctx, km)

	// enriched -> persisted (bounded retries; failure surfaces to the caller)
	if err := p.persist(ctx, km, payload, enriched); err != nil {
		metrics.EventsTotal.WithLabelValues(string(StatusFailed)).Inc()
		slog.Error("persist failed after retries",
			"killmail_id", km.KillmailID,
			"attempts", p.maxAttempts,
			"err", err,
		)
		return Outcome{KillmailID: km.KillmailID, Status: StatusFailed, Err: err}
	}

	// persisted -> published (best-effort, never rolls back the write)
	p.fanOut.PublishEnriched(enriched)

	// matching and alerting run after the durability boundary
	p.matchAndAlert(enriched)

	metrics.EventsTotal.WithLabelValues(string(StatusPublished)).Inc()
	return Outcome{KillmailID: km.KillmailID, Status: StatusPublished}
}

// ProcessBatch processes payloads with per-event isolation: one event's
// failure does not fail its siblings, and the result always has one entry
// per input.
func (p *Pipeline) ProcessBatch(ctx context.Context, payloads [][]byte) []Outcome {
	outcomes := make([]Outcome, len(payloads))
	for i, payload := range payloads {
		outcomes[i] = p.Process(ctx, payload)
	}
	return outcomes
}

// persist writes raw, enriched, and participant rows under supervision with
// bounded retries. Idempotent upserts make a retry after partial failure
// safe: re-writing what already landed converges, never duplicates.
func (p *Pipeline) persist(ctx context.Context, km *zkb.Killmail, payload []byte, enriched *enrich.Enriched) error {
	parts := enrich.Participants(enriched)

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err := p.supervisor.Run(func(taskCtx context.Context) error {
			if err := p.store.UpsertRaw(taskCtx, km, payload); err != nil {
				return fmt.Errorf("upsert raw: %w", err)
			}
			if err := p.store.UpsertEnriched(taskCtx, enriched, parts); err != nil {
				return fmt.Errorf("upsert enriched: %w", err)
			}
			return nil
		}, "persist", map[string]string{"killmail_id": fmt.Sprint(km.KillmailID)})

		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < p.maxAttempts {
			metrics.PersistRetries.Inc()
			slog.Warn("persist attempt failed, retrying",
				"killmail_id", km.KillmailID,
				"attempt", attempt,
				"err", err,
			)
			select {
			case <-ctx.Done():
				return errors.Join(lastErr, ctx.Err())
			case <-time.After(p.retryDelay):
			}
		}
	}
	return lastErr
}

// matchAndAlert evaluates the live profile set against the event and
// dispatches alerts. Failures here are logged, never surfaced: alerting is
// downstream of the durability boundary.
func (p *Pipeline) matchAndAlert(enriched *enrich.Enriched) {
	if p.profiles == nil || p.engine == nil {
		return
	}

	view := buildView(enriched)
	snapshot := p.profiles.Snapshot()
	if len(snapshot) == 0 {
		return
	}

	err := p.supervisor.Run(func(ctx context.Context) error {
		for i := range snapshot {
			result := p.engine.EvaluateProfile(&snapshot[i], view)
			if result == nil {
				continue
			}
			metrics.MatchesTotal.Inc()

			a, err := alert.Generate(result)
			if err != nil {
				slog.Warn("alert generation failed",
					"profile_id", result.ProfileID,
					"killmail_id", result.KillmailID,
					"err", err,
				)
				continue
			}
			metrics.AlertsTotal.WithLabelValues(string(a.Type)).Inc()
			p.fanOut.PublishAlert(a)
		}
		return nil
	}, "match", map[string]string{"killmail_id": fmt.Sprint(enriched.KillmailID)})

	if err != nil {
		slog.Warn("match task failed", "killmail_id", enriched.KillmailID, "err", err)
	}
}

// buildView projects an enriched event into the matching engine's read model.
func buildView(e *enrich.Enriched) *match.EventView {
	km := e.Raw
	view := &match.EventView{
		KillmailID:       e.KillmailID,
		SolarSystemID:    e.SolarSystemID,
		VictimCharacter:  km.Victim.CharacterID,
		VictimCorp:       km.Victim.CorporationID,
		VictimAlliance:   km.Victim.AllianceID,
		TotalValue:       e.TotalValue,
		ParticipantCount: len(km.Attackers) + 1,
	}
	for _, att := range km.Attackers {
		view.AttackerChars = append(view.AttackerChars, att.CharacterID)
		view.AttackerCorps = append(view.AttackerCorps, att.CorporationID)
		view.AttackerAlliances = append(view.AttackerAlliances, att.AllianceID)
	}
	return view
}
