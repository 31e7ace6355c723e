// Package profiles supplies the live set of watch profiles to the matching
// step. Profile ownership lives elsewhere; this is a polled read-only view.
package profiles

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/guarzo/killfeed-indexer/internal/match"
)

// Source loads the current profile set.
type Source interface {
	WatchProfiles(ctx context.Context) ([]match.Profile, error)
}

// Poller refreshes an atomic snapshot of watch profiles on an interval.
type Poller struct {
	source   Source
	interval time.Duration
	snapshot atomic.Pointer[[]match.Profile]
}

// New creates a Poller (default interval: 30s).
func New(source Source, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	p := &Poller{source: source, interval: interval}
	empty := []match.Profile{}
	p.snapshot.Store(&empty)
	return p
}

// Snapshot returns the current profile set. Safe for concurrent readers; the
// slice must not be mutated.
func (p *Poller) Snapshot() []match.Profile {
	return *p.snapshot.Load()
}

// Refresh loads the profile set once.
func (p *Poller) Refresh(ctx context.Context) error {
	profiles, err := p.source.WatchProfiles(ctx)
	if err != nil {
		return err
	}
	p.snapshot.Store(&profiles)
	slog.Debug("watch profiles refreshed", "count", len(profiles))
	return nil
}

// Run starts the polling loop. A failed refresh keeps the previous snapshot.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.Refresh(ctx); err != nil {
		slog.Warn("initial profile refresh failed", "err", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.Refresh(ctx); err != nil {
				slog.Warn("profile refresh failed", "err", err)
			}
		}
	}
}
