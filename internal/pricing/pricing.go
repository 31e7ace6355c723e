// Package pricing resolves ship and item type ids to price estimates via an
// ordered chain of pluggable sources with fallback.
package pricing

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/guarzo/killfeed-indexer/internal/metrics"
)

// ErrNotFound is returned when no source can price a type id. Callers must
// treat this as a zero value, not a retryable error.
var ErrNotFound = errors.New("no price available")

// Attributes carries optional per-item hints consulted by Supports, e.g. the
// mutated-module marker for the specialist source.
type Attributes struct {
	Mutated       bool
	MutatorTypeID int64
}

// Estimate is a resolved buy/sell price for a type id.
type Estimate struct {
	TypeID     int64
	BuyPrice   float64
	SellPrice  float64
	Source     string
	ResolvedAt time.Time
}

// Source is one pluggable price provider. Sources are tried in ascending
// Priority order; the first success wins and stops the chain.
type Source interface {
	Name() string
	Priority() int
	Supports(typeID int64, attrs Attributes) bool
	GetPrice(ctx context.Context, typeID int64, attrs Attributes) (Estimate, error)
}

// Chain is a fixed-priority list of sources.
type Chain struct {
	sources []Source
}

// NewChain creates a chain over the given sources, sorted by ascending
// priority.
func NewChain(sources ...Source) *Chain {
	sorted := make([]Source, len(sources))
	copy(sorted, sources)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	return &Chain{sources: sorted}
}

// Resolve tries each supporting source in priority order until one succeeds.
// A source failure does not abort the chain; if every source fails the caller
// receives ErrNotFound.
func (c *Chain) Resolve(ctx context.Context, typeID int64, attrs Attributes) (Estimate, error) {
	for _, src := range c.sources {
		if !src.Supports(typeID, attrs) {
			continue
		}
		est, err := src.GetPrice(ctx, typeID, attrs)
		if err != nil {
			slog.Debug("price source miss",
				"source", src.Name(),
				"type_id", typeID,
				"err", err,
			)
			continue
		}
		metrics.PriceLookups.WithLabelValues(src.Name()).Inc()
		return est, nil
	}
	return Estimate{}, ErrNotFound
}

// ResolveBatch resolves a set of type ids with per-id outcomes. Ids that no
// source can price are simply absent from the result.
func (c *Chain) ResolveBatch(ctx context.Context, ids []int64, attrs map[int64]Attributes) map[int64]Estimate {
	out := make(map[int64]Estimate, len(ids))
	for _, id := range ids {
		a := attrs[id]
		est, err := c.Resolve(ctx, id, a)
		if err != nil {
			continue
		}
		out[id] = est
	}
	return out
}

// Sources returns the chain's sources in evaluation order.
func (c *Chain) Sources() []Source {
	return c.sources
}
