// Package names resolves numeric entity ids to display names with tiered
// caching and batch lookup. Resolution never fails: anything unresolvable
// gets a synthetic placeholder.
package names

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Kind identifies the entity namespace an id belongs to.
type Kind string

const (
	KindCharacter   Kind = "character"
	KindCorporation Kind = "corporation"
	KindAlliance    Kind = "alliance"
	KindShipType    Kind = "ship_type"
	KindSystem      Kind = "system"
)

// batchLimit returns the upstream per-call batch limit for a volatile kind.
// Characters support large batches; the rest are capped low.
func batchLimit(kind Kind) int {
	if kind == KindCharacter {
		return 1000
	}
	return 50
}

// isStatic reports whether a kind resolves from static data rather than the
// bulk lookup API.
func isStatic(kind Kind) bool {
	return kind == KindShipType || kind == KindSystem
}

// BulkSource is the external lookup API for volatile kinds (characters,
// corporations, alliances).
type BulkSource interface {
	NameStrings(ctx context.Context, ids []int64) (map[int64]string, error)
}

// StaticSource is the direct database lookup for static kinds (ship types,
// solar systems).
type StaticSource interface {
	StaticNames(ctx context.Context, kind string, ids []int64) (map[int64]string, error)
}

// Resolver is the two-tier name cache.
type Resolver struct {
	bulk   BulkSource
	static StaticSource
	ttl    time.Duration

	mu    sync.RWMutex
	cache map[Kind]map[int64]cachedName
}

type cachedName struct {
	name    string
	expires time.Time
}

// Config configures a Resolver.
type Config struct {
	Bulk   BulkSource
	Static StaticSource
	TTL    time.Duration // default: 24h
}

// New creates a new Resolver.
func New(cfg Config) *Resolver {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Resolver{
		bulk:   cfg.Bulk,
		static: cfg.Static,
		ttl:    cfg.TTL,
		cache:  make(map[Kind]map[int64]cachedName),
	}
}

// Placeholder is the synthetic name used for anything unresolvable.
func Placeholder(kind Kind, id int64) string {
	return fmt.Sprintf("Unknown %s (%d)", kindLabel(kind), id)
}

func kindLabel(kind Kind) string {
	switch kind {
	case KindCharacter:
		return "Character"
	case KindCorporation:
		return "Corporation"
	case KindAlliance:
		return "Alliance"
	case KindShipType:
		return "Ship"
	case KindSystem:
		return "System"
	default:
		return "Entity"
	}
}

// ResolveOne resolves a single id. Never fails; unresolvable ids get the
// placeholder.
func (r *Resolver) ResolveOne(ctx context.Context, kind Kind, id int64) string {
	out := r.ResolveMany(ctx, kind, []int64{id})
	return out[id]
}

// ResolveMany resolves a set of ids with one batched fetch for the misses.
// Every requested id is present in the result; the cache never stores the
// placeholder, so a later retry can still succeed.
func (r *Resolver) ResolveMany(ctx context.Context, kind Kind, ids []int64) map[int64]string {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out
	}

	// Partition into cached vs missing.
	missing := make([]int64, 0, len(ids))
	r.mu.RLock()
	tier := r.cache[kind]
	now := time.Now()
	for _, id := range ids {
		if c, ok := tier[id]; ok && now.Before(c.expires) {
			out[id] = c.name
		} else {
			missing = append(missing, id)
		}
	}
	r.mu.RUnlock()

	if len(missing) == 0 {
		return out
	}

	fetched := r.fetch(ctx, kind, missing)
	if len(fetched) > 0 {
		r.populate(kind, fetched)
	}

	for _, id := range missing {
		if name, ok := fetched[id]; ok {
			out[id] = name
		} else {
			out[id] = Placeholder(kind, id)
		}
	}
	return out
}

// fetch performs the batched upstream lookup for misses, chunked to the
// per-kind limit. An upstream failure degrades to placeholders for the chunk.
func (r *Resolver) fetch(ctx context.Context, kind Kind, ids []int64) map[int64]string {
	if isStatic(kind) {
		fetched, err := r.static.StaticNames(ctx, string(kind), ids)
		if err != nil {
			slog.Debug("static name lookup failed", "kind", kind, "count", len(ids), "err", err)
			return nil
		}
		return fetched
	}

	limit := batchLimit(kind)
	out := make(map[int64]string, len(ids))
	for start := 0; start < len(ids); start += limit {
		end := start + limit
		if end > len(ids) {
			end = len(ids)
		}
		fetched, err := r.bulk.NameStrings(ctx, ids[start:end])
		if err != nil {
			slog.Debug("bulk name lookup failed",
				"kind", kind,
				"count", end-start,
				"err", err,
			)
			continue
		}
		for id, name := range fetched {
			out[id] = name
		}
	}
	return out
}

// populate merges fetched names into the cache. Concurrent populators race;
// last write wins, which is acceptable for display names.
func (r *Resolver) populate(kind Kind, names map[int64]string) {
	expires := time.Now().Add(r.ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	tier, ok := r.cache[kind]
	if !ok {
		tier = make(map[int64]cachedName)
		r.cache[kind] = tier
	}
	for id, name := range names {
		if name == "" {
			continue
		}
		tier[id] = cachedName{name: name, expires: expires}
	}
}

// CachedCount returns how many entries the cache holds for a kind. Used by
// the stats endpoint.
func (r *Resolver) CachedCount(kind Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache[kind])
}
