// Package topology holds chain-topology snapshots consumed by chain_watch
// criteria. Snapshots are pushed in whole by an external mapper; this package
// only stores and serves them.
package topology

import (
	"sync"

	"github.com/guarzo/killfeed-indexer/internal/match"
)

// Snapshot is one map's topology: the member systems and their jump distance
// from the chain's home system.
type Snapshot struct {
	systems map[int64]int // system id -> jumps from home
}

// NewSnapshot builds a snapshot from a distance map.
func NewSnapshot(distances map[int64]int) *Snapshot {
	systems := make(map[int64]int, len(distances))
	for id, jumps := range distances {
		systems[id] = jumps
	}
	return &Snapshot{systems: systems}
}

// Contains reports chain membership.
func (s *Snapshot) Contains(systemID int64) bool {
	_, ok := s.systems[systemID]
	return ok
}

// Jumps returns the distance from the chain's home system.
func (s *Snapshot) Jumps(systemID int64) (int, bool) {
	jumps, ok := s.systems[systemID]
	return jumps, ok
}

// Registry serves the latest snapshot per map id. Implements the matching
// engine's TopologyProvider.
type Registry struct {
	mu   sync.RWMutex
	maps map[string]*Snapshot
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{maps: make(map[string]*Snapshot)}
}

// Update replaces the snapshot for a map id.
func (r *Registry) Update(mapID string, snap *Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maps[mapID] = snap
}

// Snapshot returns the current topology for a map id. Implements
// match.TopologyProvider.
func (r *Registry) Snapshot(mapID string) (match.Topology, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.maps[mapID]
	if !ok {
		return nil, false
	}
	return snap, true
}
