package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	snap := NewSnapshot(map[int64]int{31000001: 0, 31000002: 3})

	assert.True(t, snap.Contains(31000001))
	assert.False(t, snap.Contains(30000142))

	jumps, ok := snap.Jumps(31000002)
	assert.True(t, ok)
	assert.Equal(t, 3, jumps)

	_, ok = snap.Jumps(30000142)
	assert.False(t, ok)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Snapshot("map-1")
	assert.False(t, ok)

	r.Update("map-1", NewSnapshot(map[int64]int{31000001: 0}))

	topo, ok := r.Snapshot("map-1")
	require.True(t, ok)
	assert.True(t, topo.Contains(31000001))

	// A push replaces the snapshot wholesale.
	r.Update("map-1", NewSnapshot(map[int64]int{31000009: 1}))
	topo, ok = r.Snapshot("map-1")
	require.True(t, ok)
	assert.False(t, topo.Contains(31000001))
	assert.True(t, topo.Contains(31000009))
}
