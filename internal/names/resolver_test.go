package names

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBulk struct {
	names   map[int64]string
	err     error
	calls   int
	batches [][]int64
}

func (s *stubBulk) NameStrings(ctx context.Context, ids []int64) (map[int64]string, error) {
	s.calls++
	batch := make([]int64, len(ids))
	copy(batch, ids)
	s.batches = append(s.batches, batch)
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[int64]string)
	for _, id := range ids {
		if name, ok := s.names[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

type stubStatic struct {
	names map[string]map[int64]string
	calls int
}

func (s *stubStatic) StaticNames(ctx context.Context, kind string, ids []int64) (map[int64]string, error) {
	s.calls++
	out := make(map[int64]string)
	for _, id := range ids {
		if name, ok := s.names[kind][id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func TestResolveMany(t *testing.T) {
	bulk := &stubBulk{names: map[int64]string{
		95465499: "CCP Falcon",
		90000001: "Test Pilot",
	}}
	r := New(Config{Bulk: bulk})

	out := r.ResolveMany(context.Background(), KindCharacter, []int64{95465499, 90000001, 777})

	assert.Equal(t, "CCP Falcon", out[95465499])
	assert.Equal(t, "Test Pilot", out[90000001])
	assert.Equal(t, "Unknown Character (777)", out[777])
	assert.Equal(t, 1, bulk.calls)
}

func TestResolveManyUsesCache(t *testing.T) {
	bulk := &stubBulk{names: map[int64]string{1: "One"}}
	r := New(Config{Bulk: bulk})

	r.ResolveMany(context.Background(), KindCharacter, []int64{1})
	r.ResolveMany(context.Background(), KindCharacter, []int64{1})

	assert.Equal(t, 1, bulk.calls)
	assert.Equal(t, 1, r.CachedCount(KindCharacter))
}

func TestResolveManyPlaceholderNotCached(t *testing.T) {
	bulk := &stubBulk{names: map[int64]string{}}
	r := New(Config{Bulk: bulk})

	out := r.ResolveMany(context.Background(), KindCharacter, []int64{42})
	assert.Equal(t, "Unknown Character (42)", out[42])
	assert.Equal(t, 0, r.CachedCount(KindCharacter))

	// A later retry hits upstream again and can succeed.
	bulk.names[42] = "Late Arrival"
	out = r.ResolveMany(context.Background(), KindCharacter, []int64{42})
	assert.Equal(t, "Late Arrival", out[42])
	assert.Equal(t, 2, bulk.calls)
}

func TestResolveManyChunksByKind(t *testing.T) {
	t.Run("characters batch up to 1000", func(t *testing.T) {
		bulk := &stubBulk{names: map[int64]string{}}
		r := New(Config{Bulk: bulk})

		ids := make([]int64, 1500)
		for i := range ids {
			ids[i] = int64(i + 1)
		}
		r.ResolveMany(context.Background(), KindCharacter, ids)

		require.Equal(t, 2, bulk.calls)
		assert.Len(t, bulk.batches[0], 1000)
		assert.Len(t, bulk.batches[1], 500)
	})

	t.Run("corporations batch up to 50", func(t *testing.T) {
		bulk := &stubBulk{names: map[int64]string{}}
		r := New(Config{Bulk: bulk})

		ids := make([]int64, 120)
		for i := range ids {
			ids[i] = int64(i + 1)
		}
		r.ResolveMany(context.Background(), KindCorporation, ids)

		require.Equal(t, 3, bulk.calls)
		assert.Len(t, bulk.batches[0], 50)
		assert.Len(t, bulk.batches[2], 20)
	})
}

func TestResolveManyUpstreamFailure(t *testing.T) {
	bulk := &stubBulk{err: errors.New("esi unavailable")}
	r := New(Config{Bulk: bulk})

	out := r.ResolveMany(context.Background(), KindCharacter, []int64{1, 2})
	assert.Equal(t, "Unknown Character (1)", out[1])
	assert.Equal(t, "Unknown Character (2)", out[2])
}

func TestStaticKindsBypassBulk(t *testing.T) {
	bulk := &stubBulk{names: map[int64]string{}}
	static := &stubStatic{names: map[string]map[int64]string{
		"ship_type": {587: "Rifter"},
		"system":    {30000142: "Jita"},
	}}
	r := New(Config{Bulk: bulk, Static: static})

	assert.Equal(t, "Rifter", r.ResolveOne(context.Background(), KindShipType, 587))
	assert.Equal(t, "Jita", r.ResolveOne(context.Background(), KindSystem, 30000142))
	assert.Equal(t, 0, bulk.calls)
	assert.Equal(t, 2, static.calls)
}

func TestCacheExpiry(t *testing.T) {
	bulk := &stubBulk{names: map[int64]string{1: "One"}}
	r := New(Config{Bulk: bulk, TTL: time.Millisecond})

	r.ResolveOne(context.Background(), KindCharacter, 1)
	time.Sleep(5 * time.Millisecond)
	r.ResolveOne(context.Background(), KindCharacter, 1)

	assert.Equal(t, 2, bulk.calls)
}

func TestPlaceholderLabels(t *testing.T) {
	assert.Equal(t, "Unknown Character (1)", Placeholder(KindCharacter, 1))
	assert.Equal(t, "Unknown Corporation (2)", Placeholder(KindCorporation, 2))
	assert.Equal(t, "Unknown Alliance (3)", Placeholder(KindAlliance, 3))
	assert.Equal(t, "Unknown Ship (4)", Placeholder(KindShipType, 4))
	assert.Equal(t, "Unknown System (5)", Placeholder(KindSystem, 5))
}
