package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	name     string
	priority int
	supports func(typeID int64, attrs Attributes) bool
	price    float64
	err      error
	calls    int
}

func (s *stubSource) Name() string  { return s.name }
func (s *stubSource) Priority() int { return s.priority }

func (s *stubSource) Supports(typeID int64, attrs Attributes) bool {
	if s.supports == nil {
		return true
	}
	return s.supports(typeID, attrs)
}

func (s *stubSource) GetPrice(ctx context.Context, typeID int64, attrs Attributes) (Estimate, error) {
	s.calls++
	if s.err != nil {
		return Estimate{}, s.err
	}
	return Estimate{TypeID: typeID, SellPrice: s.price, Source: s.name}, nil
}

func TestChainPriorityOrder(t *testing.T) {
	static := &stubSource{name: "static", priority: 10, price: 100}
	market := &stubSource{name: "market", priority: 20, price: 200}

	// Registration order must not matter.
	chain := NewChain(market, static)

	est, err := chain.Resolve(context.Background(), 587, Attributes{})
	require.NoError(t, err)
	assert.Equal(t, "static", est.Source)
	assert.Equal(t, float64(100), est.SellPrice)
	assert.Equal(t, 0, market.calls)
}

func TestChainFallback(t *testing.T) {
	static := &stubSource{name: "static", priority: 10, err: ErrNotFound}
	market := &stubSource{name: "market", priority: 20, err: errors.New("upstream 503")}
	manual := &stubSource{name: "manual", priority: 40, price: 42}

	chain := NewChain(static, market, manual)

	est, err := chain.Resolve(context.Background(), 587, Attributes{})
	require.NoError(t, err)
	assert.Equal(t, "manual", est.Source)
	assert.Equal(t, 1, static.calls)
	assert.Equal(t, 1, market.calls)
}

func TestChainAllSourcesFail(t *testing.T) {
	chain := NewChain(
		&stubSource{name: "a", priority: 1, err: errors.New("down")},
		&stubSource{name: "b", priority: 2, err: ErrNotFound},
	)

	_, err := chain.Resolve(context.Background(), 587, Attributes{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChainSkipsUnsupportedSources(t *testing.T) {
	mutaOnly := &stubSource{
		name:     "mutamarket",
		priority: 5,
		price:    999,
		supports: func(_ int64, attrs Attributes) bool { return attrs.Mutated },
	}
	market := &stubSource{name: "market", priority: 20, price: 200}

	chain := NewChain(mutaOnly, market)

	t.Run("plain item bypasses the specialist source", func(t *testing.T) {
		est, err := chain.Resolve(context.Background(), 587, Attributes{})
		require.NoError(t, err)
		assert.Equal(t, "market", est.Source)
		assert.Equal(t, 0, mutaOnly.calls)
	})

	t.Run("mutated item uses the specialist source", func(t *testing.T) {
		est, err := chain.Resolve(context.Background(), 47740, Attributes{Mutated: true})
		require.NoError(t, err)
		assert.Equal(t, "mutamarket", est.Source)
	})
}

func TestResolveBatch(t *testing.T) {
	priced := &stubSource{
		name:     "static",
		priority: 10,
		price:    50,
		supports: func(typeID int64, _ Attributes) bool { return typeID != 999 },
	}
	chain := NewChain(priced)

	out := chain.ResolveBatch(context.Background(), []int64{587, 999, 34}, nil)

	assert.Len(t, out, 2)
	assert.Contains(t, out, int64(587))
	assert.Contains(t, out, int64(34))
	// Unpriceable ids are absent, not zero-valued.
	assert.NotContains(t, out, int64(999))
}

func TestStaticSourceSupports(t *testing.T) {
	src := NewStaticSource(nil)
	assert.True(t, src.Supports(587, Attributes{}))
	assert.False(t, src.Supports(587, Attributes{Mutated: true}))
}

func TestMutamarketSourceSupports(t *testing.T) {
	src := NewMutamarketSource(MutamarketOpts{Endpoints: []string{"https://mutamarket.test"}})
	assert.False(t, src.Supports(587, Attributes{}))
	assert.True(t, src.Supports(47740, Attributes{Mutated: true}))
}
