package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/guarzo/killfeed-indexer/pkg/httpx"
)

const marketPricesPath = "/api/prices"

// MarketSource prices types via an external aggregated market API, with a
// TTL'd in-process cache. Concurrent populators may race; last write wins.
type MarketSource struct {
	http *httpx.Client
	ttl  time.Duration

	mu    sync.RWMutex
	cache map[int64]cachedEstimate
}

type cachedEstimate struct {
	est     Estimate
	expires time.Time
}

type marketPrice struct {
	TypeID int64   `json:"type_id"`
	Buy    float64 `json:"buy"`
	Sell   float64 `json:"sell"`
}

// MarketOpts configures the market source.
type MarketOpts struct {
	Endpoints []string
	RPS       int
	Burst     int
	Timeout   time.Duration
	CacheTTL  time.Duration
	UserAgent string
}

// NewMarketSource creates the aggregated-market price source.
func NewMarketSource(o MarketOpts) *MarketSource {
	if o.CacheTTL <= 0 {
		o.CacheTTL = time.Hour
	}
	return &MarketSource{
		http: httpx.New(httpx.Opts{
			Endpoints: o.Endpoints,
			RPS:       o.RPS,
			Burst:     o.Burst,
			Timeout:   o.Timeout,
			UserAgent: o.UserAgent,
		}),
		ttl:   o.CacheTTL,
		cache: make(map[int64]cachedEstimate),
	}
}

func (s *MarketSource) Name() string  { return "market" }
func (s *MarketSource) Priority() int { return 20 }

// Supports returns true for regular types; mutated modules are off-market.
func (s *MarketSource) Supports(typeID int64, attrs Attributes) bool {
	return typeID > 0 && !attrs.Mutated
}

func (s *MarketSource) GetPrice(ctx context.Context, typeID int64, _ Attributes) (Estimate, error) {
	if est, ok := s.cached(typeID); ok {
		return est, nil
	}

	var resp marketPrice
	if err := s.http.GetJSON(ctx, fmt.Sprintf("%s/%d", marketPricesPath, typeID), &resp); err != nil {
		return Estimate{}, fmt.Errorf("market lookup: %w", err)
	}
	if resp.Sell <= 0 && resp.Buy <= 0 {
		return Estimate{}, ErrNotFound
	}

	est := Estimate{
		TypeID:     typeID,
		BuyPrice:   resp.Buy,
		SellPrice:  resp.Sell,
		Source:     s.Name(),
		ResolvedAt: time.Now(),
	}
	s.store(typeID, est)
	return est, nil
}

func (s *MarketSource) cached(typeID int64) (Estimate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cache[typeID]
	if !ok || time.Now().After(c.expires) {
		return Estimate{}, false
	}
	return c.est, true
}

func (s *MarketSource) store(typeID int64, est Estimate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[typeID] = cachedEstimate{est: est, expires: time.Now().Add(s.ttl)}
}
