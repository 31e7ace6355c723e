package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/guarzo/killfeed-indexer/pkg/httpx"
)

const appraisalPath = "/api/appraisal"

// MutamarketSource prices mutated (abyssal) modules via a specialist
// appraisal service. Only consulted for items flagged as mutated.
type MutamarketSource struct {
	http *httpx.Client
}

type appraisalResponse struct {
	TypeID int64   `json:"type_id"`
	Price  float64 `json:"price"`
}

// MutamarketOpts configures the specialist source.
type MutamarketOpts struct {
	Endpoints []string
	RPS       int
	Burst     int
	Timeout   time.Duration
	UserAgent string
}

// NewMutamarketSource creates the mutated-module appraisal source.
func NewMutamarketSource(o MutamarketOpts) *MutamarketSource {
	return &MutamarketSource{
		http: httpx.New(httpx.Opts{
			Endpoints: o.Endpoints,
			RPS:       o.RPS,
			Burst:     o.Burst,
			Timeout:   o.Timeout,
			UserAgent: o.UserAgent,
		}),
	}
}

func (s *MutamarketSource) Name() string  { return "mutamarket" }
func (s *MutamarketSource) Priority() int { return 30 }

func (s *MutamarketSource) Supports(typeID int64, attrs Attributes) bool {
	return typeID > 0 && attrs.Mutated
}

func (s *MutamarketSource) GetPrice(ctx context.Context, typeID int64, attrs Attributes) (Estimate, error) {
	var resp appraisalResponse
	path := fmt.Sprintf("%s/%d", appraisalPath, typeID)
	if attrs.MutatorTypeID != 0 {
		path = fmt.Sprintf("%s?mutator=%d", path, attrs.MutatorTypeID)
	}
	if err := s.http.GetJSON(ctx, path, &resp); err != nil {
		return Estimate{}, fmt.Errorf("appraisal lookup: %w", err)
	}
	if resp.Price <= 0 {
		return Estimate{}, ErrNotFound
	}
	return Estimate{
		TypeID:     typeID,
		BuyPrice:   resp.Price,
		SellPrice:  resp.Price,
		Source:     s.Name(),
		ResolvedAt: time.Now(),
	}, nil
}
