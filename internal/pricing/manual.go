package pricing

import (
	"context"
	"fmt"
	"time"
)

// ManualPriceReader supplies operator-seeded estimates from storage.
type ManualPriceReader interface {
	ManualPrice(ctx context.Context, typeID int64) (float64, error)
}

// ManualSource is the last-resort estimate table. Highest priority number,
// tried only after every other source has failed.
type ManualSource struct {
	reader ManualPriceReader
}

// NewManualSource creates the manual estimate source.
func NewManualSource(reader ManualPriceReader) *ManualSource {
	return &ManualSource{reader: reader}
}

func (s *ManualSource) Name() string  { return "manual" }
func (s *ManualSource) Priority() int { return 40 }

func (s *ManualSource) Supports(typeID int64, _ Attributes) bool {
	return typeID > 0
}

func (s *ManualSource) GetPrice(ctx context.Context, typeID int64, _ Attributes) (Estimate, error) {
	price, err := s.reader.ManualPrice(ctx, typeID)
	if err != nil {
		return Estimate{}, fmt.Errorf("manual estimate: %w", err)
	}
	if price <= 0 {
		return Estimate{}, ErrNotFound
	}
	return Estimate{
		TypeID:     typeID,
		BuyPrice:   price,
		SellPrice:  price,
		Source:     s.Name(),
		ResolvedAt: time.Now(),
	}, nil
}
