package pricing

import (
	"context"
	"fmt"
	"time"
)

// BasePriceReader supplies base prices from the static-data tables.
type BasePriceReader interface {
	BasePrice(ctx context.Context, typeID int64) (float64, error)
}

// StaticSource prices types from static data. Cheapest tier, tried first.
type StaticSource struct {
	reader BasePriceReader
}

// NewStaticSource creates the base static price source.
func NewStaticSource(reader BasePriceReader) *StaticSource {
	return &StaticSource{reader: reader}
}

func (s *StaticSource) Name() string  { return "static" }
func (s *StaticSource) Priority() int { return 10 }

// Supports returns true for any regular type; mutated modules have no static
// base price worth using.
func (s *StaticSource) Supports(typeID int64, attrs Attributes) bool {
	return typeID > 0 && !attrs.Mutated
}

func (s *StaticSource) GetPrice(ctx context.Context, typeID int64, _ Attributes) (Estimate, error) {
	price, err := s.reader.BasePrice(ctx, typeID)
	if err != nil {
		return Estimate{}, fmt.Errorf("static base price: %w", err)
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
