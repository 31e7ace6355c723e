package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/guarzo/killfeed-indexer/internal/pricing"
)

// BasePrice returns the static base price for a type id. Implements
// pricing.BasePriceReader.
func (s *Store) BasePrice(ctx context.Context, typeID int64) (float64, error) {
	var price float64
	err := s.QueryRow(ctx, `SELECT base_price FROM ship_types WHERE type_id = $1`, typeID).Scan(&price)
	if err == pgx.ErrNoRows {
		return 0, pricing.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("base price %d: %w", typeID, err)
	}
	return price, nil
}

// ManualPrice returns the operator-seeded estimate for a type id. Implements
// pricing.ManualPriceReader.
func (s *Store) ManualPrice(ctx context.Context, typeID int64) (float64, error) {
	var price float64
	err := s.QueryRow(ctx, `SELECT price FROM manual_prices WHERE type_id = $1`, typeID).Scan(&price)
	if err == pgx.ErrNoRows {
		return 0, pricing.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("manual price %d: %w", typeID, err)
	}
	return price, nil
}

// StaticNames resolves static-data kinds (ship types, solar systems) with one
// batched lookup. Implements names.StaticSource.
func (s *Store) StaticNames(ctx context.Context, kind string, ids []int64) (map[int64]string, error) {
	if len(ids) == 0 {
		return map[int64]string{}, nil
	}

	var query string
	switch kind {
	case "ship_type":
		query = `SELECT type_id, name FROM ship_types WHERE type_id = ANY($1)`
	case "system":
		query = `SELECT system_id, name FROM solar_systems WHERE system_id = ANY($1)`
	default:
		return nil, fmt.Errorf("unknown static kind %q", kind)
	}

	rows, err := s.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("static names %s: %w", kind, err)
	}
	defer rows.Close()

	out := make(map[int64]string, len(ids))
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan static name: %w", err)
		}
		out[id] = name
	}
	return out, rows.Err()
}

// UpsertShipType seeds or updates one static-data row. Used by admin tooling
// and tests.
func (s *Store) UpsertShipType(ctx context.Context, typeID int64, name string, basePrice float64) error {
	return s.Exec(ctx, `
		INSERT INTO ship_types (type_id, name, base_price)
		VALUES ($1, $2, $3)
		ON CONFLICT (type_id) DO UPDATE SET
			name = EXCLUDED.name,
			base_price = EXCLUDED.base_price
	`, typeID, name, basePrice)
}

// UpsertSolarSystem seeds or updates one solar system row.
func (s *Store) UpsertSolarSystem(ctx context.Context, systemID int64, name string) error {
	return s.Exec(ctx, `
		INSERT INTO solar_systems (system_id, name)
		VALUES ($1, $2)
		ON CONFLICT (system_id) DO UPDATE SET name = EXCLUDED.name
	`, systemID, name)
}
