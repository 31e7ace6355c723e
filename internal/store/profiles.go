package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/guarzo/killfeed-indexer/internal/match"
)

// WatchProfiles loads every stored watch profile with its validated criteria.
// Profiles with unparseable criteria are skipped and logged; ownership and
// criteria content are managed elsewhere, this is a read-only view.
func (s *Store) WatchProfiles(ctx context.Context) ([]match.Profile, error) {
	rows, err := s.Query(ctx, `SELECT profile_id, criteria FROM watch_profiles`)
	if err != nil {
		return nil, fmt.Errorf("query watch profiles: %w", err)
	}
	defer rows.Close()

	var profiles []match.Profile
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan watch profile: %w", err)
		}

		criteria, err := match.ParseCriteria(raw)
		if err != nil {
			slog.Warn("skipping watch profile with invalid criteria",
				"profile_id", id,
				"err", err,
			)
			continue
		}
		profiles = append(profiles, match.Profile{ID: id, Criteria: criteria})
	}
	return profiles, rows.Err()
}

// UpsertWatchProfile stores a profile's criteria. The criteria are validated
// before the write; invalid shapes are rejected to the caller.
func (s *Store) UpsertWatchProfile(ctx context.Context, profileID string, criteriaJSON []byte) error {
	if _, err := match.ParseCriteria(criteriaJSON); err != nil {
		return err
	}
	return s.Exec(ctx, `
		INSERT INTO watch_profiles (profile_id, criteria, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (profile_id) DO UPDATE SET
			criteria = EXCLUDED.criteria,
			updated_at = NOW()
	`, profileID, criteriaJSON)
}
