package store

import (
	"context"
	"fmt"
	"time"
)

// InitSchema creates all tables. Partitioned parents are created here; the
// partition maintainer creates the monthly children ahead of the write path.
func (s *Store) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS killmails_raw (
			killmail_id BIGINT NOT NULL,
			kill_time TIMESTAMP WITH TIME ZONE NOT NULL,
			solar_system_id BIGINT NOT NULL,
			hash TEXT NOT NULL DEFAULT '',
			payload JSONB NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			PRIMARY KEY (killmail_id, kill_time)
		) PARTITION BY RANGE (kill_time);`,

		`CREATE TABLE IF NOT EXISTS killmails_enriched (
			killmail_id BIGINT NOT NULL,
			kill_time TIMESTAMP WITH TIME ZONE NOT NULL,
			solar_system_id BIGINT NOT NULL,
			total_value DOUBLE PRECISION NOT NULL DEFAULT 0,
			ship_value DOUBLE PRECISION NOT NULL DEFAULT 0,
			fitted_value DOUBLE PRECISION NOT NULL DEFAULT 0,
			destroyed_value DOUBLE PRECISION NOT NULL DEFAULT 0,
			dropped_value DOUBLE PRECISION NOT NULL DEFAULT 0,
			value_source TEXT NOT NULL DEFAULT 'unknown',
			system_name TEXT NOT NULL DEFAULT '',
			victim_name TEXT NOT NULL DEFAULT '',
			victim_corp_name TEXT NOT NULL DEFAULT '',
			victim_ship_name TEXT NOT NULL DEFAULT '',
			final_blow_name TEXT NOT NULL DEFAULT '',
			enriched_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			PRIMARY KEY (killmail_id, kill_time)
		) PARTITION BY RANGE (kill_time);`,

		`CREATE TABLE IF NOT EXISTS participants (
			killmail_id BIGINT NOT NULL,
			kill_time TIMESTAMP WITH TIME ZONE NOT NULL,
			row_index INT NOT NULL,
			character_id BIGINT NOT NULL DEFAULT 0,
			corporation_id BIGINT NOT NULL DEFAULT 0,
			alliance_id BIGINT NOT NULL DEFAULT 0,
			ship_type_id BIGINT NOT NULL DEFAULT 0,
			damage_dealt BIGINT NOT NULL DEFAULT 0,
			is_victim BOOLEAN NOT NULL DEFAULT false,
			final_blow BOOLEAN NOT NULL DEFAULT false,
			PRIMARY KEY (killmail_id, kill_time, row_index)
		) PARTITION BY RANGE (kill_time);`,

		`CREATE TABLE IF NOT EXISTS watch_profiles (
			profile_id TEXT NOT NULL,
			criteria JSONB NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			PRIMARY KEY (profile_id)
		);`,

		`CREATE TABLE IF NOT EXISTS manual_prices (
			type_id BIGINT NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			PRIMARY KEY (type_id)
		);`,

		`CREATE TABLE IF NOT EXISTS ship_types (
			type_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			base_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			PRIMARY KEY (type_id)
		);`,

		`CREATE TABLE IF NOT EXISTS solar_systems (
			system_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			PRIMARY KEY (system_id)
		);`,
	}

	for _, stmt := range statements {
		if err := s.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_enriched_time ON killmails_enriched(kill_time);`,
		`CREATE INDEX IF NOT EXISTS idx_enriched_system ON killmails_enriched(solar_system_id);`,
		`CREATE INDEX IF NOT EXISTS idx_participants_character ON participants(character_id);`,
		`CREATE INDEX IF NOT EXISTS idx_participants_corporation ON participants(corporation_id);`,
	}
	for _, stmt := range indexes {
		if err := s.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init indexes: %w", err)
		}
	}

	return nil
}

// partitionBounds returns the month window containing t.
func partitionBounds(t time.Time) (time.Time, time.Time) {
	from := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

// partitionName returns the child table name for the month containing t.
func partitionName(parent string, t time.Time) string {
	return fmt.Sprintf("%s_y%dm%02d", parent, t.Year(), int(t.Month()))
}

// EnsurePartition creates the monthly partition covering t for one parent
// table, if it does not already exist.
func (s *Store) EnsurePartition(ctx context.Context, parent string, t time.Time) error {
	from, to := partitionBounds(t)
	query := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s');`,
		partitionName(parent, t),
		parent,
		from.Format("2006-01-02"),
		to.Format("2006-01-02"),
	)
	return s.Exec(ctx, query)
}

// EnsurePartitions creates the monthly partitions covering t for every
// time-partitioned table.
func (s *Store) EnsurePartitions(ctx context.Context, t time.Time) error {
	for _, parent := range []string{"killmails_raw", "killmails_enriched", "participants"} {
		if err := s.EnsurePartition(ctx, parent, t); err != nil {
			return fmt.Errorf("ensure partition %s: %w", parent, err)
		}
	}
	return nil
}
