package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/guarzo/killfeed-indexer/internal/enrich"
	"github.com/guarzo/killfeed-indexer/internal/metrics"
	"github.com/guarzo/killfeed-indexer/pkg/zkb"
)

// UpsertRaw stores a raw killmail. Re-delivery of the same
// (killmail_id, kill_time) identity updates in place, never duplicates.
func (s *Store) UpsertRaw(ctx context.Context, km *zkb.Killmail, payload []byte) error {
	start := time.Now()
	defer func() {
		metrics.StorageDuration.Observe(time.Since(start).Seconds())
	}()

	hash := ""
	if km.Zkb != nil {
		hash = km.Zkb.Hash
	}

	query := `
		INSERT INTO killmails_raw (killmail_id, kill_time, solar_system_id, hash, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (killmail_id, kill_time) DO UPDATE SET
			solar_system_id = EXCLUDED.solar_system_id,
			hash = EXCLUDED.hash,
			payload = EXCLUDED.payload
	`
	return s.Exec(ctx, query, km.KillmailID, km.KillmailTime, km.SolarSystemID, hash, payload)
}

// UpsertEnriched stores the enriched event and its participant rows in one
// batch. The participant set is replaced wholesale so that a retried write
// after partial failure converges to exactly one logical record.
func (s *Store) UpsertEnriched(ctx context.Context, e *enrich.Enriched, parts []enrich.Participant) error {
	start := time.Now()
	defer func() {
		metrics.StorageDuration.Observe(time.Since(start).Seconds())
	}()

	batch := &pgx.Batch{}

	batch.Queue(`
		INSERT INTO killmails_enriched (
			killmail_id, kill_time, solar_system_id,
			total_value, ship_value, fitted_value, destroyed_value, dropped_value,
			value_source, system_name, victim_name, victim_corp_name,
			victim_ship_name, final_blow_name, enriched_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		ON CONFLICT (killmail_id, kill_time) DO UPDATE SET
			total_value = EXCLUDED.total_value,
			ship_value = EXCLUDED.ship_value,
			fitted_value = EXCLUDED.fitted_value,
			destroyed_value = EXCLUDED.destroyed_value,
			dropped_value = EXCLUDED.dropped_value,
			value_source = EXCLUDED.value_source,
			system_name = EXCLUDED.system_name,
			victim_name = EXCLUDED.victim_name,
			victim_corp_name = EXCLUDED.victim_corp_name,
			victim_ship_name = EXCLUDED.victim_ship_name,
			final_blow_name = EXCLUDED.final_blow_name,
			enriched_at = NOW()
	`,
		e.KillmailID, e.KillmailTime, e.SolarSystemID,
		e.TotalValue, e.ShipValue, e.FittedValue, e.DestroyedValue, e.DroppedValue,
		e.ValueSource, e.SystemName, e.VictimName, e.VictimCorpName,
		e.VictimShipName, e.FinalBlowName,
	)

	batch.Queue(`DELETE FROM participants WHERE killmail_id = $1 AND kill_time = $2`,
		e.KillmailID, e.KillmailTime)

	for i, p := range parts {
		batch.Queue(`
			INSERT INTO participants (
				killmail_id, kill_time, row_index, character_id, corporation_id,
				alliance_id, ship_type_id, damage_dealt, is_victim, final_blow
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (killmail_id, kill_time, row_index) DO NOTHING
		`,
			p.KillmailID, p.KillmailTime, i, p.CharacterID, p.CorporationID,
			p.AllianceID, p.ShipTypeID, p.DamageDealt, p.IsVictim, p.FinalBlow,
		)
	}

	br := s.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
	}
	return nil
}

// StoredKillmail is the read projection of an enriched killmail.
type StoredKillmail struct {
	KillmailID    int64     `json:"killmail_id"`
	KillTime      time.Time `json:"kill_time"`
	SolarSystemID int64     `json:"solar_system_id"`
	TotalValue    float64   `json:"total_value"`
	ShipValue     float64   `json:"ship_value"`
	FittedValue   float64   `json:"fitted_value"`
	ValueSource   string    `json:"value_source"`
	SystemName    string    `json:"system_name"`
	VictimName    string    `json:"victim_name"`
	VictimShip    string    `json:"victim_ship"`
}

const storedColumns = `killmail_id, kill_time, solar_system_id, total_value,
	ship_value, fitted_value, value_source, system_name, victim_name, victim_ship_name`

func scanStored(row pgx.Row) (*StoredKillmail, error) {
	var k StoredKillmail
	err := row.Scan(
		&k.KillmailID, &k.KillTime, &k.SolarSystemID, &k.TotalValue,
		&k.ShipValue, &k.FittedValue, &k.ValueSource, &k.SystemName,
		&k.VictimName, &k.VictimShip,
	)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// GetByID fetches one enriched killmail by id.
func (s *Store) GetByID(ctx context.Context, killmailID int64) (*StoredKillmail, error) {
	query := fmt.Sprintf(`SELECT %s FROM killmails_enriched WHERE killmail_id = $1`, storedColumns)
	k, err := scanStored(s.QueryRow(ctx, query, killmailID))
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get killmail %d: %w", killmailID, err)
	}
	return k, nil
}

// RecentFilter narrows a recent-window query.
type RecentFilter struct {
	SystemID int64
	MinValue float64
	Since    time.Time
}

// QueryRecent returns the most recent enriched killmails matching the filter,
// newest first.
func (s *Store) QueryRecent(ctx context.Context, filter RecentFilter, limit int) ([]*StoredKillmail, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := fmt.Sprintf(`SELECT %s FROM killmails_enriched WHERE 1=1`, storedColumns)
	args := []any{}
	n := 0

	if !filter.Since.IsZero() {
		n++
		query += fmt.Sprintf(" AND kill_time >= $%d", n)
		args = append(args, filter.Since)
	}
	if filter.SystemID != 0 {
		n++
		query += fmt.Sprintf(" AND solar_system_id = $%d", n)
		args = append(args, filter.SystemID)
	}
	if filter.MinValue > 0 {
		n++
		query += fmt.Sprintf(" AND total_value >= $%d", n)
		args = append(args, filter.MinValue)
	}

	n++
	query += fmt.Sprintf(" ORDER BY kill_time DESC LIMIT $%d", n)
	args = append(args, limit)

	rows, err := s.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	var out []*StoredKillmail
	for rows.Next() {
		k, err := scanStored(rows)
		if err != nil {
			return nil, fmt.Errorf("scan killmail: %w", err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// RawPayloads streams the raw payloads in a time range, oldest first. Used by
// re-enrichment.
func (s *Store) RawPayloads(ctx context.Context, from, to time.Time, fn func(payload []byte) error) error {
	rows, err := s.Query(ctx,
		`SELECT payload FROM killmails_raw WHERE kill_time >= $1 AND kill_time < $2 ORDER BY kill_time`,
		from, to,
	)
	if err != nil {
		return fmt.Errorf("query raw payloads: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("scan payload: %w", err)
		}
		if err := fn(payload); err != nil {
			return err
		}
	}
	return rows.Err()
}

// DeleteKillmail removes one logical event: enriched row, raw row, and
// participant rows.
func (s *Store) DeleteKillmail(ctx context.Context, killmailID int64) error {
	for _, query := range []string{
		`DELETE FROM participants WHERE killmail_id = $1`,
		`DELETE FROM killmails_enriched WHERE killmail_id = $1`,
		`DELETE FROM killmails_raw WHERE killmail_id = $1`,
	} {
		if err := s.Exec(ctx, query, killmailID); err != nil {
			return fmt.Errorf("delete killmail %d: %w", killmailID, err)
		}
	}
	return nil
}
