// Package enrich derives computed value fields and resolved display names
// from raw killmails. Enrichment never fails the pipeline: any internal
// failure degrades to zero-value fields with value_source "unknown".
package enrich

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/guarzo/killfeed-indexer/internal/metrics"
	"github.com/guarzo/killfeed-indexer/internal/names"
	"github.com/guarzo/killfeed-indexer/internal/pricing"
	"github.com/guarzo/killfeed-indexer/pkg/zkb"
)

// ValueSourceUnknown marks an event whose value could not be resolved.
const ValueSourceUnknown = "unknown"

// ValueSourceFeed marks an event valued from the feed's trusted precomputed
// aggregate.
const ValueSourceFeed = "feed"

// Enriched is the one-to-one derivation of a raw killmail. Mutable only by
// re-enrichment, never by re-ingestion.
type Enriched struct {
	KillmailID    int64
	KillmailTime  time.Time
	SolarSystemID int64

	TotalValue     float64
	ShipValue      float64
	FittedValue    float64
	DestroyedValue float64
	DroppedValue   float64
	ValueSource    string

	SystemName     string
	VictimName     string
	VictimCorpName string
	VictimShipName string
	FinalBlowName  string

	Raw *zkb.Killmail
}

// Participant is one normalized per-participant row, created atomically with
// the enriched event.
type Participant struct {
	KillmailID    int64
	KillmailTime  time.Time
	CharacterID   int64
	CorporationID int64
	AllianceID    int64
	ShipTypeID    int64
	DamageDealt   int64
	IsVictim      bool
	FinalBlow     bool
}

// Config configures an Enricher.
type Config struct {
	Prices *pricing.Chain
	Names  *names.Resolver

	// DivergenceWarnRatio triggers a warning when the computed total and the
	// feed's trusted aggregate disagree by more than this fraction
	// (default: 0.1). The trusted value still wins.
	DivergenceWarnRatio float64
}

// Enricher computes values and resolves names for raw killmails.
type Enricher struct {
	prices     *pricing.Chain
	names      *names.Resolver
	divergence float64
}

// New creates an Enricher.
func New(cfg Config) *Enricher {
	if cfg.DivergenceWarnRatio <= 0 {
		cfg.DivergenceWarnRatio = 0.1
	}
	return &Enricher{
		prices:     cfg.Prices,
		names:      cfg.Names,
		divergence: cfg.DivergenceWarnRatio,
	}
}

// Enrich derives the enriched event for a raw killmail. It does not return
// an error: valuation gaps are zero values, name gaps are placeholders.
func (e *Enricher) Enrich(ctx context.Context, km *zkb.Killmail) *Enriched {
	start := time.Now()
	defer func() {
		metrics.EnrichDuration.Observe(time.Since(start).Seconds())
	}()

	out := &Enriched{
		KillmailID:    km.KillmailID,
		KillmailTime:  km.KillmailTime,
		SolarSystemID: km.SolarSystemID,
		ValueSource:   ValueSourceUnknown,
		Raw:           km,
	}

	e.computeValues(ctx, km, out)
	e.resolveNames(ctx, km, out)
	return out
}

// computeValues fills the value fields. When the feed carries a trusted
// precomputed aggregate it wins the total; the breakdown is still computed
// for the enriched row, and a large divergence is flagged.
func (e *Enricher) computeValues(ctx context.Context, km *zkb.Killmail, out *Enriched) {
	estimates := e.prices.ResolveBatch(ctx, km.TypeIDs(), itemAttributes(km))

	priceOf := func(typeID int64) float64 {
		if est, ok := estimates[typeID]; ok {
			return est.SellPrice
		}
		return 0
	}

	out.ShipValue = priceOf(km.Victim.ShipTypeID)
	for _, item := range km.Victim.Items {
		unit := priceOf(item.ItemTypeID)
		out.DestroyedValue += float64(item.QuantityDestroyed) * unit
		out.DroppedValue += float64(item.QuantityDropped) * unit
	}
	out.FittedValue = out.DestroyedValue + out.DroppedValue
	out.TotalValue = out.ShipValue + out.FittedValue
	out.ValueSource = majoritySource(km, estimates)

	if km.Zkb != nil && km.Zkb.TotalValue > 0 {
		trusted := km.Zkb.TotalValue
		if out.TotalValue > 0 {
			diff := math.Abs(trusted-out.TotalValue) / trusted
			if diff > e.divergence {
				slog.Warn("killmail value divergence",
					"killmail_id", km.KillmailID,
					"trusted", trusted,
					"computed", out.TotalValue,
					"ratio", diff,
				)
			}
		}
		out.TotalValue = trusted
		out.ValueSource = ValueSourceFeed
	}
}

// itemAttributes builds the per-type pricing hints from the item lines, so
// mutated modules route to the appraisal source instead of the market ones.
func itemAttributes(km *zkb.Killmail) map[int64]pricing.Attributes {
	var attrs map[int64]pricing.Attributes
	for _, item := range km.Victim.Items {
		if !item.Mutated() {
			continue
		}
		if attrs == nil {
			attrs = make(map[int64]pricing.Attributes)
		}
		attrs[item.ItemTypeID] = pricing.Attributes{Mutated: true}
	}
	return attrs
}

// majoritySource picks the most frequently used pricing source among resolved
// items; ties break to the first encountered in event order.
func majoritySource(km *zkb.Killmail, estimates map[int64]pricing.Estimate) string {
	counts := make(map[string]int)
	order := make([]string, 0, 4)

	note := func(typeID int64) {
		est, ok := estimates[typeID]
		if !ok {
			return
		}
		if counts[est.Source] == 0 {
			order = append(order, est.Source)
		}
		counts[est.Source]++
	}

	note(km.Victim.ShipTypeID)
	for _, item := range km.Victim.Items {
		note(item.ItemTypeID)
	}

	best := ValueSourceUnknown
	bestCount := 0
	for _, src := range order {
		if counts[src] > bestCount {
			best = src
			bestCount = counts[src]
		}
	}
	return best
}

// resolveNames fills display names for victim, final-blow attacker, ship and
// system. Every lookup degrades to a placeholder, never an error.
func (e *Enricher) resolveNames(ctx context.Context, km *zkb.Killmail, out *Enriched) {
	out.SystemName = e.names.ResolveOne(ctx, names.KindSystem, km.SolarSystemID)
	out.VictimShipName = e.names.ResolveOne(ctx, names.KindShipType, km.Victim.ShipTypeID)

	if km.Victim.CharacterID != 0 {
		out.VictimName = e.names.ResolveOne(ctx, names.KindCharacter, km.Victim.CharacterID)
	}
	if km.Victim.CorporationID != 0 {
		out.VictimCorpName = e.names.ResolveOne(ctx, names.KindCorporation, km.Victim.CorporationID)
	}
	if fb := km.FinalBlowAttacker(); fb != nil && fb.CharacterID != 0 {
		out.FinalBlowName = e.names.ResolveOne(ctx, names.KindCharacter, fb.CharacterID)
	}
}

// Participants builds the normalized participant rows for an enriched event:
// exactly one victim row plus one row per attacker.
func Participants(out *Enriched) []Participant {
	km := out.Raw
	rows := make([]Participant, 0, len(km.Attackers)+1)

	rows = append(rows, Participant{
		KillmailID:    km.KillmailID,
		KillmailTime:  km.KillmailTime,
		CharacterID:   km.Victim.CharacterID,
		CorporationID: km.Victim.CorporationID,
		AllianceID:    km.Victim.AllianceID,
		ShipTypeID:    km.Victim.ShipTypeID,
		DamageDealt:   0,
		IsVictim:      true,
	})

	for _, att := range km.Attackers {
		rows = append(rows, Participant{
			KillmailID:    km.KillmailID,
			KillmailTime:  km.KillmailTime,
			CharacterID:   att.CharacterID,
			CorporationID: att.CorporationID,
			AllianceID:    att.AllianceID,
			ShipTypeID:    att.ShipTypeID,
			DamageDealt:   att.DamageDone,
			FinalBlow:     att.FinalBlow,
		})
	}
	return rows
}
