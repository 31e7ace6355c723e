package zkb

import (
	"time"
)

// Killmail represents one combat loss as delivered by the killstream feed.
// Identity is (KillmailID, KillmailTime); redelivery of the same identity is
// expected and must upsert downstream, never duplicate.
type Killmail struct {
	KillmailID    int64      `json:"killmail_id"`
	KillmailTime  time.Time  `json:"killmail_time"`
	SolarSystemID int64      `json:"solar_system_id"`
	Victim        Victim     `json:"victim"`
	Attackers     []Attacker `json:"attackers"`
	Zkb           *Envelope  `json:"zkb,omitempty"`
}

// Victim is the losing party of a killmail.
type Victim struct {
	CharacterID   int64  `json:"character_id,omitempty"`
	CorporationID int64  `json:"corporation_id,omitempty"`
	AllianceID    int64  `json:"alliance_id,omitempty"`
	ShipTypeID    int64  `json:"ship_type_id"`
	DamageTaken   int64  `json:"damage_taken"`
	Items         []Item `json:"items,omitempty"`
}

// Attacker is one of the attacking parties. FinalBlow is set on at most one
// attacker per killmail.
type Attacker struct {
	CharacterID    int64   `json:"character_id,omitempty"`
	CorporationID  int64   `json:"corporation_id,omitempty"`
	AllianceID     int64   `json:"alliance_id,omitempty"`
	ShipTypeID     int64   `json:"ship_type_id,omitempty"`
	WeaponTypeID   int64   `json:"weapon_type_id,omitempty"`
	DamageDone     int64   `json:"damage_done"`
	FinalBlow      bool    `json:"final_blow"`
	SecurityStatus float64 `json:"security_status,omitempty"`
}

// The singleton field on an item line carries 2 when the item is an
// unpackaged abyssal (mutated) module.
const singletonMutated = 2

// Item is a fitted or carried item line on the victim's ship. Quantities are
// split between destroyed and dropped; either may be zero.
type Item struct {
	ItemTypeID        int64 `json:"item_type_id"`
	QuantityDestroyed int64 `json:"quantity_destroyed,omitempty"`
	QuantityDropped   int64 `json:"quantity_dropped,omitempty"`
	Flag              int64 `json:"flag,omitempty"`
	Singleton         int64 `json:"singleton,omitempty"`
}

// Mutated reports whether the item line is a mutated (abyssal) module, which
// ordinary market sources cannot price.
func (i *Item) Mutated() bool {
	return i.Singleton == singletonMutated
}

// Envelope is the feed-side metadata attached to a killmail. TotalValue is a
// precomputed aggregate from the origin source and, when present, is trusted
// over the full item-by-item valuation.
type Envelope struct {
	LocationID  int64   `json:"locationID,omitempty"`
	Hash        string  `json:"hash"`
	FittedValue float64 `json:"fittedValue,omitempty"`
	TotalValue  float64 `json:"totalValue,omitempty"`
	Points      int64   `json:"points,omitempty"`
	NPC         bool    `json:"npc,omitempty"`
	Solo        bool    `json:"solo,omitempty"`
}

// TypeIDs returns every distinct ship/item type id referenced by the killmail:
// the victim ship, every item line, and every attacker ship.
func (k *Killmail) TypeIDs() []int64 {
	seen := make(map[int64]bool)
	ids := make([]int64, 0, len(k.Victim.Items)+len(k.Attackers)+1)

	add := func(id int64) {
		if id != 0 && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	add(k.Victim.ShipTypeID)
	for _, item := range k.Victim.Items {
		add(item.ItemTypeID)
	}
	for _, att := range k.Attackers {
		add(att.ShipTypeID)
	}
	return ids
}

// FinalBlowAttacker returns the attacker flagged with the final blow, or nil.
func (k *Killmail) FinalBlowAttacker() *Attacker {
	for i := range k.Attackers {
		if k.Attackers[i].FinalBlow {
			return &k.Attackers[i]
		}
	}
	return nil
}
