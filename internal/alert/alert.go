// Package alert classifies match results into prioritized alerts.
package alert

import (
	"errors"
	"time"

	"github.com/guarzo/killfeed-indexer/internal/match"
)

// AlertType classifies what the matched event means to the watcher.
type AlertType string

const (
	TargetKilled     AlertType = "target_killed"
	TargetActive     AlertType = "target_active"
	LocationActivity AlertType = "location_activity"
	ValueThreshold   AlertType = "value_threshold"
)

// Priority runs 1..4; 1 is critical.
type Priority int

const (
	PriorityCritical Priority = 1
	PriorityHigh     Priority = 2
	PriorityMedium   Priority = 3
	PriorityLow      Priority = 4
)

// ErrNoTags is returned for a match result carrying no matched criteria;
// there is nothing to classify.
var ErrNoTags = errors.New("match result has no matched criteria")

// Metadata is attached to every alert.
type Metadata struct {
	CriteriaCount    int  `json:"criteria_count"`
	HasVictimMatch   bool `json:"has_victim_match"`
	HasAttackerMatch bool `json:"has_attacker_match"`
	HasLocationMatch bool `json:"has_location_match"`
}

// Alert is a classified, prioritized notification derived deterministically
// from a match result.
type Alert struct {
	Type        AlertType         `json:"alert_type"`
	Priority    Priority          `json:"priority"`
	ProfileID   string            `json:"profile_id"`
	KillmailID  int64             `json:"killmail_id"`
	Metadata    Metadata          `json:"metadata"`
	SourceMatch *match.MatchResult `json:"source_match"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Generate derives an alert from a match result. Pure: no side effects
// beyond the caller's dispatch.
func Generate(m *match.MatchResult) (*Alert, error) {
	if len(m.MatchedTags) == 0 {
		return nil, ErrNoTags
	}

	meta := Metadata{CriteriaCount: len(m.MatchedTags)}
	highValue := false
	for _, t := range m.MatchedTags {
		switch t.Scope {
		case match.ScopeVictim:
			meta.HasVictimMatch = true
		case match.ScopeAttacker:
			meta.HasAttackerMatch = true
		case match.ScopeLocation:
			meta.HasLocationMatch = true
		case match.ScopeValue:
			if t.Criterion == match.TypeISKValue {
				highValue = true
			}
		}
	}

	// Precedence: victim over attacker over location. A match carrying only
	// value-scope tags (isk or participant thresholds) is a value_threshold
	// alert, not a location one.
	var alertType AlertType
	switch {
	case meta.HasVictimMatch:
		alertType = TargetKilled
	case meta.HasAttackerMatch:
		alertType = TargetActive
	case meta.HasLocationMatch:
		alertType = LocationActivity
	default:
		alertType = ValueThreshold
	}

	priority := derivePriority(m.Confidence, meta, highValue)

	return &Alert{
		Type:        alertType,
		Priority:    priority,
		ProfileID:   m.ProfileID,
		KillmailID:  m.KillmailID,
		Metadata:    meta,
		SourceMatch: m,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// derivePriority: confidence >= 0.9 forces critical regardless of criteria;
// otherwise high-value-target style matches escalate to at most high.
func derivePriority(confidence float64, meta Metadata, highValue bool) Priority {
	if confidence >= 0.9 {
		return PriorityCritical
	}
	if highValue || meta.HasVictimMatch {
		return PriorityHigh
	}
	if meta.HasAttackerMatch {
		return PriorityMedium
	}
	return PriorityLow
}
