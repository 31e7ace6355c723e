package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guarzo/killfeed-indexer/internal/match"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name         string
		confidence   float64
		tags         []match.Tag
		wantType     AlertType
		wantPriority Priority
	}{
		{
			name:         "victim match is target_killed",
			confidence:   0.5,
			tags:         []match.Tag{{Criterion: match.TypeCharacterWatch, Scope: match.ScopeVictim}},
			wantType:     TargetKilled,
			wantPriority: PriorityHigh,
		},
		{
			name:       "victim match wins over attacker match",
			confidence: 0.5,
			tags: []match.Tag{
				{Criterion: match.TypeCharacterWatch, Scope: match.ScopeAttacker},
				{Criterion: match.TypeCorporationWatch, Scope: match.ScopeVictim},
			},
			wantType:     TargetKilled,
			wantPriority: PriorityHigh,
		},
		{
			name:         "attacker-only match is target_active",
			confidence:   0.6,
			tags:         []match.Tag{{Criterion: match.TypeCharacterWatch, Scope: match.ScopeAttacker}},
			wantType:     TargetActive,
			wantPriority: PriorityMedium,
		},
		{
			name:         "location-only match is location_activity",
			confidence:   0.6,
			tags:         []match.Tag{{Criterion: match.TypeChainWatch, Scope: match.ScopeLocation}},
			wantType:     LocationActivity,
			wantPriority: PriorityLow,
		},
		{
			name:         "high confidence forces critical",
			confidence:   0.95,
			tags:         []match.Tag{{Criterion: match.TypeChainWatch, Scope: match.ScopeLocation}},
			wantType:     LocationActivity,
			wantPriority: PriorityCritical,
		},
		{
			name:         "confidence exactly 0.9 is critical",
			confidence:   0.9,
			tags:         []match.Tag{{Criterion: match.TypeCharacterWatch, Scope: match.ScopeAttacker}},
			wantType:     TargetActive,
			wantPriority: PriorityCritical,
		},
		{
			name:       "isk_value tag escalates to high",
			confidence: 0.6,
			tags: []match.Tag{
				{Criterion: match.TypeISKValue, Scope: match.ScopeValue},
				{Criterion: match.TypeChainWatch, Scope: match.ScopeLocation},
			},
			wantType:     LocationActivity,
			wantPriority: PriorityHigh,
		},
		{
			name:         "participant_count tag does not escalate",
			confidence:   0.6,
			tags:         []match.Tag{{Criterion: match.TypeParticipantCount, Scope: match.ScopeValue}},
			wantType:     ValueThreshold,
			wantPriority: PriorityLow,
		},
		{
			name:         "isk_value-only match is value_threshold",
			confidence:   0.6,
			tags:         []match.Tag{{Criterion: match.TypeISKValue, Scope: match.ScopeValue}},
			wantType:     ValueThreshold,
			wantPriority: PriorityHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &match.MatchResult{
				ID:          "match-1",
				ProfileID:   "profile-1",
				KillmailID:  128012231,
				Confidence:  tt.confidence,
				MatchedTags: tt.tags,
			}

			a, err := Generate(m)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, a.Type)
			assert.Equal(t, tt.wantPriority, a.Priority)
			assert.Equal(t, "profile-1", a.ProfileID)
			assert.Equal(t, int64(128012231), a.KillmailID)
			assert.Equal(t, len(tt.tags), a.Metadata.CriteriaCount)
			assert.Same(t, m, a.SourceMatch)
			assert.False(t, a.GeneratedAt.IsZero())
		})
	}
}

func TestGenerateValueOnlyMetadata(t *testing.T) {
	// A value-only match must not be dressed up as location activity.
	a, err := Generate(&match.MatchResult{
		ProfileID:   "p",
		KillmailID:  1,
		Confidence:  0.6,
		MatchedTags: []match.Tag{{Criterion: match.TypeISKValue, Scope: match.ScopeValue}},
	})
	require.NoError(t, err)
	assert.Equal(t, ValueThreshold, a.Type)
	assert.False(t, a.Metadata.HasLocationMatch)
}

func TestGenerateNoTags(t *testing.T) {
	_, err := Generate(&match.MatchResult{ID: "m", ProfileID: "p"})
	assert.ErrorIs(t, err, ErrNoTags)
}

func TestGenerateDeterministic(t *testing.T) {
	m := &match.MatchResult{
		ProfileID:   "p",
		KillmailID:  1,
		Confidence:  0.7,
		MatchedTags: []match.Tag{{Criterion: match.TypeCharacterWatch, Scope: match.ScopeVictim}},
	}

	a1, err := Generate(m)
	require.NoError(t, err)
	a2, err := Generate(m)
	require.NoError(t, err)

	assert.Equal(t, a1.Type, a2.Type)
	assert.Equal(t, a1.Priority, a2.Priority)
	assert.Equal(t, a1.Metadata, a2.Metadata)
}
