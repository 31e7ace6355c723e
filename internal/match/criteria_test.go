package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		crit    Criterion
		wantErr string
	}{
		{
			name: "valid character watch",
			crit: Criterion{Type: TypeCharacterWatch, IDs: []int64{1}},
		},
		{
			name:    "character watch without ids",
			crit:    Criterion{Type: TypeCharacterWatch},
			wantErr: "non-empty id list",
		},
		{
			name: "valid chain watch in_chain",
			crit: Criterion{Type: TypeChainWatch, MapID: "m", FilterType: FilterInChain},
		},
		{
			name:    "chain watch without map id",
			crit:    Criterion{Type: TypeChainWatch, FilterType: FilterInChain},
			wantErr: "requires map_id",
		},
		{
			name:    "within_jumps needs max_jumps",
			crit:    Criterion{Type: TypeChainWatch, MapID: "m", FilterType: FilterWithinJumps},
			wantErr: "max_jumps >= 1",
		},
		{
			name:    "unknown filter type",
			crit:    Criterion{Type: TypeChainWatch, MapID: "m", FilterType: "nearby"},
			wantErr: "unknown filter_type",
		},
		{
			name: "valid custom",
			crit: Criterion{Type: TypeCustom, LogicOperator: LogicAnd, Conditions: []Criterion{
				{Type: TypeISKValue, Operator: OpGreaterThan, Value: 1},
			}},
		},
		{
			name:    "custom with empty conditions",
			crit:    Criterion{Type: TypeCustom, LogicOperator: LogicOr},
			wantErr: "non-empty condition list",
		},
		{
			name:    "custom with bad logic operator",
			crit:    Criterion{Type: TypeCustom, LogicOperator: "xor", Conditions: []Criterion{{Type: TypeCharacterWatch, IDs: []int64{1}}}},
			wantErr: "unknown logic_operator",
		},
		{
			name:    "numeric condition at top level rejected",
			crit:    Criterion{Type: TypeISKValue, Operator: OpGreaterThan, Value: 1},
			wantErr: "only valid inside a custom criterion",
		},
		{
			name: "numeric condition with bad operator",
			crit: Criterion{Type: TypeCustom, LogicOperator: LogicAnd, Conditions: []Criterion{
				{Type: TypeISKValue, Operator: "gte", Value: 1},
			}},
			wantErr: "unknown operator",
		},
		{
			name:    "unknown type",
			crit:    Criterion{Type: "ship_watch"},
			wantErr: "unknown criterion type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.crit)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateNestedPath(t *testing.T) {
	crit := Criterion{Type: TypeCustom, LogicOperator: LogicAnd, Conditions: []Criterion{
		{Type: TypeCharacterWatch, IDs: []int64{1}},
		{Type: TypeParticipantCount, Operator: "bogus"},
	}}

	err := Validate(&crit)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conditions[1]")
}

func TestParseCriteria(t *testing.T) {
	t.Run("valid list round-trips", func(t *testing.T) {
		raw := []byte(`[
			{"type":"character_watch","ids":[123456789]},
			{"type":"custom","logic_operator":"or","conditions":[
				{"type":"isk_value","operator":"greater_than","value":100000000}
			]}
		]`)
		criteria, err := ParseCriteria(raw)
		require.NoError(t, err)
		require.Len(t, criteria, 2)
		assert.Equal(t, TypeCharacterWatch, criteria[0].Type)
		assert.Equal(t, LogicOr, criteria[1].LogicOperator)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := ParseCriteria([]byte(`{not json`))
		assert.Error(t, err)
	})

	t.Run("invalid criterion in list", func(t *testing.T) {
		_, err := ParseCriteria([]byte(`[{"type":"character_watch"}]`))
		assert.Error(t, err)
	})
}
