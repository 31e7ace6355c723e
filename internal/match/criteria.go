// Package match evaluates killmail events against user-defined watch
// criteria.
package match

import (
	"encoding/json"
	"fmt"
)

// Type discriminates criterion variants. The numeric condition types are only
// valid nested inside a custom criterion's condition list.
type Type string

const (
	TypeCharacterWatch   Type = "character_watch"
	TypeCorporationWatch Type = "corporation_watch"
	TypeChainWatch       Type = "chain_watch"
	TypeCustom           Type = "custom"
	TypeISKValue         Type = "isk_value"
	TypeParticipantCount Type = "participant_count"
)

// ChainFilter selects how a chain_watch criterion tests topology membership.
type ChainFilter string

const (
	FilterInChain     ChainFilter = "in_chain"
	FilterWithinJumps ChainFilter = "within_jumps"
)

// LogicOp joins a custom criterion's conditions.
type LogicOp string

const (
	LogicAnd LogicOp = "and"
	LogicOr  LogicOp = "or"
)

// CompareOp is the operator of a numeric condition.
type CompareOp string

const (
	OpGreaterThan        CompareOp = "greater_than"
	OpGreaterThanOrEqual CompareOp = "greater_than_or_equal"
	OpLessThan           CompareOp = "less_than"
	OpLessThanOrEqual    CompareOp = "less_than_or_equal"
	OpEqual              CompareOp = "equal"
)

// Criterion is one watch predicate. The struct is a tagged union over Type;
// custom criteria nest further criteria in Conditions. Criteria are owned by
// a watch profile and read-only to the engine.
type Criterion struct {
	Type Type `json:"type"`

	// character_watch / corporation_watch
	IDs []int64 `json:"ids,omitempty"`

	// chain_watch
	MapID      string      `json:"map_id,omitempty"`
	FilterType ChainFilter `json:"filter_type,omitempty"`
	MaxJumps   int         `json:"max_jumps,omitempty"`

	// custom
	LogicOperator LogicOp     `json:"logic_operator,omitempty"`
	Conditions    []Criterion `json:"conditions,omitempty"`

	// isk_value / participant_count
	Operator CompareOp `json:"operator,omitempty"`
	Value    float64   `json:"value,omitempty"`
}

// ValidationError reports an invalid criterion shape. Reported to the caller
// at creation time, never retried.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid criterion: %s", e.Reason)
	}
	return fmt.Sprintf("invalid criterion at %s: %s", e.Path, e.Reason)
}

// Validate checks a criterion's structure. Pure and side-effect-free; the
// engine re-runs it defensively at evaluation time.
func Validate(c *Criterion) error {
	return validate(c, "", true)
}

func validate(c *Criterion, path string, topLevel bool) error {
	switch c.Type {
	case TypeCharacterWatch, TypeCorporationWatch:
		if len(c.IDs) == 0 {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("%s requires a non-empty id list", c.Type)}
		}
	case TypeChainWatch:
		if c.MapID == "" {
			return &ValidationError{Path: path, Reason: "chain_watch requires map_id"}
		}
		switch c.FilterType {
		case FilterInChain:
		case FilterWithinJumps:
			if c.MaxJumps < 1 {
				return &ValidationError{Path: path, Reason: "within_jumps requires max_jumps >= 1"}
			}
		default:
			return &ValidationError{Path: path, Reason: fmt.Sprintf("unknown filter_type %q", c.FilterType)}
		}
	case TypeCustom:
		if c.LogicOperator != LogicAnd && c.LogicOperator != LogicOr {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("unknown logic_operator %q", c.LogicOperator)}
		}
		if len(c.Conditions) == 0 {
			return &ValidationError{Path: path, Reason: "custom requires a non-empty condition list"}
		}
		for i := range c.Conditions {
			childPath := fmt.Sprintf("%sconditions[%d].", path, i)
			if err := validate(&c.Conditions[i], childPath, false); err != nil {
				return err
			}
		}
	case TypeISKValue, TypeParticipantCount:
		if topLevel {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("%s is only valid inside a custom criterion", c.Type)}
		}
		if !validOp(c.Operator) {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("unknown operator %q", c.Operator)}
		}
	default:
		return &ValidationError{Path: path, Reason: fmt.Sprintf("unknown criterion type %q", c.Type)}
	}
	return nil
}

func validOp(op CompareOp) bool {
	switch op {
	case OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual, OpEqual:
		return true
	}
	return false
}

// ParseCriteria decodes and validates a stored criteria list (the JSONB
// column of a watch profile).
func ParseCriteria(data []byte) ([]Criterion, error) {
	var criteria []Criterion
	if err := json.Unmarshal(data, &criteria); err != nil {
		return nil, fmt.Errorf("unmarshal criteria: %w", err)
	}
	for i := range criteria {
		if err := Validate(&criteria[i]); err != nil {
			return nil, err
		}
	}
	return criteria, nil
}
