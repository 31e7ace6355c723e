package match

import (
	"time"

	"github.com/google/uuid"
)

// Scope records which side of the event a criterion matched on. The alert
// service derives the alert type from tag scopes.
type Scope string

const (
	ScopeVictim   Scope = "victim"
	ScopeAttacker Scope = "attacker"
	ScopeLocation Scope = "location"
	ScopeValue    Scope = "value"
)

// Tag identifies one individually-true criterion within a match result.
type Tag struct {
	Criterion Type  `json:"criterion"`
	Scope     Scope `json:"scope"`
}

// EventView is the read-only projection of an enriched killmail the engine
// evaluates against. Built by the pipeline after persistence.
type EventView struct {
	KillmailID        int64
	SolarSystemID     int64
	VictimCharacter   int64
	VictimCorp        int64
	VictimAlliance    int64
	AttackerChars     []int64
	AttackerCorps     []int64
	AttackerAlliances []int64
	TotalValue        float64
	ParticipantCount  int
}

// Evaluation is the outcome of testing one criterion against an event.
// MatchedTags lists every condition that individually evaluated true
// regardless of short-circuit, for explainability.
type Evaluation struct {
	Matches     bool
	MatchedTags []Tag
}

// Topology is the externally supplied chain-topology snapshot consulted by
// chain_watch criteria. Not owned by this engine.
type Topology interface {
	Contains(systemID int64) bool
	Jumps(systemID int64) (int, bool)
}

// TopologyProvider resolves a map id to its current topology snapshot.
type TopologyProvider interface {
	Snapshot(mapID string) (Topology, bool)
}

// MatchResult ties a profile to an event it matched. Ephemeral: produced
// fresh per evaluation and handed to the alert service, never stored as
// authoritative state.
type MatchResult struct {
	ID          string
	ProfileID   string
	KillmailID  int64
	Confidence  float64
	MatchedTags []Tag
	Timestamp   time.Time
}

// Profile is one watch profile as supplied by the profile store: an opaque
// owner id plus its validated criteria.
type Profile struct {
	ID       string
	Criteria []Criterion
}

// Engine evaluates criteria against event views.
type Engine struct {
	topologies TopologyProvider
}

// NewEngine creates a matching engine. topologies may be nil; chain_watch
// criteria then never match.
func NewEngine(topologies TopologyProvider) *Engine {
	return &Engine{topologies: topologies}
}

// TestCriteria evaluates a single criterion against an event view. The
// criterion is validated defensively first.
func (e *Engine) TestCriteria(c *Criterion, view *EventView) (Evaluation, error) {
	if err := Validate(c); err != nil {
		return Evaluation{}, err
	}
	return e.eval(c, view), nil
}

func (e *Engine) eval(c *Criterion, view *EventView) Evaluation {
	switch c.Type {
	case TypeCharacterWatch:
		return evalIDWatch(c, view.VictimCharacter, view.AttackerChars)
	case TypeCorporationWatch:
		return evalIDWatch(c, view.VictimCorp, view.AttackerCorps)
	case TypeChainWatch:
		return e.evalChain(c, view)
	case TypeCustom:
		return e.evalCustom(c, view)
	case TypeISKValue:
		if compare(view.TotalValue, c.Operator, c.Value) {
			return Evaluation{Matches: true, MatchedTags: []Tag{{Criterion: TypeISKValue, Scope: ScopeValue}}}
		}
	case TypeParticipantCount:
		if compare(float64(view.ParticipantCount), c.Operator, c.Value) {
			return Evaluation{Matches: true, MatchedTags: []Tag{{Criterion: TypeParticipantCount, Scope: ScopeValue}}}
		}
	}
	return Evaluation{}
}

// evalIDWatch matches when the victim or any attacker carries a listed id.
// Both scopes are tagged when both sides match.
func evalIDWatch(c *Criterion, victimID int64, attackerIDs []int64) Evaluation {
	watched := make(map[int64]bool, len(c.IDs))
	for _, id := range c.IDs {
		watched[id] = true
	}

	var ev Evaluation
	if victimID != 0 && watched[victimID] {
		ev.Matches = true
		ev.MatchedTags = append(ev.MatchedTags, Tag{Criterion: c.Type, Scope: ScopeVictim})
	}
	for _, id := range attackerIDs {
		if id != 0 && watched[id] {
			ev.Matches = true
			ev.MatchedTags = append(ev.MatchedTags, Tag{Criterion: c.Type, Scope: ScopeAttacker})
			break
		}
	}
	return ev
}

func (e *Engine) evalChain(c *Criterion, view *EventView) Evaluation {
	if e.topologies == nil {
		return Evaluation{}
	}
	topo, ok := e.topologies.Snapshot(c.MapID)
	if !ok {
		return Evaluation{}
	}

	matched := false
	switch c.FilterType {
	case FilterInChain:
		matched = topo.Contains(view.SolarSystemID)
	case FilterWithinJumps:
		if jumps, ok := topo.Jumps(view.SolarSystemID); ok {
			matched = jumps <= c.MaxJumps
		}
	}
	if !matched {
		return Evaluation{}
	}
	return Evaluation{Matches: true, MatchedTags: []Tag{{Criterion: TypeChainWatch, Scope: ScopeLocation}}}
}

// evalCustom evaluates the condition list left-to-right, short-circuiting the
// outcome for and/or but still accumulating every individually-true
// condition's tags.
func (e *Engine) evalCustom(c *Criterion, view *EventView) Evaluation {
	var tags []Tag
	decided := false
	outcome := c.LogicOperator == LogicAnd // and starts true, or starts false

	for i := range c.Conditions {
		child := e.eval(&c.Conditions[i], view)
		tags = append(tags, child.MatchedTags...)

		if decided {
			continue
		}
		switch c.LogicOperator {
		case LogicAnd:
			if !child.Matches {
				outcome = false
				decided = true
			}
		case LogicOr:
			if child.Matches {
				outcome = true
				decided = true
			}
		}
	}

	return Evaluation{Matches: outcome, MatchedTags: tags}
}

func compare(value float64, op CompareOp, threshold float64) bool {
	switch op {
	case OpGreaterThan:
		return value > threshold
	case OpGreaterThanOrEqual:
		return value >= threshold
	case OpLessThan:
		return value < threshold
	case OpLessThanOrEqual:
		return value <= threshold
	case OpEqual:
		return value == threshold
	}
	return false
}

// EvaluateProfile tests every criterion of a profile against the event and
// folds the individually-true tags into a single MatchResult. Returns nil
// when nothing matched.
func (e *Engine) EvaluateProfile(p *Profile, view *EventView) *MatchResult {
	var tags []Tag
	matched := 0
	for i := range p.Criteria {
		ev, err := e.TestCriteria(&p.Criteria[i], view)
		if err != nil {
			// Invalid stored criterion: skip it, the rest of the profile
			// still evaluates.
			continue
		}
		if ev.Matches {
			matched++
			tags = append(tags, ev.MatchedTags...)
		}
	}
	if matched == 0 {
		return nil
	}

	return &MatchResult{
		ID:          uuid.NewString(),
		ProfileID:   p.ID,
		KillmailID:  view.KillmailID,
		Confidence:  confidence(tags, matched, len(p.Criteria)),
		MatchedTags: tags,
		Timestamp:   time.Now().UTC(),
	}
}

// confidence scores a match in [0,1]. A victim-side hit on a watched entity
// is the strongest signal; breadth across the profile's criteria adds the
// rest.
func confidence(tags []Tag, matched, total int) float64 {
	score := 0.5
	for _, t := range tags {
		if t.Scope == ScopeVictim {
			score = 0.9
			break
		}
	}
	if total > 0 {
		score += 0.1 * float64(matched) / float64(total)
	}
	if score > 1 {
		score = 1
	}
	return score
}
