package zkb

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FrameKind is the type tag carried by stream frames. Only killmail frames are
// processed; anything else is skipped by the listener without complaint.
const FrameKind = "killmail"

// ErrWrongKind marks a frame whose type tag is not a killmail. Callers skip
// these silently.
var ErrWrongKind = errors.New("frame is not a killmail")

// ValidationError describes a structurally complete but semantically invalid
// killmail (missing required fields). These are dropped and counted, never
// retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid killmail: %s %s", e.Field, e.Reason)
}

// Frame is the outer stream envelope: a type tag plus an opaque payload.
type Frame struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeFrame parses a raw stream frame. A malformed frame is a poison
// message; a well-formed frame of the wrong kind returns ErrWrongKind.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	if f.Kind != FrameKind {
		return nil, ErrWrongKind
	}
	return &f, nil
}

// Decode parses a killmail payload. A JSON-level failure here is a poison
// message: dropped, logged, counted, never retried.
func Decode(payload []byte) (*Killmail, error) {
	var km Killmail
	if err := json.Unmarshal(payload, &km); err != nil {
		return nil, fmt.Errorf("unmarshal killmail: %w", err)
	}
	return &km, nil
}

// Validate enforces the required-field invariants: event id, event time, a
// victim ship, and at least one attacker.
func Validate(km *Killmail) error {
	if km.KillmailID == 0 {
		return &ValidationError{Field: "killmail_id", Reason: "is required"}
	}
	if km.KillmailTime.IsZero() {
		return &ValidationError{Field: "killmail_time", Reason: "is required"}
	}
	if km.Victim.ShipTypeID == 0 {
		return &ValidationError{Field: "victim.ship_type_id", Reason: "is required"}
	}
	if len(km.Attackers) == 0 {
		return &ValidationError{Field: "attackers", Reason: "must not be empty"}
	}
	return nil
}
