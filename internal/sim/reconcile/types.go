package reconcile

import (
	"encoding/json"

	"broadside.gg/internal/sim/entities"
	"broadside.gg/internal/sim/state"
)

// ActionRecord is one ship's confirmed action entry. Err marks a record
// whose ship could not be parsed; SlotErr marks a single unusable slot.
// Raw keeps the wire form of whatever failed to parse.
type ActionRecord struct {
	Ship     entities.ID
	Tags     [2]uint8
	Specials [2]entities.ID
	Metadata [2][]byte

	Err     error
	SlotErr [2]error
	Raw     string
}

// Update is a confirmed post-state component value. An update with Err
// set is reported as skipped and otherwise ignored.
type Update struct {
	Entity    entities.ID
	Component string
	Value     json.RawMessage

	Err error
	Raw string
}

// Batch is everything one chain transaction confirmed.
type Batch struct {
	Tx      string
	Actions []ActionRecord
	Updates []Update
}

// SpecialDamage flags conditions a volley newly inflicted on a target.
type SpecialDamage struct {
	Fire    bool `json:"fire,omitempty"`
	Cannons bool `json:"cannons,omitempty"`
	Sail    bool `json:"sail,omitempty"`
}

// ExecutedShots is what the animation layer needs to play one Fire.
// Damage[i] and SpecialDamage[i] belong to Targets[i].
type ExecutedShots struct {
	Ship          entities.Handle   `json:"ship"`
	Cannon        entities.Handle   `json:"cannon"`
	Targets       []entities.Handle `json:"targets"`
	Damage        []int             `json:"damage"`
	SpecialDamage []SpecialDamage   `json:"special_damage"`
}

type ExecutedLoad struct {
	Ship   entities.Handle `json:"ship"`
	Cannon entities.Handle `json:"cannon"`
}

// Snap reports a shadow moved to a confirmed value. Local is true when
// the local shadow was snapped together with the backend one.
type Snap struct {
	Entity entities.Handle `json:"entity"`
	Attr   state.Attr      `json:"attr"`
	Value  int             `json:"value"`
	Local  bool            `json:"local,omitempty"`
}

// Skip records an entry that was dropped. Slot is -1 for a whole record.
// Raw is set when the entity id itself never parsed.
type Skip struct {
	Entity entities.ID
	Raw    string
	Slot   int
	Err    error
}

func (s Skip) Ref() string {
	if s.Raw != "" {
		return s.Raw
	}
	return s.Entity.String()
}

type Result struct {
	Tx      string
	Shots   []ExecutedShots
	Loads   []ExecutedLoad
	Snaps   []Snap
	Skips   []Skip
	Settled []entities.Handle
}

// ShipPhase is the per-entity animation/reconciliation state.
type ShipPhase int

const (
	Idle ShipPhase = iota
	Animating
	Reconciled
)

func (p ShipPhase) String() string {
	switch p {
	case Animating:
		return "ANIMATING"
	case Reconciled:
		return "RECONCILED"
	default:
		return "IDLE"
	}
}
