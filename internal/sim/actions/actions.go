// Package actions decodes chain action tags and models the two action
// slots a ship fills each turn.
package actions

import (
	"errors"
	"fmt"

	"broadside.gg/internal/sim/entities"
)

var ErrUnknownActionTag = errors.New("unknown action tag")

type Type uint8

// Tag values match the chain's enum order.
const (
	None Type = iota
	Fire
	Load
	RaiseSail
	LowerSail
	ExtinguishFire
	RepairCannons
	RepairSail
)

var names = map[Type]string{
	None:           "NONE",
	Fire:           "FIRE",
	Load:           "LOAD",
	RaiseSail:      "RAISE_SAIL",
	LowerSail:      "LOWER_SAIL",
	ExtinguishFire: "EXTINGUISH_FIRE",
	RepairCannons:  "REPAIR_CANNONS",
	RepairSail:     "REPAIR_SAIL",
}

func (t Type) String() string {
	if n, ok := names[t]; ok {
		return n
	}
	return fmt.Sprintf("ACTION(%d)", uint8(t))
}

// DecodeTag maps an opaque tag to a Type. Unknown tags decode to None
// with ErrUnknownActionTag; callers skip the slot.
func DecodeTag(tag uint8) (Type, error) {
	t := Type(tag)
	if _, ok := names[t]; !ok {
		return None, fmt.Errorf("%w: %d", ErrUnknownActionTag, tag)
	}
	return t, nil
}

// NeedsCannon reports whether the slot's special entity is a cannon.
func (t Type) NeedsCannon() bool { return t == Fire || t == Load }

// SlotCount is the number of concurrent actions per ship per turn.
const SlotCount = 2

type Slot struct {
	Type    Type        `json:"type"`
	Special entities.ID `json:"special"`
}

func (s Slot) Empty() bool { return s.Type == None }

// Slots is a ship's action selection for one turn.
type Slots [SlotCount]Slot

func (s Slots) Count() int {
	n := 0
	for _, sl := range s {
		if !sl.Empty() {
			n++
		}
	}
	return n
}

func (s Slots) Has(t Type, special entities.ID) bool {
	for _, sl := range s {
		if sl.Type == t && sl.Special == special {
			return true
		}
	}
	return false
}

// sameTarget reports whether selecting (t, special) again hits sl.
// Cannon actions are keyed by the cannon alone, so a second selection on
// the same cannon clears the first whatever its type. Actions without a
// special entity are keyed by type.
func (sl Slot) sameTarget(t Type, special entities.ID) bool {
	if sl.Empty() {
		return false
	}
	if special != (entities.ID{}) {
		return sl.Special == special
	}
	return sl.Special == (entities.ID{}) && sl.Type == t
}

// Toggle clears the slot already targeting the same entity or places
// (t, special) in the first free slot. ok is false when both slots are
// taken.
func (s Slots) Toggle(t Type, special entities.ID) (out Slots, ok bool) {
	if t == None {
		return s, false
	}
	for i, sl := range s {
		if sl.sameTarget(t, special) {
			s[i] = Slot{}
			return s, true
		}
	}
	for i, sl := range s {
		if sl.Empty() {
			s[i] = Slot{Type: t, Special: special}
			return s, true
		}
	}
	return s, false
}
