package state

import (
	"broadside.gg/internal/sim/entities"
	"broadside.gg/internal/sim/geom"
)

// Component names a single-valued chain component.
type Component string

const (
	CompPosition  Component = "Position"
	CompRotation  Component = "Rotation"
	CompLength    Component = "Length"
	CompOwnedBy   Component = "OwnedBy"
	CompRange     Component = "Range"
	CompFirepower Component = "Firepower"
	CompLoaded    Component = "Loaded"
)

// Components are chain values with no local prediction. For ships
// OwnedBy is the player; for cannons it is the ship and Rotation is
// relative to the ship.
type Components struct {
	Kind      *Table[entities.Kind]
	OwnedBy   *Table[entities.ID]
	Position  *Table[geom.Coord]
	Rotation  *Table[float64]
	Length    *Table[float64]
	Range     *Table[float64]
	Firepower *Table[float64]
	Loaded    *Table[bool]

	// Turn-scoped local flags set when a confirmed Load/Fire is seen.
	ExecutedLoad *Table[bool]
	ExecutedFire *Table[bool]
}

func NewComponents() *Components {
	return &Components{
		Kind:         NewTable[entities.Kind](),
		OwnedBy:      NewTable[entities.ID](),
		Position:     NewTable[geom.Coord](),
		Rotation:     NewTable[float64](),
		Length:       NewTable[float64](),
		Range:        NewTable[float64](),
		Firepower:    NewTable[float64](),
		Loaded:       NewTable[bool](),
		ExecutedLoad: NewTable[bool](),
		ExecutedFire: NewTable[bool](),
	}
}

func (c *Components) Remove(h entities.Handle) {
	c.Kind.Delete(h)
	c.OwnedBy.Delete(h)
	c.Position.Delete(h)
	c.Rotation.Delete(h)
	c.Length.Delete(h)
	c.Range.Delete(h)
	c.Firepower.Delete(h)
	c.Loaded.Delete(h)
	c.ExecutedLoad.Delete(h)
	c.ExecutedFire.Delete(h)
}

func (c *Components) Clear() {
	c.Kind.Clear()
	c.OwnedBy.Clear()
	c.Position.Clear()
	c.Rotation.Clear()
	c.Length.Clear()
	c.Range.Clear()
	c.Firepower.Clear()
	c.Loaded.Clear()
	c.ExecutedLoad.Clear()
	c.ExecutedFire.Clear()
}

// ClearTurnFlags drops per-turn ExecutedLoad/ExecutedFire marks.
func (c *Components) ClearTurnFlags() {
	c.ExecutedLoad.Clear()
	c.ExecutedFire.Clear()
}

func (c *Components) Ships() []entities.Handle {
	return c.Kind.Query(func(_ entities.Handle, k entities.Kind) bool { return k == entities.KindShip })
}

// CannonsOf resolves cannon ownership through r, since OwnedBy stores chain ids.
func (c *Components) CannonsOf(ship entities.Handle, r entities.Resolver) []entities.Handle {
	shipID, ok := r.ChainID(ship)
	if !ok {
		return nil
	}
	return c.Kind.Query(func(h entities.Handle, k entities.Kind) bool {
		if k != entities.KindCannon {
			return false
		}
		owner, ok := c.OwnedBy.Get(h)
		return ok && owner == shipID
	})
}
