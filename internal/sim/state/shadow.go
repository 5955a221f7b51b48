package state

import (
	"errors"
	"fmt"

	"broadside.gg/internal/sim/entities"
)

var ErrMissingAttribute = errors.New("attribute never set")

type SailPosition int

// Values match the chain encoding.
const (
	SailTorn    SailPosition = 0
	SailLowered SailPosition = 1
	SailRaised  SailPosition = 2
)

func (s SailPosition) String() string {
	switch s {
	case SailTorn:
		return "TORN"
	case SailLowered:
		return "LOWERED"
	case SailRaised:
		return "RAISED"
	default:
		return fmt.Sprintf("SAIL(%d)", int(s))
	}
}

// Attr names a dual-valued ship attribute.
type Attr string

const (
	AttrHealth         Attr = "Health"
	AttrOnFire         Attr = "OnFire"
	AttrDamagedCannons Attr = "DamagedCannons"
	AttrSailPosition   Attr = "SailPosition"
	AttrKills          Attr = "Kills"
)

var DualAttrs = []Attr{AttrHealth, AttrOnFire, AttrDamagedCannons, AttrSailPosition, AttrKills}

func IsDual(a Attr) bool {
	for _, d := range DualAttrs {
		if d == a {
			return true
		}
	}
	return false
}

// Store is one shadow: either the local (predicted) or the backend
// (confirmed) copy of every dual attribute. OnFire and DamagedCannons
// are counters; any positive value means set.
type Store struct {
	Health         *Table[int]
	OnFire         *Table[int]
	DamagedCannons *Table[int]
	Sail           *Table[SailPosition]
	Kills          *Table[int]
}

func NewStore() *Store {
	return &Store{
		Health:         NewTable[int](),
		OnFire:         NewTable[int](),
		DamagedCannons: NewTable[int](),
		Sail:           NewTable[SailPosition](),
		Kills:          NewTable[int](),
	}
}

// Value reads an attribute as its integer encoding.
func (s *Store) Value(h entities.Handle, a Attr) (int, bool) {
	switch a {
	case AttrHealth:
		return s.Health.Get(h)
	case AttrOnFire:
		return s.OnFire.Get(h)
	case AttrDamagedCannons:
		return s.DamagedCannons.Get(h)
	case AttrSailPosition:
		v, ok := s.Sail.Get(h)
		return int(v), ok
	case AttrKills:
		return s.Kills.Get(h)
	}
	return 0, false
}

func (s *Store) SetValue(h entities.Handle, a Attr, v int) error {
	switch a {
	case AttrHealth:
		s.Health.Set(h, v)
	case AttrOnFire:
		s.OnFire.Set(h, v)
	case AttrDamagedCannons:
		s.DamagedCannons.Set(h, v)
	case AttrSailPosition:
		s.Sail.Set(h, SailPosition(v))
	case AttrKills:
		s.Kills.Set(h, v)
	default:
		return fmt.Errorf("set %s: not a dual attribute", a)
	}
	return nil
}

// SailOf fails with ErrMissingAttribute until a position is known.
func (s *Store) SailOf(h entities.Handle) (SailPosition, error) {
	v, ok := s.Sail.Get(h)
	if !ok {
		return 0, fmt.Errorf("sail of %d: %w", h, ErrMissingAttribute)
	}
	return v, nil
}

func (s *Store) Remove(h entities.Handle) {
	s.Health.Delete(h)
	s.OnFire.Delete(h)
	s.DamagedCannons.Delete(h)
	s.Sail.Delete(h)
	s.Kills.Delete(h)
}

func (s *Store) Clear() {
	s.Health.Clear()
	s.OnFire.Clear()
	s.DamagedCannons.Clear()
	s.Sail.Clear()
	s.Kills.Clear()
}

// CopyFrom makes every attribute of h in s equal to src's.
func (s *Store) CopyFrom(src *Store, h entities.Handle) {
	copyRow(s.Health, src.Health, h)
	copyRow(s.OnFire, src.OnFire, h)
	copyRow(s.DamagedCannons, src.DamagedCannons, h)
	copyRow(s.Sail, src.Sail, h)
	copyRow(s.Kills, src.Kills, h)
}

// Shadows keeps the two stores separately addressable.
type Shadows struct {
	Local   *Store
	Backend *Store
}

func NewShadows() *Shadows {
	return &Shadows{Local: NewStore(), Backend: NewStore()}
}

// Settle copies backend into local for h.
func (s *Shadows) Settle(h entities.Handle) { s.Local.CopyFrom(s.Backend, h) }

// Converged reports whether local equals backend for every attribute of h.
func (s *Shadows) Converged(h entities.Handle) bool {
	for _, a := range DualAttrs {
		lv, lok := s.Local.Value(h, a)
		bv, bok := s.Backend.Value(h, a)
		if lok != bok || lv != bv {
			return false
		}
	}
	return true
}

func (s *Shadows) Remove(h entities.Handle) {
	s.Local.Remove(h)
	s.Backend.Remove(h)
}

func (s *Shadows) Clear() {
	s.Local.Clear()
	s.Backend.Clear()
}
