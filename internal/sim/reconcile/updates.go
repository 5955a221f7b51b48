package reconcile

import (
	"encoding/json"
	"fmt"

	"broadside.gg/internal/sim/entities"
	"broadside.gg/internal/sim/geom"
	"broadside.gg/internal/sim/state"
)

type value struct {
	Int   int
	Float float64
	Coord geom.Coord
	Ref   entities.ID
	Bool  bool
}

type pending struct {
	h    entities.Handle
	comp string
	v    value
	used bool
}

// updateSet indexes one batch's confirmed updates; the last write for an
// (entity, component) pair wins.
type updateSet struct {
	list []*pending
	by   map[entities.Handle]map[string]*pending
}

func (u *updateSet) get(h entities.Handle, comp string) (*pending, bool) {
	m := u.by[h]
	if m == nil {
		return nil, false
	}
	p, ok := m[comp]
	return p, ok
}

func (u *updateSet) put(p *pending) {
	if u.by == nil {
		u.by = map[entities.Handle]map[string]*pending{}
	}
	m := u.by[p.h]
	if m == nil {
		m = map[string]*pending{}
		u.by[p.h] = m
	}
	if old, ok := m[p.comp]; ok {
		old.used = true
	}
	m[p.comp] = p
	u.list = append(u.list, p)
}

// decodeInt accepts a JSON number or a boolean (true is 1).
func decodeInt(raw json.RawMessage) (int, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(f), nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("want number or bool, got %s", string(raw))
}

func decodeValue(comp string, raw json.RawMessage) (value, error) {
	var v value
	var err error
	switch comp {
	case string(state.AttrHealth), string(state.AttrOnFire), string(state.AttrDamagedCannons),
		string(state.AttrSailPosition), string(state.AttrKills):
		v.Int, err = decodeInt(raw)
	case string(state.CompLoaded):
		var n int
		n, err = decodeInt(raw)
		v.Bool = n != 0
	case string(state.CompRotation), string(state.CompLength), string(state.CompRange), string(state.CompFirepower):
		err = json.Unmarshal(raw, &v.Float)
	case string(state.CompPosition):
		err = json.Unmarshal(raw, &v.Coord)
	case string(state.CompOwnedBy):
		err = json.Unmarshal(raw, &v.Ref)
	default:
		return v, fmt.Errorf("unknown component %q", comp)
	}
	if err != nil {
		return v, fmt.Errorf("component %s: %w", comp, err)
	}
	return v, nil
}

func (r *Reconciler) indexUpdates(ups []Update, res *Result) *updateSet {
	set := &updateSet{}
	for _, u := range ups {
		if u.Err != nil {
			r.skipRaw(res, Skip{Entity: u.Entity, Raw: u.Raw, Slot: -1, Err: u.Err})
			continue
		}
		h, err := entities.Lookup(r.reg, u.Entity)
		if err != nil {
			r.skip(res, u.Entity, -1, fmt.Errorf("update %s: %w", u.Component, err))
			continue
		}
		v, err := decodeValue(u.Component, u.Value)
		if err != nil {
			r.skip(res, u.Entity, -1, err)
			continue
		}
		set.put(&pending{h: h, comp: u.Component, v: v})
	}
	return set
}

// applyComponent writes a non-dual component value.
func (r *Reconciler) applyComponent(p *pending) {
	switch state.Component(p.comp) {
	case state.CompPosition:
		r.comps.Position.Set(p.h, p.v.Coord)
	case state.CompRotation:
		r.comps.Rotation.Set(p.h, p.v.Float)
	case state.CompLength:
		r.comps.Length.Set(p.h, p.v.Float)
	case state.CompOwnedBy:
		r.comps.OwnedBy.Set(p.h, p.v.Ref)
	case state.CompRange:
		r.comps.Range.Set(p.h, p.v.Float)
	case state.CompFirepower:
		r.comps.Firepower.Set(p.h, p.v.Float)
	case state.CompLoaded:
		r.comps.Loaded.Set(p.h, p.v.Bool)
	}
}
