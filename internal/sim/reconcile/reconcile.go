// Package reconcile applies confirmed chain batches to the dual
// local/backend shadows and derives what the animation layer should play.
//
// Backend values change only here, from confirmed updates. Local values
// move eagerly through Predict and are brought back to backend by Settle
// or, for Health, immediately on every confirmed Health update.
//
// A Reconciler is not safe for concurrent use; the session feeds it from
// a single goroutine, one batch at a time, in chain order.
package reconcile

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sort"

	"broadside.gg/internal/sim/actions"
	"broadside.gg/internal/sim/encoding"
	"broadside.gg/internal/sim/entities"
	"broadside.gg/internal/sim/state"
	"broadside.gg/internal/sim/targeting"
)

var errCannonNotOwned = errors.New("cannon not owned by ship")

type Options struct {
	// AutoSettle settles every touched entity at the end of Apply.
	AutoSettle bool
	Logger     *log.Logger
}

type Reconciler struct {
	log        *log.Logger
	reg        entities.Registry
	shadows    *state.Shadows
	comps      *state.Components
	phase      map[entities.Handle]ShipPhase
	autoSettle bool
}

func New(reg entities.Registry, shadows *state.Shadows, comps *state.Components, opts Options) *Reconciler {
	lg := opts.Logger
	if lg == nil {
		lg = log.New(io.Discard, "", 0)
	}
	return &Reconciler{
		log:        lg,
		reg:        reg,
		shadows:    shadows,
		comps:      comps,
		phase:      map[entities.Handle]ShipPhase{},
		autoSettle: opts.AutoSettle,
	}
}

func (r *Reconciler) Shadows() *state.Shadows { return r.shadows }

func (r *Reconciler) Components() *state.Components { return r.comps }

func (r *Reconciler) Registry() entities.Registry { return r.reg }

func (r *Reconciler) Phase(h entities.Handle) ShipPhase { return r.phase[h] }

func (r *Reconciler) skip(res *Result, id entities.ID, slot int, err error) {
	r.skipRaw(res, Skip{Entity: id, Slot: slot, Err: err})
}

func (r *Reconciler) skipRaw(res *Result, sk Skip) {
	res.Skips = append(res.Skips, sk)
	r.log.Printf("reconcile: skip entity=%s slot=%d: %v", sk.Ref(), sk.Slot, sk.Err)
}

// batchCtx carries per-batch accounting across the action records.
type batchCtx struct {
	ups        *updateSet
	running    map[entities.Handle]int
	specialHit map[entities.Handle]bool
	touched    map[entities.Handle]bool
}

// Apply reconciles one confirmed batch. It never fails: bad records are
// reported in Result.Skips and the rest of the batch is applied.
func (r *Reconciler) Apply(b Batch) Result {
	res := Result{Tx: b.Tx}
	ctx := &batchCtx{
		ups:        r.indexUpdates(b.Updates, &res),
		running:    map[entities.Handle]int{},
		specialHit: map[entities.Handle]bool{},
		touched:    map[entities.Handle]bool{},
	}
	for _, a := range b.Actions {
		r.applyAction(ctx, a, &res)
	}
	r.applyRemaining(ctx, &res)

	touched := make([]entities.Handle, 0, len(ctx.touched))
	for h := range ctx.touched {
		touched = append(touched, h)
	}
	sort.Slice(touched, func(i, j int) bool { return touched[i] < touched[j] })
	for _, h := range touched {
		r.phase[h] = Reconciled
		if r.autoSettle {
			r.Settle(h)
			res.Settled = append(res.Settled, h)
		}
	}
	return res
}

func (r *Reconciler) applyAction(ctx *batchCtx, a ActionRecord, res *Result) {
	if a.Err != nil {
		r.skipRaw(res, Skip{Entity: a.Ship, Raw: a.Raw, Slot: -1, Err: a.Err})
		return
	}
	ship, err := entities.Lookup(r.reg, a.Ship)
	if err != nil {
		r.skip(res, a.Ship, -1, err)
		return
	}
	ctx.touched[ship] = true
	for i := 0; i < actions.SlotCount; i++ {
		if a.SlotErr[i] != nil {
			r.skip(res, a.Ship, i, a.SlotErr[i])
			continue
		}
		typ, err := actions.DecodeTag(a.Tags[i])
		if err != nil {
			r.skip(res, a.Ship, i, err)
			continue
		}
		switch typ {
		case actions.None:
		case actions.Load:
			cannon, err := r.cannonFor(ship, a.Specials[i])
			if err != nil {
				r.skip(res, a.Ship, i, err)
				continue
			}
			r.comps.ExecutedLoad.Set(cannon, true)
			res.Loads = append(res.Loads, ExecutedLoad{Ship: ship, Cannon: cannon})
		case actions.Fire:
			shots, err := r.fire(ctx, ship, a, i, res)
			if err != nil {
				r.skip(res, a.Ship, i, err)
				continue
			}
			res.Shots = append(res.Shots, shots)
		case actions.ExtinguishFire:
			r.snapAction(ctx, ship, state.AttrOnFire, 0, res)
		case actions.RepairCannons:
			r.snapAction(ctx, ship, state.AttrDamagedCannons, 0, res)
		case actions.RaiseSail:
			r.snapAction(ctx, ship, state.AttrSailPosition, int(state.SailRaised), res)
		case actions.LowerSail, actions.RepairSail:
			r.snapAction(ctx, ship, state.AttrSailPosition, int(state.SailLowered), res)
		}
	}
}

func (r *Reconciler) cannonFor(ship entities.Handle, id entities.ID) (entities.Handle, error) {
	cannon, err := entities.Lookup(r.reg, id)
	if err != nil {
		return 0, err
	}
	if k, _ := r.comps.Kind.Get(cannon); k != entities.KindCannon {
		return 0, fmt.Errorf("entity %s is not a cannon", id)
	}
	shipID, _ := r.reg.ChainID(ship)
	if owner, ok := r.comps.OwnedBy.Get(cannon); !ok || owner != shipID {
		return 0, fmt.Errorf("%w: cannon %s", errCannonNotOwned, id)
	}
	return cannon, nil
}

func (r *Reconciler) fire(ctx *batchCtx, ship entities.Handle, a ActionRecord, slot int, res *Result) (ExecutedShots, error) {
	cannon, err := r.cannonFor(ship, a.Specials[slot])
	if err != nil {
		return ExecutedShots{}, err
	}
	ids, err := encoding.DecodeIDs(a.Metadata[slot])
	if err != nil {
		return ExecutedShots{}, fmt.Errorf("fire targets: %w", err)
	}
	shots := ExecutedShots{Ship: ship, Cannon: cannon}
	for _, id := range ids {
		th, err := entities.Lookup(r.reg, id)
		if err != nil {
			r.skip(res, id, slot, fmt.Errorf("fire target: %w", err))
			continue
		}
		dmg, sp := r.damage(ctx, th)
		shots.Targets = append(shots.Targets, th)
		shots.Damage = append(shots.Damage, dmg)
		shots.SpecialDamage = append(shots.SpecialDamage, sp)
		ctx.touched[th] = true
	}
	r.comps.ExecutedFire.Set(cannon, true)
	return shots, nil
}

// damage draws a target's confirmed health loss. Several shooters in one
// batch share the delta in batch order; each takes at most one volley.
func (r *Reconciler) damage(ctx *batchCtx, target entities.Handle) (int, SpecialDamage) {
	sp := r.specialDamage(ctx, target)
	post, ok := ctx.ups.get(target, string(state.AttrHealth))
	if !ok {
		// No Health update: health did not change.
		return 0, sp
	}
	pre, seen := ctx.running[target]
	if !seen {
		var known bool
		pre, known = r.shadows.Backend.Health.Get(target)
		if !known {
			pre = post.v.Int
		}
	}
	d := pre - post.v.Int
	if d < 0 {
		d = 0
	}
	if d > targeting.VolleySize {
		d = targeting.VolleySize
	}
	ctx.running[target] = pre - d
	return d, sp
}

// specialDamage is reported once per target per batch, on the first volley.
func (r *Reconciler) specialDamage(ctx *batchCtx, target entities.Handle) SpecialDamage {
	var sp SpecialDamage
	if ctx.specialHit[target] {
		return sp
	}
	ctx.specialHit[target] = true
	b := r.shadows.Backend
	if p, ok := ctx.ups.get(target, string(state.AttrOnFire)); ok {
		sp.Fire = p.v.Int > 0 && b.OnFire.GetOr(target, 0) == 0
	}
	if p, ok := ctx.ups.get(target, string(state.AttrDamagedCannons)); ok {
		sp.Cannons = p.v.Int > 0 && b.DamagedCannons.GetOr(target, 0) == 0
	}
	if p, ok := ctx.ups.get(target, string(state.AttrSailPosition)); ok {
		sp.Sail = state.SailPosition(p.v.Int) == state.SailTorn && b.Sail.GetOr(target, state.SailLowered) != state.SailTorn
	}
	return sp
}

// snapAction sets a backend shadow to the confirmed value, or to def
// when the batch carries no update for it.
func (r *Reconciler) snapAction(ctx *batchCtx, h entities.Handle, attr state.Attr, def int, res *Result) {
	v := def
	if p, ok := ctx.ups.get(h, string(attr)); ok {
		v = p.v.Int
		p.used = true
	}
	_ = r.shadows.Backend.SetValue(h, attr, v)
	res.Snaps = append(res.Snaps, Snap{Entity: h, Attr: attr, Value: v})
}

// applyRemaining writes every confirmed update not consumed by an action.
// Health snaps both shadows; that is the point where accumulated
// prediction error is corrected.
func (r *Reconciler) applyRemaining(ctx *batchCtx, res *Result) {
	for _, p := range ctx.ups.list {
		if p.used {
			continue
		}
		p.used = true
		attr := state.Attr(p.comp)
		if !state.IsDual(attr) {
			r.applyComponent(p)
			continue
		}
		_ = r.shadows.Backend.SetValue(p.h, attr, p.v.Int)
		both := attr == state.AttrHealth
		if both {
			_ = r.shadows.Local.SetValue(p.h, attr, p.v.Int)
		}
		res.Snaps = append(res.Snaps, Snap{Entity: p.h, Attr: attr, Value: p.v.Int, Local: both})
		ctx.touched[p.h] = true
	}
}

// Predict applies an optimistic local value and marks h as animating.
func (r *Reconciler) Predict(h entities.Handle, attr state.Attr, v int) error {
	if err := r.shadows.Local.SetValue(h, attr, v); err != nil {
		return err
	}
	r.phase[h] = Animating
	return nil
}

// Settle makes h's local shadow equal to its backend shadow.
func (r *Reconciler) Settle(h entities.Handle) {
	r.shadows.Settle(h)
	r.phase[h] = Idle
}

func (r *Reconciler) SettleAll() {
	for h := range r.phase {
		r.Settle(h)
	}
}

// Spawn registers a new entity and seeds both shadows from its initial
// components, so a freshly seen ship starts at rest.
func (r *Reconciler) Spawn(id entities.ID, kind entities.Kind, initial []Update) (entities.Handle, Result) {
	res := Result{}
	h, err := r.reg.Register(id, kind)
	if err != nil {
		r.skip(&res, id, -1, err)
		return 0, res
	}
	r.comps.Kind.Set(h, kind)
	set := r.indexUpdates(initial, &res)
	for _, p := range set.list {
		if p.used {
			continue
		}
		attr := state.Attr(p.comp)
		if !state.IsDual(attr) {
			r.applyComponent(p)
			continue
		}
		_ = r.shadows.Backend.SetValue(p.h, attr, p.v.Int)
		_ = r.shadows.Local.SetValue(p.h, attr, p.v.Int)
	}
	r.phase[h] = Idle
	return h, res
}

// Destroy drops every trace of the entity (ship sunk, cannon removed).
func (r *Reconciler) Destroy(id entities.ID) error {
	h, err := entities.Lookup(r.reg, id)
	if err != nil {
		return err
	}
	r.shadows.Remove(h)
	r.comps.Remove(h)
	delete(r.phase, h)
	return r.reg.Remove(id)
}

// Reset clears the whole session (game reset or new game).
func (r *Reconciler) Reset() error {
	r.shadows.Clear()
	r.comps.Clear()
	r.phase = map[entities.Handle]ShipPhase{}
	return r.reg.Reset()
}
