// Package core is the query surface the action/UI layer talks to:
// phase countdowns, legal actions and targets, hit chances, bounds and
// the commit-reveal flow. It never renders or submits anything.
package core

import (
	"errors"
	"sort"

	"broadside.gg/internal/sim/actions"
	"broadside.gg/internal/sim/bounds"
	"broadside.gg/internal/sim/clock"
	"broadside.gg/internal/sim/commit"
	"broadside.gg/internal/sim/entities"
	"broadside.gg/internal/sim/geom"
	"broadside.gg/internal/sim/reconcile"
	"broadside.gg/internal/sim/state"
	"broadside.gg/internal/sim/targeting"
)

var (
	ErrNotACannon      = errors.New("not a cannon")
	ErrNoShipPosition  = errors.New("ship position unknown")
	ErrNoPendingCommit = errors.New("no pending commitment")
	ErrActionNotLegal  = errors.New("action not legal")
	ErrSlotsFull       = errors.New("both action slots taken")
)

type Options struct {
	// LookaheadSeconds is added to every phase query to absorb
	// network and display latency.
	LookaheadSeconds int64
	Arc              targeting.Arc
}

type Core struct {
	clock *clock.Clock
	world *bounds.World
	rec   *reconcile.Reconciler
	arc   targeting.Arc

	lookahead int64
	selected  map[entities.Handle]actions.Slots
	pending   *commit.Commitment
	lastTurn  int64
	turnKnown bool
}

func New(clk *clock.Clock, world *bounds.World, rec *reconcile.Reconciler, opts Options) *Core {
	return &Core{
		clock:     clk,
		world:     world,
		rec:       rec,
		arc:       opts.Arc,
		lookahead: opts.LookaheadSeconds,
		selected:  map[entities.Handle]actions.Slots{},
	}
}

func (c *Core) CurrentPhase(delay int64) (clock.Phase, error) {
	return c.clock.CurrentPhase(c.lookahead + delay)
}

func (c *Core) CurrentTurn(delay int64) (int64, error) {
	return c.clock.CurrentTurn(c.lookahead + delay)
}

// SecondsUntilPhaseChange drives the display countdown.
func (c *Core) SecondsUntilPhaseChange(delay int64) (int64, error) {
	return c.clock.SecondsUntilPhaseChange(c.lookahead + delay)
}

// Tick starts a new turn from confirmed state once the turn advances:
// turn flags and selections are cleared and every shadow is settled.
// Call it on every frame or message; it is a no-op within a turn.
func (c *Core) Tick() {
	turn, err := c.clock.CurrentTurn(0)
	if err != nil {
		return
	}
	if c.turnKnown && turn != c.lastTurn {
		c.rec.Components().ClearTurnFlags()
		c.rec.SettleAll()
		c.selected = map[entities.Handle]actions.Slots{}
	}
	c.lastTurn = turn
	c.turnKnown = true
}

func (c *Core) shipView(h entities.Handle) (targeting.Ship, bool) {
	comps := c.rec.Components()
	local := c.rec.Shadows().Local
	pos, ok := comps.Position.Get(h)
	if !ok {
		return targeting.Ship{}, false
	}
	owner, _ := comps.OwnedBy.Get(h)
	return targeting.Ship{
		Handle:   h,
		Owner:    owner,
		Position: pos,
		Rotation: comps.Rotation.GetOr(h, 0),
		Length:   comps.Length.GetOr(h, 0),
		Kills:    local.Kills.GetOr(h, 0),
		Health:   local.Health.GetOr(h, 0),
	}, true
}

func (c *Core) cannonView(h entities.Handle) (targeting.Cannon, targeting.Ship, error) {
	comps := c.rec.Components()
	if k, _ := comps.Kind.Get(h); k != entities.KindCannon {
		return targeting.Cannon{}, targeting.Ship{}, ErrNotACannon
	}
	shipID, _ := comps.OwnedBy.Get(h)
	sh, ok := c.rec.Registry().Resolve(shipID)
	if !ok {
		return targeting.Cannon{}, targeting.Ship{}, entities.ErrUnresolvableEntity
	}
	ship, ok := c.shipView(sh)
	if !ok {
		return targeting.Cannon{}, targeting.Ship{}, ErrNoShipPosition
	}
	return targeting.Cannon{
		Handle:    h,
		Ship:      sh,
		Rotation:  comps.Rotation.GetOr(h, 0),
		Range:     comps.Range.GetOr(h, 0),
		Firepower: comps.Firepower.GetOr(h, 0),
	}, ship, nil
}

// LegalTargetsFor lists ships the cannon can legally fire on right now.
func (c *Core) LegalTargetsFor(cannon entities.Handle) []entities.Handle {
	cv, shooter, err := c.cannonView(cannon)
	if err != nil {
		return nil
	}
	var ships []targeting.Ship
	for _, h := range c.rec.Components().Ships() {
		if s, ok := c.shipView(h); ok {
			ships = append(ships, s)
		}
	}
	return c.arc.LegalTargets(shooter, cv, ships)
}

// FiringArea is the polygon the UI outlines for a cannon.
func (c *Core) FiringArea(cannon entities.Handle) (geom.Polygon, error) {
	cv, shooter, err := c.cannonView(cannon)
	if err != nil {
		return nil, err
	}
	return c.arc.Area(shooter, cv), nil
}

func (c *Core) HitChances(cannon, target entities.Handle) (targeting.HitChances, error) {
	cv, shooter, err := c.cannonView(cannon)
	if err != nil {
		return targeting.HitChances{}, err
	}
	ts, ok := c.shipView(target)
	if !ok {
		return targeting.HitChances{}, ErrNoShipPosition
	}
	return targeting.ChancesAgainst(shooter, cv, ts), nil
}

// LegalActionsFor derives the ship's currently legal actions from local
// shadows. Outside the action phase, or without a config, nothing is legal.
func (c *Core) LegalActionsFor(ship entities.Handle) []actions.Type {
	phase, err := c.CurrentPhase(0)
	if err != nil || phase != clock.PhaseAction {
		return nil
	}
	local := c.rec.Shadows().Local
	if hp, ok := local.Health.Get(ship); !ok || hp <= 0 {
		return nil
	}
	set := map[actions.Type]bool{}
	if local.OnFire.GetOr(ship, 0) > 0 {
		set[actions.ExtinguishFire] = true
	}
	if local.DamagedCannons.GetOr(ship, 0) > 0 {
		set[actions.RepairCannons] = true
	}
	if sail, err := local.SailOf(ship); err == nil {
		switch sail {
		case state.SailTorn:
			set[actions.RepairSail] = true
		case state.SailLowered:
			set[actions.RaiseSail] = true
		case state.SailRaised:
			set[actions.LowerSail] = true
		}
	}
	for _, cannon := range c.rec.Components().CannonsOf(ship, c.rec.Registry()) {
		for _, t := range []actions.Type{actions.Load, actions.Fire} {
			if c.cannonActionLegal(cannon, t) {
				set[t] = true
			}
		}
	}
	out := make([]actions.Type, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *Core) cannonActionLegal(cannon entities.Handle, t actions.Type) bool {
	comps := c.rec.Components()
	loaded := comps.Loaded.GetOr(cannon, false)
	switch t {
	case actions.Load:
		return !loaded && !comps.ExecutedLoad.GetOr(cannon, false)
	case actions.Fire:
		return loaded && !comps.ExecutedFire.GetOr(cannon, false) && len(c.LegalTargetsFor(cannon)) > 0
	}
	return false
}

// Selection is the ship's action choice for the current turn.
func (c *Core) Selection(ship entities.Handle) actions.Slots { return c.selected[ship] }

// SelectAction toggles (t, special) in the ship's slots. Deselecting is
// always allowed; a new selection must be legal right now and, for
// cannon actions, legal for the named cannon the ship owns.
func (c *Core) SelectAction(ship entities.Handle, t actions.Type, special entities.ID) (actions.Slots, error) {
	cur := c.selected[ship]
	out, ok := cur.Toggle(t, special)
	if ok && out.Count() < cur.Count() {
		c.selected[ship] = out
		return out, nil
	}
	legal := false
	for _, a := range c.LegalActionsFor(ship) {
		legal = legal || a == t
	}
	if legal && t.NeedsCannon() {
		cannon, owned := c.ownedCannon(ship, special)
		legal = owned && c.cannonActionLegal(cannon, t)
	}
	if !legal {
		return cur, ErrActionNotLegal
	}
	if !ok {
		return cur, ErrSlotsFull
	}
	c.selected[ship] = out
	return out, nil
}

func (c *Core) ownedCannon(ship entities.Handle, id entities.ID) (entities.Handle, bool) {
	h, ok := c.rec.Registry().Resolve(id)
	if !ok {
		return 0, false
	}
	for _, cannon := range c.rec.Components().CannonsOf(ship, c.rec.Registry()) {
		if cannon == h {
			return h, true
		}
	}
	return 0, false
}

// OutOfBounds evaluates p against the current turn's playfield.
func (c *Core) OutOfBounds(p geom.Coord) (bool, error) {
	turn, err := c.CurrentTurn(0)
	if err != nil {
		return false, err
	}
	return c.world.OutOfBounds(p, turn)
}

// CommitMoves encodes and hashes moves and retains the result until the
// reveal is confirmed. A new commit replaces any pending one.
func (c *Core) CommitMoves(moves []commit.Move) commit.Commitment {
	cm := commit.Commit(moves)
	c.pending = &cm
	return cm
}

func (c *Core) PendingCommitment() (commit.Commitment, bool) {
	if c.pending == nil {
		return commit.Commitment{}, false
	}
	return *c.pending, true
}

// AbandonCommitment discards the local commitment; nothing was submitted.
func (c *Core) AbandonCommitment() { c.pending = nil }

// RevealMoves checks the bytes against the stored digest before they may
// be submitted.
func (c *Core) RevealMoves(stored commit.Digest, encoded []byte) ([]byte, error) {
	return commit.Reveal(stored, encoded)
}

// RevealPending verifies the retained commitment against its own digest.
func (c *Core) RevealPending() ([]byte, error) {
	if c.pending == nil {
		return nil, ErrNoPendingCommit
	}
	return commit.Reveal(c.pending.Digest, c.pending.Encoding)
}

// ConfirmReveal clears the pending commitment once the chain accepted it.
func (c *Core) ConfirmReveal() { c.pending = nil }
