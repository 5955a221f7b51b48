package reconcile

import (
	"encoding/json"
	"errors"
	"testing"

	"broadside.gg/internal/sim/actions"
	"broadside.gg/internal/sim/encoding"
	"broadside.gg/internal/sim/entities"
	"broadside.gg/internal/sim/state"
)

var (
	playerA = entities.IDFromUint64(0xa)
	playerB = entities.IDFromUint64(0xb)
	shipA   = entities.IDFromUint64(100)
	shipB   = entities.IDFromUint64(200)
	shipC   = entities.IDFromUint64(300)
	cannonA = entities.IDFromUint64(101)
	cannonC = entities.IDFromUint64(301)
)

func upd(t *testing.T, id entities.ID, comp string, v any) Update {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return Update{Entity: id, Component: comp, Value: raw}
}

type fixture struct {
	r *Reconciler
	h map[entities.ID]entities.Handle
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	r := New(entities.NewMapResolver(), state.NewShadows(), state.NewComponents(), opts)
	f := &fixture{r: r, h: map[entities.ID]entities.Handle{}}
	ship := func(id, owner entities.ID, health int) {
		h, res := r.Spawn(id, entities.KindShip, []Update{
			upd(t, id, "OwnedBy", owner),
			upd(t, id, "Health", health),
			upd(t, id, "SailPosition", 2),
			upd(t, id, "OnFire", 0),
		})
		if len(res.Skips) != 0 {
			t.Fatalf("spawn skips: %+v", res.Skips)
		}
		f.h[id] = h
	}
	cannon := func(id, ship entities.ID) {
		h, _ := r.Spawn(id, entities.KindCannon, []Update{
			upd(t, id, "OwnedBy", ship),
			upd(t, id, "Range", 50),
			upd(t, id, "Firepower", 40),
		})
		f.h[id] = h
	}
	ship(shipA, playerA, 10)
	ship(shipB, playerB, 10)
	ship(shipC, playerA, 10)
	cannon(cannonA, shipA)
	cannon(cannonC, shipC)
	return f
}

func (f *fixture) health(id entities.ID) (local, backend int) {
	h := f.h[id]
	local, _ = f.r.Shadows().Local.Health.Get(h)
	backend, _ = f.r.Shadows().Backend.Health.Get(h)
	return local, backend
}

func fireRecord(ship, cannon entities.ID, targets ...entities.ID) ActionRecord {
	return ActionRecord{
		Ship:     ship,
		Tags:     [2]uint8{uint8(actions.Fire), uint8(actions.None)},
		Specials: [2]entities.ID{cannon},
		Metadata: [2][]byte{encoding.EncodeIDs(targets)},
	}
}

func TestApply_HealthConvergesRegardlessOfPrediction(t *testing.T) {
	f := newFixture(t, Options{})
	hB := f.h[shipB]
	if err := f.r.Predict(hB, state.AttrHealth, 2); err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if f.r.Phase(hB) != Animating {
		t.Fatalf("phase=%s want ANIMATING", f.r.Phase(hB))
	}
	f.r.Apply(Batch{Updates: []Update{upd(t, shipB, "Health", 7)}})
	local, backend := f.health(shipB)
	if local != 7 || backend != 7 {
		t.Fatalf("health local=%d backend=%d want 7/7", local, backend)
	}
	if f.r.Phase(hB) != Reconciled {
		t.Fatalf("phase=%s want RECONCILED", f.r.Phase(hB))
	}
}

func TestApply_FireWithoutHealthUpdateIsNoDamage(t *testing.T) {
	f := newFixture(t, Options{})
	res := f.r.Apply(Batch{Actions: []ActionRecord{fireRecord(shipA, cannonA, shipB)}})
	if len(res.Shots) != 1 {
		t.Fatalf("shots=%d", len(res.Shots))
	}
	s := res.Shots[0]
	if len(s.Targets) != 1 || s.Targets[0] != f.h[shipB] || s.Damage[0] != 0 {
		t.Fatalf("shots=%+v", s)
	}
	local, backend := f.health(shipB)
	if local != 10 || backend != 10 {
		t.Fatalf("health changed: %d/%d", local, backend)
	}
	if !f.r.Components().ExecutedFire.GetOr(f.h[cannonA], false) {
		t.Fatalf("ExecutedFire not set")
	}
}

func TestApply_FireDamageClampedAndShared(t *testing.T) {
	f := newFixture(t, Options{})
	res := f.r.Apply(Batch{
		Actions: []ActionRecord{
			fireRecord(shipA, cannonA, shipB),
			fireRecord(shipC, cannonC, shipB),
		},
		Updates: []Update{upd(t, shipB, "Health", 5)},
	})
	if len(res.Shots) != 2 {
		t.Fatalf("shots=%d", len(res.Shots))
	}
	if res.Shots[0].Damage[0] != 3 || res.Shots[1].Damage[0] != 2 {
		t.Fatalf("damage=%d,%d want 3,2", res.Shots[0].Damage[0], res.Shots[1].Damage[0])
	}
	local, backend := f.health(shipB)
	if local != 5 || backend != 5 {
		t.Fatalf("health=%d/%d want 5/5", local, backend)
	}
}

func TestApply_SpecialDamage(t *testing.T) {
	f := newFixture(t, Options{})
	res := f.r.Apply(Batch{
		Actions: []ActionRecord{fireRecord(shipA, cannonA, shipB)},
		Updates: []Update{
			upd(t, shipB, "Health", 9),
			upd(t, shipB, "OnFire", 1),
			upd(t, shipB, "SailPosition", 0),
		},
	})
	sp := res.Shots[0].SpecialDamage[0]
	if !sp.Fire || !sp.Sail || sp.Cannons {
		t.Fatalf("special=%+v", sp)
	}
	hB := f.h[shipB]
	if v, _ := f.r.Shadows().Backend.OnFire.Get(hB); v != 1 {
		t.Fatalf("backend OnFire=%d", v)
	}
	if v, _ := f.r.Shadows().Local.OnFire.Get(hB); v != 0 {
		t.Fatalf("local OnFire must wait for settle, got %d", v)
	}
	f.r.Settle(hB)
	if !f.r.Shadows().Converged(hB) || f.r.Phase(hB) != Idle {
		t.Fatalf("not converged after settle")
	}
}

func TestApply_SlotSnapsDefaultToCleared(t *testing.T) {
	f := newFixture(t, Options{})
	hA := f.h[shipA]
	_ = f.r.Shadows().Backend.SetValue(hA, state.AttrOnFire, 2)
	_ = f.r.Shadows().Local.SetValue(hA, state.AttrOnFire, 2)

	res := f.r.Apply(Batch{Actions: []ActionRecord{{
		Ship: shipA,
		Tags: [2]uint8{uint8(actions.ExtinguishFire), uint8(actions.LowerSail)},
	}}})
	if v, _ := f.r.Shadows().Backend.OnFire.Get(hA); v != 0 {
		t.Fatalf("backend OnFire=%d want 0", v)
	}
	if sp, _ := f.r.Shadows().Backend.SailOf(hA); sp != state.SailLowered {
		t.Fatalf("backend sail=%s", sp)
	}
	if len(res.Snaps) != 2 || res.Snaps[0].Attr != state.AttrOnFire || res.Snaps[1].Attr != state.AttrSailPosition {
		t.Fatalf("snaps=%+v", res.Snaps)
	}
}

func TestApply_SlotSnapUsesConfirmedValue(t *testing.T) {
	f := newFixture(t, Options{})
	res := f.r.Apply(Batch{
		Actions: []ActionRecord{{Ship: shipA, Tags: [2]uint8{uint8(actions.RepairSail)}}},
		Updates: []Update{upd(t, shipA, "SailPosition", 2)},
	})
	if sp, _ := f.r.Shadows().Backend.SailOf(f.h[shipA]); sp != state.SailRaised {
		t.Fatalf("sail=%s want RAISED", sp)
	}
	if len(res.Snaps) != 1 {
		t.Fatalf("confirmed value applied twice: %+v", res.Snaps)
	}
}

func TestApply_BadRecordsSkippedNotFatal(t *testing.T) {
	f := newFixture(t, Options{})
	ghost := entities.IDFromUint64(999)
	res := f.r.Apply(Batch{
		Actions: []ActionRecord{
			{Ship: ghost, Tags: [2]uint8{uint8(actions.ExtinguishFire)}},
			{Ship: shipA, Tags: [2]uint8{250, uint8(actions.Load)}, Specials: [2]entities.ID{{}, cannonA}},
			{Ship: shipA, Tags: [2]uint8{uint8(actions.Load)}, Specials: [2]entities.ID{cannonC}},
			{Ship: shipA, Tags: [2]uint8{uint8(actions.Fire)}, Specials: [2]entities.ID{cannonA}, Metadata: [2][]byte{{1, 2, 3}}},
			fireRecord(shipC, cannonC, ghost, shipB),
		},
		Updates: []Update{
			upd(t, ghost, "Health", 1),
			upd(t, shipB, "Mystery", 1),
			upd(t, shipB, "Health", "oops"),
		},
	})
	if len(res.Skips) != 8 {
		t.Fatalf("skips=%d: %+v", len(res.Skips), res.Skips)
	}
	var unknownTag bool
	for _, s := range res.Skips {
		if errors.Is(s.Err, actions.ErrUnknownActionTag) {
			unknownTag = true
		}
	}
	if !unknownTag {
		t.Fatalf("unknown tag not reported")
	}
	if len(res.Loads) != 1 || res.Loads[0].Cannon != f.h[cannonA] {
		t.Fatalf("loads=%+v", res.Loads)
	}
	if len(res.Shots) != 1 || len(res.Shots[0].Targets) != 1 || res.Shots[0].Targets[0] != f.h[shipB] {
		t.Fatalf("shots=%+v", res.Shots)
	}
	if !f.r.Components().ExecutedLoad.GetOr(f.h[cannonA], false) {
		t.Fatalf("ExecutedLoad not set")
	}
}

func TestApply_MarkedRecordsSkipped(t *testing.T) {
	f := newFixture(t, Options{})
	bad := errors.New("unparseable")
	load := ActionRecord{
		Ship:     shipA,
		Tags:     [2]uint8{uint8(actions.Load), uint8(actions.Load)},
		Specials: [2]entities.ID{{}, cannonA},
		SlotErr:  [2]error{bad, nil},
	}
	res := f.r.Apply(Batch{
		Tx: "marked",
		Actions: []ActionRecord{
			{Err: bad, Raw: "0xzz"},
			load,
		},
		Updates: []Update{
			{Err: bad, Raw: "nope", Component: "Health"},
			upd(t, shipB, "Health", 7),
		},
	})
	if len(res.Skips) != 3 {
		t.Fatalf("skips=%+v", res.Skips)
	}
	if res.Skips[0].Ref() != "nope" || res.Skips[1].Ref() != "0xzz" || res.Skips[2].Slot != 0 {
		t.Fatalf("skips=%+v", res.Skips)
	}
	if len(res.Loads) != 1 || res.Loads[0].Cannon != f.h[cannonA] {
		t.Fatalf("loads=%+v", res.Loads)
	}
	if local, backend := f.health(shipB); local != 7 || backend != 7 {
		t.Fatalf("health=%d/%d want 7/7", local, backend)
	}
}

func TestApply_KillsAndComponents(t *testing.T) {
	f := newFixture(t, Options{AutoSettle: true})
	res := f.r.Apply(Batch{Updates: []Update{
		upd(t, shipA, "Kills", 2),
		upd(t, shipA, "Position", map[string]float64{"x": 3, "y": -4}),
		upd(t, cannonA, "Loaded", true),
	}})
	hA := f.h[shipA]
	if v, _ := f.r.Shadows().Local.Kills.Get(hA); v != 2 {
		t.Fatalf("auto-settled local kills=%d", v)
	}
	if p, _ := f.r.Components().Position.Get(hA); p.X != 3 || p.Y != -4 {
		t.Fatalf("position=%+v", p)
	}
	if !f.r.Components().Loaded.GetOr(f.h[cannonA], false) {
		t.Fatalf("loaded not applied")
	}
	if len(res.Settled) != 1 || res.Settled[0] != hA || f.r.Phase(hA) != Idle {
		t.Fatalf("settled=%v", res.Settled)
	}
}

func TestDestroyAndReset(t *testing.T) {
	f := newFixture(t, Options{})
	hB := f.h[shipB]
	if err := f.r.Destroy(shipB); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if f.r.Shadows().Backend.Health.Has(hB) || f.r.Components().Kind.Has(hB) {
		t.Fatalf("destroy left state behind")
	}
	if _, ok := f.r.Registry().Resolve(shipB); ok {
		t.Fatalf("destroy left resolver entry")
	}
	if err := f.r.Destroy(shipB); !errors.Is(err, entities.ErrUnresolvableEntity) {
		t.Fatalf("second destroy: %v", err)
	}
	if err := f.r.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if f.r.Components().Kind.Len() != 0 {
		t.Fatalf("reset left components")
	}
}
