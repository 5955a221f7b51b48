package targeting

import (
	"math"
	"testing"

	"broadside.gg/internal/sim/entities"
	"broadside.gg/internal/sim/geom"
)

func TestSternLocation(t *testing.T) {
	s := SternLocation(geom.Coord{X: 10, Y: 5}, 90, 4)
	if math.Abs(s.X-10) > 1e-9 || math.Abs(s.Y-1) > 1e-9 {
		t.Fatalf("SternLocation=%v", s)
	}
}

func TestFiringArea_BroadsideRangeBoundary(t *testing.T) {
	// Heading +X, starboard cannon fires toward +Y. Hull midpoint is (-5,0).
	poly := FiringArea(geom.Coord{}, 20, 10, 0, 90)
	if len(poly) != 4 {
		t.Fatalf("broadside area has %d vertices", len(poly))
	}
	if !InFiringArea(poly, geom.Coord{X: -5, Y: 20}) {
		t.Fatalf("point at range on centerline must be inside")
	}
	if InFiringArea(poly, geom.Coord{X: -5, Y: 21}) {
		t.Fatalf("point one unit beyond range must be outside")
	}
	if InFiringArea(poly, geom.Coord{X: -5, Y: -5}) {
		t.Fatalf("port side must be outside a starboard arc")
	}
}

func TestFiringArea_PortBroadside(t *testing.T) {
	poly := FiringArea(geom.Coord{}, 20, 10, 0, 270)
	if !InFiringArea(poly, geom.Coord{X: -5, Y: -20}) || InFiringArea(poly, geom.Coord{X: -5, Y: -21}) {
		t.Fatalf("port boundary wrong")
	}
	if InFiringArea(poly, geom.Coord{X: -5, Y: 5}) {
		t.Fatalf("starboard point inside port arc")
	}
}

func TestFiringArea_BowAndSternChasers(t *testing.T) {
	bow := FiringArea(geom.Coord{}, 20, 10, 0, 0)
	if len(bow) != 3 {
		t.Fatalf("bow area has %d vertices", len(bow))
	}
	if !InFiringArea(bow, geom.Coord{X: 20}) || InFiringArea(bow, geom.Coord{X: 21}) {
		t.Fatalf("bow chaser boundary wrong")
	}
	stern := FiringArea(geom.Coord{}, 20, 10, 0, 180)
	if !InFiringArea(stern, geom.Coord{X: -30}) || InFiringArea(stern, geom.Coord{X: -31}) {
		t.Fatalf("stern chaser boundary wrong")
	}
}

func TestEffectiveScaling(t *testing.T) {
	if got := EffectiveRange(10, 0); got != 10 {
		t.Fatalf("EffectiveRange(10,0)=%v", got)
	}
	if got := EffectiveRange(20, 5); got != 30 {
		t.Fatalf("EffectiveRange(20,5)=%v", got)
	}
	if got := EffectiveFirepower(40, 2); math.Abs(got-48) > 1e-9 {
		t.Fatalf("EffectiveFirepower(40,2)=%v", got)
	}
}

func TestHitChances_Scenario(t *testing.T) {
	base := BaseHitChance(50, 20)
	if math.Abs(base-6.7032) > 1e-3 {
		t.Fatalf("BaseHitChance=%v", base)
	}
	got := DisplayedHitChances(50, 20)
	if got != (HitChances{AtLeastOne: 7, AtLeastTwo: 11, AtLeastThree: 30}) {
		t.Fatalf("DisplayedHitChances=%+v", got)
	}
	clamped := DisplayedHitChances(0, 100)
	if clamped != (HitChances{AtLeastOne: 50, AtLeastTwo: 85, AtLeastThree: 100}) {
		t.Fatalf("clamped=%+v", clamped)
	}
	if DisplayedHitChances(10, 0) != (HitChances{}) {
		t.Fatalf("zero firepower should be zero")
	}
}

func TestLegalTargets(t *testing.T) {
	me := entities.IDFromUint64(1)
	enemy := entities.IDFromUint64(2)
	shooter := Ship{Handle: 1, Owner: me, Length: 10, Health: 5}
	cannon := Cannon{Handle: 100, Ship: 1, Rotation: 90, Range: 20, Firepower: 30}
	ships := []Ship{
		shooter,
		{Handle: 2, Owner: enemy, Position: geom.Coord{X: -5, Y: 15}, Length: 10, Health: 3},
		{Handle: 3, Owner: me, Position: geom.Coord{X: -5, Y: 10}, Length: 10, Health: 3},
		{Handle: 4, Owner: enemy, Position: geom.Coord{X: -5, Y: 12}, Length: 10, Health: 0},
		{Handle: 5, Owner: enemy, Position: geom.Coord{X: 8, Y: 10}, Length: 10, Health: 2},
		{Handle: 6, Owner: enemy, Position: geom.Coord{X: -5, Y: 40}, Length: 10, Health: 2},
	}
	got := Arc{}.LegalTargets(shooter, cannon, ships)
	if len(got) != 2 || got[0] != 2 || got[1] != 5 {
		t.Fatalf("LegalTargets=%v want [2 5]", got)
	}

	// Kills extend the arc.
	shooter.Kills = 10
	ships[0] = shooter
	got = Arc{}.LegalTargets(shooter, cannon, ships)
	if len(got) != 3 || got[2] != 6 {
		t.Fatalf("LegalTargets with kills=%v want [2 5 6]", got)
	}
}

func TestChancesAgainst_UsesKills(t *testing.T) {
	shooter := Ship{Kills: 10}
	target := Ship{Position: geom.Coord{X: 50}}
	got := ChancesAgainst(shooter, Cannon{Firepower: 10}, target)
	if got != DisplayedHitChances(50, 20) {
		t.Fatalf("ChancesAgainst=%+v", got)
	}
}
