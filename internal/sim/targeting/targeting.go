// Package targeting builds cannon firing arcs and the hit-chance model.
package targeting

import (
	"math"
	"sort"

	"broadside.gg/internal/sim/entities"
	"broadside.gg/internal/sim/geom"
)

// DefaultSpreadDegrees is the half-angle each arc edge opens by.
const DefaultSpreadDegrees = 10.0

// VolleySize is the number of shots one Fire resolves.
const VolleySize = 3

// Hit model constants are tuned for display, not derived.
const (
	hitBase        = 50.0
	hitDecay       = 0.008
	twoHitWeight   = 1.7
	threeHitWeight = 4.5
)

// SternLocation is the aft end of a hull whose bow sits at position.
func SternLocation(position geom.Coord, rotation, length float64) geom.Coord {
	return geom.Project(position, rotation+180, length)
}

// Arc builds firing areas with a fixed edge spread.
type Arc struct {
	SpreadDegrees float64
}

func (a Arc) spread() float64 {
	if a.SpreadDegrees <= 0 || a.SpreadDegrees >= 90 {
		return DefaultSpreadDegrees
	}
	return a.SpreadDegrees
}

// FiringArea returns the polygon a cannon can hit. Broadside cannons
// fan out from the whole hull (quadrilateral); bow and stern chasers fan
// out from their end of the hull (triangle). The far edge is placed so
// that the point at exactly rng along the arc centerline lies on it.
func (a Arc) FiringArea(shipPos geom.Coord, rng, shipLength, shipRotation, cannonRotation float64) geom.Polygon {
	s := a.spread()
	rel := geom.NormalizeDegrees(cannonRotation)
	theta := shipRotation + rel
	reach := rng / math.Cos(geom.Radians(s))
	bow := shipPos
	stern := SternLocation(shipPos, shipRotation, shipLength)

	switch {
	case rel <= 45 || rel >= 315:
		return geom.Polygon{bow, geom.Project(bow, theta-s, reach), geom.Project(bow, theta+s, reach)}
	case rel >= 135 && rel <= 225:
		return geom.Polygon{stern, geom.Project(stern, theta-s, reach), geom.Project(stern, theta+s, reach)}
	}
	// Broadside: the bow ray leans toward the heading, the stern ray away.
	sign := 1.0
	if rel > 180 {
		sign = -1
	}
	return geom.Polygon{
		bow,
		geom.Project(bow, theta-sign*s, reach),
		geom.Project(stern, theta+sign*s, reach),
		stern,
	}
}

// FiringArea uses DefaultSpreadDegrees.
func FiringArea(shipPos geom.Coord, rng, shipLength, shipRotation, cannonRotation float64) geom.Polygon {
	return Arc{SpreadDegrees: DefaultSpreadDegrees}.FiringArea(shipPos, rng, shipLength, shipRotation, cannonRotation)
}

// InFiringArea treats the polygon boundary as inside.
func InFiringArea(poly geom.Polygon, p geom.Coord) bool {
	return poly.Contains(p)
}

// EffectiveRange scales base range by 10% per kill. Kills never reset.
func EffectiveRange(base float64, kills int) float64 {
	return base * (1 + float64(kills)/10)
}

func EffectiveFirepower(base float64, kills int) float64 {
	return base * (1 + float64(kills)/10)
}

func BaseHitChance(distance, firepower float64) float64 {
	return hitBase * math.Exp(-hitDecay*distance) * firepower / 100
}

// HitChances are display percentages for landing at least N of a volley.
type HitChances struct {
	AtLeastOne   int `json:"at_least_one"`
	AtLeastTwo   int `json:"at_least_two"`
	AtLeastThree int `json:"at_least_three"`
}

func displayPercent(v float64) int {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return int(math.Round(v))
}

func DisplayedHitChances(distance, firepower float64) HitChances {
	base := BaseHitChance(distance, firepower)
	return HitChances{
		AtLeastOne:   displayPercent(base),
		AtLeastTwo:   displayPercent(base * twoHitWeight),
		AtLeastThree: displayPercent(base * threeHitWeight),
	}
}

// Ship is the targeting view of a ship. Health is the local shadow.
type Ship struct {
	Handle   entities.Handle
	Owner    entities.ID
	Position geom.Coord
	Rotation float64
	Length   float64
	Kills    int
	Health   int
}

func (s Ship) Stern() geom.Coord { return SternLocation(s.Position, s.Rotation, s.Length) }

type Cannon struct {
	Handle    entities.Handle
	Ship      entities.Handle
	Rotation  float64
	Range     float64
	Firepower float64
}

// Area is the cannon's firing polygon at effective range.
func (a Arc) Area(shooter Ship, c Cannon) geom.Polygon {
	return a.FiringArea(shooter.Position, EffectiveRange(c.Range, shooter.Kills), shooter.Length, shooter.Rotation, c.Rotation)
}

// LegalTargets lists enemy ships whose bow or stern lies inside the
// cannon's area, sorted by handle. Sunk ships, the shooter and ships of
// the same owner are never targets.
func (a Arc) LegalTargets(shooter Ship, c Cannon, ships []Ship) []entities.Handle {
	poly := a.Area(shooter, c)
	var out []entities.Handle
	for _, s := range ships {
		if s.Handle == shooter.Handle || s.Owner == shooter.Owner || s.Health <= 0 {
			continue
		}
		if poly.Contains(s.Position) || poly.Contains(s.Stern()) {
			out = append(out, s.Handle)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ChancesAgainst applies the shooter's kill multiplier to firepower.
func ChancesAgainst(shooter Ship, c Cannon, target Ship) HitChances {
	d := geom.Distance(shooter.Position, target.Position)
	return DisplayedHitChances(d, EffectiveFirepower(c.Firepower, shooter.Kills))
}
