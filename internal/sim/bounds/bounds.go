// Package bounds evaluates the playable area: the per-turn shrinking
// rectangle and the seeded whirlpool obstacle field.
package bounds

import (
	"math"

	"broadside.gg/internal/sim/gameconfig"
	"broadside.gg/internal/sim/geom"
)

const MinWorldSize = 50

// The playfield is a 16:9 rectangle; width = height * aspectW / aspectH.
const (
	aspectW = 16
	aspectH = 9
)

// WorldSizeAtTurn is the half-height of the playfield for turn.
func WorldSizeAtTurn(turn int64, c gameconfig.GameConfig) int64 {
	if c.ShrinkRatePercentPerTurn == 0 || turn < c.EntryCutoffTurn {
		return c.WorldSize
	}
	floor := float64(MinWorldSize)
	if float64(c.WorldSize) < floor {
		floor = float64(c.WorldSize)
	}
	size := float64(c.WorldSize) - float64(c.ShrinkRatePercentPerTurn)/100*float64(turn-c.EntryCutoffTurn)
	if size < floor {
		size = floor
	}
	return int64(math.Ceil(size))
}

type Dims struct {
	Height float64 `json:"height"`
	Width  float64 `json:"width"`
}

func DimsFor(size int64) Dims {
	h := float64(size)
	return Dims{Height: h, Width: h * aspectW / aspectH}
}

func WorldDimsAtTurn(turn int64, c gameconfig.GameConfig) Dims {
	return DimsFor(WorldSizeAtTurn(turn, c))
}

// InWorld uses strict bounds: the edge itself is outside.
func InWorld(p geom.Coord, height float64) bool {
	width := height * aspectW / aspectH
	return math.Abs(p.X) < width && math.Abs(p.Y) < height
}

// World binds the evaluators to the session config and a whirlpool cache.
type World struct {
	cfg   gameconfig.Provider
	pools *Whirlpools
}

func NewWorld(cfg gameconfig.Provider, pools *Whirlpools) *World {
	return &World{cfg: cfg, pools: pools}
}

func (w *World) Whirlpools() *Whirlpools { return w.pools }

func (w *World) config() (gameconfig.GameConfig, error) {
	if w == nil || w.cfg == nil {
		return gameconfig.GameConfig{}, gameconfig.ErrConfigUnavailable
	}
	c, ok := w.cfg.Config()
	if !ok {
		return gameconfig.GameConfig{}, gameconfig.ErrConfigUnavailable
	}
	w.pools.EnsureSeed(c.PerlinSeed)
	return c, nil
}

func (w *World) DimsAtTurn(turn int64) (Dims, error) {
	c, err := w.config()
	if err != nil {
		return Dims{}, err
	}
	return WorldDimsAtTurn(turn, c), nil
}

func (w *World) IsWhirlpool(p geom.Coord) (bool, error) {
	if _, err := w.config(); err != nil {
		return false, err
	}
	return w.pools.IsWhirlpool(p), nil
}

// OutOfBounds reports whether p is outside the turn's rectangle or on a whirlpool.
func (w *World) OutOfBounds(p geom.Coord, turn int64) (bool, error) {
	c, err := w.config()
	if err != nil {
		return false, err
	}
	if !InWorld(p, float64(WorldSizeAtTurn(turn, c))) {
		return true, nil
	}
	return w.pools.IsWhirlpool(p), nil
}
