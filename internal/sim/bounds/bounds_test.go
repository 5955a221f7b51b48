package bounds

import (
	"errors"
	"testing"
	"time"

	"broadside.gg/internal/sim/gameconfig"
	"broadside.gg/internal/sim/geom"
)

func shrinkConfig() gameconfig.GameConfig {
	return gameconfig.GameConfig{
		CommitPhaseLength:        30,
		RevealPhaseLength:        30,
		ActionPhaseLength:        60,
		WorldSize:                100,
		EntryCutoffTurn:          2,
		ShrinkRatePercentPerTurn: 150,
		PerlinSeed:               9,
	}
}

func TestWorldSizeAtTurn(t *testing.T) {
	c := shrinkConfig()
	cases := map[int64]int64{0: 100, 1: 100, 2: 100, 3: 99, 4: 97, 5: 96, 100: 50, 1_000_000: 50}
	for turn, want := range cases {
		if got := WorldSizeAtTurn(turn, c); got != want {
			t.Fatalf("WorldSizeAtTurn(%d)=%d want %d", turn, got, want)
		}
	}
	c.ShrinkRatePercentPerTurn = 0
	if got := WorldSizeAtTurn(500, c); got != 100 {
		t.Fatalf("no-shrink size=%d", got)
	}
}

func TestWorldSizeAtTurn_NonIncreasingWithFloor(t *testing.T) {
	c := shrinkConfig()
	c.ShrinkRatePercentPerTurn = 777
	prev := WorldSizeAtTurn(c.EntryCutoffTurn, c)
	for turn := c.EntryCutoffTurn + 1; turn < 5000; turn++ {
		got := WorldSizeAtTurn(turn, c)
		if got > prev {
			t.Fatalf("size grew at turn %d: %d > %d", turn, got, prev)
		}
		if got < MinWorldSize {
			t.Fatalf("size %d below floor at turn %d", got, turn)
		}
		prev = got
	}
}

func TestWorldSizeAtTurn_SmallWorldNeverGrows(t *testing.T) {
	c := shrinkConfig()
	c.WorldSize = 30
	if got := WorldSizeAtTurn(50, c); got != 30 {
		t.Fatalf("small world size=%d want 30", got)
	}
}

func TestDimsAndInWorld(t *testing.T) {
	d := DimsFor(90)
	if d.Height != 90 || d.Width != 160 {
		t.Fatalf("DimsFor(90)=%+v", d)
	}
	if !InWorld(geom.Coord{X: 159.9, Y: -89.9}, 90) {
		t.Fatalf("expected inside")
	}
	if InWorld(geom.Coord{X: 160, Y: 0}, 90) || InWorld(geom.Coord{X: 0, Y: -90}, 90) {
		t.Fatalf("edge must be outside")
	}
}

func TestWhirlpools_DeterministicAndMemoized(t *testing.T) {
	a := NewWhirlpools(WhirlpoolOptions{})
	b := NewWhirlpools(WhirlpoolOptions{})
	a.Reseed(1234)
	b.Reseed(1234)
	for x := -60; x <= 60; x += 3 {
		for y := -60; y <= 60; y += 3 {
			p := geom.Coord{X: float64(x), Y: float64(y)}
			va := a.IsWhirlpool(p)
			if va != b.IsWhirlpool(p) {
				t.Fatalf("fields differ at %v", p)
			}
			if va != a.IsWhirlpool(geom.Coord{X: float64(x) + 0.2, Y: float64(y) - 0.3}) {
				t.Fatalf("rounded lookup differs at %v", p)
			}
			if va != (NoiseAt(x, y, 1234, DefaultDenominator) < DefaultThreshold) {
				t.Fatalf("memo disagrees with NoiseAt at %v", p)
			}
		}
	}
	if a.Len() != 41*41 {
		t.Fatalf("Len=%d want %d", a.Len(), 41*41)
	}
}

func TestWhirlpools_ReseedDropsMemo(t *testing.T) {
	w := NewWhirlpools(WhirlpoolOptions{})
	w.Reseed(1)
	w.IsWhirlpool(geom.Coord{X: 1, Y: 1})
	w.EnsureSeed(1)
	if w.Len() != 1 {
		t.Fatalf("EnsureSeed with same seed dropped memo")
	}
	w.EnsureSeed(2)
	if w.Len() != 0 {
		t.Fatalf("new seed kept memo")
	}
}

func TestWhirlpools_CapResetsArena(t *testing.T) {
	w := NewWhirlpools(WhirlpoolOptions{CacheCap: 4})
	for i := 0; i < 9; i++ {
		w.IsWhirlpool(geom.Coord{X: float64(i)})
	}
	if w.Len() > 4 {
		t.Fatalf("Len=%d exceeds cap", w.Len())
	}
	if w.Resets() != 2 {
		t.Fatalf("Resets=%d want 2", w.Resets())
	}
}

func TestNoiseAt_Range(t *testing.T) {
	for x := -300; x < 300; x += 7 {
		v := NoiseAt(x, -x, -99, DefaultDenominator)
		if v < 0 || v > 100 {
			t.Fatalf("NoiseAt=%d out of range", v)
		}
	}
}

func TestWorld_OutOfBounds(t *testing.T) {
	h := gameconfig.NewHolder(time.Unix(0, 0))
	w := NewWorld(h, NewWhirlpools(WhirlpoolOptions{}))
	if _, err := w.OutOfBounds(geom.Coord{}, 0); !errors.Is(err, gameconfig.ErrConfigUnavailable) {
		t.Fatalf("expected ErrConfigUnavailable, got %v", err)
	}
	c := shrinkConfig()
	if err := h.Set(c); err != nil {
		t.Fatalf("Set: %v", err)
	}
	oob, err := w.OutOfBounds(geom.Coord{X: 0, Y: 100}, 0)
	if err != nil || !oob {
		t.Fatalf("edge point: oob=%v err=%v", oob, err)
	}
	p := geom.Coord{X: 3, Y: 4}
	oob, err = w.OutOfBounds(p, 3)
	if err != nil {
		t.Fatalf("OutOfBounds: %v", err)
	}
	if want := NoiseAt(3, 4, c.PerlinSeed, DefaultDenominator) < DefaultThreshold; oob != want {
		t.Fatalf("interior point oob=%v want whirlpool=%v", oob, want)
	}
	if d, _ := w.DimsAtTurn(100); d.Height != 50 {
		t.Fatalf("DimsAtTurn(100)=%+v", d)
	}
}
