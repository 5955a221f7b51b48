package bounds

import (
	"math"

	"github.com/sasha-s/go-deadlock"

	"broadside.gg/internal/sim/geom"
	"broadside.gg/internal/sim/mathx"
)

const (
	DefaultThreshold   = 26
	DefaultDenominator = 20
	DefaultCacheCap    = 1 << 16
)

type cell struct{ x, y int }

type WhirlpoolOptions struct {
	Threshold   int
	Denominator int
	// CacheCap bounds the memo; reaching it drops the whole arena.
	CacheCap int
}

func (o WhirlpoolOptions) withDefaults() WhirlpoolOptions {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.Denominator <= 0 {
		o.Denominator = DefaultDenominator
	}
	if o.CacheCap <= 0 {
		o.CacheCap = DefaultCacheCap
	}
	return o
}

// Whirlpools memoizes the obstacle test per integer cell for one seed.
// The cache is derived state and is dropped whenever the seed changes.
type Whirlpools struct {
	opts WhirlpoolOptions

	mu     deadlock.RWMutex
	seed   int64
	seeded bool
	cells  map[cell]bool
	resets int
}

func NewWhirlpools(opts WhirlpoolOptions) *Whirlpools {
	return &Whirlpools{opts: opts.withDefaults(), cells: map[cell]bool{}}
}

// NoiseAt is the 0..100 noise value of an integer cell.
func NoiseAt(x, y int, seed int64, denominator int) int {
	d := float64(denominator)
	// The lattice repeats every 256 units, so reducing the seed keeps the
	// float inputs small without changing the field.
	s := float64(mathx.Mod(int(seed%int64(256*denominator)), 256*denominator))
	n := mathx.Perlin2((float64(x)+s)/d, (float64(y)+s)/d)
	return int(math.Floor((n + 1) * 50))
}

// EnsureSeed reseeds (and drops the memo) only when seed differs.
func (w *Whirlpools) EnsureSeed(seed int64) {
	w.mu.RLock()
	same := w.seeded && w.seed == seed
	w.mu.RUnlock()
	if same {
		return
	}
	w.Reseed(seed)
}

func (w *Whirlpools) Reseed(seed int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seed = seed
	w.seeded = true
	w.cells = map[cell]bool{}
}

func (w *Whirlpools) IsWhirlpool(p geom.Coord) bool {
	x, y := p.Round()
	k := cell{x, y}

	w.mu.RLock()
	v, ok := w.cells[k]
	seed := w.seed
	w.mu.RUnlock()
	if ok {
		return v
	}

	v = NoiseAt(x, y, seed, w.opts.Denominator) < w.opts.Threshold

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seed != seed {
		// Reseeded while computing; the value belongs to the old field.
		return v
	}
	if existing, ok := w.cells[k]; ok {
		return existing
	}
	if len(w.cells) >= w.opts.CacheCap {
		w.cells = map[cell]bool{}
		w.resets++
	}
	w.cells[k] = v
	return v
}

func (w *Whirlpools) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.cells)
}

// Resets counts how often the arena hit its cap.
func (w *Whirlpools) Resets() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.resets
}
