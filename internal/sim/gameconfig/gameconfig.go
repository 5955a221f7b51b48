// Package gameconfig holds the chain-confirmed per-game configuration.
package gameconfig

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrConfigUnavailable = errors.New("game config unavailable")

// GameConfig is immutable once fetched. Phase lengths are seconds.
type GameConfig struct {
	StartTime                int64 `yaml:"start_time" json:"start_time"`
	CommitPhaseLength        int64 `yaml:"commit_phase_length" json:"commit_phase_length"`
	RevealPhaseLength        int64 `yaml:"reveal_phase_length" json:"reveal_phase_length"`
	ActionPhaseLength        int64 `yaml:"action_phase_length" json:"action_phase_length"`
	WorldSize                int64 `yaml:"world_size" json:"world_size"`
	EntryCutoffTurn          int64 `yaml:"entry_cutoff_turn" json:"entry_cutoff_turn"`
	ShrinkRatePercentPerTurn int64 `yaml:"shrink_rate" json:"shrink_rate"`
	PerlinSeed               int64 `yaml:"perlin_seed" json:"perlin_seed"`
}

func (c GameConfig) TurnLength() int64 {
	return c.CommitPhaseLength + c.RevealPhaseLength + c.ActionPhaseLength
}

func (c GameConfig) Validate() error {
	if c.CommitPhaseLength < 0 || c.RevealPhaseLength < 0 || c.ActionPhaseLength < 0 {
		return fmt.Errorf("game config: negative phase length")
	}
	if c.TurnLength() <= 0 {
		return fmt.Errorf("game config: turn length must be positive")
	}
	if c.WorldSize <= 0 {
		return fmt.Errorf("game config: world_size must be positive")
	}
	if c.EntryCutoffTurn < 0 || c.ShrinkRatePercentPerTurn < 0 {
		return fmt.Errorf("game config: negative entry cutoff or shrink rate")
	}
	return nil
}

func LoadFile(path string) (GameConfig, error) {
	var c GameConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("game config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Provider supplies the current config snapshot, if one has been fetched.
type Provider interface {
	Config() (GameConfig, bool)
}

// Static is a Provider over a fixed config.
type Static GameConfig

func (s Static) Config() (GameConfig, bool) { return GameConfig(s), true }

// Holder is the session's config slot: set when the chain-sync layer
// delivers a snapshot, cleared on disconnect.
type Holder struct {
	cur         atomic.Pointer[GameConfig]
	unavailable atomic.Int64 // unix nanos when the slot last became empty
}

func NewHolder(now time.Time) *Holder {
	h := &Holder{}
	h.unavailable.Store(now.UnixNano())
	return h
}

func (h *Holder) Config() (GameConfig, bool) {
	c := h.cur.Load()
	if c == nil {
		return GameConfig{}, false
	}
	return *c, true
}

func (h *Holder) Set(c GameConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	h.cur.Store(&c)
	return nil
}

func (h *Holder) Clear(now time.Time) {
	if h.cur.Swap(nil) != nil {
		h.unavailable.Store(now.UnixNano())
	}
}

// UnavailableFor reports how long the slot has been empty; zero when set.
func (h *Holder) UnavailableFor(now time.Time) time.Duration {
	if h.cur.Load() != nil {
		return 0
	}
	return now.Sub(time.Unix(0, h.unavailable.Load()))
}
