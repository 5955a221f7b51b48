// Package clock derives the game turn and phase from wall time and the
// chain-confirmed game config. Everything here is a pure function of
// (time, config).
package clock

import (
	"time"

	"broadside.gg/internal/sim/gameconfig"
)

type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseCommit
	PhaseReveal
	PhaseAction
)

func (p Phase) String() string {
	switch p {
	case PhaseCommit:
		return "COMMIT"
	case PhaseReveal:
		return "REVEAL"
	case PhaseAction:
		return "ACTION"
	default:
		return "UNKNOWN"
	}
}

type position struct {
	turn     int64
	intoTurn int64
	elapsed  int64
}

func locate(c gameconfig.GameConfig, t int64) position {
	elapsed := t - c.StartTime
	if elapsed < 0 {
		// Not started yet: turn 0, commit, counting down from before start.
		return position{turn: 0, intoTurn: elapsed, elapsed: elapsed}
	}
	tl := c.TurnLength()
	return position{turn: elapsed / tl, intoTurn: elapsed % tl, elapsed: elapsed}
}

func phaseOf(c gameconfig.GameConfig, intoTurn int64) Phase {
	switch {
	case intoTurn < c.CommitPhaseLength:
		return PhaseCommit
	case intoTurn < c.CommitPhaseLength+c.RevealPhaseLength:
		return PhaseReveal
	default:
		return PhaseAction
	}
}

// PhaseAt assumes c is valid (positive turn length).
func PhaseAt(c gameconfig.GameConfig, t int64) Phase {
	return phaseOf(c, locate(c, t).intoTurn)
}

func TurnAt(c gameconfig.GameConfig, t int64) int64 {
	return locate(c, t).turn
}

// SecondsRemainingInPhase counts down to the next phase boundary.
func SecondsRemainingInPhase(c gameconfig.GameConfig, t int64) int64 {
	into := locate(c, t).intoTurn
	switch phaseOf(c, into) {
	case PhaseCommit:
		return c.CommitPhaseLength - into
	case PhaseReveal:
		return c.CommitPhaseLength + c.RevealPhaseLength - into
	default:
		return c.TurnLength() - into
	}
}

// Clock binds the pure functions to a config provider and a time source.
// Every query fails with gameconfig.ErrConfigUnavailable until a config
// has been delivered; callers must treat that as "no action is legal".
type Clock struct {
	cfg gameconfig.Provider
	now func() time.Time
}

func New(cfg gameconfig.Provider, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{cfg: cfg, now: now}
}

func (c *Clock) config() (gameconfig.GameConfig, error) {
	if c == nil || c.cfg == nil {
		return gameconfig.GameConfig{}, gameconfig.ErrConfigUnavailable
	}
	gc, ok := c.cfg.Config()
	if !ok || gc.TurnLength() <= 0 {
		return gameconfig.GameConfig{}, gameconfig.ErrConfigUnavailable
	}
	return gc, nil
}

func (c *Clock) PhaseAt(t int64) (Phase, error) {
	gc, err := c.config()
	if err != nil {
		return PhaseUnknown, err
	}
	return PhaseAt(gc, t), nil
}

func (c *Clock) TurnAt(t int64) (int64, error) {
	gc, err := c.config()
	if err != nil {
		return 0, err
	}
	return TurnAt(gc, t), nil
}

func (c *Clock) SecondsRemainingInPhase(t int64) (int64, error) {
	gc, err := c.config()
	if err != nil {
		return 0, err
	}
	return SecondsRemainingInPhase(gc, t), nil
}

// NowSeconds is the wall time the relative queries start from.
func (c *Clock) NowSeconds() int64 { return c.now().Unix() }

// CurrentPhase answers "what phase will it be in delay seconds".
func (c *Clock) CurrentPhase(delay int64) (Phase, error) {
	return c.PhaseAt(c.NowSeconds() + delay)
}

func (c *Clock) CurrentTurn(delay int64) (int64, error) {
	return c.TurnAt(c.NowSeconds() + delay)
}

func (c *Clock) SecondsUntilPhaseChange(delay int64) (int64, error) {
	return c.SecondsRemainingInPhase(c.NowSeconds() + delay)
}
