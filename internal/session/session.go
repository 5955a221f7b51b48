// Package session owns the single-goroutine pipeline from validated
// chain-sync messages to reconciled client state. Transports and the
// replay tool feed it; the UI reads through Core.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"broadside.gg/internal/protocol"
	"broadside.gg/internal/sim/actions"
	"broadside.gg/internal/sim/bounds"
	"broadside.gg/internal/sim/clock"
	"broadside.gg/internal/sim/commit"
	"broadside.gg/internal/sim/core"
	"broadside.gg/internal/sim/entities"
	"broadside.gg/internal/sim/gameconfig"
	"broadside.gg/internal/sim/reconcile"
	"broadside.gg/internal/sim/state"
	"broadside.gg/internal/sim/targeting"
	"broadside.gg/internal/sim/tuning"
)

type Options struct {
	Logger *log.Logger
	Now    func() time.Time

	// OnResult receives every reconciled batch, in order.
	OnResult func(reconcile.Result)
	// OnNotice receives player-facing notices.
	OnNotice func(protocol.NoticeMsg)
}

type Session struct {
	log      *log.Logger
	now      func() time.Time
	tun      tuning.Tuning
	validate *protocol.Validator

	holder *gameconfig.Holder
	world  *bounds.World
	rec    *reconcile.Reconciler
	core   *core.Core

	onResult func(reconcile.Result)
	onNotice func(protocol.NoticeMsg)

	warnedUnavailable bool
	batches           uint64
	rejected          uint64
	skipped           uint64
}

func New(tun tuning.Tuning, reg entities.Registry, opts Options) (*Session, error) {
	if err := tun.Validate(); err != nil {
		return nil, err
	}
	v, err := protocol.NewValidator()
	if err != nil {
		return nil, err
	}
	s := &Session{
		log:      opts.Logger,
		now:      opts.Now,
		tun:      tun,
		validate: v,
		onResult: opts.OnResult,
		onNotice: opts.OnNotice,
	}
	if s.log == nil {
		s.log = log.New(io.Discard, "", 0)
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.holder = gameconfig.NewHolder(s.now())
	s.world = bounds.NewWorld(s.holder, bounds.NewWhirlpools(bounds.WhirlpoolOptions{
		Threshold:   tun.WhirlpoolThreshold,
		Denominator: tun.NoiseDenominator,
		CacheCap:    tun.WhirlpoolCacheCap,
	}))
	s.rec = reconcile.New(reg, state.NewShadows(), state.NewComponents(), reconcile.Options{
		AutoSettle: tun.AutoSettle,
		Logger:     s.log,
	})
	s.core = core.New(clock.New(s.holder, s.now), s.world, s.rec, core.Options{
		LookaheadSeconds: tun.LookaheadDelaySeconds,
		Arc:              targeting.Arc{SpreadDegrees: tun.FiringSpreadDegrees},
	})
	return s, nil
}

func (s *Session) Core() *core.Core                  { return s.core }
func (s *Session) Reconciler() *reconcile.Reconciler { return s.rec }
func (s *Session) World() *bounds.World              { return s.world }
func (s *Session) Config() gameconfig.Provider       { return s.holder }
func (s *Session) Batches() uint64                   { return s.batches }
func (s *Session) Rejected() uint64                  { return s.rejected }
func (s *Session) Skipped() uint64                   { return s.skipped }

// Handle validates and applies one raw JSON message. A bad message is
// logged, counted and returned; it never reaches the player and the
// session stays usable.
func (s *Session) Handle(raw []byte) error {
	typ, err := s.validate.Validate(raw)
	if err != nil {
		s.reject(err)
		return err
	}
	switch typ {
	case protocol.TypeConfig:
		err = s.handleConfig(raw)
	case protocol.TypeBatch:
		err = s.handleBatch(raw)
	case protocol.TypeSpawn:
		err = s.handleSpawn(raw)
	case protocol.TypeDestroy:
		err = s.handleDestroy(raw)
	case protocol.TypeReset:
		err = s.handleReset(raw)
	default:
		err = &protocol.Error{Code: protocol.ErrProtoBadRequest, Err: fmt.Errorf("unexpected inbound %s", typ)}
	}
	if err != nil {
		s.reject(err)
	}
	s.core.Tick()
	return err
}

func (s *Session) reject(err error) {
	s.rejected++
	s.log.Printf("drop message (%s): %v", codeFor(err), err)
}

func decode(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &protocol.Error{Code: protocol.ErrProtoBadRequest, Err: err}
	}
	return nil
}

func (s *Session) handleConfig(raw []byte) error {
	var m protocol.ConfigMsg
	if err := decode(raw, &m); err != nil {
		return err
	}
	if err := s.holder.Set(m.Config); err != nil {
		return &protocol.Error{Code: protocol.ErrProtoBadRequest, Err: err}
	}
	s.warnedUnavailable = false
	s.log.Printf("config start=%d turn=%ds world=%d seed=%d", m.Config.StartTime, m.Config.TurnLength(), m.Config.WorldSize, m.Config.PerlinSeed)
	return nil
}

func (s *Session) handleBatch(raw []byte) error {
	var m protocol.BatchMsg
	if err := decode(raw, &m); err != nil {
		return err
	}
	res := s.rec.Apply(toBatch(m))
	s.batches++
	s.reportSkips(res.Skips)
	if s.onResult != nil {
		s.onResult(res)
	}
	return nil
}

func (s *Session) handleSpawn(raw []byte) error {
	var m protocol.SpawnMsg
	if err := decode(raw, &m); err != nil {
		return err
	}
	id, err := entities.ParseID(m.Entity)
	if err != nil {
		return &protocol.Error{Code: protocol.ErrProtoBadRequest, Err: err}
	}
	_, res := s.rec.Spawn(id, entities.Kind(m.Kind), toUpdates("components", m.Components))
	s.reportSkips(res.Skips)
	return nil
}

func (s *Session) handleDestroy(raw []byte) error {
	var m protocol.DestroyMsg
	if err := decode(raw, &m); err != nil {
		return err
	}
	id, err := entities.ParseID(m.Entity)
	if err != nil {
		return &protocol.Error{Code: protocol.ErrProtoBadRequest, Err: err}
	}
	return s.rec.Destroy(id)
}

func (s *Session) handleReset(raw []byte) error {
	var m protocol.ResetMsg
	if err := decode(raw, &m); err != nil {
		return err
	}
	if err := s.rec.Reset(); err != nil {
		return err
	}
	s.core.AbandonCommitment()
	if c, ok := s.holder.Config(); ok {
		s.world.Whirlpools().Reseed(c.PerlinSeed)
	}
	s.log.Printf("reset: %s", m.Reason)
	return nil
}

// Event is one inbound occurrence from the transport. Messages and
// disconnects share a channel so they are handled in arrival order.
type Event struct {
	Raw          []byte
	Disconnected bool
}

// Run handles events in order until in closes or ctx ends, checking the
// config and ticking the core every tick interval. Each event is handled
// to completion before the next is read. tick <= 0 disables ticking.
func (s *Session) Run(ctx context.Context, in <-chan Event, tick time.Duration) error {
	var tc <-chan time.Time
	if tick > 0 {
		t := time.NewTicker(tick)
		defer t.Stop()
		tc = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			if ev.Disconnected {
				s.Disconnected()
				continue
			}
			_ = s.Handle(ev.Raw)
		case <-tc:
			s.CheckConfig()
			s.core.Tick()
		}
	}
}

// Disconnected marks the config unavailable until the next CONFIG.
func (s *Session) Disconnected() {
	s.holder.Clear(s.now())
}

// CheckConfig emits one E_CONFIG_UNAVAILABLE notice once the config has
// been missing longer than the tuned grace period.
func (s *Session) CheckConfig() {
	if _, ok := s.holder.Config(); ok {
		return
	}
	grace := time.Duration(s.tun.ConfigUnavailableWarnSeconds) * time.Second
	if s.warnedUnavailable || s.holder.UnavailableFor(s.now()) < grace {
		return
	}
	s.warnedUnavailable = true
	s.notice(gameconfig.ErrConfigUnavailable)
}

// Reveal verifies the pending commitment before the bytes may be
// submitted. A mismatch abandons the commitment and notifies the player.
func (s *Session) Reveal() ([]byte, error) {
	b, err := s.core.RevealPending()
	if errors.Is(err, commit.ErrCommitmentMismatch) {
		s.core.AbandonCommitment()
		s.notice(err)
	}
	return b, err
}

func (s *Session) reportSkips(skips []reconcile.Skip) {
	for _, sk := range skips {
		s.skipped++
		s.log.Printf("skip entity=%s slot=%d (%s): %v", sk.Ref(), sk.Slot, codeFor(sk.Err), sk.Err)
	}
}

// codeFor maps domain errors onto notice codes.
func codeFor(err error) string {
	switch {
	case errors.Is(err, gameconfig.ErrConfigUnavailable):
		return protocol.ErrConfigUnavailable
	case errors.Is(err, commit.ErrCommitmentMismatch):
		return protocol.ErrCommitmentMismatch
	case errors.Is(err, entities.ErrUnresolvableEntity):
		return protocol.ErrUnresolvableEntity
	case errors.Is(err, actions.ErrUnknownActionTag):
		return protocol.ErrUnknownActionTag
	case errors.Is(err, state.ErrMissingAttribute):
		return protocol.ErrMissingAttribute
	}
	return protocol.CodeOf(err)
}

// notice is reserved for the two conditions the player must see: a
// reveal that fails its own commitment and a config outage.
func (s *Session) notice(err error) {
	if s.onNotice != nil {
		s.onNotice(protocol.NewNotice(codeFor(err), err.Error()))
	}
}
