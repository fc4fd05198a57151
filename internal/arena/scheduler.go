package arena

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"interactive-gym/internal/game"

	"github.com/rs/zerolog/log"
)

// reasonClosed means the loop stopped because the session was already closed
// elsewhere.
const reasonClosed = ""

func (c *Coordinator) runGame(ctx context.Context, e *gameEntry) {
	defer c.loops.Done()
	defer close(e.done)
	reason := ReasonSessionError
	func() {
		defer func() {
			if r := recover(); r != nil {
				metricSessionErrors.Add(1)
				log.Error().
					Str("session_uuid", e.session.UUID()).
					Interface("panic", r).
					Str("stack", string(debug.Stack())).
					Msg("game_loop_panic")
				reason = ReasonSessionError
			}
		}()
		reason = c.play(ctx, e)
	}()
	if reason == reasonClosed {
		reason = ReasonComplete
	}
	c.finish(e, reason)
}

// pacer yields tick deadlines on a fixed grid anchored at start. A stall of
// more than one period re-anchors the grid so lost ticks are not replayed.
type pacer struct {
	period time.Duration
	start  time.Time
	n      int64
}

func newPacer(period time.Duration, now time.Time) *pacer {
	return &pacer{period: period, start: now}
}

func (p *pacer) next(now time.Time) time.Time {
	p.n++
	deadline := p.start.Add(time.Duration(p.n) * p.period)
	if now.Sub(deadline) > p.period {
		metricTickOverrun.Add(1)
		p.reanchor(now)
		return now
	}
	return deadline
}

func (p *pacer) reanchor(now time.Time) {
	p.start = now
	p.n = 0
}

func (c *Coordinator) play(ctx context.Context, e *gameEntry) string {
	s := e.session
	logger := log.With().Str("session_uuid", s.UUID()).Int("slot_id", e.slotID).Logger()

	if err := s.Reset(c.episodeSeed()); err != nil {
		if errors.Is(err, game.ErrAlreadyTornDown) {
			return reasonClosed
		}
		metricSessionErrors.Add(1)
		logger.Error().Err(err).Msg("env_reset_failed")
		return ReasonSessionError
	}
	c.hooks.OnEpisodeStart(s)
	if err := c.broadcastFrame(s); err != nil {
		logger.Error().Err(err).Msg("render_failed")
		return ReasonSessionError
	}
	if c.cfg.InputMode == InputPressedKeys {
		c.deps.Transport.Broadcast(s.UUID(), EventRequestPressedKeys, EmptyPayload{})
	}

	pace := newPacer(c.cfg.period(), c.now())
	for {
		c.hooks.OnGameTickStart(s)
		outcome, err := s.Tick(ctx)
		if err != nil {
			if errors.Is(err, game.ErrNotActive) {
				return reasonClosed
			}
			metricSessionErrors.Add(1)
			logger.Error().Err(err).Msg("game_tick_failed")
			return ReasonSessionError
		}
		metricTicks.Add(1)
		c.hooks.OnGameTickEnd(s)
		if err := c.broadcastFrame(s); err != nil {
			metricSessionErrors.Add(1)
			logger.Error().Err(err).Msg("render_failed")
			return ReasonSessionError
		}
		if outcome == game.TickSessionDone {
			c.hooks.OnEpisodeEnd(s)
			return ReasonComplete
		}
		if c.cfg.InputMode == InputPressedKeys {
			c.deps.Transport.Broadcast(s.UUID(), EventRequestPressedKeys, EmptyPayload{})
		}
		if !sleepUntil(ctx, c.now, pace.next(c.now())) {
			return reasonClosed
		}

		if outcome == game.TickEpisodeBoundary {
			c.hooks.OnEpisodeEnd(s)
			if reason, ok := c.resetHandshake(ctx, s); !ok {
				if reason == ReasonSessionError || reason == ReasonResetTimeout {
					logger.Warn().Str("reason", reason).Msg("episode_reset_aborted")
				}
				return reason
			}
			pace.reanchor(c.now())
		}
	}
}

// resetHandshake pauses the session until every bound participant has
// acknowledged game_reset, then starts the next episode.
func (c *Coordinator) resetHandshake(ctx context.Context, s *game.Session) (string, bool) {
	if c.cfg.ResetFreeze > 0 && !sleepFor(ctx, c.cfg.ResetFreeze) {
		return reasonClosed, false
	}
	barrier := s.ArmResetBarrier()
	c.deps.Transport.Broadcast(s.UUID(), EventGameReset, GameResetPayload{
		Timeout: c.cfg.ResetTimeout.Milliseconds(),
		Config:  c.cfg.SceneMetadata,
		Room:    s.UUID(),
	})

	waitCtx := ctx
	if c.cfg.ResetAckDeadline > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.cfg.ResetAckDeadline)
		defer cancel()
	}
	if err := barrier.Wait(waitCtx); err != nil {
		switch {
		case ctx.Err() != nil, errors.Is(err, game.ErrBarrierCancelled):
			return reasonClosed, false
		case errors.Is(err, context.DeadlineExceeded):
			log.Warn().
				Str("session_uuid", s.UUID()).
				Strs("outstanding", barrier.Outstanding()).
				Msg("reset_ack_timeout")
			return ReasonResetTimeout, false
		}
		return ReasonSessionError, false
	}

	if err := s.Reset(c.episodeSeed()); err != nil {
		if errors.Is(err, game.ErrAlreadyTornDown) {
			return reasonClosed, false
		}
		metricSessionErrors.Add(1)
		log.Error().Err(err).Str("session_uuid", s.UUID()).Msg("env_reset_failed")
		return ReasonSessionError, false
	}
	c.hooks.OnEpisodeStart(s)
	if err := c.broadcastFrame(s); err != nil {
		metricSessionErrors.Add(1)
		log.Error().Err(err).Str("session_uuid", s.UUID()).Msg("render_failed")
		return ReasonSessionError, false
	}
	if !sleepFor(ctx, c.cfg.period()) {
		return reasonClosed, false
	}
	return "", true
}

func (c *Coordinator) broadcastFrame(s *game.Session) error {
	f, err := s.Render()
	if err != nil {
		return err
	}
	c.deps.Transport.Broadcast(s.UUID(), EventEnvironmentState, EnvironmentStatePayload{
		GameStateObjects: f.State,
		GameImageBinary:  f.Image,
		Step:             f.Step,
		HUDText:          f.HUD,
	})
	return nil
}

func sleepUntil(ctx context.Context, now func() time.Time, deadline time.Time) bool {
	return sleepFor(ctx, deadline.Sub(now()))
}

func sleepFor(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
