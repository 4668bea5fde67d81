package recording

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/obsflow/internal/app/awaiter"
	"github.com/osa030/obsflow/internal/domain/obs"
)

// songStartGateBase is the part of the song start gate timeout that does
// not depend on the configured delay.
const songStartGateBase = 5 * time.Second

// GateResult is the outcome of the song start gate.
type GateResult int

const (
	GateSkipped   GateResult = iota // Gate not used for the current start option
	GateReady                       // Recording is running and the delay elapsed
	GateTimedOut                    // Deadline reached, the song starts anyway
	GateCancelled                   // Caller gave up
)

// String returns the string representation of the result.
func (r GateResult) String() string {
	switch r {
	case GateSkipped:
		return "skipped"
	case GateReady:
		return "ready"
	case GateTimedOut:
		return "timed_out"
	case GateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Proceed reports whether the host should start the song.
func (r GateResult) Proceed() bool {
	return r != GateCancelled
}

// WaitSongStart holds the song start until recording has been running for
// the configured song start delay. It gives up after 5s plus that delay
// and lets the song start anyway.
func (s *Session) WaitSongStart(ctx context.Context) GateResult {
	cfg := s.settings.Get().Recording
	if ParseStartOption(cfg.StartOption) != StartSongStart {
		return GateSkipped
	}
	delay := cfg.SongStartDelay()
	timeout := songStartGateBase + delay

	deadline := s.clock.NewTimer(timeout)
	defer deadline.Stop()

	// Each gate waits on its own awaiter so concurrent gates never re-arm
	// each other.
	w := awaiter.New(awaiter.Equal[obs.OutputState], awaiter.WithClock(s.clock), awaiter.WithName("record_started"))
	pending := w.Arm(ctx, obs.OutputStarted, 0)

	s.mu.Lock()
	id := s.addGateLocked(w)
	state, startedAt := s.state, s.recordStartTime
	s.mu.Unlock()
	defer s.removeGate(id)

	for state != obs.OutputStarted {
		select {
		case <-pending.Done():
		case <-deadline.Chan():
			w.Cancel()
			zlog.Warn().Msgf("song start gate timed out, starting anyway: timeout=%v", timeout)
			return GateTimedOut
		case <-ctx.Done():
			w.Cancel()
			return GateCancelled
		}
		if _, err := pending.Wait(); err != nil {
			return GateCancelled
		}

		// Re-arm before reading the state so a Started event in between is not lost.
		pending = w.Arm(ctx, obs.OutputStarted, 0)
		s.mu.Lock()
		state, startedAt = s.state, s.recordStartTime
		s.mu.Unlock()
	}
	w.Cancel()
	return s.waitDelay(ctx, deadline, startedAt.Add(delay).Sub(s.clock.Now()))
}

func (s *Session) addGateLocked(w *stateAwaiter) uint64 {
	s.nextGate++
	s.gates[s.nextGate] = w
	return s.nextGate
}

func (s *Session) removeGate(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.gates, id)
}

func (s *Session) waitDelay(ctx context.Context, deadline clockwork.Timer, wait time.Duration) GateResult {
	if wait <= 0 {
		return GateReady
	}
	t := s.clock.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.Chan():
		return GateReady
	case <-deadline.Chan():
		zlog.Warn().Msg("song start gate timed out during start delay, starting anyway")
		return GateTimedOut
	case <-ctx.Done():
		return GateCancelled
	}
}
