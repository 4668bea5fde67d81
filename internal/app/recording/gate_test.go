package recording

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/osa030/obsflow/internal/domain/obs"
	"github.com/osa030/obsflow/internal/infra/config"
)

func songStartFixture(t *testing.T) *fixture {
	return newFixture(t, func(cfg *config.Config) {
		cfg.Recording.StartOption = "SongStart"
		cfg.Recording.SongStartDelaySec = 2
	})
}

func TestWaitSongStart_ReadyAfterDelay(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := songStartFixture(t)
	done := make(chan GateResult, 1)
	go func() { done <- f.session.WaitSongStart(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))

	// Recording reaches Started one second after the gate opened.
	f.clock.Advance(time.Second)
	f.event(obs.OutputStarted, "/rec/a.mkv")

	// Deadline plus the song start delay timer.
	require.NoError(t, f.clock.BlockUntilContext(ctx, 2))
	f.clock.Advance(1999 * time.Millisecond)
	select {
	case r := <-done:
		t.Fatalf("gate resolved early: %s", r)
	case <-time.After(20 * time.Millisecond):
	}

	f.clock.Advance(time.Millisecond)
	assert.Equal(t, GateReady, <-done)
}

func TestWaitSongStart_TimesOut(t *testing.T) {
	f := songStartFixture(t)
	done := make(chan GateResult, 1)
	go func() { done <- f.session.WaitSongStart(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))

	f.clock.Advance(7*time.Second - time.Millisecond)
	select {
	case r := <-done:
		t.Fatalf("gate resolved early: %s", r)
	case <-time.After(20 * time.Millisecond):
	}

	f.clock.Advance(time.Millisecond)
	r := <-done
	assert.Equal(t, GateTimedOut, r)
	assert.True(t, r.Proceed())
}

func TestWaitSongStart_AlreadyRecording(t *testing.T) {
	f := songStartFixture(t)
	f.event(obs.OutputStarted, "/rec/a.mkv")
	f.clock.Advance(3 * time.Second)

	assert.Equal(t, GateReady, f.session.WaitSongStart(context.Background()))
}

func TestWaitSongStart_Cancelled(t *testing.T) {
	f := songStartFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan GateResult, 1)
	go func() { done <- f.session.WaitSongStart(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, f.clock.BlockUntilContext(waitCtx, 1))
	cancel()

	r := <-done
	assert.Equal(t, GateCancelled, r)
	assert.False(t, r.Proceed())
}

func TestWaitSongStart_Skipped(t *testing.T) {
	f := newFixture(t, nil)
	r := f.session.WaitSongStart(context.Background())
	assert.Equal(t, GateSkipped, r)
	assert.True(t, r.Proceed())
}

func TestWaitSongStart_ConcurrentGates(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := songStartFixture(t)
	done := make(chan GateResult, 2)
	for range 2 {
		go func() { done <- f.session.WaitSongStart(context.Background()) }()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 2))

	// Both gates stay suspended on their own awaiter without re-arming.
	require.Eventually(t, func() bool {
		f.session.mu.Lock()
		defer f.session.mu.Unlock()
		return len(f.session.gates) == 2
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	f.session.mu.Lock()
	for id, w := range f.session.gates {
		assert.Equal(t, uint64(1), w.Generation(), "gate %d re-armed", id)
	}
	f.session.mu.Unlock()

	f.event(obs.OutputStarted, "/rec/a.mkv")
	require.NoError(t, f.clock.BlockUntilContext(ctx, 4))
	f.clock.Advance(2 * time.Second)

	assert.Equal(t, GateReady, <-done)
	assert.Equal(t, GateReady, <-done)

	f.session.mu.Lock()
	assert.Empty(t, f.session.gates)
	f.session.mu.Unlock()
}
