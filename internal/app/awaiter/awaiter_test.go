package awaiter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type stateEvent struct {
	state string
	path  string
}

// matchState resolves with the output path when the state matches.
func matchState(e stateEvent, expected string) (string, bool) {
	return e.path, e.state == expected
}

func isDone[R any](p *Pending[R]) bool {
	select {
	case <-p.Done():
		return true
	default:
		return false
	}
}

func TestAwaiter_ResolvesOnMatchingEvent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	a := New(matchState, WithClock(clockwork.NewFakeClock()))
	p := a.Arm(context.Background(), "stopped", 5*time.Second)

	assert.False(t, a.OnEvent(stateEvent{state: "stopping"}))
	assert.False(t, isDone(p))
	assert.True(t, a.Armed())

	assert.True(t, a.OnEvent(stateEvent{state: "stopped", path: "/rec/a.mkv"}))
	got, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, "/rec/a.mkv", got)
	assert.False(t, a.Armed())

	// Later events are ignored.
	assert.False(t, a.OnEvent(stateEvent{state: "stopped", path: "/rec/b.mkv"}))
	got, err = a.Wait()
	require.NoError(t, err)
	assert.Equal(t, "/rec/a.mkv", got)
}

func TestAwaiter_TimeoutNotBeforeDeadline(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	clock := clockwork.NewFakeClock()
	a := New(matchState, WithClock(clock))
	start := clock.Now()
	p := a.Arm(context.Background(), "stopped", 5000*time.Millisecond)

	clock.Advance(4999 * time.Millisecond)
	assert.False(t, isDone(p), "resolved before the deadline")

	clock.Advance(time.Millisecond)
	_, err := p.Wait()
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, clock.Since(start), 5000*time.Millisecond)

	// A late match does not override the timeout.
	assert.False(t, a.OnEvent(stateEvent{state: "stopped"}))
	_, err = a.Wait()
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestAwaiter_ContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	clock := clockwork.NewFakeClock()
	a := New(matchState, WithClock(clock))
	ctx, cancel := context.WithCancel(context.Background())
	p := a.Arm(ctx, "stopped", 5*time.Second)

	cancel()
	_, err := p.Wait()
	assert.ErrorIs(t, err, ErrCancelled)

	// The timer was released with the wait.
	clock.Advance(10 * time.Second)
	_, err = p.Wait()
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestAwaiter_AlreadyCancelledContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	a := New(matchState, WithClock(clockwork.NewFakeClock()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Arm(ctx, "stopped", 0).Wait()
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestAwaiter_WaitWithoutArm(t *testing.T) {
	a := New(matchState)
	_, err := a.Wait()
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.False(t, a.Resolve("x"))
	assert.False(t, a.Cancel())
	assert.False(t, a.OnEvent(stateEvent{state: "stopped"}))
	assert.Zero(t, a.Generation())
}

func TestAwaiter_RearmSupersedesPreviousWait(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	a := New(matchState, WithClock(clockwork.NewFakeClock()))
	first := a.Arm(context.Background(), "started", time.Second)
	second := a.Arm(context.Background(), "stopped", time.Second)

	_, err := first.Wait()
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, first.Generation()+1, second.Generation())

	// An event observed under the first generation must not resolve the second.
	assert.False(t, a.OnEventAt(first.Generation(), stateEvent{state: "stopped"}))
	assert.False(t, isDone(second))

	assert.True(t, a.OnEventAt(second.Generation(), stateEvent{state: "stopped", path: "p"}))
	got, err := second.Wait()
	require.NoError(t, err)
	assert.Equal(t, "p", got)
}

func TestAwaiter_FirstResolutionWins(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	clock := clockwork.NewFakeClock()
	a := New(matchState, WithClock(clock))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := a.Arm(ctx, "started", time.Second)

	assert.True(t, a.Resolve("already there"))
	assert.False(t, a.Cancel())
	assert.False(t, a.OnEvent(stateEvent{state: "started", path: "late"}))
	cancel()
	clock.Advance(2 * time.Second)

	got, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, "already there", got)
}

func TestAwaiter_ConcurrentEventsResolveOnce(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	a := New(Equal[int], WithClock(clockwork.NewFakeClock()))
	p := a.Arm(context.Background(), 7, 0)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if a.OnEvent(7) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	got, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestAwaiter_ErrorsAreDistinct(t *testing.T) {
	assert.False(t, errors.Is(ErrTimeout, ErrCancelled))
	assert.False(t, errors.Is(ErrCancelled, ErrInvalidState))
}

func TestAwaiter_ResolveAtIgnoresNewerWait(t *testing.T) {
	a := New(matchState, WithClock(clockwork.NewFakeClock()))
	first := a.Arm(context.Background(), "stopped", 0)
	second := a.Arm(context.Background(), "stopped", 0)

	assert.False(t, a.CancelAt(first.Generation()))
	assert.False(t, a.ResolveAt(first.Generation(), "/old.mkv"))
	assert.False(t, isDone(second))

	assert.True(t, a.ResolveAt(second.Generation(), "/new.mkv"))
	path, err := second.Wait()
	require.NoError(t, err)
	assert.Equal(t, "/new.mkv", path)

	third := a.Arm(context.Background(), "stopped", 0)
	assert.True(t, a.CancelAt(third.Generation()))
	_, err = third.Wait()
	assert.ErrorIs(t, err, ErrCancelled)
}
