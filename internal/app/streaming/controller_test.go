package streaming

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/osa030/obsflow/internal/app/awaiter"
	"github.com/osa030/obsflow/internal/domain/obs"
	"github.com/osa030/obsflow/internal/domain/obs/obstest"
	"github.com/osa030/obsflow/internal/infra/config"
)

func newTestController(t *testing.T) (*Controller, *obstest.Client, *clockwork.FakeClock) {
	t.Helper()
	client := obstest.NewClient()
	clock := clockwork.NewFakeClock()
	c := NewController(obstest.Connected(client), config.Static{Config: config.Default()}, WithClock(clock))
	return c, client, clock
}

func TestController_Start(t *testing.T) {
	tests := []struct {
		name   string
		events []obs.OutputState
		wantOK bool
	}{
		{name: "started", events: []obs.OutputState{obs.OutputStarting, obs.OutputStarted}, wantOK: true},
		{name: "failed to start", events: []obs.OutputState{obs.OutputStarting, obs.OutputStopping, obs.OutputStopped}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, client, _ := newTestController(t)
			client.OnStartStream = func(ctx context.Context) error {
				for _, state := range tt.events {
					c.HandleStreamStateChanged(obs.StreamStateChanged{State: state})
				}
				return nil
			}

			ok, err := c.Start(context.Background())

			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.events[len(tt.events)-1], c.State())
		})
	}
}

func TestController_Stop(t *testing.T) {
	c, client, _ := newTestController(t)
	c.HandleStreamStateChanged(obs.StreamStateChanged{State: obs.OutputStarted})
	client.OnStopStream = func(ctx context.Context) error {
		c.HandleStreamStateChanged(obs.StreamStateChanged{State: obs.OutputStopping})
		c.HandleStreamStateChanged(obs.StreamStateChanged{State: obs.OutputStopped})
		return nil
	}

	ok, err := c.Stop(context.Background())

	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, c.Streaming())
}

func TestController_BenignFailures(t *testing.T) {
	c, client, _ := newTestController(t)
	client.Fail("StartStream", obs.ErrOutputRunning)
	client.Fail("StopStream", obs.ErrOutputNotActive)

	ok, err := c.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Stop(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestController_RequestFailure(t *testing.T) {
	c, client, _ := newTestController(t)
	client.Fail("StartStream", errors.New("boom"))

	ok, err := c.Start(context.Background())

	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, obs.OutputStopped, c.State())
}

func TestController_NotConnected(t *testing.T) {
	c := NewController(obstest.Disconnected(), config.Static{Config: config.Default()})

	ok, err := c.Start(context.Background())

	assert.False(t, ok)
	assert.True(t, errors.Is(err, obs.ErrNotConnected))
}

func TestController_Timeout(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c, _, clock := newTestController(t)
	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := c.Start(context.Background())
		done <- result{ok, err}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(10 * time.Second)

	r := <-done
	assert.False(t, r.ok)
	assert.True(t, errors.Is(r.err, awaiter.ErrTimeout))
}

func TestController_ConcurrentStartsShareRequest(t *testing.T) {
	c, client, _ := newTestController(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	client.OnStartStream = func(ctx context.Context) error {
		close(entered)
		<-release
		c.HandleStreamStateChanged(obs.StreamStateChanged{State: obs.OutputStarted})
		return nil
	}

	results := make(chan bool, 2)
	go func() {
		ok, _ := c.Start(context.Background())
		results <- ok
	}()
	<-entered
	go func() {
		ok, _ := c.Start(context.Background())
		results <- ok
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)

	assert.True(t, <-results)
	assert.True(t, <-results)
	assert.Equal(t, 1, client.Count("StartStream"))
}

func TestController_SyncAndPoll(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c, client, clock := newTestController(t)
	client.SetStreamStatus(obs.StreamStatus{Active: true, Duration: time.Minute, Bytes: 1024})

	require.NoError(t, c.SyncStatus(context.Background()))
	assert.True(t, c.Streaming())
	assert.Equal(t, int64(1024), c.Status().Bytes)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Poll(ctx, 2*time.Second)
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))

	client.SetStreamStatus(obs.StreamStatus{Active: true, Duration: 2 * time.Minute, Bytes: 4096, SkippedFrames: 3})
	clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool { return c.Status().Bytes == 4096 }, time.Second, time.Millisecond)
	assert.Equal(t, 3, c.Status().SkippedFrames)
	assert.True(t, c.Streaming(), "polling never changes the observed state")

	cancel()
	<-done

	c.HandleDisconnect()
	assert.Equal(t, obs.OutputStopped, c.State())
	assert.True(t, c.Status().UpdatedAt.IsZero())
}
