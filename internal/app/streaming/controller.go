// Package streaming provides the streaming controller.
package streaming

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/osa030/obsflow/internal/app/awaiter"
	"github.com/osa030/obsflow/internal/domain/obs"
	"github.com/osa030/obsflow/internal/infra/config"
	"github.com/osa030/obsflow/internal/infra/metrics"
)

type outcomeAwaiter = awaiter.Awaiter[obs.OutputState, struct{}, bool]

// matchStart resolves a start wait: true once started, false once the
// output went the other way.
func matchStart(state obs.OutputState, _ struct{}) (bool, bool) {
	switch state {
	case obs.OutputStarted:
		return true, true
	case obs.OutputStopping, obs.OutputStopped:
		return false, true
	default:
		return false, false
	}
}

// matchStop resolves a stop wait: true once stopped, false once the
// output went the other way.
func matchStop(state obs.OutputState, _ struct{}) (bool, bool) {
	switch state {
	case obs.OutputStopped:
		return true, true
	case obs.OutputStarting, obs.OutputStarted:
		return false, true
	default:
		return false, false
	}
}

// Status is the last polled streaming status.
type Status struct {
	State         obs.OutputState
	Reconnecting  bool
	Duration      time.Duration
	Bytes         int64
	SkippedFrames int
	TotalFrames   int
	UpdatedAt     time.Time // Zero until the first poll
}

// Controller starts and stops the streaming output.
// State is only ever changed by observed events.
type Controller struct {
	obs      obs.ClientProvider
	settings config.Provider
	clock    clockwork.Clock

	mu     sync.RWMutex
	state  obs.OutputState
	status Status

	startWait *outcomeAwaiter
	stopWait  *outcomeAwaiter
	flight    singleflight.Group
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock used for timeouts and polling.
func WithClock(c clockwork.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// NewController creates a streaming controller.
func NewController(client obs.ClientProvider, settings config.Provider, opts ...Option) *Controller {
	c := &Controller{
		obs:      client,
		settings: settings,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.startWait = awaiter.New(matchStart, awaiter.WithClock(c.clock), awaiter.WithName("stream_start"))
	c.stopWait = awaiter.New(matchStop, awaiter.WithClock(c.clock), awaiter.WithName("stream_stop"))
	return c
}

// State returns the last observed streaming state.
func (c *Controller) State() obs.OutputState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Streaming reports whether the stream is live.
func (c *Controller) Streaming() bool {
	return c.State() == obs.OutputStarted
}

// Status returns the last polled status with the observed state.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := c.status
	st.State = c.state
	return st
}

// Start starts streaming and waits until OBS reports the outcome.
// Concurrent calls share one request.
func (c *Controller) Start(ctx context.Context) (bool, error) {
	v, err, shared := c.flight.Do("start", func() (any, error) {
		return c.run(ctx, "start", c.startWait, func(ctx context.Context, client obs.Client) error {
			return client.StartStream(ctx)
		}, obs.ErrOutputRunning)
	})
	if shared {
		zlog.Debug().Msg("stream start joined a request in flight")
	}
	ok, _ := v.(bool)
	return ok, err
}

// Stop stops streaming and waits until OBS reports the outcome.
// Concurrent calls share one request.
func (c *Controller) Stop(ctx context.Context) (bool, error) {
	v, err, shared := c.flight.Do("stop", func() (any, error) {
		return c.run(ctx, "stop", c.stopWait, func(ctx context.Context, client obs.Client) error {
			return client.StopStream(ctx)
		}, obs.ErrOutputNotActive)
	})
	if shared {
		zlog.Debug().Msg("stream stop joined a request in flight")
	}
	ok, _ := v.(bool)
	return ok, err
}

// run issues request and waits on w. A benign error means the output is
// already where the request would take it.
func (c *Controller) run(ctx context.Context, action string, w *outcomeAwaiter, request func(context.Context, obs.Client) error, benign error) (bool, error) {
	client, err := c.obs.Client()
	if err != nil {
		zlog.Error().Err(err).Msgf("unable to %s streaming", action)
		return false, err
	}

	timeout := c.settings.Get().Streaming.Timeout()
	pending := w.Arm(ctx, struct{}{}, timeout)
	zlog.Info().Msgf("%s streaming", verb(action))
	if err := request(ctx, client); err != nil {
		w.Cancel()
		switch {
		case errors.Is(err, benign):
			zlog.Debug().Msgf("stream %s skipped: %v", action, err)
			return true, nil
		case ctx.Err() != nil:
			zlog.Debug().Msgf("stream %s cancelled", action)
			return false, ctx.Err()
		default:
			zlog.Error().Err(err).Msgf("error trying to %s streaming", action)
			return false, errors.Wrapf(err, "failed to %s streaming", action)
		}
	}

	ok, err := pending.Wait()
	switch {
	case err == nil:
		zlog.Info().Msgf("stream %s finished: success=%t", action, ok)
		return ok, nil
	case errors.Is(err, awaiter.ErrCancelled):
		zlog.Debug().Msgf("stream %s wait cancelled", action)
		return false, err
	default:
		zlog.Warn().Err(err).Msgf("stream %s not confirmed: timeout=%v", action, timeout)
		return false, errors.Wrapf(err, "stream %s not confirmed", action)
	}
}

func verb(action string) string {
	if action == "start" {
		return "starting"
	}
	return "stopping"
}

// HandleStreamStateChanged applies an observed streaming state change.
func (c *Controller) HandleStreamStateChanged(ev obs.StreamStateChanged) {
	startGen := c.startWait.Generation()
	stopGen := c.stopWait.Generation()

	c.mu.Lock()
	prev := c.state
	c.state = ev.State
	c.mu.Unlock()

	metrics.OutputState.WithLabelValues("stream").Set(float64(ev.State))
	zlog.Info().Msgf("streaming state changed: %s -> %s", prev, ev.State)

	c.startWait.OnEventAt(startGen, ev.State)
	c.stopWait.OnEventAt(stopGen, ev.State)
}

// HandleDisconnect forgets the streaming state and ends pending waits.
func (c *Controller) HandleDisconnect() {
	c.mu.Lock()
	c.state = obs.OutputStopped
	c.status = Status{}
	c.mu.Unlock()
	c.startWait.Cancel()
	c.stopWait.Cancel()
}

// SyncStatus queries the streaming status and adopts its state. It is
// used right after connecting, before any event was observed.
func (c *Controller) SyncStatus(ctx context.Context) error {
	st, err := c.fetch(ctx)
	if err != nil {
		return err
	}
	state := obs.OutputStopped
	if st.Active {
		state = obs.OutputStarted
	}
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	metrics.OutputState.WithLabelValues("stream").Set(float64(state))
	zlog.Info().Msgf("streaming status synced: state=%s", state)
	return nil
}

// Poll refreshes the status snapshot every interval until ctx is done.
func (c *Controller) Poll(ctx context.Context, interval time.Duration) {
	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if _, err := c.fetch(ctx); err != nil && ctx.Err() == nil {
				zlog.Debug().Err(err).Msg("stream status poll failed")
			}
		}
	}
}

func (c *Controller) fetch(ctx context.Context) (obs.StreamStatus, error) {
	client, err := c.obs.Client()
	if err != nil {
		return obs.StreamStatus{}, err
	}
	st, err := client.GetStreamStatus(ctx)
	if err != nil {
		return obs.StreamStatus{}, errors.Wrap(err, "failed to get stream status")
	}
	c.mu.Lock()
	c.status = Status{
		Reconnecting:  st.Reconnecting,
		Duration:      st.Duration,
		Bytes:         st.Bytes,
		SkippedFrames: st.SkippedFrames,
		TotalFrames:   st.TotalFrames,
		UpdatedAt:     c.clock.Now(),
	}
	c.mu.Unlock()
	return st, nil
}
