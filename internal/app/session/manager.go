// Package session provides the session manager: it owns the OBS
// connection and routes its events to the recording, scene and streaming
// components.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/obsflow/internal/app/notification"
	"github.com/osa030/obsflow/internal/app/recording"
	"github.com/osa030/obsflow/internal/app/scene"
	"github.com/osa030/obsflow/internal/app/scope"
	"github.com/osa030/obsflow/internal/app/session/state"
	"github.com/osa030/obsflow/internal/app/streaming"
	"github.com/osa030/obsflow/internal/domain/obs"
	"github.com/osa030/obsflow/internal/infra/config"
	"github.com/osa030/obsflow/internal/infra/metrics"
)

var (
	ErrConnectExhausted = errors.New("could not connect to OBS")
	ErrDisabled         = errors.New("session manager is disabled")
)

// requestTimeout bounds the status requests issued right after connecting.
const requestTimeout = 5 * time.Second

// Manager manages the OBS connection and the components driven by it.
type Manager struct {
	mu sync.RWMutex

	// Configuration
	settings config.Provider
	dialer   obs.Dialer
	clock    clockwork.Clock

	// Connection
	conn       obs.Conn
	connCancel context.CancelFunc
	stateMgr   *state.Manager

	// Components
	recording    *recording.Session
	scenes       *scene.Sequencer
	streaming    *streaming.Controller
	notification *notification.Manager

	connectScope scope.Cell

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Manager.
type Option func(*options)

type options struct {
	clock   clockwork.Clock
	renamer *recording.Renamer
}

// WithClock sets the clock of the manager and its components.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRenamer replaces the renamer of finished recordings.
func WithRenamer(r *recording.Renamer) Option {
	return func(o *options) { o.renamer = r }
}

// NewManager creates a new session manager. Components receive the
// manager as their client provider.
func NewManager(settings config.Provider, dialer obs.Dialer, namer recording.FileNamer, opts ...Option) *Manager {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		settings:     settings,
		dialer:       dialer,
		clock:        o.clock,
		stateMgr:     state.New(),
		notification: notification.NewManager(),
		ctx:          ctx,
		cancel:       cancel,
	}

	recOpts := []recording.Option{recording.WithClock(o.clock)}
	if o.renamer != nil {
		recOpts = append(recOpts, recording.WithRenamer(o.renamer))
	}
	m.recording = recording.NewSession(m, settings, namer, recOpts...)
	m.scenes = scene.NewSequencer(m, settings, scene.WithClock(o.clock))
	m.streaming = streaming.NewController(m, settings, streaming.WithClock(o.clock))

	m.scenes.Subscribe(m.recording.OnSceneStage)
	m.scenes.Subscribe(func(ev *scene.StageEvent) {
		m.notification.Broadcast(notification.Stage(ev.Stage.String(), int(ev.Stage)))
	})

	metrics.SetConnected(false)
	return m
}

// Client returns the client of the current connection.
func (m *Manager) Client() (obs.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn == nil {
		return nil, obs.ErrNotConnected
	}
	return m.conn, nil
}

// Connected reports whether OBS is connected.
func (m *Manager) Connected() bool {
	return m.stateMgr.IsConnected()
}

// Recording returns the recording session.
func (m *Manager) Recording() *recording.Session {
	return m.recording
}

// Scenes returns the scene sequencer.
func (m *Manager) Scenes() *scene.Sequencer {
	return m.scenes
}

// Streaming returns the streaming controller.
func (m *Manager) Streaming() *streaming.Controller {
	return m.streaming
}

// GetNotificationManager returns the notification manager.
func (m *Manager) GetNotificationManager() *notification.Manager {
	return m.notification
}

// Enable connects to OBS. A previous connect loop is cancelled. It gives
// up after the configured number of attempts with ErrConnectExhausted;
// an empty address or rejected credentials end it right away.
func (m *Manager) Enable(ctx context.Context) error {
	if m.ctx.Err() != nil {
		return ErrDisabled
	}
	m.stateMgr.SetEnabled(true)

	// The new scope is current before the old loop is cancelled.
	m.connectScope.Replace(m.ctx)
	linked, release := m.connectScope.Link(ctx)
	defer release()

	return m.connectLoop(linked)
}

// Disable cancels connecting and closes the connection.
func (m *Manager) Disable() {
	m.stateMgr.SetEnabled(false)
	m.connectScope.Cancel()

	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil {
		return
	}
	zlog.Info().Msg("disconnecting from OBS")
	if err := conn.Close(); err != nil {
		zlog.Debug().Err(err).Msg("error closing OBS connection")
	}
	m.detach(conn, false)
}

// Close disables the manager and waits for background work.
func (m *Manager) Close() {
	m.Disable()
	m.cancel()
	m.wg.Wait()
	m.scenes.Close()
	m.recording.Close()
	m.notification.Close()
}

func (m *Manager) connectLoop(ctx context.Context) error {
	cfg := m.settings.Get().OBS
	if cfg.Address == "" {
		zlog.Error().Msg("OBS address is empty, not connecting")
		m.stateMgr.SetPhase(state.PhaseDisconnected)
		return obs.ErrEmptyAddress
	}

	m.stateMgr.SetPhase(state.PhaseConnecting)
	for attempt := 1; attempt <= cfg.ConnectAttempts; attempt++ {
		if m.Connected() {
			return nil
		}
		if !m.stateMgr.IsEnabled() {
			return ErrDisabled
		}

		zlog.Info().Msgf("connecting to OBS: address=%s, attempt=%d/%d", cfg.Address, attempt, cfg.ConnectAttempts)
		conn, err := m.dialer.Dial(ctx, cfg.Address, cfg.Password, m.handleEvent)
		m.stateMgr.RecordAttempt(attempt, err)
		if err == nil {
			metrics.ConnectAttempts.WithLabelValues("ok").Inc()
			m.attach(conn)
			return nil
		}
		metrics.ConnectAttempts.WithLabelValues("error").Inc()

		switch {
		case ctx.Err() != nil:
			zlog.Debug().Msg("connecting to OBS cancelled")
			return ctx.Err()
		case errors.Is(err, obs.ErrAuthFailed):
			zlog.Error().Err(err).Msg("OBS rejected the password, not retrying")
			m.stateMgr.SetPhase(state.PhaseDisconnected)
			return err
		}

		if attempt == cfg.ConnectAttempts {
			break
		}
		delay := cfg.ConnectRetryDelay()
		zlog.Warn().Err(err).Msgf("failed to connect to OBS: attempt=%d/%d, retry_in=%v", attempt, cfg.ConnectAttempts, delay)
		if err := scope.Sleep(ctx, m.clock, delay); err != nil {
			zlog.Debug().Msg("connecting to OBS cancelled")
			return err
		}
	}

	zlog.Warn().Msgf("could not connect to OBS after %d attempts: address=%s", cfg.ConnectAttempts, cfg.Address)
	m.stateMgr.SetPhase(state.PhaseDisconnected)
	return ErrConnectExhausted
}

// attach installs conn as the current connection.
func (m *Manager) attach(conn obs.Conn) {
	connCtx, connCancel := context.WithCancel(m.ctx)

	m.mu.Lock()
	old := m.conn
	m.conn = conn
	m.connCancel = connCancel
	m.mu.Unlock()
	if old != nil && old != conn {
		_ = old.Close()
	}

	m.setConnected(true)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case <-conn.Done():
			zlog.Warn().Msg("OBS connection lost")
			m.detach(conn, true)
		case <-connCtx.Done():
		}
	}()

	m.onConnect(connCtx)
}

// detach forgets conn if it is still current.
func (m *Manager) detach(conn obs.Conn, unexpected bool) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	cancel := m.connCancel
	m.connCancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.scenes.HandleDisconnect()
	m.streaming.HandleDisconnect()
	m.setConnected(false)

	if !unexpected || !m.stateMgr.IsEnabled() || !m.settings.Get().OBS.AutoReconnect {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		linked, release := m.connectScope.Link(m.ctx)
		defer release()
		if err := m.connectLoop(linked); err != nil {
			zlog.Warn().Err(err).Msg("reconnecting to OBS failed")
		}
	}()
}

// setConnected raises the connection notification once per transition.
func (m *Manager) setConnected(connected bool) {
	if !m.stateMgr.SetConnected(connected, m.clock.Now()) {
		return
	}
	metrics.SetConnected(connected)
	zlog.Info().Msgf("OBS connection changed: connected=%t", connected)
	m.notification.Broadcast(notification.Connection(connected))
}

// onConnect syncs the components with OBS and starts status polling.
func (m *Manager) onConnect(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	m.scenes.UpdateScenes(reqCtx, true)
	m.notification.Broadcast(notification.SceneList(m.scenes.AvailableScenes()))
	if current := m.scenes.CurrentScene(); current != "" {
		m.notification.Broadcast(notification.Scene(current))
	}

	m.syncRecording(reqCtx)
	if err := m.streaming.SyncStatus(reqCtx); err != nil {
		zlog.Warn().Err(err).Msg("failed to sync streaming status")
	}

	interval := m.settings.Get().OBS.StatusPollInterval()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.streaming.Poll(ctx, interval)
	}()
}

// syncRecording feeds the recording state found on connect to the
// session as if it had been observed.
func (m *Manager) syncRecording(ctx context.Context) {
	client, err := m.Client()
	if err != nil {
		return
	}
	st, err := client.GetRecordStatus(ctx)
	if err != nil {
		zlog.Warn().Err(err).Msg("failed to get recording status")
		return
	}
	active := m.recording.State().Active()
	switch {
	case st.Active && !active:
		m.recording.HandleRecordStateChanged(obs.RecordStateChanged{State: obs.OutputStarted})
	case !st.Active && active:
		m.recording.HandleRecordStateChanged(obs.RecordStateChanged{State: obs.OutputStopped})
	}
	zlog.Info().Msgf("recording status synced: active=%t", st.Active)
}

// handleEvent routes a push event. Events arrive in order on the
// connection's listener goroutine.
func (m *Manager) handleEvent(ev obs.Event) {
	switch e := ev.(type) {
	case obs.RecordStateChanged:
		m.recording.HandleRecordStateChanged(e)
		m.notification.Broadcast(notification.Recording(e.State.String(), e.OutputPath))
	case obs.RecordFileChanged:
		m.recording.HandleRecordFileChanged(e)
		m.notification.Broadcast(notification.Recording("file_changed", e.NewOutputPath))
	case obs.StreamStateChanged:
		m.streaming.HandleStreamStateChanged(e)
		m.notification.Broadcast(notification.Streaming(e.State.String()))
	case obs.SceneChanged:
		m.scenes.HandleSceneChanged(e)
		m.notification.Broadcast(notification.Scene(e.Name))
	case obs.SceneListChanged:
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.scenes.HandleSceneListChanged(m.ctx, e)
			m.notification.Broadcast(notification.SceneList(m.scenes.AvailableScenes()))
		}()
	default:
		zlog.Debug().Msgf("unhandled OBS event: %s", obs.EventName(ev))
	}
}

// Status represents the current session status with all information.
type Status struct {
	Connection state.Info
	Address    string
	Recording  recording.Status
	Streaming  streaming.Status
	Scene      SceneStatus
}

// SceneStatus is the scene part of Status.
type SceneStatus struct {
	Current      string
	Available    []string
	Stage        scene.Stage
	IntroRunning bool
	OutroRunning bool
}

// GetStatus returns the current session status.
func (m *Manager) GetStatus() *Status {
	return &Status{
		Connection: m.stateMgr.Snapshot(),
		Address:    m.settings.Get().OBS.Address,
		Recording:  m.recording.Status(),
		Streaming:  m.streaming.Status(),
		Scene: SceneStatus{
			Current:      m.scenes.CurrentScene(),
			Available:    m.scenes.AvailableScenes(),
			Stage:        m.scenes.Stage(),
			IntroRunning: m.scenes.IntroRunning(),
			OutroRunning: m.scenes.OutroRunning(),
		},
	}
}

