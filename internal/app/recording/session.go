// Package recording provides the recording session: start/stop policy,
// source attribution and renaming of finished recordings.
package recording

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/osa030/obsflow/internal/app/awaiter"
	"github.com/osa030/obsflow/internal/app/scope"
	"github.com/osa030/obsflow/internal/domain/level"
	"github.com/osa030/obsflow/internal/domain/obs"
	"github.com/osa030/obsflow/internal/infra/config"
	"github.com/osa030/obsflow/internal/infra/metrics"
)

const (
	// debounceWindow is the minimum spacing between an observed state
	// change and the next start request.
	debounceWindow = 500 * time.Millisecond
	// stopTimeout bounds the wait for the Stopped event after a stop request.
	stopTimeout = 5000 * time.Millisecond
)

// FileNamer renders the file name (without extension) of a finished
// recording. An empty name leaves the file as it is.
type FileNamer interface {
	FileName(ctx context.Context, data *level.RecordingData) string
}

type stateAwaiter = awaiter.Awaiter[obs.OutputState, obs.OutputState, obs.OutputState]

// Status is a snapshot of the recording session.
type Status struct {
	State        obs.OutputState
	Source       Source
	StopOption   StopOption
	OutputPath   string
	Directory    string
	StartedAt    time.Time // Zero unless recording
	RecordingID  string
	AutoRecord   bool
	PendingLevel *level.RecordingData
}

// Session tracks the remote recording output and drives it.
// State is only ever changed by observed events.
type Session struct {
	obs      obs.ClientProvider
	settings config.Provider
	namer    FileNamer
	renamer  *Renamer
	clock    clockwork.Clock

	mu              sync.Mutex
	state           obs.OutputState
	lastStateUpdate time.Time
	recordStartTime time.Time
	recordingID     string
	outputPath      string
	directory       string
	source          Source
	stopOption      StopOption
	startInFlight   bool
	autoRecord      bool

	// Level tracking
	currentLevel   *level.Info
	currentStats   *level.PlayerStats
	lastLevel      *level.RecordingData
	renameOverride string
	lobbyPending   bool
	wasInGame      bool

	stopScope scope.Cell
	stopped   *stateAwaiter
	gates     map[uint64]*stateAwaiter
	nextGate  uint64
	flight    singleflight.Group

	ctx     context.Context
	cancel  context.CancelFunc
	renames sync.WaitGroup
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock used for delays and timeouts.
func WithClock(c clockwork.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithRenamer replaces the default renamer.
func WithRenamer(r *Renamer) Option {
	return func(s *Session) { s.renamer = r }
}

// NewSession creates a recording session.
func NewSession(client obs.ClientProvider, settings config.Provider, namer FileNamer, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		obs:        client,
		settings:   settings,
		namer:      namer,
		clock:      clockwork.NewRealClock(),
		autoRecord: settings.Get().Recording.AutoRecord,
		gates:      make(map[uint64]*stateAwaiter),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.renamer == nil {
		s.renamer = NewRenamer(s.clock)
	}
	s.stopped = awaiter.New(awaiter.Equal[obs.OutputState], awaiter.WithClock(s.clock), awaiter.WithName("record_stopped"))
	return s
}

// Close cancels pending waits and waits for renames in progress.
func (s *Session) Close() {
	s.cancel()
	s.stopScope.Cancel()
	s.renames.Wait()
}

// State returns the last observed output state.
func (s *Session) State() obs.OutputState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Source returns the source of the current recording.
func (s *Session) Source() Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// StopOption returns the effective stop option of the current recording:
// StopNone when its source does not allow automatic stops.
func (s *Session) StopOption() StopOption {
	autoStopOnManual := s.settings.Get().Recording.AutoStopOnManual
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopOptionLocked(autoStopOnManual)
}

func (s *Session) stopOptionLocked(autoStopOnManual bool) StopOption {
	if !autoStopAllowed(s.source, autoStopOnManual) {
		return StopNone
	}
	return s.stopOption
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	autoStopOnManual := s.settings.Get().Recording.AutoStopOnManual
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:       s.state,
		Source:      s.source,
		StopOption:  s.stopOptionLocked(autoStopOnManual),
		OutputPath:  s.outputPath,
		Directory:   s.directory,
		StartedAt:   s.recordStartTime,
		RecordingID: s.recordingID,
		AutoRecord:  s.autoRecord,
	}
	if s.lastLevel != nil {
		data := *s.lastLevel
		st.PendingLevel = &data
	}
	return st
}

// AutoRecord reports whether trigger-driven starts are enabled.
func (s *Session) AutoRecord() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoRecord
}

// SetAutoRecord enables or disables trigger-driven starts.
func (s *Session) SetAutoRecord(enabled bool) {
	s.mu.Lock()
	s.autoRecord = enabled
	s.mu.Unlock()
	zlog.Info().Msgf("auto record changed: enabled=%t", enabled)
}

func (s *Session) startOption() StartOption {
	return ParseStartOption(s.settings.Get().Recording.StartOption)
}

// TryStart starts a recording. When a recording is already active it is
// left alone, or split into a new file when forceStopPrevious is set.
// Concurrent calls share the outcome of the request in flight.
func (s *Session) TryStart(ctx context.Context, source Source, opt StartOption, forceStopPrevious bool) error {
	if source == SourceAuto && !s.AutoRecord() {
		zlog.Info().Msgf("recording start skipped, auto record disabled: option=%s", opt)
		return nil
	}

	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state.Active() {
		if !forceStopPrevious {
			zlog.Info().Msgf("recording start skipped, already %s: source=%s, option=%s", state, source, opt)
			return nil
		}
		return s.split(ctx, source, opt)
	}

	_, err, shared := s.flight.Do("start", func() (any, error) {
		return nil, s.start(ctx, source, opt)
	})
	if shared {
		zlog.Debug().Msgf("recording start joined a request in flight: source=%s", source)
	}
	return err
}

// split continues the active recording in a new file and re-attributes it.
func (s *Session) split(ctx context.Context, source Source, opt StartOption) error {
	client, err := s.obs.Client()
	if err != nil {
		return err
	}

	zlog.Info().Msgf("recording already active, splitting file: source=%s, option=%s", source, opt)
	if err := client.TriggerHotkey(ctx, obs.SplitFileHotkey); err != nil {
		metrics.RecordingActions.WithLabelValues("split", "error").Inc()
		zlog.Error().Err(err).Msg("failed to split recording")
		return errors.Wrap(err, "failed to split recording")
	}
	metrics.RecordingActions.WithLabelValues("split", "ok").Inc()

	configured := ParseStopOption(s.settings.Get().Recording.StopOption)
	s.mu.Lock()
	s.source = source
	s.stopOption = StopOptionFor(opt, configured)
	s.mu.Unlock()
	return nil
}

func (s *Session) start(ctx context.Context, source Source, opt StartOption) error {
	client, err := s.obs.Client()
	if err != nil {
		return err
	}

	cfg := s.settings.Get().Recording
	if cfg.Directory != "" {
		if err := client.SetRecordDirectory(ctx, cfg.Directory); err != nil {
			zlog.Warn().Err(err).Msgf("failed to set record directory: dir=%s", cfg.Directory)
		}
	}
	dir, err := client.GetRecordDirectory(ctx)
	if err != nil {
		zlog.Warn().Err(err).Msg("failed to get record directory")
	}

	s.mu.Lock()
	if dir != "" {
		s.directory = dir
	}
	wait := debounceWindow - s.clock.Since(s.lastStateUpdate)
	s.mu.Unlock()

	if wait > 0 {
		zlog.Debug().Msgf("delaying recording start: wait=%v", wait)
		if err := scope.Sleep(ctx, s.clock, wait); err != nil {
			zlog.Debug().Msg("recording start cancelled")
			return errors.Wrap(err, "recording start cancelled")
		}
	}

	s.mu.Lock()
	s.startInFlight = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.startInFlight = false
		s.mu.Unlock()
	}()

	zlog.Info().Msgf("starting recording: source=%s, option=%s, dir=%s", source, opt, dir)
	if err := client.StartRecord(ctx); err != nil {
		if errors.Is(err, obs.ErrOutputRunning) {
			zlog.Info().Msg("recording start skipped, OBS reports it active")
			return nil
		}
		metrics.RecordingActions.WithLabelValues("start", "error").Inc()
		zlog.Error().Err(err).Msgf("failed to start recording: source=%s", source)
		return errors.Wrap(err, "failed to start recording")
	}
	metrics.RecordingActions.WithLabelValues("start", "ok").Inc()

	configured := ParseStopOption(cfg.StopOption)
	s.mu.Lock()
	s.source = source
	s.stopOption = StopOptionFor(opt, configured)
	s.mu.Unlock()
	return nil
}

// TryStop stops the recording and waits for OBS to confirm it. It reports
// whether the recording is known to be stopped; failures are logged, not
// returned. The wait ends early when ctx or the session's stop scope is
// cancelled.
func (s *Session) TryStop(ctx context.Context) bool {
	v, _, shared := s.flight.Do("stop", func() (any, error) {
		return s.stop(ctx), nil
	})
	if shared {
		zlog.Debug().Msg("recording stop joined a request in flight")
	}
	stopped, _ := v.(bool)
	return stopped
}

func (s *Session) stop(ctx context.Context) bool {
	client, err := s.obs.Client()
	if err != nil {
		zlog.Warn().Err(err).Msg("cannot stop recording")
		return false
	}

	stopCtx, release := s.stopScope.Link(ctx)
	defer release()

	pending := s.stopped.Arm(stopCtx, obs.OutputStopped, stopTimeout)
	zlog.Info().Msg("stopping recording")
	if _, err := client.StopRecord(stopCtx); err != nil {
		s.stopped.Cancel()
		switch {
		case errors.Is(err, obs.ErrOutputNotActive):
			zlog.Debug().Msg("recording stop skipped, not active")
			return true
		case stopCtx.Err() != nil:
			zlog.Debug().Msg("recording stop cancelled")
			return false
		default:
			metrics.RecordingActions.WithLabelValues("stop", "error").Inc()
			zlog.Error().Err(err).Msg("failed to stop recording")
			return false
		}
	}

	if _, err := pending.Wait(); err != nil {
		if errors.Is(err, awaiter.ErrCancelled) {
			zlog.Debug().Msg("recording stop wait cancelled")
		} else {
			metrics.RecordingActions.WithLabelValues("stop", "timeout").Inc()
			zlog.Warn().Err(err).Msgf("recording did not report stopped: timeout=%v", stopTimeout)
		}
		return false
	}
	metrics.RecordingActions.WithLabelValues("stop", "ok").Inc()
	return true
}

// HandleRecordStateChanged applies an observed recording state change.
func (s *Session) HandleRecordStateChanged(ev obs.RecordStateChanged) {
	stoppedGen := s.stopped.Generation()
	now := s.clock.Now()
	cfg := s.settings.Get().Recording

	var (
		finished *finishedFile
		prev     obs.OutputState
		gates    []*stateAwaiter
	)

	s.mu.Lock()
	prev = s.state
	s.state = ev.State
	s.lastStateUpdate = now
	switch ev.State {
	case obs.OutputStarted:
		s.recordStartTime = now
		s.recordingID = uuid.NewString()
		if ev.OutputPath != "" {
			s.outputPath = ev.OutputPath
		}
		if s.source == SourceNone && !s.startInFlight {
			s.source = SourceRemoteManual
			s.stopOption = ParseStopOption(cfg.StopOption)
		}
		if s.lobbyPending {
			s.lobbyPending = false
			s.renameOverride = lobbyName(now)
		}
		for _, w := range s.gates {
			gates = append(gates, w)
		}
	case obs.OutputStopped:
		path := ev.OutputPath
		if path == "" {
			path = s.outputPath
		}
		finished = s.takeFinishedLocked(path)
		s.recordStartTime = time.Time{}
		s.outputPath = ""
		s.source = SourceNone
		s.stopOption = StopNone
	}
	source := s.source
	s.mu.Unlock()

	metrics.OutputState.WithLabelValues("record").Set(float64(ev.State))
	zlog.Info().Msgf("recording state changed: %s -> %s, source=%s, path=%s", prev, ev.State, source, ev.OutputPath)

	switch ev.State {
	case obs.OutputStarted:
		s.stopScope.Replace(context.Background())
		for _, w := range gates {
			w.OnEvent(ev.State)
		}
	case obs.OutputStopped:
		s.stopped.OnEventAt(stoppedGen, ev.State)
		s.finish(finished)
	}
}

// HandleRecordFileChanged handles a recording continuing in a new file.
// The previous file is finished like a stopped recording.
func (s *Session) HandleRecordFileChanged(ev obs.RecordFileChanged) {
	now := s.clock.Now()

	s.mu.Lock()
	finished := s.takeFinishedLocked(s.outputPath)
	s.outputPath = ev.NewOutputPath
	s.recordStartTime = now
	s.recordingID = uuid.NewString()
	if s.lobbyPending {
		s.lobbyPending = false
		s.renameOverride = lobbyName(now)
	}
	s.mu.Unlock()

	zlog.Info().Msgf("recording file changed: path=%s", ev.NewOutputPath)
	s.finish(finished)
}

type finishedFile struct {
	path     string
	data     *level.RecordingData
	override string
}

// takeFinishedLocked captures and clears the pending data of the file at path.
func (s *Session) takeFinishedLocked(path string) *finishedFile {
	f := &finishedFile{path: path, data: s.lastLevel, override: s.renameOverride}
	s.lastLevel = nil
	s.renameOverride = ""
	return f
}

func (s *Session) finish(f *finishedFile) {
	if f == nil || f.path == "" {
		return
	}
	if f.data == nil && f.override == "" {
		zlog.Info().Msgf("no data to rename the recording: path=%s", f.path)
		return
	}
	if f.data != nil && f.data.MultipleLastLevels {
		zlog.Info().Msgf("recording spans multiple levels, naming after the last: path=%s, level=%s", f.path, f.data.Level.SongName)
	}

	s.renames.Add(1)
	go func() {
		defer s.renames.Done()
		name := f.override
		if name == "" && s.namer != nil {
			name = s.namer.FileName(s.ctx, f.data)
		}
		if name == "" {
			zlog.Info().Msgf("empty file name, recording left as is: path=%s", f.path)
			return
		}
		dst := filepath.Join(filepath.Dir(f.path), name+filepath.Ext(f.path))
		_ = s.renamer.Rename(s.ctx, f.path, dst)
	}()
}

// WaitRenames blocks until renames in progress are done.
func (s *Session) WaitRenames() {
	s.renames.Wait()
}

func lobbyName(t time.Time) string {
	return "Lobby " + t.Local().Format("060102 150405")
}
