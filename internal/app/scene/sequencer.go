package scene

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/obsflow/internal/app/awaiter"
	"github.com/osa030/obsflow/internal/app/scope"
	"github.com/osa030/obsflow/internal/domain/obs"
	"github.com/osa030/obsflow/internal/infra/config"
	"github.com/osa030/obsflow/internal/infra/metrics"
)

// sceneSwitchTimeout bounds the wait for a scene change confirmation.
const sceneSwitchTimeout = 5000 * time.Millisecond

type sceneAwaiter = awaiter.Awaiter[string, string, string]

// matchScene matches a scene change against the expected scene.
// An empty expectation is satisfied by any change.
func matchScene(name, expected string) (string, bool) {
	if expected == "" {
		return "", true
	}
	return name, name == expected
}

// Sequencer drives the intro and outro scene sequences.
type Sequencer struct {
	obs      obs.ClientProvider
	settings config.Provider
	clock    clockwork.Clock

	scenesMu sync.RWMutex
	scenes   []string
	current  string

	stageMu sync.RWMutex
	stage   Stage

	handlersMu sync.RWMutex
	handlers   []Handler

	watchersMu sync.Mutex
	watchers   map[uint64]*sceneAwaiter
	nextID     uint64

	introWait  *sceneAwaiter
	outroWait  *sceneAwaiter
	introScope scope.Cell
	outroScope scope.Cell

	// seqMu orders the start of sequences against each other.
	seqMu        sync.Mutex
	introGen     uint64
	introRunning atomic.Int32
	outroRunning atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithClock sets the clock used for delays and timeouts.
func WithClock(c clockwork.Clock) Option {
	return func(s *Sequencer) { s.clock = c }
}

// NewSequencer creates a scene sequencer.
func NewSequencer(client obs.ClientProvider, settings config.Provider, opts ...Option) *Sequencer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sequencer{
		obs:      client,
		settings: settings,
		clock:    clockwork.NewRealClock(),
		watchers: make(map[uint64]*sceneAwaiter),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.introWait = awaiter.New(matchScene, awaiter.WithClock(s.clock), awaiter.WithName("intro_scene"))
	s.outroWait = awaiter.New(matchScene, awaiter.WithClock(s.clock), awaiter.WithName("outro_scene"))
	return s
}

// Close cancels running sequences and waits for background ones.
func (s *Sequencer) Close() {
	s.cancel()
	s.introScope.Cancel()
	s.outroScope.Cancel()
	s.wg.Wait()
}

// Subscribe registers a stage handler. Handlers run in registration order.
func (s *Sequencer) Subscribe(h Handler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers = append(s.handlers, h)
}

// Stage returns the current stage.
func (s *Sequencer) Stage() Stage {
	s.stageMu.RLock()
	defer s.stageMu.RUnlock()
	return s.stage
}

// AvailableScenes returns a copy of the known scene names.
func (s *Sequencer) AvailableScenes() []string {
	s.scenesMu.RLock()
	defer s.scenesMu.RUnlock()
	return slices.Clone(s.scenes)
}

// CurrentScene returns the last known program scene.
func (s *Sequencer) CurrentScene() string {
	s.scenesMu.RLock()
	defer s.scenesMu.RUnlock()
	return s.current
}

// IntroRunning reports whether an intro sequence is in flight.
func (s *Sequencer) IntroRunning() bool {
	return s.introRunning.Load() > 0
}

// OutroRunning reports whether an outro sequence is in flight.
func (s *Sequencer) OutroRunning() bool {
	return s.outroRunning.Load() > 0
}

// raise moves to stage and notifies the handlers.
func (s *Sequencer) raise(ctx context.Context, stage Stage) {
	s.stageMu.Lock()
	prev := s.stage
	s.stage = stage
	s.stageMu.Unlock()

	metrics.SceneStage.Set(float64(stage))
	zlog.Info().Msgf("scene stage changed: %s -> %s", prev, stage)

	s.handlersMu.RLock()
	handlers := slices.Clone(s.handlers)
	s.handlersMu.RUnlock()

	dispatch(ctx, stage, handlers)
}

// HandleSceneChanged applies an observed program scene change.
func (s *Sequencer) HandleSceneChanged(ev obs.SceneChanged) {
	introGen := s.introWait.Generation()
	outroGen := s.outroWait.Generation()

	s.scenesMu.Lock()
	prev := s.current
	s.current = ev.Name
	s.scenesMu.Unlock()

	if prev != ev.Name {
		zlog.Info().Msgf("scene changed: %s -> %s", prev, ev.Name)
	}

	s.introWait.OnEventAt(introGen, ev.Name)
	s.outroWait.OnEventAt(outroGen, ev.Name)

	s.watchersMu.Lock()
	watchers := make([]*sceneAwaiter, 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.watchersMu.Unlock()
	for _, w := range watchers {
		w.OnEvent(ev.Name)
	}
}

// HandleSceneListChanged refreshes the scene list.
func (s *Sequencer) HandleSceneListChanged(ctx context.Context, ev obs.SceneListChanged) {
	if len(ev.Scenes) > 0 {
		s.setScenes(ev.Scenes, "")
		return
	}
	s.UpdateScenes(ctx, false)
}

// HandleDisconnect forgets the current scene.
func (s *Sequencer) HandleDisconnect() {
	s.scenesMu.Lock()
	s.current = ""
	s.scenesMu.Unlock()
}

// UpdateScenes reloads the scene list from OBS. With forceCurrent the
// current scene is queried separately when the list does not carry it.
func (s *Sequencer) UpdateScenes(ctx context.Context, forceCurrent bool) {
	client, err := s.obs.Client()
	if err != nil {
		zlog.Warn().Err(err).Msg("unable to update scenes")
		return
	}

	list, err := client.GetSceneList(ctx)
	if err != nil {
		zlog.Error().Err(err).Msg("failed to get scene list")
		return
	}

	current := list.Current
	if current == "" && forceCurrent {
		current, err = client.GetCurrentScene(ctx)
		if err != nil {
			zlog.Error().Err(err).Msg("failed to get current scene")
		}
	}
	s.setScenes(list.Scenes, current)
}

func (s *Sequencer) setScenes(scenes []string, current string) {
	s.scenesMu.Lock()
	s.scenes = slices.Clone(scenes)
	if current != "" {
		s.current = current
	}
	s.scenesMu.Unlock()
	zlog.Info().Msgf("scene list updated: scenes=%q", scenes)
}

// SetScene switches the program scene and waits for the confirmation.
func (s *Sequencer) SetScene(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("scene name is empty")
	}
	client, err := s.obs.Client()
	if err != nil {
		return err
	}

	w := awaiter.New(matchScene, awaiter.WithClock(s.clock), awaiter.WithName("set_scene"))
	id := s.addWatcher(w)
	defer s.removeWatcher(id)

	pending := w.Arm(ctx, name, sceneSwitchTimeout)
	if err := client.SetCurrentScene(ctx, name); err != nil {
		w.Cancel()
		return errors.Wrapf(err, "failed to set scene %q", name)
	}
	if current, err := client.GetCurrentScene(ctx); err == nil && current == name {
		s.scenesMu.Lock()
		s.current = current
		s.scenesMu.Unlock()
		w.Resolve(current)
	}
	if _, err := pending.Wait(); err != nil {
		return errors.Wrapf(err, "scene %q not confirmed", name)
	}
	return nil
}

func (s *Sequencer) addWatcher(w *sceneAwaiter) uint64 {
	s.watchersMu.Lock()
	defer s.watchersMu.Unlock()
	s.nextID++
	s.watchers[s.nextID] = w
	return s.nextID
}

func (s *Sequencer) removeWatcher(id uint64) {
	s.watchersMu.Lock()
	defer s.watchersMu.Unlock()
	delete(s.watchers, id)
}

// switchScene arms w for name, requests the change unless name is
// already current, and waits for the confirmation.
func (s *Sequencer) switchScene(ctx context.Context, w *sceneAwaiter, name string) error {
	pending := w.Arm(ctx, name, sceneSwitchTimeout)
	gen := pending.Generation()
	if s.CurrentScene() == name {
		w.ResolveAt(gen, name)
	} else {
		client, err := s.obs.Client()
		if err != nil {
			w.CancelAt(gen)
			return err
		}
		zlog.Info().Msgf("setting scene: name=%s", name)
		if err := client.SetCurrentScene(ctx, name); err != nil {
			w.CancelAt(gen)
			return errors.Wrapf(err, "failed to set scene %q", name)
		}
	}
	_, err := pending.Wait()
	return err
}

