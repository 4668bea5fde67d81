package scene

import (
	"context"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/obsflow/internal/app/awaiter"
	"github.com/osa030/obsflow/internal/app/scope"
	"github.com/osa030/obsflow/internal/infra/metrics"
)

// correctiveSwitchTimeout bounds the best-effort switch back to the game
// scene after a cancelled sequence.
const correctiveSwitchTimeout = 5 * time.Second

// StartIntroSequence runs start scene → IntroStarted → start duration →
// game scene → Game. It cancels a running outro. It reports whether the
// sequence completed.
func (s *Sequencer) StartIntroSequence(ctx context.Context) bool {
	s.seqMu.Lock()
	s.introRunning.Add(1)
	s.introGen++
	gen := s.introGen
	s.outroScope.Cancel()
	seqCtx, cancel := s.introScope.Replace(ctx)
	s.seqMu.Unlock()
	defer s.introRunning.Add(-1)
	defer cancel()

	zlog.Debug().Msg("intro sequence starting")
	ok := s.runIntro(seqCtx, gen)
	recordResult("intro", ok)
	zlog.Debug().Msgf("intro sequence finished: success=%t", ok)
	return ok
}

func (s *Sequencer) runIntro(ctx context.Context, gen uint64) bool {
	if ctx.Err() != nil {
		return s.abortIntro(ctx, gen, "", ctx.Err())
	}
	if _, err := s.obs.Client(); err != nil {
		zlog.Error().Err(err).Msg("could not get OBS connection, aborting intro sequence")
		s.raise(ctx, StageAborted)
		return false
	}

	cfg := s.settings.Get().Scenes
	gameScene := cfg.Game
	startScene := cfg.Start
	if startScene == "" {
		startScene = gameScene
	}

	s.UpdateScenes(ctx, true)
	if ctx.Err() != nil {
		return s.abortIntro(ctx, gen, gameScene, ctx.Err())
	}

	available := s.AvailableScenes()
	if gameScene == "" || !slices.Contains(available, gameScene) {
		zlog.Warn().Msgf("game scene '%s' is not a valid scene in OBS, a valid game scene is required for scene sequences", gameScene)
		zlog.Info().Msgf("valid scenes are: %s", quoteList(available))
		s.raise(ctx, StageAborted)
		return false
	}
	if !slices.Contains(available, startScene) {
		zlog.Warn().Msgf("start scene '%s' is not a valid scene in OBS, using game scene '%s'", startScene, gameScene)
		startScene = gameScene
	}

	duration := cfg.StartDuration()
	zlog.Info().Msgf("beginning intro sequence: '%s' => %v => '%s'", startScene, duration, gameScene)

	if err := s.switchScene(ctx, s.introWait, startScene); err != nil {
		return s.abortIntro(ctx, gen, gameScene, err)
	}
	s.raise(ctx, StageIntroStarted)

	if err := scope.Sleep(ctx, s.clock, duration); err != nil {
		return s.abortIntro(ctx, gen, gameScene, err)
	}

	if err := s.switchScene(ctx, s.introWait, gameScene); err != nil {
		return s.abortIntro(ctx, gen, gameScene, err)
	}
	s.raise(ctx, StageGame)
	return true
}

// StartOutroSequence runs end start delay → end scene → OutroStarted →
// end duration → OutroFinished → resting scene → Resting. It refuses to
// run while an intro sequence is in flight. It reports whether the
// sequence completed.
func (s *Sequencer) StartOutroSequence(ctx context.Context) bool {
	s.seqMu.Lock()
	if s.IntroRunning() {
		s.seqMu.Unlock()
		zlog.Warn().Msg("intro sequence is running, outro sequence refused")
		recordResult("outro", false)
		return false
	}
	s.outroRunning.Add(1)
	seqCtx, cancel := s.outroScope.Replace(ctx)
	s.seqMu.Unlock()
	defer s.outroRunning.Add(-1)
	defer cancel()

	zlog.Debug().Msg("outro sequence starting")
	ok := s.runOutro(seqCtx)
	recordResult("outro", ok)
	zlog.Debug().Msgf("outro sequence finished: success=%t", ok)
	return ok
}

func (s *Sequencer) runOutro(ctx context.Context) bool {
	if ctx.Err() != nil {
		s.raise(ctx, StageAborted)
		return false
	}
	if _, err := s.obs.Client(); err != nil {
		zlog.Error().Err(err).Msg("could not get OBS connection, aborting outro sequence")
		s.raise(ctx, StageAborted)
		return false
	}

	cfg := s.settings.Get().Scenes
	gameScene, endScene, restingScene := cfg.Game, cfg.End, cfg.Resting

	s.UpdateScenes(ctx, true)
	if ctx.Err() != nil {
		return s.abort(ctx, "outro", gameScene, ctx.Err())
	}

	available := s.AvailableScenes()
	if gameScene == "" || !slices.Contains(available, gameScene) {
		zlog.Warn().Msgf("game scene '%s' is not a valid scene in OBS, a valid game scene is required for scene sequences", gameScene)
		zlog.Info().Msgf("valid scenes are: %s", quoteList(available))
		s.raise(ctx, StageAborted)
		return false
	}
	if !slices.Contains(available, endScene) {
		if endScene != "" {
			zlog.Warn().Msgf("end scene '%s' is not a valid scene in OBS, using game scene '%s'", endScene, gameScene)
		}
		endScene = gameScene
	}
	if !slices.Contains(available, restingScene) {
		if restingScene != "" {
			zlog.Warn().Msgf("resting scene '%s' is not a valid scene in OBS, using game scene '%s'", restingScene, gameScene)
		}
		restingScene = gameScene
	}

	delay, duration := cfg.EndStartDelay(), cfg.EndDuration()
	zlog.Info().Msgf("beginning outro sequence: %v => '%s' => %v => '%s'", delay, endScene, duration, restingScene)

	if err := scope.Sleep(ctx, s.clock, delay); err != nil {
		return s.abort(ctx, "outro", gameScene, err)
	}
	if err := s.switchScene(ctx, s.outroWait, endScene); err != nil {
		return s.abort(ctx, "outro", gameScene, err)
	}
	s.raise(ctx, StageOutroStarted)

	if err := scope.Sleep(ctx, s.clock, duration); err != nil {
		return s.abort(ctx, "outro", gameScene, err)
	}
	s.raise(ctx, StageOutroFinished)

	if err := s.switchScene(ctx, s.outroWait, restingScene); err != nil {
		return s.abort(ctx, "outro", gameScene, err)
	}
	s.raise(ctx, StageResting)
	return true
}

// abort ends a sequence. A cancelled sequence is steered back to the game
// scene unless it is already showing, or an intro has taken over.
func (s *Sequencer) abort(ctx context.Context, direction, gameScene string, cause error) bool {
	if isCancellation(ctx, cause) {
		switch {
		case gameScene == "":
			zlog.Warn().Msgf("%s sequence cancelled", direction)
		case s.CurrentScene() == gameScene:
			zlog.Warn().Msgf("%s sequence cancelled and already on game scene", direction)
		case direction == "outro" && s.IntroRunning():
			zlog.Warn().Msgf("outro sequence cancelled by intro sequence: current=%s", s.CurrentScene())
		default:
			zlog.Warn().Msgf("%s sequence cancelled, switching to game scene", direction)
			s.correctiveSwitch(gameScene)
		}
	} else {
		zlog.Error().Err(cause).Msgf("%s sequence failed", direction)
	}
	s.raise(ctx, StageAborted)
	return false
}

// abortIntro ends an intro. An intro cancelled by a newer intro leaves
// the scene and the stage to it.
func (s *Sequencer) abortIntro(ctx context.Context, gen uint64, gameScene string, cause error) bool {
	if isCancellation(ctx, cause) && s.introSuperseded(gen) {
		zlog.Debug().Msgf("intro sequence superseded by a newer intro: gen=%d", gen)
		return false
	}
	if gameScene == "" {
		s.raise(ctx, StageAborted)
		return false
	}
	return s.abort(ctx, "intro", gameScene, cause)
}

func (s *Sequencer) introSuperseded(gen uint64) bool {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	return s.introGen != gen
}

func (s *Sequencer) correctiveSwitch(gameScene string) {
	client, err := s.obs.Client()
	if err != nil {
		zlog.Warn().Err(err).Msg("cannot switch back to game scene")
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, correctiveSwitchTimeout)
	defer cancel()
	if err := client.SetCurrentScene(ctx, gameScene); err != nil {
		zlog.Warn().Err(err).Msgf("failed to switch back to game scene: name=%s", gameScene)
	}
}

func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, awaiter.ErrCancelled)
}

func recordResult(direction string, ok bool) {
	result := "failed"
	if ok {
		result = "ok"
	}
	metrics.SceneSequences.WithLabelValues(direction, result).Inc()
}

func quoteList(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ", "
		}
		out += "'" + item + "'"
	}
	return out
}
