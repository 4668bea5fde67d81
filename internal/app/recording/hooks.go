package recording

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/obsflow/internal/app/scene"
	"github.com/osa030/obsflow/internal/app/scope"
	"github.com/osa030/obsflow/internal/domain/hook"
	"github.com/osa030/obsflow/internal/domain/level"
	"github.com/osa030/obsflow/internal/domain/obs"
)

// LevelStartingSource identifies the session's level-starting responses.
const LevelStartingSource = "recording"

// OnLevelStarting asks the host to delay the level start when recording
// starts ahead of the level.
func (s *Session) OnLevelStarting(req *hook.LevelStarting) {
	opt := s.startOption()
	zlog.Debug().Msgf("level starting: start_option=%s", opt)
	if opt == StartLevelStartDelay {
		req.SetResponse(LevelStartingSource, s.settings.Get().Recording.LevelStartDelay())
	}
}

// OnLevelStart starts recording for the level-start driven options.
func (s *Session) OnLevelStart(ctx context.Context, ev hook.LevelStart) {
	opt := s.startOption()
	if ev.Response.Type == hook.StartHandled && opt == StartSceneSequence {
		return
	}
	zlog.Debug().Msgf("level start: start_option=%s, response=%s", opt, ev.Response.Type)
	if opt == StartLevelStartDelay || opt == StartImmediate {
		_ = s.TryStart(ctx, SourceAuto, opt, true)
	}
}

// OnGameSceneActive records that a level is being played and starts
// recording for the song start option.
func (s *Session) OnGameSceneActive(ctx context.Context, ev hook.GameSceneActive) {
	info := ev.Level
	s.mu.Lock()
	s.wasInGame = true
	s.currentLevel = &info
	s.currentStats = ev.Stats
	s.mu.Unlock()

	if opt := s.startOption(); opt == StartSongStart {
		_ = s.TryStart(ctx, SourceAuto, opt, true)
	}
}

// OnLevelFinished attaches the level results to the recording in flight
// and stops it for the song end option.
func (s *Session) OnLevelFinished(ctx context.Context, ev hook.LevelFinished) {
	autoStopOnManual := s.settings.Get().Recording.AutoStopOnManual

	s.mu.Lock()
	if !s.state.Active() {
		s.mu.Unlock()
		zlog.Debug().Msgf("level finished while not recording: level=%s", ev.Level.ID)
		return
	}
	info := ev.Level
	if info.ID == "" && s.currentLevel != nil {
		info = *s.currentLevel
	}
	stats := ev.Stats
	if stats == nil {
		stats = s.currentStats
	}
	if s.lastLevel == nil {
		s.lastLevel = level.NewRecordingData(info, stats, s.clock.Now())
	}
	s.lastLevel.Finish(info, ev.Results, stats)
	multiple := s.lastLevel.MultipleLastLevels
	stopOpt := s.stopOptionLocked(autoStopOnManual)
	s.mu.Unlock()

	zlog.Info().Msgf("level finished: level=%s, song=%s, multiple=%t, stop_option=%s", info.ID, info.SongName, multiple, stopOpt)
	if stopOpt == StopSongEnd {
		s.stopOrRestart(ctx)
	}
}

// OnMenuSceneActive stops the recording for the results view option once
// the player left the game scene.
func (s *Session) OnMenuSceneActive(ctx context.Context) {
	s.mu.Lock()
	if !s.wasInGame {
		s.mu.Unlock()
		return
	}
	s.wasInGame = false
	s.mu.Unlock()

	if s.StopOption() == StopResultsView {
		s.stopOrRestart(ctx)
	}
}

// stopOrRestart stops the recording after the stop delay, or splits it
// into a lobby file when lobby recording is enabled.
func (s *Session) stopOrRestart(ctx context.Context) {
	cfg := s.settings.Get().Recording

	s.mu.Lock()
	inGame := s.wasInGame
	s.mu.Unlock()

	linked, release := s.stopScope.Link(ctx)
	defer release()

	if delay := cfg.StopDelay(); delay > 0 && !inGame {
		zlog.Debug().Msgf("delaying recording stop: delay=%v", delay)
		if err := scope.Sleep(linked, s.clock, delay); err != nil {
			zlog.Debug().Msg("delayed recording stop cancelled")
			return
		}
	}

	if cfg.AutoRecordLobby {
		client, err := s.obs.Client()
		if err != nil {
			zlog.Warn().Err(err).Msg("cannot split recording for lobby")
			return
		}
		s.mu.Lock()
		s.lobbyPending = true
		s.mu.Unlock()
		zlog.Info().Msg("splitting recording for lobby")
		if err := client.TriggerHotkey(linked, obs.SplitFileHotkey); err != nil {
			s.mu.Lock()
			s.lobbyPending = false
			s.mu.Unlock()
			zlog.Error().Err(err).Msg("failed to split recording for lobby")
		}
		return
	}

	s.TryStop(linked)
}

// OnSceneStage starts and stops recording along the scene sequence.
func (s *Session) OnSceneStage(ev *scene.StageEvent) {
	switch ev.Stage {
	case scene.StageIntroStarted:
		if s.startOption() != StartSceneSequence {
			return
		}
		ev.Go(func(ctx context.Context) error {
			return s.TryStart(ctx, SourceAuto, StartSceneSequence, true)
		})
	case scene.StageOutroFinished:
		if s.StopOption() != StopSceneSequence {
			return
		}
		ev.Go(func(ctx context.Context) error {
			linked, release := s.stopScope.Link(ctx)
			defer release()
			s.TryStop(linked)
			return nil
		})
	}
}
