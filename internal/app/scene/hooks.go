package scene

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/obsflow/internal/domain/hook"
)

// LevelStartingSource identifies the sequencer's level-starting responses.
const LevelStartingSource = "scene"

// Enabled reports whether scene sequences run around levels: OBS is
// connected and recording starts with the scene sequence.
func (s *Sequencer) Enabled() bool {
	if s.settings.Get().Recording.StartOption != "SceneSequence" {
		return false
	}
	_, err := s.obs.Client()
	return err == nil
}

// OnLevelStarting takes over the level start when the intro sequence runs.
func (s *Sequencer) OnLevelStarting(req *hook.LevelStarting) {
	if !s.Enabled() {
		zlog.Debug().Msg("level starting, scene sequence disabled")
		return
	}
	zlog.Debug().Msg("level starting, intro sequence enabled")
	req.SetHandledResponse(LevelStartingSource)
}

// OnLevelStart runs the intro sequence for a level start this sequencer
// handles. It returns once the host may start the level.
func (s *Sequencer) OnLevelStart(ctx context.Context, ev hook.LevelStart) bool {
	if ev.Response.Type != hook.StartHandled || ev.Response.Source != LevelStartingSource {
		return false
	}
	if !s.Enabled() {
		return false
	}
	return s.StartIntroSequence(ctx)
}

// OnLevelFinished starts the outro sequence in the background.
func (s *Sequencer) OnLevelFinished() {
	if !s.Enabled() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.StartOutroSequence(s.ctx)
	}()
}
