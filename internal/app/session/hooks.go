package session

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/obsflow/internal/app/recording"
	"github.com/osa030/obsflow/internal/domain/hook"
	"github.com/osa030/obsflow/internal/domain/level"
)

// LevelStarting asks every component how the level should start and
// returns the folded response.
func (m *Manager) LevelStarting(info level.Info) hook.Response {
	req := hook.NewLevelStarting(info)
	m.recording.OnLevelStarting(req)
	m.scenes.OnLevelStarting(req)
	result := req.Result()
	zlog.Info().Msgf("level starting: level=%s, response=%s, source=%s, delay=%v", info.ID, result.Type, result.Source, result.Delay)
	return result
}

// LevelStart notifies the components that the level is starting. When
// the scene sequencer handles the start it returns after the intro, with
// whether the intro reached the game scene.
func (m *Manager) LevelStart(ctx context.Context, ev hook.LevelStart) bool {
	m.recording.OnLevelStart(ctx, ev)
	if ev.Response.Type != hook.StartHandled {
		return true
	}
	return m.scenes.OnLevelStart(ctx, ev)
}

// GameSceneActive notifies the components that a level is being played.
func (m *Manager) GameSceneActive(ctx context.Context, ev hook.GameSceneActive) {
	m.recording.OnGameSceneActive(ctx, ev)
}

// LevelFinished notifies the components that a level ended.
func (m *Manager) LevelFinished(ctx context.Context, ev hook.LevelFinished) {
	m.recording.OnLevelFinished(ctx, ev)
	m.scenes.OnLevelFinished()
}

// MenuSceneActive notifies the components that the menu is shown.
func (m *Manager) MenuSceneActive(ctx context.Context) {
	m.recording.OnMenuSceneActive(ctx)
}

// SongStartGate blocks until the song may start.
func (m *Manager) SongStartGate(ctx context.Context) recording.GateResult {
	return m.recording.WaitSongStart(ctx)
}
