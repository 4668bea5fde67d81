package obsws

import (
	"github.com/andreykaipov/goobs/api/events"
	"github.com/andreykaipov/goobs/api/typedefs"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/obsflow/internal/domain/obs"
)

// convertEvent maps a goobs event onto an obs event. Events obsflow does
// not track are dropped.
func convertEvent(raw any) (obs.Event, bool) {
	switch e := raw.(type) {
	case *events.RecordStateChanged:
		state, ok := obs.ParseOutputState(e.OutputState)
		if !ok {
			zlog.Debug().Msgf("ignoring record state: state=%s", e.OutputState)
			return nil, false
		}
		return obs.RecordStateChanged{State: state, OutputPath: e.OutputPath}, true
	case *events.RecordFileChanged:
		return obs.RecordFileChanged{NewOutputPath: e.NewOutputPath}, true
	case *events.StreamStateChanged:
		state, ok := obs.ParseOutputState(e.OutputState)
		if !ok {
			return nil, false
		}
		return obs.StreamStateChanged{State: state}, true
	case *events.CurrentProgramSceneChanged:
		return obs.SceneChanged{Name: e.SceneName}, true
	case *events.SceneListChanged:
		return obs.SceneListChanged{Scenes: sceneNames(e.Scenes)}, true
	default:
		return nil, false
	}
}

// sceneNames returns scene names in OBS order. OBS lists scenes by
// descending index.
func sceneNames(list []*typedefs.Scene) []string {
	names := make([]string, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		if list[i] == nil {
			continue
		}
		names = append(names, list[i].SceneName)
	}
	return names
}
