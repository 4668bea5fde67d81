package obs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOutputState(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   OutputState
		wantOK bool
	}{
		{"started", "OBS_WEBSOCKET_OUTPUT_STARTED", OutputStarted, true},
		{"starting", "OBS_WEBSOCKET_OUTPUT_STARTING", OutputStarting, true},
		{"stopping", "OBS_WEBSOCKET_OUTPUT_STOPPING", OutputStopping, true},
		{"stopped", "OBS_WEBSOCKET_OUTPUT_STOPPED", OutputStopped, true},
		{"restarted counts as started", "OBS_WEBSOCKET_OUTPUT_RESTARTED", OutputStarted, true},
		{"lower case", "obs_websocket_output_started", OutputStarted, true},
		{"paused is ignored", "OBS_WEBSOCKET_OUTPUT_PAUSED", OutputStopped, false},
		{"unknown", "garbage", OutputStopped, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseOutputState(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOutputState_Active(t *testing.T) {
	assert.True(t, OutputStarting.Active())
	assert.True(t, OutputStarted.Active())
	assert.False(t, OutputStopping.Active())
	assert.False(t, OutputStopped.Active())
	assert.Equal(t, "unknown", OutputState(42).String())
}

func TestSceneList_Contains(t *testing.T) {
	l := SceneList{Current: "Game", Scenes: []string{"Intro", "Game"}}
	assert.True(t, l.Contains("Game"))
	assert.False(t, l.Contains("game"))
	assert.False(t, l.Contains(""))
}
