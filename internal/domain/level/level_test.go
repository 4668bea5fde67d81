package level

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInfo_ContentHash(t *testing.T) {
	hash := "0123456789abcdef0123456789abcdef01234567"
	tests := []struct {
		name string
		id   string
		want string
	}{
		{"custom level", "custom_level_" + hash, hash},
		{"upper case hash is normalized", "custom_level_" + "0123456789ABCDEF0123456789ABCDEF01234567", hash},
		{"with suffix", "custom_level_" + hash + " WIP", hash},
		{"built-in level", "100Bills", ""},
		{"short hash", "custom_level_abc", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Info{ID: tt.id}.ContentHash())
		})
	}
}

func TestRecordingData_Finish(t *testing.T) {
	first := Info{ID: "custom_level_a", SongName: "First"}
	second := Info{ID: "custom_level_b", SongName: "Second"}

	d := NewRecordingData(first, nil, time.Unix(0, 0))
	d.BeatSaverKey = "1a2b"

	d.Finish(first, &Results{Score: 100}, nil)
	assert.False(t, d.MultipleLastLevels)
	assert.Equal(t, "1a2b", d.BeatSaverKey)

	d.Finish(second, &Results{Score: 200}, &PlayerStats{HighScore: 300})
	assert.True(t, d.MultipleLastLevels)
	assert.Equal(t, "Second", d.Level.SongName)
	assert.Equal(t, 200, d.Results.Score)
	assert.Equal(t, 300, d.Stats.HighScore)
	assert.Empty(t, d.BeatSaverKey)
}

func TestResults_Accuracy(t *testing.T) {
	assert.InDelta(t, 50.0, Results{Score: 50, MaxScore: 100}.Accuracy(), 0.001)
	assert.Zero(t, Results{Score: 50}.Accuracy())
}

func TestParseEndState(t *testing.T) {
	assert.Equal(t, EndStateCleared, ParseEndState("Cleared"))
	assert.Equal(t, EndStateFailed, ParseEndState("failed"))
	assert.Equal(t, EndStateQuit, ParseEndState("incomplete"))
	assert.Equal(t, EndStateUnknown, ParseEndState(""))
	assert.Equal(t, "cleared", EndStateCleared.String())
}
