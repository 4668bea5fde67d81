package recording

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStopOptionFor(t *testing.T) {
	tests := []struct {
		start      StartOption
		configured StopOption
		want       StopOption
	}{
		{StartSceneSequence, StopResultsView, StopSceneSequence},
		{StartSceneSequence, StopNone, StopSceneSequence},
		{StartSongStart, StopSongEnd, StopSongEnd},
		{StartLevelStartDelay, StopResultsView, StopResultsView},
		{StartImmediate, StopSceneSequence, StopSceneSequence},
		{StartNone, StopResultsView, StopResultsView},
	}

	for _, tt := range tests {
		t.Run(tt.start.String()+"/"+tt.configured.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, StopOptionFor(tt.start, tt.configured))
		})
	}
}

func TestParseOptions(t *testing.T) {
	for _, opt := range []StartOption{StartNone, StartSceneSequence, StartSongStart, StartLevelStartDelay, StartImmediate} {
		assert.Equal(t, opt, ParseStartOption(opt.String()))
	}
	for _, opt := range []StopOption{StopNone, StopSceneSequence, StopSongEnd, StopResultsView} {
		assert.Equal(t, opt, ParseStopOption(opt.String()))
	}
	assert.Equal(t, StartNone, ParseStartOption("bogus"))
	assert.Equal(t, StopNone, ParseStopOption("bogus"))
}

func TestAutoStopAllowed(t *testing.T) {
	tests := []struct {
		name             string
		source           Source
		autoStopOnManual bool
		want             bool
	}{
		{"auto", SourceAuto, false, true},
		{"local manual allowed", SourceLocalManual, true, true},
		{"local manual denied", SourceLocalManual, false, false},
		{"remote manual allowed", SourceRemoteManual, true, true},
		{"remote manual denied", SourceRemoteManual, false, false},
		{"none", SourceNone, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, autoStopAllowed(tt.source, tt.autoStopOnManual))
		})
	}
}
