package recording

// Source attributes why the current recording was started.
type Source int

const (
	SourceNone         Source = iota // No recording or unknown origin
	SourceRemoteManual               // Started from OBS itself
	SourceLocalManual                // Started through obsflow's control API
	SourceAuto                       // Started by a trigger
)

// String returns the string representation of the source.
func (s Source) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourceRemoteManual:
		return "remote_manual"
	case SourceLocalManual:
		return "local_manual"
	case SourceAuto:
		return "auto"
	default:
		return "unknown"
	}
}

// StartOption selects when a recording is started automatically.
type StartOption int

const (
	StartNone            StartOption = iota // Never started automatically
	StartSceneSequence                      // Started when the intro scene sequence begins
	StartSongStart                          // Started when the song starts
	StartLevelStartDelay                    // Started on level start, which is delayed for it
	StartImmediate                          // Started on level start
)

// String returns the configuration name of the option.
func (o StartOption) String() string {
	switch o {
	case StartNone:
		return "None"
	case StartSceneSequence:
		return "SceneSequence"
	case StartSongStart:
		return "SongStart"
	case StartLevelStartDelay:
		return "LevelStartDelay"
	case StartImmediate:
		return "Immediate"
	default:
		return "Unknown"
	}
}

// ParseStartOption parses a configuration name. Unknown names map to StartNone.
func ParseStartOption(s string) StartOption {
	switch s {
	case "SceneSequence":
		return StartSceneSequence
	case "SongStart":
		return StartSongStart
	case "LevelStartDelay":
		return StartLevelStartDelay
	case "Immediate":
		return StartImmediate
	default:
		return StartNone
	}
}

// StopOption selects when a recording is stopped automatically.
type StopOption int

const (
	StopNone          StopOption = iota // Never stopped automatically
	StopSceneSequence                   // Stopped when the outro scene sequence finishes
	StopSongEnd                         // Stopped when the song ends
	StopResultsView                     // Stopped when the results view is shown
)

// String returns the configuration name of the option.
func (o StopOption) String() string {
	switch o {
	case StopNone:
		return "None"
	case StopSceneSequence:
		return "SceneSequence"
	case StopSongEnd:
		return "SongEnd"
	case StopResultsView:
		return "ResultsView"
	default:
		return "Unknown"
	}
}

// ParseStopOption parses a configuration name. Unknown names map to StopNone.
func ParseStopOption(s string) StopOption {
	switch s {
	case "SceneSequence":
		return StopSceneSequence
	case "SongEnd":
		return StopSongEnd
	case "ResultsView":
		return StopResultsView
	default:
		return StopNone
	}
}

// StopOptionFor maps a start option to the stop option of the recording it
// starts: a scene sequence start is paired with a scene sequence stop,
// everything else uses the configured stop option.
func StopOptionFor(start StartOption, configured StopOption) StopOption {
	if start == StartSceneSequence {
		return StopSceneSequence
	}
	return configured
}

// autoStopAllowed reports whether a recording started by source may be
// stopped by a trigger.
func autoStopAllowed(source Source, autoStopOnManual bool) bool {
	switch source {
	case SourceAuto:
		return true
	case SourceRemoteManual, SourceLocalManual:
		return autoStopOnManual
	default:
		return false
	}
}
