// Package level provides the level and result data attached to a recording.
package level

import (
	"regexp"
	"strings"
	"time"
)

var contentHashPattern = regexp.MustCompile(`(?i)custom_level_([0-9a-f]{40})`)

// Info identifies the level being played.
type Info struct {
	ID             string        // Level ID reported by the game (custom_level_<hash> for custom maps)
	SongName       string        // Song name
	SongSubName    string        // Song sub name
	SongAuthor     string        // Song author
	Mapper         string        // Level author
	Difficulty     string        // Difficulty name (Easy..ExpertPlus)
	Characteristic string        // Beatmap characteristic (Standard, OneSaber, ...)
	BPM            float64       // Beats per minute
	Length         time.Duration // Song length
}

// ContentHash returns the lower-case 40 hex digit hash embedded in a
// custom level ID, or "" for built-in levels.
func (i Info) ContentHash() string {
	m := contentHashPattern.FindStringSubmatch(i.ID)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// EndState is how the level ended.
type EndState int

const (
	EndStateUnknown EndState = iota
	EndStateCleared
	EndStateFailed
	EndStateQuit
)

// String returns the string representation of the end state.
func (e EndState) String() string {
	switch e {
	case EndStateCleared:
		return "cleared"
	case EndStateFailed:
		return "failed"
	case EndStateQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// ParseEndState parses the string form of an EndState.
func ParseEndState(s string) EndState {
	switch strings.ToLower(s) {
	case "cleared":
		return EndStateCleared
	case "failed":
		return EndStateFailed
	case "quit", "incomplete":
		return EndStateQuit
	default:
		return EndStateUnknown
	}
}

// Results is the completion result snapshot of a played level.
type Results struct {
	EndState      EndState
	Score         int
	ModifiedScore int
	MaxScore      int
	Rank          string
	FullCombo     bool
	MissedNotes   int
	MaxCombo      int
	EndSongTime   time.Duration
}

// Accuracy returns the score accuracy in percent, or 0 when unknown.
func (r Results) Accuracy() float64 {
	if r.MaxScore <= 0 {
		return 0
	}
	return float64(r.Score) * 100 / float64(r.MaxScore)
}

// PlayerStats is the player's record for the level before it was played.
type PlayerStats struct {
	HighScore  int
	MaxCombo   int
	FullCombo  bool
	PlayCount  int
	ValidScore bool
}

// RecordingData is the pending metadata of the recording in flight.
type RecordingData struct {
	Level        Info
	Results      *Results     // nil until the level finished
	Stats        *PlayerStats // nil when the game did not report stats
	BeatSaverKey string       // Filled lazily by a BeatSaver lookup
	RecordedAt   time.Time    // Time the level became active

	// MultipleLastLevels is set when another level finished before
	// this data was consumed by a stop.
	MultipleLastLevels bool
}

// NewRecordingData creates recording data for a level that just became active.
func NewRecordingData(info Info, stats *PlayerStats, at time.Time) *RecordingData {
	return &RecordingData{
		Level:      info,
		Stats:      stats,
		RecordedAt: at,
	}
}

// Finish stores the results of a finished level. When results were
// already stored the data is marked as spanning multiple levels and the
// level identity is replaced by the latest one.
func (d *RecordingData) Finish(info Info, results *Results, stats *PlayerStats) {
	if d.Results != nil {
		d.MultipleLastLevels = true
	}
	if info.ID != "" {
		if info.ID != d.Level.ID {
			d.BeatSaverKey = ""
		}
		d.Level = info
	}
	d.Results = results
	if stats != nil {
		d.Stats = stats
	}
}
