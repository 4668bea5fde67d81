// Package filename renders recording file names from level metadata.
//
// A format is literal text with ?-prefixed tokens:
//
//	?N song name        ?s song sub name    ?A song author
//	?M mapper           ?D difficulty       ?C characteristic
//	?B BPM              ?L song length      ?T recording date-time
//	?S score            ?% accuracy         ?R rank
//	?F "FC" on full combo                   ?m missed notes
//	?c max combo        ?k BeatSaver key    ?? a literal ?
//
// Result tokens render empty when the level has no results. Unknown
// tokens are kept as written.
package filename

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/obsflow/internal/domain/level"
	"github.com/osa030/obsflow/internal/infra/config"
)

// dateTimeFormat is the ?T layout. It avoids characters Windows rejects.
const dateTimeFormat = "2006-01-02 15-04-05"

// invalidChars cannot appear in a file name on any supported platform.
const invalidChars = `<>:"/\|?*`

// KeyLookup resolves BeatSaver keys by content hash.
type KeyLookup interface {
	GetKey(ctx context.Context, hash string) (string, error)
}

// Options control how token values are cleaned.
type Options struct {
	InvalidSubstitute string // Replaces characters in invalidChars
	ReplaceSpacesWith string // Replaces spaces when not empty
}

// Renderer renders file names with the configured format.
type Renderer struct {
	settings config.Provider
	keys     KeyLookup
}

// NewRenderer creates a renderer. keys may be nil, in which case ?k
// renders empty unless the key is already known.
func NewRenderer(settings config.Provider, keys KeyLookup) *Renderer {
	return &Renderer{settings: settings, keys: keys}
}

// FileName renders the file name for data, looking up the BeatSaver key
// first when the format needs it. It returns "" when nothing should be
// renamed.
func (r *Renderer) FileName(ctx context.Context, data *level.RecordingData) string {
	if data == nil {
		return ""
	}
	cfg := r.settings.Get().Recording
	if strings.Contains(cfg.FileFormat, "?k") {
		r.prepareKey(ctx, data)
	}
	name := Render(cfg.FileFormat, data, Options{
		InvalidSubstitute: cfg.InvalidCharSubstitute,
		ReplaceSpacesWith: cfg.ReplaceSpacesWith,
	})
	zlog.Debug().Msgf("rendered file name: format=%q, name=%q", cfg.FileFormat, name)
	return name
}

func (r *Renderer) prepareKey(ctx context.Context, data *level.RecordingData) {
	if data.BeatSaverKey != "" || r.keys == nil {
		return
	}
	hash := data.Level.ContentHash()
	if hash == "" {
		zlog.Debug().Msgf("no content hash for BeatSaver lookup: level=%s", data.Level.ID)
		return
	}
	key, err := r.keys.GetKey(ctx, hash)
	if err != nil {
		zlog.Warn().Err(err).Msgf("BeatSaver key lookup failed: hash=%s", hash)
		return
	}
	data.BeatSaverKey = key
}

// Render expands format against data. The result is trimmed and empty
// when format produced only whitespace.
func Render(format string, data *level.RecordingData, opts Options) string {
	if format == "" || data == nil {
		return ""
	}

	var b strings.Builder
	for i := 0; i < len(format); i++ {
		ch := format[i]
		if ch != '?' || i+1 >= len(format) {
			b.WriteByte(ch)
			continue
		}
		token := format[i+1]
		if token == '?' {
			b.WriteByte('?')
			i++
			continue
		}
		value, ok := tokenValue(token, data)
		if !ok {
			b.WriteByte(ch)
			continue
		}
		b.WriteString(sanitize(value, opts.InvalidSubstitute))
		i++
	}

	name := strings.TrimSpace(b.String())
	name = strings.TrimRight(name, ". ")
	if opts.ReplaceSpacesWith != "" {
		name = strings.ReplaceAll(name, " ", opts.ReplaceSpacesWith)
	}
	return name
}

func tokenValue(token byte, data *level.RecordingData) (string, bool) {
	info := data.Level
	res := data.Results
	switch token {
	case 'N':
		return info.SongName, true
	case 's':
		return info.SongSubName, true
	case 'A':
		return info.SongAuthor, true
	case 'M':
		return info.Mapper, true
	case 'D':
		return info.Difficulty, true
	case 'C':
		return info.Characteristic, true
	case 'B':
		if info.BPM <= 0 {
			return "", true
		}
		return strconv.FormatFloat(info.BPM, 'f', -1, 64), true
	case 'L':
		return formatLength(info.Length), true
	case 'T':
		if data.RecordedAt.IsZero() {
			return "", true
		}
		return data.RecordedAt.Format(dateTimeFormat), true
	case 'k':
		return data.BeatSaverKey, true
	case 'S':
		if res == nil {
			return "", true
		}
		return strconv.Itoa(res.Score), true
	case '%':
		if res == nil || res.MaxScore <= 0 {
			return "", true
		}
		return fmt.Sprintf("%.2f", res.Accuracy()), true
	case 'R':
		if res == nil {
			return "", true
		}
		return res.Rank, true
	case 'F':
		if res == nil || !res.FullCombo {
			return "", true
		}
		return "FC", true
	case 'm':
		if res == nil {
			return "", true
		}
		return strconv.Itoa(res.MissedNotes), true
	case 'c':
		if res == nil {
			return "", true
		}
		return strconv.Itoa(res.MaxCombo), true
	default:
		return "", false
	}
}

// formatLength renders d as m-ss.
func formatLength(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	total := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d-%02d", total/60, total%60)
}

// sanitize replaces characters that cannot appear in a file name with
// substitute, or drops them when substitute is empty.
func sanitize(value, substitute string) string {
	var b strings.Builder
	for _, r := range value {
		if r < 0x20 || strings.ContainsRune(invalidChars, r) {
			b.WriteString(substitute)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
