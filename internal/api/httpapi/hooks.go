package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/osa030/obsflow/internal/domain/hook"
	"github.com/osa030/obsflow/internal/domain/level"
)

// Level is the level payload of the game hooks.
type Level struct {
	ID             string  `json:"id"`
	SongName       string  `json:"song_name"`
	SongSubName    string  `json:"song_sub_name"`
	SongAuthor     string  `json:"song_author"`
	Mapper         string  `json:"mapper"`
	Difficulty     string  `json:"difficulty"`
	Characteristic string  `json:"characteristic"`
	BPM            float64 `json:"bpm"`
	LengthSec      float64 `json:"length_sec"`
}

func (l Level) info() level.Info {
	return level.Info{
		ID:             l.ID,
		SongName:       l.SongName,
		SongSubName:    l.SongSubName,
		SongAuthor:     l.SongAuthor,
		Mapper:         l.Mapper,
		Difficulty:     l.Difficulty,
		Characteristic: l.Characteristic,
		BPM:            l.BPM,
		Length:         time.Duration(l.LengthSec * float64(time.Second)),
	}
}

// Results is the level completion payload.
type Results struct {
	EndState      string  `json:"end_state"`
	Score         int     `json:"score"`
	ModifiedScore int     `json:"modified_score"`
	MaxScore      int     `json:"max_score"`
	Rank          string  `json:"rank"`
	FullCombo     bool    `json:"full_combo"`
	MissedNotes   int     `json:"missed_notes"`
	MaxCombo      int     `json:"max_combo"`
	EndSongTime   float64 `json:"end_song_time_sec"`
}

func (r *Results) results() *level.Results {
	if r == nil {
		return nil
	}
	return &level.Results{
		EndState:      level.ParseEndState(r.EndState),
		Score:         r.Score,
		ModifiedScore: r.ModifiedScore,
		MaxScore:      r.MaxScore,
		Rank:          r.Rank,
		FullCombo:     r.FullCombo,
		MissedNotes:   r.MissedNotes,
		MaxCombo:      r.MaxCombo,
		EndSongTime:   time.Duration(r.EndSongTime * float64(time.Second)),
	}
}

// Stats is the player's record for a level.
type Stats struct {
	HighScore  int  `json:"high_score"`
	MaxCombo   int  `json:"max_combo"`
	FullCombo  bool `json:"full_combo"`
	PlayCount  int  `json:"play_count"`
	ValidScore bool `json:"valid_score"`
}

func (s *Stats) stats() *level.PlayerStats {
	if s == nil {
		return nil
	}
	return &level.PlayerStats{
		HighScore:  s.HighScore,
		MaxCombo:   s.MaxCombo,
		FullCombo:  s.FullCombo,
		PlayCount:  s.PlayCount,
		ValidScore: s.ValidScore,
	}
}

// StartResponse tells the host how to start the level.
type StartResponse struct {
	Type    string `json:"type"`
	Source  string `json:"source,omitempty"`
	DelayMs int64  `json:"delay_ms,omitempty"`
}

func toStartResponse(r hook.Response) StartResponse {
	return StartResponse{Type: r.Type.String(), Source: r.Source, DelayMs: r.Delay.Milliseconds()}
}

func (r StartResponse) response() hook.Response {
	return hook.Response{
		Source: r.Source,
		Type:   hook.ParseStartResponse(r.Type),
		Delay:  time.Duration(r.DelayMs) * time.Millisecond,
	}
}

// LevelHookRequest is the body of the level hooks.
type LevelHookRequest struct {
	Level    Level          `json:"level"`
	Results  *Results       `json:"results,omitempty"`
	Stats    *Stats         `json:"stats,omitempty"`
	Response *StartResponse `json:"response,omitempty"`
}

// LevelStartResponse is the answer to the level start hook.
type LevelStartResponse struct {
	Proceed bool `json:"proceed"`
}

// SongStartGateResponse is the answer to the song start gate.
type SongStartGateResponse struct {
	Result  string `json:"result"`
	Proceed bool   `json:"proceed"`
}

func (s *Server) decodeHook(w http.ResponseWriter, r *http.Request) (LevelHookRequest, bool) {
	var req LevelHookRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}

func (s *Server) handleLevelStarting(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeHook(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toStartResponse(s.session.LevelStarting(req.Level.info())))
}

// handleLevelStart returns once the level may start. For a handled
// start that is after the intro sequence.
func (s *Server) handleLevelStart(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeHook(w, r)
	if !ok {
		return
	}
	ev := hook.LevelStart{Level: req.Level.info()}
	if req.Response != nil {
		ev.Response = req.Response.response()
	}
	proceed := s.session.LevelStart(r.Context(), ev)
	writeJSON(w, http.StatusOK, LevelStartResponse{Proceed: proceed})
}

func (s *Server) handleGameSceneActive(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeHook(w, r)
	if !ok {
		return
	}
	ev := hook.GameSceneActive{Level: req.Level.info(), Stats: req.Stats.stats()}
	s.background(r, func(ctx context.Context) { s.session.GameSceneActive(ctx, ev) })
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleLevelFinished(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeHook(w, r)
	if !ok {
		return
	}
	ev := hook.LevelFinished{
		Level:   req.Level.info(),
		Results: req.Results.results(),
		Stats:   req.Stats.stats(),
	}
	s.background(r, func(ctx context.Context) { s.session.LevelFinished(ctx, ev) })
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleMenuSceneActive(w http.ResponseWriter, r *http.Request) {
	s.background(r, s.session.MenuSceneActive)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleSongStartGate(w http.ResponseWriter, r *http.Request) {
	res := s.session.SongStartGate(r.Context())
	writeJSON(w, http.StatusOK, SongStartGateResponse{Result: res.String(), Proceed: res.Proceed()})
}
