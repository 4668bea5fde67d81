package httpapi

import (
	"context"
	"net/http"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/obsflow/internal/app/recording"
	"github.com/osa030/obsflow/internal/app/session"
	"github.com/osa030/obsflow/internal/app/session/state"
)

// StatusResponse is the session status.
type StatusResponse struct {
	Connection ConnectionStatus `json:"connection"`
	Recording  RecordingStatus  `json:"recording"`
	Streaming  StreamingStatus  `json:"streaming"`
	Scene      SceneStatus      `json:"scene"`
}

// ConnectionStatus is the OBS connection part of StatusResponse.
type ConnectionStatus struct {
	Phase        string    `json:"phase"`
	Connected    bool      `json:"connected"`
	Enabled      bool      `json:"enabled"`
	Address      string    `json:"address"`
	ConnectionID string    `json:"connection_id,omitempty"`
	ConnectedAt  time.Time `json:"connected_at,omitzero"`
	Attempts     int       `json:"attempts"`
	LastError    string    `json:"last_error,omitempty"`
}

// RecordingStatus is the recording part of StatusResponse.
type RecordingStatus struct {
	State        string    `json:"state"`
	Source       string    `json:"source"`
	StopOption   string    `json:"stop_option"`
	OutputPath   string    `json:"output_path,omitempty"`
	Directory    string    `json:"directory,omitempty"`
	StartedAt    time.Time `json:"started_at,omitzero"`
	RecordingID  string    `json:"recording_id,omitempty"`
	AutoRecord   bool      `json:"auto_record"`
	PendingLevel string    `json:"pending_level,omitempty"`
}

// StreamingStatus is the streaming part of StatusResponse.
type StreamingStatus struct {
	State         string `json:"state"`
	Reconnecting  bool   `json:"reconnecting"`
	DurationMs    int64  `json:"duration_ms"`
	Bytes         int64  `json:"bytes"`
	SkippedFrames int    `json:"skipped_frames"`
	TotalFrames   int    `json:"total_frames"`
}

// SceneStatus is the scene part of StatusResponse.
type SceneStatus struct {
	Current      string   `json:"current"`
	Available    []string `json:"available"`
	Stage        string   `json:"stage"`
	IntroRunning bool     `json:"intro_running"`
	OutroRunning bool     `json:"outro_running"`
}

func toStatusResponse(st *session.Status) StatusResponse {
	resp := StatusResponse{
		Connection: ConnectionStatus{
			Phase:        st.Connection.Phase.String(),
			Connected:    st.Connection.Phase == state.PhaseConnected,
			Enabled:      st.Connection.Enabled,
			Address:      st.Address,
			ConnectionID: st.Connection.ConnectionID,
			ConnectedAt:  st.Connection.ConnectedAt,
			Attempts:     st.Connection.Attempts,
			LastError:    st.Connection.LastError,
		},
		Recording: RecordingStatus{
			State:       st.Recording.State.String(),
			Source:      st.Recording.Source.String(),
			StopOption:  st.Recording.StopOption.String(),
			OutputPath:  st.Recording.OutputPath,
			Directory:   st.Recording.Directory,
			StartedAt:   st.Recording.StartedAt,
			RecordingID: st.Recording.RecordingID,
			AutoRecord:  st.Recording.AutoRecord,
		},
		Streaming: StreamingStatus{
			State:         st.Streaming.State.String(),
			Reconnecting:  st.Streaming.Reconnecting,
			DurationMs:    st.Streaming.Duration.Milliseconds(),
			Bytes:         st.Streaming.Bytes,
			SkippedFrames: st.Streaming.SkippedFrames,
			TotalFrames:   st.Streaming.TotalFrames,
		},
		Scene: SceneStatus{
			Current:      st.Scene.Current,
			Available:    st.Scene.Available,
			Stage:        st.Scene.Stage.String(),
			IntroRunning: st.Scene.IntroRunning,
			OutroRunning: st.Scene.OutroRunning,
		},
	}
	if st.Recording.PendingLevel != nil {
		resp.Recording.PendingLevel = st.Recording.PendingLevel.Level.ID
	}
	if resp.Scene.Available == nil {
		resp.Scene.Available = []string{}
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toStatusResponse(s.session.GetStatus()))
}

func (s *Server) handleScenes(w http.ResponseWriter, r *http.Request) {
	scenes := s.session.Scenes()
	available := scenes.AvailableScenes()
	if available == nil {
		available = []string{}
	}
	writeJSON(w, http.StatusOK, SceneStatus{
		Current:      scenes.CurrentScene(),
		Available:    available,
		Stage:        scenes.Stage().String(),
		IntroRunning: scenes.IntroRunning(),
		OutroRunning: scenes.OutroRunning(),
	})
}

// handleConnect starts connecting in the background. Connecting outlives
// the request; Disable cancels it.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := s.session.Enable(context.Background()); err != nil {
			zlog.Warn().Err(err).Msg("connect request failed")
		}
	}()
	writeJSON(w, http.StatusAccepted, ActionResponse{Success: true, Message: "Connecting to OBS"})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.session.Disable()
	writeAction(w, nil, "Disconnected from OBS")
}

// RecordStartRequest is the body of a recording start.
type RecordStartRequest struct {
	// Split restarts an active recording into a new file.
	Split bool `json:"split"`
}

func (s *Server) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	var req RecordStartRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := s.session.Recording().TryStart(r.Context(), recording.SourceLocalManual, recording.StartNone, req.Split)
	writeAction(w, err, "Recording started")
}

func (s *Server) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	if !s.session.Recording().TryStop(r.Context()) {
		writeJSON(w, http.StatusOK, ActionResponse{Success: false, Message: "Recording stop was not confirmed"})
		return
	}
	writeAction(w, nil, "Recording stopped")
}

// AutoRecordRequest is the body of an auto record change.
type AutoRecordRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleAutoRecord(w http.ResponseWriter, r *http.Request) {
	var req AutoRecordRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.session.Recording().SetAutoRecord(req.Enabled)
	writeAction(w, nil, "Auto record updated")
}

func (s *Server) handleStreamStart(w http.ResponseWriter, r *http.Request) {
	ok, err := s.session.Streaming().Start(r.Context())
	writeOutcome(w, ok, err, "Streaming started", "Streaming start was not confirmed")
}

func (s *Server) handleStreamStop(w http.ResponseWriter, r *http.Request) {
	ok, err := s.session.Streaming().Stop(r.Context())
	writeOutcome(w, ok, err, "Streaming stopped", "Streaming stop was not confirmed")
}

func writeOutcome(w http.ResponseWriter, ok bool, err error, okMessage, failMessage string) {
	switch {
	case err != nil:
		writeAction(w, err, "")
	case !ok:
		writeJSON(w, http.StatusOK, ActionResponse{Success: false, Message: failMessage})
	default:
		writeAction(w, nil, okMessage)
	}
}

func (s *Server) handleIntro(w http.ResponseWriter, r *http.Request) {
	ok := s.session.Scenes().StartIntroSequence(r.Context())
	writeOutcome(w, ok, nil, "Intro sequence finished", "Intro sequence aborted")
}

func (s *Server) handleOutro(w http.ResponseWriter, r *http.Request) {
	ok := s.session.Scenes().StartOutroSequence(r.Context())
	writeOutcome(w, ok, nil, "Outro sequence finished", "Outro sequence aborted")
}

// SetSceneRequest is the body of a scene change.
type SetSceneRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSetScene(w http.ResponseWriter, r *http.Request) {
	var req SetSceneRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "scene name is required")
		return
	}
	err := s.session.Scenes().SetScene(r.Context(), req.Name)
	writeAction(w, err, "Scene changed")
}
