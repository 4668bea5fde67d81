// Package httpapi provides the HTTP control API.
package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/obsflow/internal/app/session"
	"github.com/osa030/obsflow/internal/infra/config"
)

// BaseURL is the prefix of all API routes.
const BaseURL = "/api/v1"

// Server serves the control API for a session manager.
type Server struct {
	session  *session.Manager
	settings config.Provider
	wg       sync.WaitGroup
}

// NewServer creates a new Server.
func NewServer(session *session.Manager, settings config.Provider) *Server {
	return &Server{
		session:  session,
		settings: settings,
	}
}

// Wait waits for hook work started in the background.
func (s *Server) Wait() {
	s.wg.Wait()
}

// background runs fn after the response is written. Hooks that only
// notify the session return right away; their work keeps the request
// values but not its cancellation.
func (s *Server) background(r *http.Request, fn func(ctx context.Context)) {
	ctx := context.WithoutCancel(r.Context())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
}

// Handler returns the router with all routes registered.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route(BaseURL, func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/events", s.handleEvents)
		r.Get("/scenes", s.handleScenes)

		r.Group(func(r chi.Router) {
			r.Use(s.adminAuth)

			r.Post("/obs/connect", s.handleConnect)
			r.Post("/obs/disconnect", s.handleDisconnect)

			r.Post("/recording/start", s.handleRecordStart)
			r.Post("/recording/stop", s.handleRecordStop)
			r.Put("/recording/auto", s.handleAutoRecord)

			r.Post("/streaming/start", s.handleStreamStart)
			r.Post("/streaming/stop", s.handleStreamStop)

			r.Post("/scenes/intro", s.handleIntro)
			r.Post("/scenes/outro", s.handleOutro)
			r.Put("/scenes/current", s.handleSetScene)

			r.Route("/hooks", func(r chi.Router) {
				r.Post("/level-starting", s.handleLevelStarting)
				r.Post("/level-start", s.handleLevelStart)
				r.Post("/game-scene-active", s.handleGameSceneActive)
				r.Post("/level-finished", s.handleLevelFinished)
				r.Post("/menu-scene-active", s.handleMenuSceneActive)
				r.Post("/song-start-gate", s.handleSongStartGate)
			})
		})
	})
	return r
}

// AdminTokenHeader is the header carrying the admin token.
const AdminTokenHeader = "X-Admin-Token"

// adminAuth rejects control requests without the configured admin token.
// Control routes are open when no token is configured.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := s.settings.Get().Server.AdminToken
		if want == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := r.Header.Get(AdminTokenHeader)
		if token == "" || token != want {
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zlog.Debug().Msgf("http request: method=%s, path=%s, status=%d, duration=%v, request_id=%s",
			r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}
