// Package web is the JSON HTTP surface of the case handling component.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/maykinmedia/gemma-zaken-demo/internal/apilog"
	"github.com/maykinmedia/gemma-zaken-demo/internal/app"
	"github.com/maykinmedia/gemma-zaken-demo/internal/constants"
	"github.com/maykinmedia/gemma-zaken-demo/internal/registry"
)

// Headers naming the authenticated user, set by the fronting proxy.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserName = "X-User-Name"
)

// Server routes requests to the handlers.
type Server struct {
	app *app.App
	mux *http.ServeMux
	now func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithClock overrides the time used for new statuses.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// NewServer registers every route.
func NewServer(application *app.App, opts ...Option) *Server {
	server := &Server{
		app: application,
		mux: http.NewServeMux(),
		now: time.Now,
	}

	for _, opt := range opts {
		opt(server)
	}

	server.routes()

	return server
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.Handle("GET /api/status", s.dispatch(s.handleStatus, keepLog))
	s.mux.Handle("GET /api/config", s.dispatch(s.handleConfig, clearLog))
	s.mux.Handle("GET /api/log", s.dispatch(s.handleLog, keepLog))
	s.mux.Handle("DELETE /api/log", s.dispatch(s.handleClearLog, keepLog))

	s.mux.Handle("GET /api/zaken", s.dispatch(s.handleListZaken, clearLog))
	s.mux.Handle("POST /api/zaken", s.dispatch(s.handleCreateZaak, clearLog))
	s.mux.Handle("GET /api/zaken/{uuid}", s.dispatch(s.handleZaak, clearLog))
	s.mux.Handle("POST /api/zaken/{uuid}/status", s.dispatch(s.handleSetStatus, clearLog))
	s.mux.Handle("POST /api/meldingen", s.dispatch(s.handleCreateMelding, clearLog))

	s.mux.Handle("POST /api/notificaties", s.dispatch(s.handleNotification, clearLog))
	s.mux.Handle("GET /api/notificaties/stream", s.dispatch(s.handleStream, keepLog))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: constants.ServerReadHeaderTimeout,
	}

	done := make(chan error, 1)

	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			done <- err

			return
		}

		done <- nil
	}()

	s.app.Logger.Info("Listening", map[string]interface{}{"addr": addr})

	select {
	case err := <-done:
		return fmt.Errorf("serving on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ServerShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	return <-done
}

type logPolicy bool

const (
	clearLog logPolicy = true
	keepLog  logPolicy = false
)

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// dispatch scopes the request log and renders returned errors. The shared
// log is cleared first when policy asks for it and before every POST, so it
// shows the calls of the latest request.
func (s *Server) dispatch(handler handlerFunc, policy logPolicy) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if policy == clearLog || r.Method == http.MethodPost {
			s.app.Log.Clear()
		}

		logSettings := s.app.Settings().Log
		scoped := apilog.New(logSettings.Capacity, apilog.WithRedactedHeaders(logSettings.RedactHeaders...))
		r = r.WithContext(apilog.NewContext(r.Context(), scoped))

		err := handler(w, r)
		if err != nil {
			s.writeError(w, r, err)
		}
	})
}

// user returns the user named by the proxy headers, or nil.
func user(r *http.Request) *registry.User {
	id := r.Header.Get(HeaderUserID)
	if id == "" {
		return nil
	}

	return &registry.User{Username: id, DisplayName: r.Header.Get(HeaderUserName)}
}

// writeJSON writes a JSON response with the given status code. The
// status is already sent when encoding fails, so that error is dropped.
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", constants.ContentTypeJSON)
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
