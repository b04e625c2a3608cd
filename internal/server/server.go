// Package server exposes the calendar HTTP API and its authentication
// middleware.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"famcal/internal/auth"
	"famcal/internal/storage"
	"famcal/pkg/logx"
)

type Server struct {
	store    *storage.Store
	verifier *auth.Verifier
	codec    *auth.TokenCodec
	log      logx.Logger

	http *http.Server
}

func New(addr string, store *storage.Store, verifier *auth.Verifier, codec *auth.TokenCodec, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{store: store, verifier: verifier, codec: codec, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /auth/verify", s.handleAuthVerify)

	mux.Handle("GET /users/me", s.authed(s.handleGetMe))
	mux.Handle("PATCH /users/me", s.authed(s.handleUpdateMe))

	mux.Handle("GET /tasks", s.authed(s.handleListTasks))
	mux.Handle("POST /tasks", s.authed(s.handleCreateTask))
	mux.Handle("PATCH /tasks/{id}", s.authed(s.handleUpdateTask))
	mux.Handle("DELETE /tasks/{id}", s.authed(s.handleDeleteTask))

	mux.Handle("GET /families", s.authed(s.handleListFamilies))
	mux.Handle("POST /families", s.authed(s.handleCreateFamily))
	mux.Handle("POST /families/join", s.authed(s.handleJoinFamily))
	mux.Handle("DELETE /families/{id}/members/{user_id}", s.authed(s.handleRemoveMember))

	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.withRequestLog(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the routed handler (request logging included) for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start blocks serving until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info("http server listening", logx.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
