package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"famcal/internal/auth"
	"famcal/internal/storage"
	"famcal/pkg/logx"
)

// authedHandler receives the caller already resolved against the store.
type authedHandler func(w http.ResponseWriter, r *http.Request, user storage.User)

// authed verifies the bearer session token and upserts the caller's identity
// into the store. Every failure yields the same 401; the reason is logged
// server-side only.
func (s *Server) authed(next authedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			unauthorized(w)
			return
		}

		identity, err := s.codec.Verify(token)
		if err != nil {
			s.log.Debug("session token rejected", logx.Err(err))
			unauthorized(w)
			return
		}

		user, err := s.store.UpsertUser(r.Context(), identityToUser(identity))
		if err != nil {
			s.log.Error("user upsert failed", logx.Int64("user_id", identity.ID), logx.Err(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		next(w, r, user)
	})
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func identityToUser(id auth.Identity) storage.User {
	u := storage.User{ID: id.ID}
	if id.FirstName != "" {
		u.FirstName = &id.FirstName
	}
	if id.LastName != "" {
		u.LastName = &id.LastName
	}
	if id.Username != "" {
		u.Username = &id.Username
	}
	return u
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withRequestLog tags each request with a short id and logs its outcome.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()[:8]
		w.Header().Set("X-Request-ID", reqID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		s.log.Debug("request handled",
			logx.String("req_id", reqID),
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", rec.status),
			logx.Duration("dur", time.Since(start)))
	})
}
