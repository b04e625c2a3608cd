package server

import (
	"net/http"

	"famcal/pkg/logx"
)

// handleAuthVerify exchanges a Telegram WebApp launch credential for a
// session token. The only endpoint reachable without a token.
func (s *Server) handleAuthVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InitData string `json:"init_data"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	identity, err := s.verifier.Verify(req.InitData)
	if err != nil {
		s.log.Warn("launch credential rejected", logx.Err(err))
		unauthorized(w)
		return
	}

	if _, err := s.store.UpsertUser(r.Context(), identityToUser(identity)); err != nil {
		s.log.Error("user upsert failed", logx.Int64("user_id", identity.ID), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	token, err := s.codec.Mint(identity)
	if err != nil {
		s.log.Error("token mint failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.log.Info("session issued",
		logx.Int64("user_id", identity.ID),
		logx.String("username", identity.Username))
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
