package server

import (
	"net/http"

	"famcal/internal/storage"
	"famcal/pkg/logx"
)

func (s *Server) handleGetMe(w http.ResponseWriter, _ *http.Request, user storage.User) {
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request, user storage.User) {
	var req struct {
		NotificationsEnabled *bool `json:"notifications_enabled"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.NotificationsEnabled == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	if err := s.store.SetNotificationsEnabled(r.Context(), user.ID, *req.NotificationsEnabled); err != nil {
		s.log.Error("notifications toggle failed", logx.Int64("user_id", user.ID), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user.NotificationsEnabled = *req.NotificationsEnabled
	writeJSON(w, http.StatusOK, user)
}
