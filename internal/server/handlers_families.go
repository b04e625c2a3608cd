package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"famcal/internal/storage"
	"famcal/pkg/logx"
)

func (s *Server) handleListFamilies(w http.ResponseWriter, r *http.Request, user storage.User) {
	fams, err := s.store.FamiliesForUser(r.Context(), user.ID)
	if err != nil {
		s.log.Error("family list failed", logx.Int64("user_id", user.ID), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if fams == nil {
		fams = []storage.Family{}
	}
	writeJSON(w, http.StatusOK, fams)
}

func (s *Server) handleCreateFamily(w http.ResponseWriter, r *http.Request, user storage.User) {
	var req struct {
		Name string `json:"name"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Name) < 2 || len(req.Name) > 100 {
		writeError(w, http.StatusBadRequest, "name must be 2-100 characters")
		return
	}

	inviteCode := uuid.NewString()[:8]
	fam, err := s.store.CreateFamily(r.Context(), req.Name, user.ID, inviteCode)
	if err != nil {
		s.log.Error("family create failed", logx.Int64("user_id", user.ID), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, fam)
}

func (s *Server) handleJoinFamily(w http.ResponseWriter, r *http.Request, user storage.User) {
	var req struct {
		InviteCode string `json:"invite_code"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fam, err := s.store.FamilyByInviteCode(r.Context(), req.InviteCode)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown invite code")
		return
	}
	if err != nil {
		s.log.Error("invite lookup failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := s.store.AddMember(r.Context(), user.ID, fam.ID, storage.RoleMember); err != nil {
		s.log.Error("family join failed", logx.Int64("family_id", fam.ID), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, fam)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request, user storage.User) {
	familyID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid family id")
		return
	}
	memberID, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	fam, err := s.store.GetFamily(r.Context(), familyID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "family not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	// Members may leave on their own; only the owner removes others.
	if user.ID != memberID && fam.OwnerID != user.ID {
		writeError(w, http.StatusForbidden, "not allowed")
		return
	}

	if err := s.store.RemoveMember(r.Context(), familyID, memberID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no such membership")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
