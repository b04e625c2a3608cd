package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"famcal/internal/storage"
	"famcal/pkg/logx"
)

type taskPayload struct {
	Title             string  `json:"title"`
	Description       *string `json:"description"`
	Date              string  `json:"date"`
	StartTime         *string `json:"start_time"`
	EndTime           *string `json:"end_time"`
	Scope             string  `json:"scope"`
	FamilyID          *int64  `json:"family_id"`
	NotifyBeforeDays  *int    `json:"notify_before_days"`
	NotifyBeforeHours *int    `json:"notify_before_hours"`
}

func (p taskPayload) validate() error {
	if len(p.Title) == 0 || len(p.Title) > 120 {
		return errors.New("title must be 1-120 characters")
	}
	if _, err := time.Parse(storage.DateLayout, p.Date); err != nil {
		return errors.New("date must be YYYY-MM-DD")
	}
	for _, clock := range []*string{p.StartTime, p.EndTime} {
		if clock == nil {
			continue
		}
		if _, err := time.Parse(storage.ClockLayout, *clock); err != nil {
			return errors.New("times must be HH:MM")
		}
	}
	switch p.Scope {
	case storage.ScopePersonal:
		// family_id ignored for personal tasks
	case storage.ScopeFamily:
		if p.FamilyID == nil {
			return errors.New("family tasks need family_id")
		}
	default:
		return errors.New("scope must be personal or family")
	}
	return nil
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request, user storage.User) {
	q := r.URL.Query()
	from, to := q.Get("start"), q.Get("end")
	if _, err := time.Parse(storage.DateLayout, from); err != nil {
		writeError(w, http.StatusBadRequest, "start must be YYYY-MM-DD")
		return
	}
	if _, err := time.Parse(storage.DateLayout, to); err != nil {
		writeError(w, http.StatusBadRequest, "end must be YYYY-MM-DD")
		return
	}

	scope := q.Get("scope")
	if scope == "" {
		scope = storage.ScopePersonal
	}

	var familyID *int64
	if scope == storage.ScopeFamily {
		id, err := strconv.ParseInt(q.Get("family_id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "family scope needs family_id")
			return
		}
		if !s.requireMembership(w, r, user.ID, id) {
			return
		}
		familyID = &id
	}

	tasks, err := s.store.ListTasks(r.Context(), user.ID, from, to, scope, familyID)
	if err != nil {
		s.log.Error("task list failed", logx.Int64("user_id", user.ID), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if tasks == nil {
		tasks = []storage.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request, user storage.User) {
	var req taskPayload
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Scope == "" {
		req.Scope = storage.ScopePersonal
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task := storage.Task{
		OwnerID:           user.ID,
		Title:             req.Title,
		Description:       req.Description,
		Date:              req.Date,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		Scope:             req.Scope,
		NotifyBeforeDays:  req.NotifyBeforeDays,
		NotifyBeforeHours: req.NotifyBeforeHours,
	}
	if req.Scope == storage.ScopeFamily {
		if !s.requireMembership(w, r, user.ID, *req.FamilyID) {
			return
		}
		task.FamilyID = req.FamilyID
	}

	created, err := s.store.CreateTask(r.Context(), task)
	if err != nil {
		s.log.Error("task create failed", logx.Int64("user_id", user.ID), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request, user storage.User) {
	task, ok := s.editableTask(w, r, user)
	if !ok {
		return
	}

	// Absent fields keep their stored values.
	var req struct {
		Title             *string `json:"title"`
		Description       *string `json:"description"`
		Date              *string `json:"date"`
		StartTime         *string `json:"start_time"`
		EndTime           *string `json:"end_time"`
		NotifyBeforeDays  *int    `json:"notify_before_days"`
		NotifyBeforeHours *int    `json:"notify_before_hours"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Title != nil {
		task.Title = *req.Title
	}
	if req.Description != nil {
		task.Description = req.Description
	}
	if req.Date != nil {
		task.Date = *req.Date
	}
	if req.StartTime != nil {
		task.StartTime = req.StartTime
	}
	if req.EndTime != nil {
		task.EndTime = req.EndTime
	}
	if req.NotifyBeforeDays != nil {
		task.NotifyBeforeDays = req.NotifyBeforeDays
	}
	if req.NotifyBeforeHours != nil {
		task.NotifyBeforeHours = req.NotifyBeforeHours
	}

	check := taskPayload{
		Title: task.Title, Date: task.Date,
		StartTime: task.StartTime, EndTime: task.EndTime,
		Scope: task.Scope, FamilyID: task.FamilyID,
	}
	if err := check.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.UpdateTask(r.Context(), task); err != nil {
		s.log.Error("task update failed", logx.Int64("task_id", task.ID), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request, user storage.User) {
	task, ok := s.editableTask(w, r, user)
	if !ok {
		return
	}
	if err := s.store.DeleteTask(r.Context(), task.ID); err != nil {
		s.log.Error("task delete failed", logx.Int64("task_id", task.ID), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// editableTask loads the path task and checks the caller may modify it:
// the owner always, active family members for family-scoped tasks.
func (s *Server) editableTask(w http.ResponseWriter, r *http.Request, user storage.User) (storage.Task, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return storage.Task{}, false
	}

	task, err := s.store.GetTask(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return storage.Task{}, false
	}
	if err != nil {
		s.log.Error("task load failed", logx.Int64("task_id", id), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return storage.Task{}, false
	}

	if task.OwnerID == user.ID {
		return task, true
	}
	if task.Scope == storage.ScopeFamily && task.FamilyID != nil {
		member, err := s.store.IsMember(r.Context(), user.ID, *task.FamilyID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return storage.Task{}, false
		}
		if member {
			return task, true
		}
	}
	writeError(w, http.StatusForbidden, "not allowed")
	return storage.Task{}, false
}

// requireMembership writes the error response itself when the check fails.
func (s *Server) requireMembership(w http.ResponseWriter, r *http.Request, userID, familyID int64) bool {
	member, err := s.store.IsMember(r.Context(), userID, familyID)
	if err != nil {
		s.log.Error("membership check failed", logx.Int64("family_id", familyID), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}
	if !member {
		writeError(w, http.StatusForbidden, "not a family member")
		return false
	}
	return true
}
