package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/cpilot-dev/cpilot/internal/taskstore"
)

func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeBadRequest(w, "workspace settings are not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.settings.Snapshot())
}

func (s *Server) handleSetWorkspace(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeBadRequest(w, "workspace settings are not configured")
		return
	}

	var req SetWorkspaceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeBadRequest(w, "path is required")
		return
	}
	if err := s.settings.SetActive(req.Path); err != nil {
		writeError(w, err)
		return
	}

	// Register the session for the new workspace so its queue file is
	// loaded now, not on the next explicit create.
	if s.orch != nil {
		active := s.settings.Active()
		if _, err := s.orch.CreateSession(active); err != nil {
			log.Warn().Err(err).Str("workspace", active).Msg("could not register session for workspace")
		}
	}

	writeJSON(w, http.StatusOK, s.settings.Snapshot())
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeBadRequest(w, "task store is not configured")
		return
	}

	workspacePath := r.URL.Query().Get("workspace_path")
	if workspacePath == "" && s.settings != nil {
		workspacePath = s.settings.Active()
	}

	tasks, err := s.tasks.List(r.Context(), workspacePath)
	if err != nil {
		writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*taskstore.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeBadRequest(w, "task store is not configured")
		return
	}

	var req CreateTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	workspacePath := req.WorkspacePath
	if workspacePath == "" && s.settings != nil {
		workspacePath = s.settings.Active()
	}
	if workspacePath == "" {
		writeBadRequest(w, "workspace_path is required when no workspace is active")
		return
	}

	task, err := s.tasks.Create(r.Context(), workspacePath, req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeBadRequest(w, "task store is not configured")
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeBadRequest(w, "task id must be an integer")
		return
	}

	var req UpdateTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	task, err := s.tasks.Update(r.Context(), id, req.Title, req.Done)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeBadRequest(w, "task store is not configured")
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeBadRequest(w, "task id must be an integer")
		return
	}
	if err := s.tasks.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
