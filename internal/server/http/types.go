package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/cpilot-dev/cpilot/internal/domain"
	"github.com/cpilot-dev/cpilot/internal/taskstore"
)

// HealthResponse is the health check body.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// StatusResponse summarizes the running server.
type StatusResponse struct {
	Version         string `json:"version"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	ActiveSessions  int    `json:"active_sessions"`
	ActiveWorkspace string `json:"active_workspace,omitempty"`
}

// CreateSessionRequest creates (or returns) the session for a workspace.
type CreateSessionRequest struct {
	WorkspacePath string `json:"workspace_path"`
}

// EnqueueMessageRequest adds a message to a session's queue.
type EnqueueMessageRequest struct {
	Text string `json:"text"`
}

// UpdateMessageRequest edits a pending message.
type UpdateMessageRequest struct {
	Text string `json:"text"`
}

// SendKeyRequest writes a named keypress to the session's terminal.
type SendKeyRequest struct {
	Key string `json:"key"`
}

// SetWorkspaceRequest switches the active workspace.
type SetWorkspaceRequest struct {
	Path string `json:"path"`
}

// CreateTaskRequest creates a task in the active workspace.
type CreateTaskRequest struct {
	WorkspacePath string `json:"workspace_path,omitempty"`
	Title         string `json:"title"`
}

// UpdateTaskRequest patches a task. Nil fields are left unchanged.
type UpdateTaskRequest struct {
	Title *string `json:"title,omitempty"`
	Done  *bool   `json:"done,omitempty"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

// writeError maps a domain error to an HTTP status and error code.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := domain.ErrCodeInternalError

	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		status, code = http.StatusNotFound, domain.ErrCodeSessionNotFound
	case errors.Is(err, domain.ErrMessageNotFound):
		status, code = http.StatusNotFound, domain.ErrCodeMessageNotFound
	case errors.Is(err, domain.ErrWorkspaceNotFound):
		status, code = http.StatusNotFound, domain.ErrCodeWorkspaceNotFound
	case errors.Is(err, taskstore.ErrTaskNotFound):
		status, code = http.StatusNotFound, domain.ErrCodeTaskNotFound
	case errors.Is(err, domain.ErrMessageNotEditable):
		status, code = http.StatusConflict, domain.ErrCodeMessageNotEditable
	case errors.Is(err, domain.ErrMessageNotRemovable),
		errors.Is(err, domain.ErrQueueProcessing),
		errors.Is(err, domain.ErrSessionStopping),
		errors.Is(err, domain.ErrSessionCoolingDown):
		status, code = http.StatusConflict, domain.ErrCodeInternalError
	case errors.Is(err, domain.ErrSessionAlreadyRunning):
		status, code = http.StatusConflict, domain.ErrCodeSessionAlreadyRunning
	case errors.Is(err, domain.ErrSessionNotRunning):
		status, code = http.StatusConflict, domain.ErrCodeSessionNotRunning
	case errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrMessageTooLong),
		errors.Is(err, domain.ErrUnknownKey):
		status, code = http.StatusBadRequest, domain.ErrCodeInvalidPayload
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		status, code = http.StatusBadRequest, domain.ErrCodeInvalidPayload
	}

	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

// writeBadRequest reports a malformed request body or parameter.
func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Code: domain.ErrCodeInvalidPayload})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
