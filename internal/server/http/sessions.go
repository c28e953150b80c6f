package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/cpilot-dev/cpilot/internal/queue"
	"github.com/cpilot-dev/cpilot/internal/session"
)

// SessionDetails is the full per-session view: status plus the current
// reconstructed screen.
type SessionDetails struct {
	session.Status
	Screen string `json:"screen"`
}

// SessionStats aggregates a single session's queue history.
type SessionStats struct {
	SessionID       string `json:"session_id"`
	WorkspacePath   string `json:"workspace_path"`
	TotalMessages   int    `json:"total_messages"`
	Pending         int    `json:"pending"`
	Completed       int    `json:"completed"`
	Errored         int    `json:"errored"`
	AvgProcessingMS int64  `json:"avg_processing_ms"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Version:        s.version,
		UptimeSeconds:  int64(time.Since(s.startTime).Seconds()),
		ActiveSessions: s.orch.ActiveCount(),
	}
	if s.settings != nil {
		resp.ActiveWorkspace = s.settings.Active()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.GetStats())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.WorkspacePath) == "" {
		writeBadRequest(w, "workspace_path is required")
		return
	}

	mgr, err := s.orch.CreateSession(req.WorkspacePath)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mgr.Status())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.ListActiveSessions())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	mgr, err := s.orch.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionDetails{
		Status: mgr.Status(),
		Screen: mgr.Screen(),
	})
}

func (s *Server) handleTerminateSession(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.TerminateSession(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	mgr, err := s.orch.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	stats := SessionStats{
		SessionID:     mgr.ID(),
		WorkspacePath: mgr.WorkspacePath(),
	}
	var totalMS int64
	for _, msg := range mgr.Messages() {
		stats.TotalMessages++
		switch msg.Status {
		case queue.StatusPending:
			stats.Pending++
		case queue.StatusCompleted:
			stats.Completed++
			totalMS += msg.ProcessingTimeMS
		case queue.StatusError:
			stats.Errored++
		}
	}
	if stats.Completed > 0 {
		stats.AvgProcessingMS = totalMS / int64(stats.Completed)
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	mgr, err := s.orch.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if err := mgr.Start(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mgr.Status())
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	mgr, err := s.orch.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if err := mgr.Stop("api request"); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mgr.Status())
}

func (s *Server) handleSendKey(w http.ResponseWriter, r *http.Request) {
	mgr, err := s.orch.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	var req SendKeyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Key == "" {
		writeBadRequest(w, "key is required")
		return
	}
	if err := mgr.SendKey(req.Key); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent", "key": req.Key})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	mgr, err := s.orch.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	msgs := mgr.Messages()
	if msgs == nil {
		msgs = []*queue.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleEnqueueMessage(w http.ResponseWriter, r *http.Request) {
	mgr, err := s.orch.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	var req EnqueueMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	msg, err := mgr.Enqueue(req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	mgr, err := s.orch.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if err := mgr.ClearQueue(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	mgr, err := s.orch.Get(vars["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	var req UpdateMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	msg, err := mgr.UpdateMessage(vars["msgID"], req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleRemoveMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	mgr, err := s.orch.Get(vars["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := mgr.RemoveMessage(vars["msgID"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
