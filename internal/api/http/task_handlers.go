package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/execution-hub/agent-orchestrator/internal/domain/task"
)

type submitTaskRequest struct {
	Message   string          `json:"message"`
	SessionID string          `json:"sessionId"`
	UserID    string          `json:"userId"`
	Language  string          `json:"language"`
	Priority  string          `json:"priority"`
	Type      string          `json:"type"`
	Intent    string          `json:"intent"`
	Metadata  map[string]any  `json:"metadata"`
	Payload   json.RawMessage `json:"payload"`
}

type submitTaskResponse struct {
	TaskID string `json:"taskId"`
	Intent string `json:"intent"`
	Stage  string `json:"stage"`
	*task.Response
}

func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var req submitTaskRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "message is required")
		return
	}
	t := &task.Task{
		Type:      req.Type,
		Intent:    req.Intent,
		Priority:  task.Priority(req.Priority),
		Message:   req.Message,
		Payload:   req.Payload,
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Language:  req.Language,
		Metadata:  req.Metadata,
	}
	t.Normalize()

	resp := s.router.Submit(r.Context(), t)
	respondJSON(w, http.StatusOK, submitTaskResponse{
		TaskID:   t.ID.String(),
		Intent:   t.Intent,
		Stage:    string(t.Stage),
		Response: resp,
	})
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var msg task.Message
	if err := decodeBody(r, &msg); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if err := s.bus.Send(&msg); err != nil {
		if errors.Is(err, task.ErrInvalidMessage) {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
			return
		}
		respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":      msg.ID,
		"pending": s.bus.Pending(),
	})
}

func (s *Server) systemMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"system":          s.monitor.SystemMetrics(),
		"router":          s.router.Stats(),
		"pendingMessages": s.bus.Pending(),
	})
}
