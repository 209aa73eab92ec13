package gateway

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"agentrun/internal/approval"
	"agentrun/internal/chat"
	"agentrun/internal/gateway/handlers"
	"agentrun/internal/gateway/websocket"
	"agentrun/internal/runctl"
)

// AgentInfo is one entry of GET /agents.
type AgentInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Alias       string `json:"alias"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
}

type sendRequest struct {
	Content string             `json:"content"`
	Context []chat.ContextItem `json:"context,omitempty"`
}

type agentRequest struct {
	ID string `json:"id"`
}

type approvalRequest struct {
	Approved bool   `json:"approved"`
	Value    any    `json:"value,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", handlers.HealthHandler(s.version, s.probe)).Methods(http.MethodGet)

	api.HandleFunc("/conversation", s.handleConversation).Methods(http.MethodGet)
	api.HandleFunc("/messages", s.handleSend).Methods(http.MethodPost)
	api.HandleFunc("/abort", s.handleAbort).Methods(http.MethodPost)
	api.HandleFunc("/regenerate", s.handleRegenerate).Methods(http.MethodPost)
	api.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)

	api.HandleFunc("/agents", s.handleListAgents).Methods(http.MethodGet)
	api.HandleFunc("/agent", s.handleSetAgent).Methods(http.MethodPut)

	api.HandleFunc("/approvals", s.handleListApprovals).Methods(http.MethodGet)
	api.HandleFunc("/approvals/history", s.handleApprovalHistory).Methods(http.MethodGet)
	api.HandleFunc("/approvals/{id}", s.handleRespond).Methods(http.MethodPost)

	s.router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(s.hub, w, r)
	})
}

func (s *Server) probe() (int, string, bool) {
	agent := ""
	if ref, ok := s.controller.Agent(); ok {
		agent = ref.ID
	}
	return s.hub.ClientCount(), agent, s.controller.IsRunning()
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	handlers.SendJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest, err.Error())
		return
	}
	if err := s.controller.SendUserMessage(req.Content, req.Context...); err != nil {
		s.sendControllerError(w, err)
		return
	}
	handlers.SendJSON(w, http.StatusAccepted, s.controller.Snapshot())
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	s.controller.AbortRun()
	handlers.SendJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.RegenerateLastMessage(); err != nil {
		s.sendControllerError(w, err)
		return
	}
	handlers.SendJSON(w, http.StatusAccepted, s.controller.Snapshot())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.controller.ResetConversation()
	handlers.SendJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	active := ""
	if ref, ok := s.controller.Agent(); ok {
		active = ref.ID
	}
	ids := s.config.AgentIDs()
	out := make([]AgentInfo, 0, len(ids))
	for _, id := range ids {
		ac, _ := s.config.Agent(id)
		ref := ac.Ref(id)
		out = append(out, AgentInfo{
			ID:          id,
			Name:        ref.Name,
			Alias:       ref.Alias,
			Description: ac.Description,
			Active:      id == active,
		})
	}
	handlers.SendJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest, err.Error())
		return
	}
	if req.ID == "" {
		handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest, "agent id is required")
		return
	}
	ac, ok := s.config.Agent(req.ID)
	if !ok {
		handlers.SendError(w, http.StatusNotFound, handlers.ErrCodeNotFound, "unknown agent: "+req.ID)
		return
	}
	if err := s.controller.SetAgent(ac.Ref(req.ID)); err != nil {
		s.sendControllerError(w, err)
		return
	}
	handlers.SendJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	if s.approvals == nil {
		handlers.SendJSON(w, http.StatusOK, []*approval.Request{})
		return
	}
	handlers.SendJSON(w, http.StatusOK, s.approvals.ListPending())
}

func (s *Server) handleApprovalHistory(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, handlers.ErrCodeServiceUnavailable, "approval audit is disabled")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := s.audit.Recent(limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("read approval history")
		handlers.SendError(w, http.StatusInternalServerError, handlers.ErrCodeInternalError, "failed to read approval history")
		return
	}
	handlers.SendJSON(w, http.StatusOK, entries)
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	if s.approvals == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, handlers.ErrCodeServiceUnavailable, "approvals are disabled")
		return
	}
	id := mux.Vars(r)["id"]
	var req approvalRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest, err.Error())
		return
	}
	err := s.approvals.Respond(id, approval.Response{Approved: req.Approved, Value: req.Value, Message: req.Message})
	if errors.Is(err, approval.ErrRequestNotFound) {
		handlers.SendError(w, http.StatusNotFound, handlers.ErrCodeNotFound, "approval request not found: "+id)
		return
	}
	if err != nil {
		handlers.SendError(w, http.StatusInternalServerError, handlers.ErrCodeInternalError, err.Error())
		return
	}
	handlers.SendJSON(w, http.StatusOK, map[string]any{"id": id, "approved": req.Approved})
}

func (s *Server) sendControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, runctl.ErrEmptyMessage):
		handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest, err.Error())
	case errors.Is(err, runctl.ErrNoAgent), errors.Is(err, runctl.ErrRunInProgress):
		handlers.SendError(w, http.StatusConflict, handlers.ErrCodeConflict, err.Error())
	case errors.Is(err, runctl.ErrClosed):
		handlers.SendError(w, http.StatusServiceUnavailable, handlers.ErrCodeServiceUnavailable, err.Error())
	default:
		s.logger.Error().Err(err).Msg("controller request failed")
		handlers.SendError(w, http.StatusInternalServerError, handlers.ErrCodeInternalError, err.Error())
	}
}
