// Package gateway exposes a run controller over HTTP and WebSocket.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"agentrun/internal/approval"
	"agentrun/internal/chat"
	"agentrun/internal/config"
	"agentrun/internal/gateway/handlers"
	"agentrun/internal/gateway/middleware"
	"agentrun/internal/gateway/websocket"
	"agentrun/internal/runctl"
	"agentrun/internal/storage"
	"agentrun/pkg/logger"
)

// Options configures a Server.
type Options struct {
	Controller *runctl.RunController
	Config     *config.Config

	// Approvals answers approval requests posted by clients. Optional.
	Approvals *approval.Manager
	// Audit backs GET /approvals/history. Optional.
	Audit *storage.ApprovalLog

	// Hub is created when nil.
	Hub     *websocket.Hub
	Version string
	// WatchPaths are files whose changes are announced with reload frames.
	WatchPaths []string
	Logger     *zerolog.Logger
}

// Server represents the HTTP gateway server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	hub        *websocket.Hub
	watcher    *Watcher

	controller *runctl.RunController
	config     *config.Config
	approvals  *approval.Manager
	audit      *storage.ApprovalLog
	version    string
	watchPaths []string
	logger     *zerolog.Logger

	unsubs       []func()
	shutdownOnce sync.Once
}

// NewServer creates a gateway bound to opts.Controller and bridges the
// controller's observables to WebSocket frames.
func NewServer(opts Options) *Server {
	l := opts.Logger
	if l == nil {
		l = logger.For("gateway")
	}
	hub := opts.Hub
	if hub == nil {
		hub = websocket.NewHub()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}

	router := mux.NewRouter()
	handler := middleware.Recovery(middleware.Logging(router))

	s := &Server{
		httpServer: &http.Server{
			Handler:     handler,
			ReadTimeout: 60 * time.Second,
			IdleTimeout: 120 * time.Second,
		},
		router:     router,
		hub:        hub,
		controller: opts.Controller,
		config:     cfg,
		approvals:  opts.Approvals,
		audit:      opts.Audit,
		version:    opts.Version,
		watchPaths: opts.WatchPaths,
		logger:     l,
	}

	s.bridge()
	s.setupRoutes()
	return s
}

// bridge forwards controller state changes and client input.
func (s *Server) bridge() {
	c := s.controller
	s.hub.SetWelcome(func() websocket.Frame {
		return websocket.Frame{Type: websocket.TypeSnapshot, Data: c.Snapshot()}
	})
	s.hub.SetChatHandler(func(content string) error {
		return c.SendUserMessage(content)
	})
	if s.approvals != nil {
		s.hub.SetApprovalHandler(func(requestID string, approved bool, value any, message string) error {
			return s.approvals.Respond(requestID, approval.Response{Approved: approved, Value: value, Message: message})
		})
	}

	s.unsubs = append(s.unsubs,
		c.Messages().Subscribe(func(msgs []chat.ChatMessage) {
			s.broadcast(websocket.TypeMessages, msgs)
		}),
		c.StreamingContent().Subscribe(func(text string) {
			s.broadcast(websocket.TypeStreaming, text)
		}),
		c.AgentState().Subscribe(func(st chat.AgentState) {
			s.broadcast(websocket.TypeAgentState, st)
		}),
	)
}

func (s *Server) broadcast(frameType string, data any) {
	if err := s.hub.BroadcastAll(frameType, data); err != nil && !errors.Is(err, websocket.ErrHubStopped) {
		s.logger.Warn().Err(err).Str("type", frameType).Msg("broadcast failed")
	}
}

// Handler returns the root HTTP handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}

// Start runs the hub and watcher and serves HTTP until Shutdown.
func (s *Server) Start() error {
	handlers.InitStartTime()

	go s.hub.Run()

	if len(s.watchPaths) > 0 {
		w, err := NewWatcher(s.hub, s.logger, s.watchPaths...)
		if err != nil {
			s.logger.Warn().Err(err).Msg("file watcher unavailable")
		} else if err := w.Start(); err == nil {
			s.watcher = w
		}
	}

	s.httpServer.Addr = s.config.Gateway.Addr()
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("gateway listening")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops serving and releases controller subscriptions.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		for _, u := range s.unsubs {
			u()
		}
		if s.watcher != nil {
			s.watcher.Stop()
		}
		s.hub.Stop()
		err = s.httpServer.Shutdown(ctx)
	})
	return err
}
