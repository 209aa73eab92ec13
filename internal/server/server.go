package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"agentrun/internal/approval"
	"agentrun/internal/config"
	"agentrun/internal/gateway"
	"agentrun/internal/gateway/websocket"
	"agentrun/pkg/logger"
)

// ServerConfig holds configuration for the embedded server.
type ServerConfig struct {
	Config      *config.Config
	StoragePath string
	// Agent is bound at startup when set.
	Agent   string
	Version string
	Logger  *zerolog.Logger
}

// Server runs a Stack behind the HTTP/WebSocket gateway.
type Server struct {
	cfg     ServerConfig
	logger  *zerolog.Logger
	stack   *Stack
	gateway *gateway.Server

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
	errChan   chan error
}

// NewServer assembles the stack and the gateway.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("server: config is required")
	}
	l := cfg.Logger
	if l == nil {
		l = logger.For("server")
	}

	hub := websocket.NewHub()
	stack, err := NewStack(cfg.Config, StackOptions{
		StoragePath: cfg.StoragePath,
		Notifier:    approval.NewBroadcastNotifier(hub),
		Logger:      l,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Agent != "" {
		if err := stack.BindAgent(cfg.Agent); err != nil {
			_ = stack.Close()
			return nil, fmt.Errorf("bind agent: %w", err)
		}
	}

	gw := gateway.NewServer(gateway.Options{
		Controller: stack.Controller,
		Config:     cfg.Config,
		Approvals:  stack.Approvals,
		Audit:      stack.Audit,
		Hub:        hub,
		Version:    cfg.Version,
		WatchPaths: stack.TranscriptPaths(),
		Logger:     logger.For("gateway"),
	})

	return &Server{
		cfg:     cfg,
		logger:  l,
		stack:   stack,
		gateway: gw,
		errChan: make(chan error, 1),
	}, nil
}

// Stack returns the wired components.
func (s *Server) Stack() *Stack {
	return s.stack
}

// ErrorChan reports a gateway failure after Start.
func (s *Server) ErrorChan() <-chan error {
	return s.errChan
}

// Start serves the gateway in the background and waits until it accepts
// connections.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	go func() {
		if err := s.gateway.Start(); err != nil {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			s.errChan <- err
		}
	}()

	timeout := time.After(10 * time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return errors.New("server start timeout")
		case err := <-s.errChan:
			return fmt.Errorf("server start failed: %w", err)
		case <-ticker.C:
			if s.IsReady() {
				return nil
			}
		}
	}
}

// IsRunning reports whether Start has been called and Stop has not.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// IsReady reports whether the gateway accepts connections.
func (s *Server) IsReady() bool {
	if !s.IsRunning() {
		return false
	}
	conn, err := net.DialTimeout("tcp", s.cfg.Config.Gateway.Addr(), 200*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// StartedAt returns when Start was called.
func (s *Server) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// Handler exposes the gateway handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.gateway.Handler()
}

// Stop shuts the gateway down and releases the stack.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info().Msg("stopping server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if err := s.gateway.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.stack.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
