// Package server assembles the run controller and its collaborators from
// configuration and hosts them behind the gateway.
package server

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"agentrun/internal/agui"
	"agentrun/internal/approval"
	"agentrun/internal/chat"
	"agentrun/internal/config"
	"agentrun/internal/interrupt"
	"agentrun/internal/jsvm"
	"agentrun/internal/runctl"
	"agentrun/internal/storage"
	"agentrun/internal/tools"
	"agentrun/pkg/logger"
)

// ErrUnknownAgent is returned when an agent id is not configured.
var ErrUnknownAgent = errors.New("unknown agent")

// StackOptions customises NewStack.
type StackOptions struct {
	// StoragePath is the sqlite database for the approval audit log.
	// Empty disables auditing.
	StoragePath string

	// Prompter answers HITL interrupts. Defaults to the approval manager.
	Prompter interrupt.Prompter
	// Approver gates tools that require approval. Defaults to the approval manager.
	Approver tools.Approver
	// Notifier announces approval requests.
	Notifier approval.Notifier

	Logger *zerolog.Logger
}

// Stack is a fully wired run controller.
type Stack struct {
	Config     *config.Config
	VM         *jsvm.Runtime
	Tools      *tools.Manager
	Executor   *tools.Executor
	Approvals  *approval.Manager
	DB         *storage.DB
	Audit      *storage.ApprovalLog
	Controller *runctl.RunController

	logger *zerolog.Logger
}

// NewStack builds every component described by cfg.
func NewStack(cfg *config.Config, opts StackOptions) (*Stack, error) {
	l := opts.Logger
	if l == nil {
		l = logger.For("server")
	}
	s := &Stack{Config: cfg, logger: l}

	s.VM = jsvm.NewRuntime(jsvm.Config{Timeout: cfg.JSVM.Timeout}, logger.For("jsvm"))

	manager, err := tools.LoadManager(cfg.Tools, s.VM)
	if err != nil {
		_ = s.VM.Close()
		return nil, fmt.Errorf("load tools: %w", err)
	}
	s.Tools = manager

	s.Approvals = approval.NewManager(&approval.ManagerConfig{
		Notifier:   opts.Notifier,
		Timeout:    cfg.Approval.Timeout,
		MaxPending: cfg.Approval.MaxPending,
		Logger:     logger.For("approval"),
	})

	if cfg.Approval.Audit && opts.StoragePath != "" {
		db, err := storage.Open(opts.StoragePath)
		if err != nil {
			s.Approvals.Close()
			_ = s.VM.Close()
			return nil, fmt.Errorf("open storage: %w", err)
		}
		s.DB = db
		s.Audit = storage.NewApprovalLog(db)
		s.Approvals.SetAuditLogger(s.Audit)
	}

	approver := opts.Approver
	if approver == nil {
		approver = s.Approvals
	}
	prompter := opts.Prompter
	if prompter == nil {
		prompter = s.Approvals
	}

	bus := tools.NewBus()
	s.Executor = tools.NewExecutor(manager, bus,
		tools.WithApprover(approver),
		tools.WithExecutorLogger(logger.For("tools.executor")),
	)

	s.Controller = runctl.New(runctl.Options{
		Transports:          TransportFactory(cfg),
		Tools:               manager,
		Executor:            s.Executor,
		InterruptHandlers:   []interrupt.Handler{interrupt.NewHitlHandler(prompter, logger.For("interrupt"))},
		InterruptTimeout:    cfg.Run.InterruptTimeout,
		AllowConcurrentSend: cfg.Run.AllowConcurrentSend,
		Logger:              logger.For("runctl"),
	})

	l.Debug().Int("tools", manager.Len()).Int("agents", len(cfg.Agents)).Msg("stack assembled")
	return s, nil
}

// BindAgent binds the configured agent id to the controller.
func (s *Stack) BindAgent(id string) error {
	ac, ok := s.Config.Agent(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	return s.Controller.SetAgent(ac.Ref(id))
}

// TranscriptPaths returns the resolved transcript files of every configured agent.
func (s *Stack) TranscriptPaths() []string {
	var out []string
	for _, id := range s.Config.AgentIDs() {
		ac, _ := s.Config.Agent(id)
		if ac.Transcript == "" {
			continue
		}
		p, err := config.ResolveRelative(ac.Transcript)
		if err != nil {
			s.logger.Warn().Err(err).Str("agent", id).Msg("cannot resolve transcript path")
			continue
		}
		out = append(out, p)
	}
	return out
}

// Close releases every component. It is safe to call once.
func (s *Stack) Close() error {
	var errs []error
	if err := s.Controller.Close(); err != nil {
		errs = append(errs, err)
	}
	s.Approvals.Close()
	if err := s.VM.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TransportFactory binds agents to scripted event sources that play back the
// transcript configured for each agent. The transcript is read on every bind.
func TransportFactory(cfg *config.Config) runctl.TransportFactory {
	return func(ref chat.AgentRef) (agui.EventSource, error) {
		ac, ok := cfg.Agent(ref.ID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, ref.ID)
		}
		if ac.Transcript == "" {
			return nil, fmt.Errorf("agent %s has no transcript", ref.ID)
		}
		path, err := config.ResolveRelative(ac.Transcript)
		if err != nil {
			return nil, err
		}
		t, err := agui.LoadTranscript(path)
		if err != nil {
			return nil, err
		}
		return agui.NewScriptSource(t,
			agui.WithSynchronous(ac.Synchronous),
			agui.WithLogger(logger.For("agui.script")),
		), nil
	}
}
