package approval

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agentrun/pkg/logger"
)

type pendingRequest struct {
	request *Request
	done    chan *Result
	timer   *time.Timer
}

// Manager holds pending requests until they are answered, time out, or are cancelled.
type Manager struct {
	mu       sync.RWMutex
	pending  map[string]*pendingRequest
	notifier Notifier
	audit    AuditLogger
	closed   bool

	logger     *zerolog.Logger
	timeout    time.Duration
	maxPending int
}

// ManagerConfig configures the Manager.
type ManagerConfig struct {
	Notifier   Notifier
	Audit      AuditLogger
	Timeout    time.Duration
	MaxPending int
	Logger     *zerolog.Logger
}

// NewManager creates a Manager. A nil config uses a 5 minute timeout and 100 pending requests.
func NewManager(cfg *ManagerConfig) *Manager {
	m := &Manager{
		pending:    make(map[string]*pendingRequest),
		timeout:    5 * time.Minute,
		maxPending: 100,
	}
	if cfg != nil {
		if cfg.Timeout > 0 {
			m.timeout = cfg.Timeout
		}
		if cfg.MaxPending > 0 {
			m.maxPending = cfg.MaxPending
		}
		m.notifier = cfg.Notifier
		m.audit = cfg.Audit
		m.logger = cfg.Logger
	}
	if m.logger == nil {
		m.logger = logger.For("approval")
	}
	return m
}

// SetNotifier replaces the notifier.
func (m *Manager) SetNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

// SetAuditLogger replaces the audit logger.
func (m *Manager) SetAuditLogger(a AuditLogger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = a
}

func (m *Manager) hooks() (Notifier, AuditLogger) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.notifier, m.audit
}

// RequestApproval registers req and blocks until it is answered, times out,
// or ctx is done. A timeout is reported as a DecisionTimeout result with a nil error.
func (m *Manager) RequestApproval(ctx context.Context, req *Request) (*Result, error) {
	now := time.Now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.CreatedAt = now
	req.ExpiresAt = now.Add(m.timeout)

	pr := &pendingRequest{
		request: req,
		done:    make(chan *Result, 1),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if len(m.pending) >= m.maxPending {
		m.mu.Unlock()
		return nil, ErrMaxPendingExceeded
	}
	m.pending[req.ID] = pr
	pr.timer = time.AfterFunc(m.timeout, func() {
		m.resolve(req.ID, &Result{Message: "approval request timed out", Decision: DecisionTimeout})
	})
	m.mu.Unlock()

	m.logger.Info().Str("request_id", req.ID).Str("kind", string(req.Kind)).Str("tool", req.ToolName).Msg("approval request created")

	notifier, audit := m.hooks()
	if audit != nil {
		if err := audit.LogRequest(req); err != nil {
			m.logger.Warn().Err(err).Str("request_id", req.ID).Msg("audit log request failed")
		}
	}
	if notifier != nil {
		if err := notifier.NotifyRequest(req); err != nil {
			m.logger.Warn().Err(err).Str("request_id", req.ID).Msg("failed to send approval notification")
		}
	}

	select {
	case result := <-pr.done:
		return result, nil
	case <-ctx.Done():
		m.resolve(req.ID, &Result{Message: "request cancelled", Decision: DecisionCancelled})
		return &Result{Message: "request cancelled", Decision: DecisionCancelled, DecidedAt: time.Now()}, ctx.Err()
	}
}

// Respond answers a pending request.
func (m *Manager) Respond(requestID string, resp Response) error {
	decision := DecisionRejected
	if resp.Approved {
		decision = DecisionApproved
	}
	ok := m.resolve(requestID, &Result{
		Approved: resp.Approved,
		Value:    resp.Value,
		Message:  resp.Message,
		Decision: decision,
	})
	if !ok {
		return ErrRequestNotFound
	}
	return nil
}

// resolve removes a pending request and hands result to its waiter.
// It reports false if the request was no longer pending.
func (m *Manager) resolve(requestID string, result *Result) bool {
	m.mu.Lock()
	pr, ok := m.pending[requestID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	if pr.timer != nil {
		pr.timer.Stop()
	}
	delete(m.pending, requestID)
	m.mu.Unlock()

	result.DecidedAt = time.Now()
	ev := m.logger.Info()
	if result.Decision == DecisionTimeout {
		ev = m.logger.Warn()
	}
	ev.Str("request_id", requestID).Str("decision", string(result.Decision)).Msg("approval resolved")

	notifier, audit := m.hooks()
	if audit != nil {
		if err := audit.LogDecision(pr.request, result); err != nil {
			m.logger.Warn().Err(err).Str("request_id", requestID).Msg("audit log decision failed")
		}
	}
	if notifier != nil {
		if err := notifier.NotifyResolved(pr.request, result); err != nil {
			m.logger.Warn().Err(err).Str("request_id", requestID).Msg("failed to send resolution notification")
		}
	}

	select {
	case pr.done <- result:
	default:
	}
	return true
}

// GetPending returns a pending request by id.
func (m *Manager) GetPending(requestID string) (*Request, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if pr, ok := m.pending[requestID]; ok {
		return pr.request, true
	}
	return nil, false
}

// ListPending returns pending requests, oldest first.
func (m *Manager) ListPending() []*Request {
	m.mu.RLock()
	out := make([]*Request, 0, len(m.pending))
	for _, pr := range m.pending {
		out = append(out, pr.request)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// PendingCount returns the number of pending requests.
func (m *Manager) PendingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pending)
}

// Close cancels every pending request and rejects new ones.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	ids := make([]string, 0, len(m.pending))
	for id := range m.pending {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.resolve(id, &Result{Message: "manager closed", Decision: DecisionCancelled})
	}
}
