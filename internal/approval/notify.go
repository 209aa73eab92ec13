package approval

import (
	"fmt"
	"time"
)

// Broadcaster sends a typed message to every connected client.
type Broadcaster interface {
	BroadcastAll(messageType string, data any) error
}

// Message types broadcast by BroadcastNotifier.
const (
	MessageRequest  = "approval_request"
	MessageResolved = "approval_resolved"
)

// ResolvedPayload is the body of an approval_resolved message.
type ResolvedPayload struct {
	ID        string    `json:"id"`
	Approved  bool      `json:"approved"`
	Decision  Decision  `json:"decision"`
	DecidedAt time.Time `json:"decidedAt"`
}

// BroadcastNotifier publishes approval events through a Broadcaster.
type BroadcastNotifier struct {
	broadcaster Broadcaster
}

// NewBroadcastNotifier creates a notifier backed by b.
func NewBroadcastNotifier(b Broadcaster) *BroadcastNotifier {
	return &BroadcastNotifier{broadcaster: b}
}

func (n *BroadcastNotifier) NotifyRequest(req *Request) error {
	if n.broadcaster == nil {
		return nil
	}
	if err := n.broadcaster.BroadcastAll(MessageRequest, req); err != nil {
		return fmt.Errorf("broadcast approval request: %w", err)
	}
	return nil
}

func (n *BroadcastNotifier) NotifyResolved(req *Request, result *Result) error {
	if n.broadcaster == nil {
		return nil
	}
	payload := ResolvedPayload{
		ID:        req.ID,
		Approved:  result.Approved,
		Decision:  result.Decision,
		DecidedAt: result.DecidedAt,
	}
	if err := n.broadcaster.BroadcastAll(MessageResolved, payload); err != nil {
		return fmt.Errorf("broadcast approval resolution: %w", err)
	}
	return nil
}
