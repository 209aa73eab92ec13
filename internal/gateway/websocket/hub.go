package websocket

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"agentrun/pkg/logger"
)

// ErrHubStopped is returned by broadcasts after Stop.
var ErrHubStopped = errors.New("websocket hub stopped")

// ApprovalResponseHandler handles approval answers from clients.
type ApprovalResponseHandler func(requestID string, approved bool, value any, message string) error

// ChatHandler handles user messages typed into a client.
type ChatHandler func(content string) error

// WelcomeFunc produces the frame sent to a client right after it connects.
type WelcomeFunc func() Frame

// Hub maintains the set of active clients and broadcasts frames to them.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	stopOnce   sync.Once

	mu sync.RWMutex

	approvalHandler ApprovalResponseHandler
	chatHandler     ChatHandler
	welcome         WelcomeFunc

	logger *zerolog.Logger
}

// NewHub creates a new Hub. Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		logger:     logger.For("gateway.ws"),
	}
}

// SetApprovalHandler sets the callback for approval responses.
func (h *Hub) SetApprovalHandler(handler ApprovalResponseHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.approvalHandler = handler
}

// SetChatHandler sets the callback for chat messages.
func (h *Hub) SetChatHandler(handler ChatHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chatHandler = handler
}

// SetWelcome sets the frame producer for newly connected clients.
func (h *Hub) SetWelcome(fn WelcomeFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.welcome = fn
}

// HandleChat processes a chat message from a client.
func (h *Hub) HandleChat(content string) error {
	h.mu.RLock()
	handler := h.chatHandler
	h.mu.RUnlock()

	if handler == nil {
		return errors.New("chat handler not configured")
	}
	return handler(content)
}

// HandleApprovalResponse processes an approval response from a client.
func (h *Hub) HandleApprovalResponse(requestID string, approved bool, value any, message string) error {
	h.mu.RLock()
	handler := h.approvalHandler
	h.mu.RUnlock()

	if handler == nil {
		h.logger.Warn().Str("request_id", requestID).Msg("approval response received but no handler configured")
		return nil
	}
	return handler(requestID, approved, value, message)
}

// Run is the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			welcome := h.welcome
			h.mu.Unlock()
			h.logger.Info().Str("client_id", client.id).Msg("client connected")

			if welcome != nil {
				client.sendFrame(welcome())
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info().Str("client_id", client.id).Msg("client disconnected")

		case data := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// slow client, drop the frame
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Stop ends Run and disconnects every client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastAll sends a typed frame to every connected client. It never
// blocks: frames are dropped when the broadcast queue is full.
func (h *Hub) BroadcastAll(messageType string, data any) error {
	payload, err := json.Marshal(Frame{Type: messageType, Data: data})
	if err != nil {
		h.logger.Error().Err(err).Str("type", messageType).Msg("failed to marshal broadcast frame")
		return err
	}

	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn().Str("type", messageType).Msg("broadcast queue full, frame dropped")
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
