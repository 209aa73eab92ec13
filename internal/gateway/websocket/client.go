package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 1024 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one WebSocket connection.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	id          string
	connectedAt time.Time
}

// NewClient creates a new client.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		id:          uuid.NewString(),
		connectedAt: time.Now(),
	}
}

// ID returns the client id.
func (c *Client) ID() string {
	return c.id
}

// readPump pumps frames from the connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error().Err(err).Str("client_id", c.id).Msg("read error")
			}
			break
		}
		c.handleMessage(message)
	}
}

// handleMessage processes one incoming frame.
func (c *Client) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("INVALID_MESSAGE", "failed to parse message")
		return
	}

	log := c.hub.logger.With().Str("client_id", c.id).Str("type", msg.Type).Logger()
	log.Debug().Msg("received frame")

	switch msg.Type {
	case TypePing:
		c.sendFrame(Frame{Type: TypePong})

	case TypeApprovalResponse:
		if msg.RequestID == "" {
			c.sendError("INVALID_REQUEST", "approval response requires requestId")
			return
		}
		var value any
		if len(msg.Value) > 0 {
			if err := json.Unmarshal(msg.Value, &value); err != nil {
				c.sendError("INVALID_REQUEST", "approval value is not valid JSON")
				return
			}
		}
		if err := c.hub.HandleApprovalResponse(msg.RequestID, msg.Approved, value, msg.Message); err != nil {
			log.Warn().Err(err).Str("request_id", msg.RequestID).Msg("approval response rejected")
			c.sendError("APPROVAL_ERROR", err.Error())
		}

	case TypeChat:
		if msg.Content == "" {
			c.sendError("INVALID_REQUEST", "chat content is required")
			return
		}
		if err := c.hub.HandleChat(msg.Content); err != nil {
			c.sendError("CHAT_ERROR", err.Error())
		}

	default:
		log.Debug().Msg("unknown frame type")
	}
}

// writePump pumps frames from the hub to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Error().Err(err).Str("client_id", c.id).Msg("write error")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendFrame(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) sendError(code, message string) {
	c.sendFrame(Frame{Type: TypeError, Code: code, Message: message})
}

// ServeWs upgrades the request and attaches the connection to hub.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	client := NewClient(hub, conn)
	hub.Register(client)

	go client.writePump()
	go client.readPump()
}
