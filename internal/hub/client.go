package hub

import (
	"encoding/json"
	"log"
	"time"

	"arena-core/internal/wire"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024

	chatRatePerWindow = 10
	chatRateWindow    = 10 * time.Second
)

// ClientMessage is a single inbound frame: Type names one of wire's
// CommandKind values, Data is the kind-specific payload.
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client represents one duplex connection. A player_id may have several
// live Clients (multiple tabs); PlayerID ↔ connID mapping is owned by Hub.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	playerID string
	connID   string
	logger   *log.Logger

	chatLimiter *tokenBucket
}

// NewClient wires a raw *websocket.Conn into the hub's connection model.
func NewClient(h *Hub, conn *websocket.Conn, playerID, connID string, logger *log.Logger) *Client {
	ratePerWindow, rateWindow := chatRatePerWindow, chatRateWindow
	if h != nil && h.chatRatePerWindow > 0 {
		ratePerWindow, rateWindow = h.chatRatePerWindow, h.chatRateWindow
	}
	return &Client{
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, 256),
		playerID:    playerID,
		connID:      connID,
		logger:      logger,
		chatLimiter: newTokenBucket(ratePerWindow, rateWindow),
	}
}

// allowEvent applies the per-connection rate limit to chat/typing events
// only; all other command kinds are unthrottled at this layer.
func (c *Client) allowEvent(kind string) bool {
	switch wire.CommandKind(kind) {
	case wire.CmdSendChatMessage, wire.CmdUserTyping:
		return c.chatLimiter.Allow()
	default:
		return true
	}
}

// deliver enqueues an outbound event for this connection's writePump. A
// saturated send channel means the client isn't draining fast enough;
// the event is then dropped and the drop is logged.
func (c *Client) deliver(ev wire.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		c.logger.Printf("hub: failed to marshal event for %s: %v", c.connID, err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Printf("hub: send buffer full for connection %s, dropping event %s", c.connID, ev.Kind)
	}
}

// ReadPump pumps inbound frames to the hub. Run in its own goroutine;
// returns (and unregisters) when the connection closes.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Printf("hub: read error on %s: %v", c.connID, err)
			}
			return
		}
		c.hub.Deliver(c, msg)
	}
}

// WritePump pumps outbound frames from send to the socket, and pings on
// an idle period. Run in its own goroutine alongside ReadPump.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
