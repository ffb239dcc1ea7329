package ws

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/laundrypos/api/internal/auth"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the token is checked before upgrading
	},
}

// Client is one UI connection watching a terminal's carts.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	terminalID uuid.UUID
	send       chan []byte
}

// ReadPump only watches for disconnects; clients mutate carts over HTTP.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn().Err(err).Str("terminal_id", c.terminalID.String()).Msg("websocket read")
			}
			return
		}
	}
}

// WritePump sends queued states to the peer. Every message is a complete
// snapshot, so when several are queued only the newest is written.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			message, ok = latest(c.send, message, ok)
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

// latest drains whatever is already buffered in send and returns the last
// message. ok is false once the hub has closed the channel.
func latest(send <-chan []byte, message []byte, ok bool) ([]byte, bool) {
	for ok && len(send) > 0 {
		next, open := <-send
		if !open {
			return nil, false
		}
		message = next
	}
	return message, ok
}

// ServeWS handles WS /ws/terminals/{tid}/carts?token=JWT
//
// attach, if set, runs for the authenticated terminal before the upgrade so
// the terminal's store exists and is publishing to the hub.
func ServeWS(hub *Hub, jwtSecret string, attach func(terminalID uuid.UUID), w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ValidateToken(jwtSecret, tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	terminalID, err := uuid.Parse(chi.URLParam(r, "tid"))
	if err != nil {
		http.Error(w, "invalid terminal id", http.StatusBadRequest)
		return
	}

	if claims.TerminalID != terminalID {
		http.Error(w, "terminal access denied", http.StatusForbidden)
		return
	}

	if attach != nil {
		attach(terminalID)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Warn().Err(err).Msg("websocket upgrade")
		return
	}

	client := &Client{
		hub:        hub,
		conn:       conn,
		terminalID: terminalID,
		send:       make(chan []byte, 256),
	}
	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
