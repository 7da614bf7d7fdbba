package socket

import (
	"encoding/json"
	"net/http"
	"time"

	"coscribe/internal/metrics"
	"coscribe/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS for the browser client is handled at the HTTP layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one authenticated websocket connection. Per-connection state
// transitions (no room -> in room -> no room) are owned by the hub
// goroutine; the pumps only move bytes.
type Client struct {
	Hub      *Hub
	Conn     *websocket.Conn
	SocketID string
	UserID   string
	Username string
	Send     chan []byte

	docID string // current room, hub goroutine only
	gone  bool   // set at unregister, hub goroutine only
}

// ServeWs upgrades an already-authenticated request to a websocket
// connection and registers it with the hub. The connection starts in no
// room; the client joins by sending a join-document event.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID, username string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	client := &Client{
		Hub:      hub,
		Conn:     conn,
		SocketID: uuid.NewString(),
		UserID:   userID,
		Username: username,
		Send:     make(chan []byte, hub.opts.SendBufferSize),
	}

	client.Hub.Register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		// Runs exactly once per connection, whatever killed the read
		// loop; room cleanup happens in the hub's unregister path.
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	for {
		_, rawMessage, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("read error on connection %s: %v", c.SocketID, err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(rawMessage, &msg); err != nil {
			logger.Sugar.Errorf("Error unmarshalling message from %s: %v", c.SocketID, err)
			continue
		}
		// The sender's identity always comes from the authenticated
		// connection, never from the wire.
		msg.UserID = c.UserID

		c.Hub.inbound <- inbound{client: c, msg: msg}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.Hub.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // Connection is dead
			}
		}
	}
}

// enqueue hands data to the client's writer without ever blocking the
// hub. A full buffer means the client cannot keep up; its connection is
// closed, which routes it through the usual unregister cleanup.
func (c *Client) enqueue(data []byte) {
	select {
	case c.Send <- data:
	default:
		logger.Sugar.Warnf("Send buffer full for connection %s, dropping client", c.SocketID)
		metrics.DroppedClients.Inc()
		c.Conn.Close()
	}
}

func marshal(msg Message) []byte {
	data, _ := json.Marshal(msg)
	return data
}
